package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gtodo/internal/commands"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
)

// TestLoginCommand_NoOAuthClient verifies login fails without oauth_client.json
func TestLoginCommand_NoOAuthClient(t *testing.T) {
	cmd := &commands.LoginCmd{}

	var outBuf, errBuf bytes.Buffer
	cfg := &config.Config{
		Dir:     t.TempDir(),
		Backend: config.BackendGoogle,
	}

	ctx := context.Background()
	code := cmd.Run(ctx, cfg, nil, nil, &outBuf, &errBuf)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if outBuf.String() != "" {
		t.Errorf("expected no stdout, got %q", outBuf.String())
	}
	if errBuf.String() == "" {
		t.Error("expected error message about missing oauth_client.json")
	}
}

// TestLoginCommand_InvalidToken verifies login proceeds when token is invalid/corrupt
func TestLoginCommand_InvalidToken(t *testing.T) {
	cmd := &commands.LoginCmd{}

	tmpDir := t.TempDir()

	// Create oauth_client.json
	oauthClient := `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"]}}`
	err := os.WriteFile(filepath.Join(tmpDir, "oauth_client.json"), []byte(oauthClient), 0600)
	if err != nil {
		t.Fatalf("failed to write oauth_client.json: %v", err)
	}

	// Create invalid token.json (no refresh token)
	invalidToken := `{"access_token":"expired","token_type":"Bearer"}`
	err = os.WriteFile(filepath.Join(tmpDir, "token.json"), []byte(invalidToken), 0600)
	if err != nil {
		t.Fatalf("failed to write token.json: %v", err)
	}

	var outBuf, errBuf bytes.Buffer
	cfg := &config.Config{
		Dir:     tmpDir,
		Backend: config.BackendGoogle,
	}

	// Create a context that cancels immediately to prevent waiting for OAuth callback
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = cmd.Run(ctx, cfg, nil, nil, &outBuf, &errBuf)

	// Should try to proceed with login (context cancelled, so it will error)
	// The important thing is it didn't say "already logged in"
	if outBuf.String() == "already logged in\n" {
		t.Error("should not say 'already logged in' with invalid token")
	}
}

// TestLoginCommand_NoRefreshToken verifies login proceeds when token has no refresh token
func TestLoginCommand_NoRefreshToken(t *testing.T) {
	cmd := &commands.LoginCmd{}

	tmpDir := t.TempDir()

	// Create oauth_client.json
	oauthClient := `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"]}}`
	err := os.WriteFile(filepath.Join(tmpDir, "oauth_client.json"), []byte(oauthClient), 0600)
	if err != nil {
		t.Fatalf("failed to write oauth_client.json: %v", err)
	}

	// Create token.json without refresh_token
	tokenWithoutRefresh := `{"access_token":"test","token_type":"Bearer","expiry":"2020-01-01T00:00:00Z"}`
	err = os.WriteFile(filepath.Join(tmpDir, "token.json"), []byte(tokenWithoutRefresh), 0600)
	if err != nil {
		t.Fatalf("failed to write token.json: %v", err)
	}

	var outBuf, errBuf bytes.Buffer
	cfg := &config.Config{
		Dir:     tmpDir,
		Backend: config.BackendGoogle,
	}

	// Create a context that cancels immediately
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code := cmd.Run(ctx, cfg, nil, nil, &outBuf, &errBuf)

	// Should try to proceed with login (not "already logged in")
	if outBuf.String() == "already logged in\n" {
		t.Error("should not say 'already logged in' with token missing refresh_token")
	}
	_ = code // We don't care about the exact exit code, just that it tried to re-login
}

func TestLogoutCommand(t *testing.T) {
	cases := []struct {
		name    string
		token   bool
		quiet   bool
		wantOut string
	}{
		{name: "removes token", token: true, wantOut: "ok\n"},
		{name: "removes token quietly", token: true, quiet: true, wantOut: ""},
		{name: "not logged in", wantOut: "not logged in\n"},
		{name: "not logged in quietly", quiet: true, wantOut: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			clientPath := filepath.Join(dir, "oauth_client.json")
			if err := os.WriteFile(clientPath, []byte(`{"installed":{"client_id":"test","client_secret":"test"}}`), 0600); err != nil {
				t.Fatalf("failed to write oauth_client.json: %v", err)
			}
			tokenPath := filepath.Join(dir, "token.json")
			if tc.token {
				if err := os.WriteFile(tokenPath, []byte(`{"access_token":"test"}`), 0600); err != nil {
					t.Fatalf("failed to write token.json: %v", err)
				}
			}

			var outBuf, errBuf bytes.Buffer
			cfg := &config.Config{Dir: dir, Quiet: tc.quiet}
			code := (&commands.LogoutCmd{}).Run(context.Background(), cfg, nil, nil, &outBuf, &errBuf)

			if code != exitcode.Success {
				t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
			}
			if errBuf.String() != "" {
				t.Errorf("expected no stderr, got %q", errBuf.String())
			}
			if outBuf.String() != tc.wantOut {
				t.Errorf("expected %q, got %q", tc.wantOut, outBuf.String())
			}
			if _, err := os.Stat(tokenPath); !os.IsNotExist(err) {
				t.Error("token.json should not exist after logout")
			}
			if _, err := os.Stat(clientPath); err != nil {
				t.Error("oauth_client.json should survive logout")
			}
		})
	}
}

func TestRegistryFindsAliases(t *testing.T) {
	for alias, want := range map[string]string{"ls": "list", "toggle": "done", "delete": "rm"} {
		cmd, ok := commands.DefaultRegistry.Find(alias)
		if !ok {
			t.Errorf("alias %q not registered", alias)
			continue
		}
		if cmd.Name() != want {
			t.Errorf("alias %q resolved to %q, want %q", alias, cmd.Name(), want)
		}
	}
}

// TestLoginCommand_BearerToken verifies --token stores a bearer token for the rest backend
func TestLoginCommand_BearerToken(t *testing.T) {
	cmd := &commands.LoginCmd{}
	cmd.SetToken("s3cret")

	tmpDir := filepath.Join(t.TempDir(), "gtodo")
	var outBuf, errBuf bytes.Buffer
	cfg := &config.Config{
		Dir:     tmpDir,
		Backend: config.BackendREST,
	}

	code := cmd.Run(context.Background(), cfg, nil, nil, &outBuf, &errBuf)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (stderr %q)", exitcode.Success, code, errBuf.String())
	}
	if outBuf.String() != "ok\n" {
		t.Errorf("expected 'ok\\n', got %q", outBuf.String())
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "token.json"))
	if err != nil {
		t.Fatalf("token.json not written: %v", err)
	}
	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(data, &token); err != nil {
		t.Fatalf("token.json is not JSON: %v", err)
	}
	if token.AccessToken != "s3cret" || token.TokenType != "Bearer" {
		t.Errorf("unexpected token %+v", token)
	}

	info, err := os.Stat(filepath.Join(tmpDir, "token.json"))
	if err != nil {
		t.Fatalf("stat token.json: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("token.json mode = %v, want 0600", info.Mode().Perm())
	}
}

// TestLoginCommand_RestWithoutToken verifies the rest backend requires --token
func TestLoginCommand_RestWithoutToken(t *testing.T) {
	cmd := &commands.LoginCmd{}

	var outBuf, errBuf bytes.Buffer
	cfg := &config.Config{Dir: t.TempDir(), Backend: config.BackendREST}

	code := cmd.Run(context.Background(), cfg, nil, nil, &outBuf, &errBuf)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if !strings.Contains(errBuf.String(), "token required") {
		t.Errorf("unexpected stderr %q", errBuf.String())
	}
}

// TestLoginCommand_GoogleRejectsToken verifies --token is refused for the google backend
func TestLoginCommand_GoogleRejectsToken(t *testing.T) {
	cmd := &commands.LoginCmd{}
	cmd.SetToken("s3cret")

	var outBuf, errBuf bytes.Buffer
	cfg := &config.Config{Dir: t.TempDir(), Backend: config.BackendGoogle}

	code := cmd.Run(context.Background(), cfg, nil, nil, &outBuf, &errBuf)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
}
