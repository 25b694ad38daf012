package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"gtodo/internal/app"
	"gtodo/internal/backend/googletasks"
	"gtodo/internal/backend/rest"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
)

const (
	oauthCallbackTimeout = 5 * time.Minute
	tokenExchangeTimeout = 30 * time.Second
	tokenCheckTimeout    = 10 * time.Second

	// The callback listener tries callbackPortBase, callbackPortBase+1, ...
	callbackPortBase  = 8085
	callbackPortTries = 5
)

// Printed when the google backend has no OAuth client; %s is the config dir.
const googleSetupHelp = `error: oauth_client.json not found in %[1]s

To use the google backend you need OAuth credentials:

1. Open https://console.cloud.google.com/apis/credentials
2. Create or select a project
3. Enable the Google Tasks API:
   https://console.cloud.google.com/apis/library/tasks.googleapis.com
4. Create an OAuth 2.0 client of type 'Desktop app' and download the JSON
5. Save it as %[1]s/oauth_client.json

Then run 'gtodo login' again.
`

func init() {
	Register(&LoginCmd{})
}

// LoginCmd stores credentials: a bearer token for the rest backend, or a
// token from the OAuth browser flow for the google backend.
type LoginCmd struct {
	token string
}

// SetToken sets the bearer token (for testing).
func (c *LoginCmd) SetToken(token string) {
	c.token = token
}

func (c *LoginCmd) Name() string       { return "login" }
func (c *LoginCmd) Aliases() []string  { return nil }
func (c *LoginCmd) Synopsis() string   { return "Store credentials for the backend" }
func (c *LoginCmd) Usage() string      { return "gtodo login [--token <bearer-token>]" }
func (c *LoginCmd) NeedsBackend() bool { return false }

func (c *LoginCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.token, "token", "", "")
}

func (c *LoginCmd) Run(ctx context.Context, cfg *config.Config, a *app.App, args []string, out, errOut io.Writer) int {
	if cfg.Backend != config.BackendGoogle {
		return c.loginBearer(cfg, out, errOut)
	}
	if c.token != "" {
		fmt.Fprintln(errOut, "error: --token is only supported by the rest backend")
		return exitcode.UserError
	}
	return loginGoogle(ctx, cfg, out, errOut)
}

func (c *LoginCmd) loginBearer(cfg *config.Config, out, errOut io.Writer) int {
	bearer := strings.TrimSpace(c.token)
	if bearer == "" {
		fmt.Fprintln(errOut, "error: token required (run: gtodo login --token <bearer-token>)")
		return exitcode.UserError
	}
	return storeToken(cfg, &oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}, out, errOut)
}

func loginGoogle(ctx context.Context, cfg *config.Config, out, errOut io.Writer) int {
	if !cfg.HasOAuthClient() {
		fmt.Fprintf(errOut, googleSetupHelp, cfg.Dir)
		return exitcode.AuthError
	}
	if refreshable(ctx, cfg) {
		if !cfg.Quiet {
			fmt.Fprintln(out, "already logged in")
		}
		return exitcode.Success
	}

	oauthConfig, err := googletasks.OAuthConfig(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	listener, err := listenForCallback()
	if err != nil {
		fmt.Fprintln(errOut, "error: could not bind to local port for OAuth callback")
		return exitcode.AuthError
	}
	cb := newOAuthCallback()
	srv := &http.Server{Handler: cb.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cb.fail(err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	oauthConfig.RedirectURL = fmt.Sprintf("http://%s/callback", listener.Addr())
	verifier := oauth2.GenerateVerifier()
	fmt.Fprintln(errOut, "Open this URL in your browser:")
	fmt.Fprintln(errOut, oauthConfig.AuthCodeURL(cb.state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier)))

	code, err := cb.wait(ctx, oauthCallbackTimeout)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancel()
	token, err := oauthConfig.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		fmt.Fprintf(errOut, "error: failed to exchange code for token: %v\n", err)
		return exitcode.AuthError
	}
	return storeToken(cfg, token, out, errOut)
}

// oauthCallback receives the authorization code on the loopback redirect.
// state is 32 bytes from crypto/rand, base64url encoded.
type oauthCallback struct {
	state string
	codes chan string
	errs  chan error
}

func newOAuthCallback() *oauthCallback {
	return &oauthCallback{
		state: oauth2.GenerateVerifier(),
		codes: make(chan string, 1),
		errs:  make(chan error, 1),
	}
}

func (cb *oauthCallback) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/callback", cb.handle)
	return r
}

func (cb *oauthCallback) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("state") != cb.state:
		http.Error(w, "state mismatch", http.StatusBadRequest)
		cb.fail(errors.New("oauth state mismatch"))
		return
	case q.Get("error") != "":
		http.Error(w, "authorization denied", http.StatusBadRequest)
		cb.fail(fmt.Errorf("authorization denied: %s", q.Get("error")))
		return
	case q.Get("code") == "":
		http.Error(w, "no code in callback", http.StatusBadRequest)
		cb.fail(errors.New("no code in callback"))
		return
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, "<html><body><h1>gtodo is signed in</h1><p>You may close this window.</p></body></html>")
	select {
	case cb.codes <- q.Get("code"):
	default:
	}
}

// fail records the first error; later ones are dropped.
func (cb *oauthCallback) fail(err error) {
	select {
	case cb.errs <- err:
	default:
	}
}

func (cb *oauthCallback) wait(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case code := <-cb.codes:
		return code, nil
	case err := <-cb.errs:
		return "", err
	case <-timer.C:
		return "", errors.New("oauth callback timed out")
	case <-ctx.Done():
		return "", errors.New("cancelled")
	}
}

func listenForCallback() (net.Listener, error) {
	var lastErr error
	for i := range callbackPortTries {
		l, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", callbackPortBase+i))
		if err == nil {
			return l, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// refreshable reports whether the stored token carries a refresh token the
// OAuth client can still exchange.
func refreshable(ctx context.Context, cfg *config.Config) bool {
	token, err := rest.LoadToken(cfg.TokenPath())
	if err != nil || token.RefreshToken == "" {
		return false
	}
	oauthConfig, err := googletasks.OAuthConfig(cfg)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, tokenCheckTimeout)
	defer cancel()
	_, err = oauthConfig.TokenSource(ctx, token).Token()
	return err == nil
}

func storeToken(cfg *config.Config, token *oauth2.Token, out, errOut io.Writer) int {
	if err := cfg.EnsureDir(); err != nil {
		fmt.Fprintf(errOut, "error: failed to create config directory: %v\n", err)
		return exitcode.AuthError
	}
	if err := rest.SaveToken(cfg.TokenPath(), token); err != nil {
		fmt.Fprintf(errOut, "error: failed to save token: %v\n", err)
		return exitcode.AuthError
	}
	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
