package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func callback(t *testing.T, cb *oauthCallback, query string) int {
	t.Helper()
	rec := httptest.NewRecorder()
	cb.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+query, nil))
	return rec.Code
}

func TestOAuthCallbackDeliversCode(t *testing.T) {
	cb := newOAuthCallback()
	if code := callback(t, cb, "state="+cb.state+"&code=abc"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	got, err := cb.wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got != "abc" {
		t.Errorf("expected code %q, got %q", "abc", got)
	}
}

func TestOAuthCallbackRejectsForeignState(t *testing.T) {
	cb := newOAuthCallback()
	if code := callback(t, cb, "state=other&code=abc"); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if _, err := cb.wait(context.Background(), time.Second); err == nil || err.Error() != "oauth state mismatch" {
		t.Errorf("expected state mismatch, got %v", err)
	}
}

func TestOAuthCallbackReportsDenial(t *testing.T) {
	cb := newOAuthCallback()
	callback(t, cb, "state="+cb.state+"&error=access_denied")
	callback(t, cb, "state="+cb.state)

	_, err := cb.wait(context.Background(), time.Second)
	if err == nil || err.Error() != "authorization denied: access_denied" {
		t.Errorf("expected first failure to win, got %v", err)
	}
}

func TestOAuthCallbackWaitTimesOut(t *testing.T) {
	cb := newOAuthCallback()
	if _, err := cb.wait(context.Background(), 10*time.Millisecond); err == nil {
		t.Error("expected timeout error")
	}
}

func TestOAuthCallbackStateIsUnguessable(t *testing.T) {
	a, b := newOAuthCallback(), newOAuthCallback()
	if len(a.state) != 43 {
		t.Errorf("expected 43-character state, got %d", len(a.state))
	}
	if a.state == b.state {
		t.Error("expected a fresh state per login")
	}
	if a.state[:10] == b.state[:10] {
		t.Error("states share a prefix; expected random, not time-ordered, values")
	}
}
