package carrier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"webtexter/internal/message"
)

// fakeMeteor mimics the MyMeteor CMS closely enough for the session flow:
// form login redirecting to a landing page, Ajax staging + send, and a
// free-text counter on the compose page.
type fakeMeteor struct {
	user, pass string
	remaining  int

	sendsUntilExpiry atomic.Int64
	sends            atomic.Int64
	logins           atomic.Int64
}

func (f *fakeMeteor) handler() http.Handler {
	return f.handlerFor("/go/mymeteor-login-manager", "/mymeteorapi/index.cfm")
}

// handlerFor serves the CMS at the given login and Ajax paths; the eMobile
// flavor of the platform uses its own.
func (f *fakeMeteor) handlerFor(loginPath, apiPath string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		_ = r.ParseForm()
		if r.PostFormValue("username") == f.user && r.PostFormValue("userpass") == f.pass {
			http.Redirect(w, r, "/postpaylanding", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/go/login-error", http.StatusFound)
	})
	mux.HandleFunc("/postpaylanding", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>My Meteor</html>")
	})
	mux.HandleFunc("/go/login-error", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>Wrong username or password</html>")
	})
	mux.HandleFunc("/go/freewebtext", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `Free web texts left <input type="text" id="numfreesmstext" value="%d" disabled size=2>`, f.remaining)
	})
	mux.HandleFunc(apiPath, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("func") {
		case "addEnteredMsisdns":
			fmt.Fprint(w, "ok")
		case "sendSMS":
			if limit := f.sendsUntilExpiry.Load(); limit > 0 && f.sends.Load() >= limit {
				http.Redirect(w, r, "/go/mymeteor-login-manager", http.StatusFound)
				return
			}
			f.sends.Add(1)
			fmt.Fprint(w, `showEl("sentTrue")`)
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func newMeteorAgainst(t *testing.T, srv *httptest.Server) Session {
	t.Helper()
	s, err := New(Meteor, Credentials{Username: "me", Password: "secret"}, Options{
		BaseURL: srv.URL,
		Client:  srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestMeteorLoginAndSend(t *testing.T) {
	t.Parallel()
	fake := &fakeMeteor{user: "me", pass: "secret", remaining: 42}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s := newMeteorAgainst(t, srv)
	ctx := context.Background()
	if err := s.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	q, ok := s.(QuotaReporter)
	if !ok {
		t.Fatal("meteor session should report quota")
	}
	n, err := q.TextsRemaining(ctx)
	if err != nil || n != 42 {
		t.Fatalf("TextsRemaining = %d, %v; want 42", n, err)
	}

	chunk := message.Chunk{Index: 1, Total: 1, Text: "hi"}
	if err := s.Send(ctx, "0865551234", chunk); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestMeteorBadCredentials(t *testing.T) {
	t.Parallel()
	fake := &fakeMeteor{user: "me", pass: "right"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s := newMeteorAgainst(t, srv) // uses password "secret"
	err := s.Authenticate(context.Background())
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if ae.Expired {
		t.Fatal("a failed login is not an expiry")
	}
}

func TestMeteorSendWithoutAuth(t *testing.T) {
	t.Parallel()
	fake := &fakeMeteor{user: "me", pass: "secret"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s := newMeteorAgainst(t, srv)
	err := s.Send(context.Background(), "0865551234", message.Chunk{Index: 1, Total: 1, Text: "hi"})
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestEMobileSharesTheMeteorPlatform(t *testing.T) {
	t.Parallel()
	fake := &fakeMeteor{user: "me", pass: "secret", remaining: 5}
	srv := httptest.NewServer(fake.handlerFor("/go/emobile-login-manager", "/emobileapi/index.cfm"))
	defer srv.Close()

	s, err := New(EMobile, Credentials{Username: "me", Password: "secret"}, Options{
		BaseURL: srv.URL,
		Client:  srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := s.MaxMessageLength(); got != 480 {
		t.Fatalf("MaxMessageLength = %d, want 480", got)
	}

	ctx := context.Background()
	if err := s.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if n, err := s.(QuotaReporter).TextsRemaining(ctx); err != nil || n != 5 {
		t.Fatalf("TextsRemaining = %d, %v; want 5", n, err)
	}
	if err := s.Send(ctx, "0865551234", message.Chunk{Index: 1, Total: 1, Text: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestMeteorSessionExpirySurfacesAsAuthError(t *testing.T) {
	t.Parallel()
	fake := &fakeMeteor{user: "me", pass: "secret"}
	fake.sendsUntilExpiry.Store(1)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s := newMeteorAgainst(t, srv)
	ctx := context.Background()
	if err := s.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	chunk := message.Chunk{Index: 1, Total: 1, Text: "hi"}
	if err := s.Send(ctx, "0865551234", chunk); err != nil {
		t.Fatalf("first Send: %v", err)
	}

	err := s.Send(ctx, "0865551234", chunk)
	var ae *AuthError
	if !errors.As(err, &ae) || !ae.Expired {
		t.Fatalf("expected expired AuthError, got %v", err)
	}

	// Re-authenticate does a full login, not a cookie shortcut.
	before := fake.logins.Load()
	fake.sendsUntilExpiry.Store(0)
	if err := s.Authenticate(ctx); err != nil {
		t.Fatalf("re-Authenticate: %v", err)
	}
	if fake.logins.Load() == before {
		t.Fatal("expected a fresh login after expiry")
	}
	if err := s.Send(ctx, "0865551234", chunk); err != nil {
		t.Fatalf("Send after re-auth: %v", err)
	}
}
