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

type fakeVodafone struct {
	user, pass string
	tokens     atomic.Int64
	loggedIn   atomic.Bool
}

func (f *fakeVodafone) token() string { return fmt.Sprintf("ab%02d", f.tokens.Add(1)) }

func (f *fakeVodafone) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/myv/services/login/Login.shtml", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = r.ParseForm()
			if r.PostFormValue("username") == f.user && r.PostFormValue("password") == f.pass &&
				r.PostFormValue("org.apache.struts.taglib.html.TOKEN") != "" {
				f.loggedIn.Store(true)
				http.Redirect(w, r, "/myv/index.jsp", http.StatusFound)
				return
			}
		}
		fmt.Fprintf(w, `<form><input type="hidden" name="org.apache.struts.taglib.html.TOKEN" value="%s"></form>`, f.token())
	})
	mux.HandleFunc("/myv/index.jsp", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>My Vodafone</html>")
	})
	mux.HandleFunc("/myv/messaging/webtext/index.jsp", func(w http.ResponseWriter, r *http.Request) {
		if !f.loggedIn.Load() {
			http.Redirect(w, r, "/myv/services/login/Login.shtml", http.StatusFound)
			return
		}
		fmt.Fprintf(w, `<form><input type="hidden" name="org.apache.struts.taglib.html.TOKEN" value="%s"></form>`, f.token())
	})
	mux.HandleFunc("/myv/messaging/webtext/Process.shtml", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostFormValue("org.apache.struts.taglib.html.TOKEN") == "" || r.PostFormValue("fNumber") == "" {
			fmt.Fprint(w, "<html>Something went wrong</html>")
			return
		}
		fmt.Fprint(w, "<html>Message sent</html>")
	})
	return mux
}

func TestVodafoneTokenFlow(t *testing.T) {
	t.Parallel()
	fake := &fakeVodafone{user: "0871234567", pass: "pw"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s, err := New(Vodafone, Credentials{Username: "0871234567", Password: "pw"}, Options{
		BaseURL: srv.URL,
		Client:  srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := s.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := s.Send(ctx, "0871112222", message.Chunk{Index: 1, Total: 1, Text: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// Login page + compose page each served a token.
	if fake.tokens.Load() < 2 {
		t.Fatalf("expected fresh tokens per page, got %d", fake.tokens.Load())
	}
}

func TestVodafoneExpiredSessionOnCompose(t *testing.T) {
	t.Parallel()
	fake := &fakeVodafone{user: "0871234567", pass: "pw"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s, err := New(Vodafone, Credentials{Username: "0871234567", Password: "pw"}, Options{
		BaseURL: srv.URL,
		Client:  srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := s.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	fake.loggedIn.Store(false) // carrier dropped the session

	err = s.Send(ctx, "0871112222", message.Chunk{Index: 1, Total: 1, Text: "hi"})
	var ae *AuthError
	if !errors.As(err, &ae) || !ae.Expired {
		t.Fatalf("expected expired AuthError, got %v", err)
	}
}
