package carrier

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	t.Parallel()
	for _, name := range Kinds() {
		if _, err := ParseKind(name); err != nil {
			t.Fatalf("ParseKind(%q) error: %v", name, err)
		}
	}
	if k, err := ParseKind("  Meteor "); err != nil || k != Meteor {
		t.Fatalf("ParseKind should trim and lowercase, got %q, %v", k, err)
	}
	if _, err := ParseKind("eircom"); err == nil {
		t.Fatal("expected error for unknown carrier")
	}
}

func TestCleanNumber(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "086 555.12-34", want: "0865551234"},
		{in: "+353865551234", want: "+353865551234"},
		{in: "sean", wantErr: true},
		{in: "08655x1234", wantErr: true},
	}
	for _, tt := range tests {
		got, err := cleanNumber(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("cleanNumber(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("cleanNumber(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("cleanNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMeteorNormalizeNumber(t *testing.T) {
	t.Parallel()
	s, err := New(Meteor, Credentials{}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := s.NormalizeNumber("+353865551234")
	if err != nil {
		t.Fatalf("NormalizeNumber error: %v", err)
	}
	if got != "0865551234" {
		t.Fatalf("NormalizeNumber = %q, want national form", got)
	}

	if _, err := s.NormalizeNumber("015551234"); err == nil {
		t.Fatal("expected rejection of a landline number")
	}
}

func TestCookieFileRoundTrip(t *testing.T) {
	t.Parallel()
	site := "https://example.test/"
	u, _ := url.Parse(site)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	jar.SetCookies(u, []*http.Cookie{{Name: "JSESSIONID", Value: "abc123"}})

	path := filepath.Join(t.TempDir(), "cookies.json")
	f := &cookieFile{path: path, maxAge: time.Hour}
	if err := f.save(jar, []string{site}); err != nil {
		t.Fatalf("save: %v", err)
	}

	fresh, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	if err := f.load(fresh); err != nil {
		t.Fatalf("load: %v", err)
	}
	cs := fresh.Cookies(u)
	if len(cs) != 1 || cs[0].Name != "JSESSIONID" || cs[0].Value != "abc123" {
		t.Fatalf("unexpected cookies after reload: %v", cs)
	}
}

func TestCookieFileConcurrentSaves(t *testing.T) {
	t.Parallel()
	site := "https://example.test/"
	u, _ := url.Parse(site)

	jar, _ := cookiejar.New(nil)
	jar.SetCookies(u, []*http.Cookie{{Name: "JSESSIONID", Value: "abc123"}})

	path := filepath.Join(t.TempDir(), "cookies.json")
	f := &cookieFile{path: path, maxAge: time.Hour}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.save(jar, []string{site}); err != nil {
				t.Errorf("save: %v", err)
			}
		}()
	}
	wg.Wait()

	fresh, _ := cookiejar.New(nil)
	if err := f.load(fresh); err != nil {
		t.Fatalf("snapshot unreadable after concurrent saves: %v", err)
	}
	if cs := fresh.Cookies(u); len(cs) != 1 || cs[0].Value != "abc123" {
		t.Fatalf("unexpected cookies after reload: %v", cs)
	}
}

func TestCookieFileIgnoresStaleSnapshot(t *testing.T) {
	t.Parallel()
	site := "https://example.test/"
	u, _ := url.Parse(site)

	jar, _ := cookiejar.New(nil)
	jar.SetCookies(u, []*http.Cookie{{Name: "SESSION", Value: "old"}})

	path := filepath.Join(t.TempDir(), "cookies.json")
	f := &cookieFile{path: path, maxAge: time.Hour}
	if err := f.save(jar, []string{site}); err != nil {
		t.Fatalf("save: %v", err)
	}

	stale := &cookieFile{path: path, maxAge: -time.Second}
	fresh, _ := cookiejar.New(nil)
	if err := stale.load(fresh); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cs := fresh.Cookies(u); len(cs) != 0 {
		t.Fatalf("stale snapshot should be ignored, got %v", cs)
	}
}
