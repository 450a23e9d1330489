package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	logx "webtexter/pkg/logx"
)

const (
	defaultTimeout = 30 * time.Second
	// Carrier sessions go stale quickly; persisted cookies older than
	// this are ignored and a full login is done instead.
	sessionMaxAge = 30 * time.Minute

	maxResponseBytes = 2 << 20

	userAgent = "Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/115.0"
)

// state carries everything shared by the carrier variants: credentials, the
// cookie-jar HTTP client, endpoint rewriting for tests, and optional cookie
// persistence.
type state struct {
	kind    Kind
	creds   Credentials
	client  *http.Client
	jar     http.CookieJar
	log     logx.Logger
	base    *url.URL
	cookies *cookieFile

	authed bool
	// forceLogin skips the adopt-persisted-cookie shortcut, set when a
	// reused session turned out to be dead.
	forceLogin bool
}

func newState(kind Kind, creds Credentials, opts Options) (*state, error) {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("carrier", string(kind)))

	s := &state{kind: kind, creds: creds, log: log}

	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("carrier base url: %w", err)
		}
		s.base = u
	}

	if opts.Client != nil {
		s.client = opts.Client
		s.jar = opts.Client.Jar
	}
	if s.jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		s.jar = jar
		if s.client == nil {
			timeout := opts.Timeout
			if timeout <= 0 {
				timeout = defaultTimeout
			}
			s.client = &http.Client{Jar: jar, Timeout: timeout}
		} else {
			s.client.Jar = jar
		}
	}

	if opts.CookiePath != "" {
		s.cookies = &cookieFile{path: opts.CookiePath, maxAge: sessionMaxAge}
		if err := s.cookies.load(s.jar); err != nil {
			s.log.Debug("persisted cookies unusable", logx.Err(err))
		}
	}
	return s, nil
}

// endpoint rewrites a live URL onto the test base when one is set.
func (s *state) endpoint(def string) string {
	if s.base == nil {
		return def
	}
	u, err := url.Parse(def)
	if err != nil {
		return def
	}
	u.Scheme = s.base.Scheme
	u.Host = s.base.Host
	return u.String()
}

// hasCookie reports whether the jar holds a named cookie for the URL's site.
func (s *state) hasCookie(rawURL, name string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, c := range s.jar.Cookies(u) {
		if c.Name == name {
			return true
		}
	}
	return false
}

// persist snapshots the jar's cookies for the given sites after a
// successful login so the next run can reuse the session.
func (s *state) persist(sites ...string) {
	if s.cookies == nil {
		return
	}
	if err := s.cookies.save(s.jar, sites); err != nil {
		s.log.Debug("cookie persist failed", logx.Err(err))
	}
}

func (s *state) get(ctx context.Context, rawURL, referer string) (string, string, error) {
	return s.do(ctx, http.MethodGet, rawURL, "", referer)
}

func (s *state) postForm(ctx context.Context, rawURL string, form url.Values, referer string) (string, string, error) {
	return s.do(ctx, http.MethodPost, rawURL, form.Encode(), referer)
}

// do performs one request and returns (body, finalURL, err). finalURL is the
// post-redirect URL, which several carriers use as their login indicator.
func (s *state) do(ctx context.Context, method, rawURL, body, referer string) (string, string, error) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", userAgent)
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", "", err
	}
	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	s.log.Trace("carrier http call",
		logx.String("method", method),
		logx.String("url", rawURL),
		logx.String("final", final),
		logx.Int("status", resp.StatusCode),
		logx.Int("bytes", len(b)))
	return string(b), final, nil
}

// ---- cookie persistence ----

// cookieFile stores a flat name/value snapshot of the jar per site. The
// http cookie jar does not expose expiry, so freshness is tracked with a
// single saved-at stamp and a hard max age.
type cookieFile struct {
	path   string
	maxAge time.Duration
}

type cookieSnapshot struct {
	SavedAt time.Time                `json:"saved_at"`
	Sites   map[string][]savedCookie `json:"sites"`
}

type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (f *cookieFile) load(jar http.CookieJar) error {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var snap cookieSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("cookie file %s: %w", f.path, err)
	}
	if time.Since(snap.SavedAt) > f.maxAge {
		return nil
	}
	for site, cookies := range snap.Sites {
		u, err := url.Parse(site)
		if err != nil {
			continue
		}
		cs := make([]*http.Cookie, 0, len(cookies))
		for _, c := range cookies {
			cs = append(cs, &http.Cookie{Name: c.Name, Value: c.Value})
		}
		jar.SetCookies(u, cs)
	}
	return nil
}

func (f *cookieFile) save(jar http.CookieJar, sites []string) error {
	snap := cookieSnapshot{SavedAt: time.Now(), Sites: map[string][]savedCookie{}}
	for _, site := range sites {
		u, err := url.Parse(site)
		if err != nil {
			continue
		}
		for _, c := range jar.Cookies(u) {
			snap.Sites[site] = append(snap.Sites[site], savedCookie{Name: c.Name, Value: c.Value})
		}
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	// Workers re-authenticating at the same time may save concurrently;
	// write-then-rename keeps the snapshot whole.
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
