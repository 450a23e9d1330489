// Package carrier implements the per-carrier webtext protocol layer: login,
// session state, and the actual send call against each carrier's web form.
//
// None of these endpoints are documented APIs. Every variant encapsulates
// observed URLs, form field names and response patterns, and is expected to
// need updating when the carrier changes its site. That fragility stays
// inside one variant; nothing here leaks between carriers.
package carrier

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"webtexter/internal/message"
	logx "webtexter/pkg/logx"
)

// Kind identifies one supported carrier.
type Kind string

const (
	Meteor   Kind = "meteor"
	O2       Kind = "o2"
	Vodafone Kind = "vodafone"
	Three    Kind = "three"
	EMobile  Kind = "emobile"
	Tesco    Kind = "tesco"
)

// Kinds lists the supported carrier names, sorted.
func Kinds() []string {
	out := []string{string(Meteor), string(O2), string(Vodafone), string(Three), string(EMobile), string(Tesco)}
	sort.Strings(out)
	return out
}

// ParseKind validates a carrier name from config or flags.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case Meteor, O2, Vodafone, Three, EMobile, Tesco:
		return k, nil
	}
	return "", fmt.Errorf("unknown carrier %q (one of: %s)", s, strings.Join(Kinds(), ", "))
}

// Credentials for one carrier account.
type Credentials struct {
	Username string
	Password string
}

// Options tunes session construction.
type Options struct {
	// Client overrides the HTTP client (tests). When nil a cookie-jar
	// client with Timeout is built.
	Client *http.Client
	// Timeout bounds every network call. Defaults to 30s.
	Timeout time.Duration
	// BaseURL rewrites every endpoint's scheme and host (tests against
	// httptest servers). Empty means the carrier's live site.
	BaseURL string
	// CookiePath persists session cookies between runs. Empty disables
	// persistence.
	CookiePath string
	Log        logx.Logger
}

// Session is an authenticated, stateful handle to one carrier's webtext
// service. Cookies and scraped tokens obtained during Authenticate are
// reused for every Send. A session is not safe for concurrent use; the
// orchestrator gives each worker its own.
//
// A carrier-side session expiry surfaces from Send as an *AuthError with
// Expired set, which the caller answers with exactly one re-Authenticate.
type Session interface {
	// Authenticate logs in, or adopts a fresh persisted session cookie
	// when one exists.
	Authenticate(ctx context.Context) error
	// MaxMessageLength is the carrier's single-message character limit.
	MaxMessageLength() int
	// NormalizeNumber converts a raw number to the carrier's accepted
	// format, or fails for numbers the carrier cannot send to.
	NormalizeNumber(raw string) (string, error)
	// Send submits one chunk to one number.
	Send(ctx context.Context, number string, chunk message.Chunk) error
}

// QuotaReporter is implemented by sessions that can scrape the account's
// remaining free-text balance after login.
type QuotaReporter interface {
	// TextsRemaining returns the free texts left, or -1 when the page
	// shape made the count undeterminable.
	TextsRemaining(ctx context.Context) (int, error)
}

// New constructs the Session variant for kind.
func New(kind Kind, creds Credentials, opts Options) (Session, error) {
	base, err := newState(kind, creds, opts)
	if err != nil {
		return nil, err
	}
	switch kind {
	case Meteor:
		return newMeteor(base), nil
	case EMobile:
		return newEMobile(base), nil
	case Three:
		return newThree(base), nil
	case O2:
		return newO2(base), nil
	case Vodafone:
		return newVodafone(base), nil
	case Tesco:
		return newTesco(base), nil
	}
	return nil, fmt.Errorf("unknown carrier %q", kind)
}

// genericNumber accepts an optional '+' followed by digits, the loosest
// format any carrier takes.
var genericNumber = regexp.MustCompile(`^\+?\d+$`)

// irishMobile is the national 08x form required by the Meteor platform.
var irishMobile = regexp.MustCompile(`^08\d{8}$`)

// cleanNumber strips whitespace, hyphens and dots and validates the result.
func cleanNumber(raw string) (string, error) {
	n := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '.':
			return -1
		}
		return r
	}, raw)
	if !genericNumber.MatchString(n) {
		return "", fmt.Errorf("number %q contains invalid characters; only digits and a leading + are allowed", raw)
	}
	return n, nil
}

// irishLocal folds +353/00353 prefixes to the national 0 form.
func irishLocal(n string) string {
	if strings.HasPrefix(n, "+353") {
		return "0" + n[len("+353"):]
	}
	if strings.HasPrefix(n, "00353") {
		return "0" + n[len("00353"):]
	}
	return n
}
