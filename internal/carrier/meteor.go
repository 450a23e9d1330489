package carrier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"webtexter/internal/message"
	logx "webtexter/pkg/logx"
)

// meteorPlatform drives the MyMeteor CMS webtext flow, shared by Meteor and
// eMobile (same CMS, different hosts). Login is a form POST that redirects
// to a landing page; sends are two Ajax GETs against index.cfm: first the
// recipient is staged, then the message is submitted.
type meteorPlatform struct {
	*state

	site       string
	loginURL   string
	landing    string
	webtextURL string
	apiURL     string
}

var (
	meteorSentOK    = regexp.MustCompile(`showEl\("sentTrue"\)`)
	meteorFreeTexts = regexp.MustCompile(`id="numfreesmstext" value="(\d+)"`)
)

const meteorSessionCookie = "JSESSIONID"

func newMeteor(s *state) *meteorPlatform {
	return &meteorPlatform{
		state:      s,
		site:       "https://www.mymeteor.ie/",
		loginURL:   "https://www.mymeteor.ie/go/mymeteor-login-manager",
		landing:    "/postpaylanding",
		webtextURL: "https://www.mymeteor.ie/go/freewebtext",
		apiURL:     "https://www.mymeteor.ie/mymeteorapi/index.cfm",
	}
}

func newEMobile(s *state) *meteorPlatform {
	return &meteorPlatform{
		state:      s,
		site:       "https://www.e-mobile.ie/",
		loginURL:   "https://www.e-mobile.ie/go/emobile-login-manager",
		landing:    "/postpaylanding",
		webtextURL: "https://www.e-mobile.ie/go/freewebtext",
		apiURL:     "https://www.e-mobile.ie/emobileapi/index.cfm",
	}
}

func (s *meteorPlatform) MaxMessageLength() int { return 480 }

// NormalizeNumber folds international prefixes to the national form the CMS
// expects: 10 digits beginning with 08.
func (s *meteorPlatform) NormalizeNumber(raw string) (string, error) {
	n, err := cleanNumber(raw)
	if err != nil {
		return "", err
	}
	n = irishLocal(n)
	if !irishMobile.MatchString(n) {
		return "", fmt.Errorf("%s is invalid; expected 10 digits beginning with 08", raw)
	}
	return n, nil
}

func (s *meteorPlatform) Authenticate(ctx context.Context) error {
	if !s.forceLogin && s.hasCookie(s.endpoint(s.site), meteorSessionCookie) {
		s.log.Debug("reusing persisted session")
		s.authed = true
		return nil
	}

	form := url.Values{
		"username": {s.creds.Username},
		"userpass": {s.creds.Password},
		"login":    {""},
		"returnTo": {"/"},
	}
	_, final, err := s.postForm(ctx, s.endpoint(s.loginURL), form, "")
	if err != nil {
		return &AuthError{Carrier: s.kind, Cause: err}
	}
	if !strings.Contains(final, s.landing) {
		return &AuthError{Carrier: s.kind, Cause: errors.New("login did not reach the landing page")}
	}
	s.authed = true
	s.forceLogin = false
	s.persist(s.endpoint(s.site))
	return nil
}

// TextsRemaining scrapes the free-webtext counter from the compose page.
func (s *meteorPlatform) TextsRemaining(ctx context.Context) (int, error) {
	body, _, err := s.get(ctx, s.endpoint(s.webtextURL), "")
	if err != nil {
		return -1, err
	}
	m := meteorFreeTexts.FindStringSubmatch(body)
	if m == nil {
		return -1, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1, nil
	}
	return n, nil
}

func (s *meteorPlatform) Send(ctx context.Context, number string, chunk message.Chunk) error {
	if !s.authed {
		return ErrNotAuthenticated
	}
	api := s.endpoint(s.apiURL)

	// Stage the recipient.
	stage := url.Values{
		"event":       {"smsAjax"},
		"func":        {"addEnteredMsisdns"},
		"ajaxRequest": {"addEnteredMSISDNs"},
		"remove":      {"-"},
		"add":         {"0|" + number},
	}
	_, final, err := s.get(ctx, api+"?"+stage.Encode(), "")
	if err != nil {
		return wrapTransport(s.kind, err)
	}
	if s.loggedOut(final) {
		return s.expire()
	}

	// Submit the message.
	send := url.Values{
		"event":       {"smsAjax"},
		"func":        {"sendSMS"},
		"ajaxRequest": {"sendSMS"},
		"messageText": {chunk.Rendered()},
	}
	body, final, err := s.get(ctx, api+"?"+send.Encode(), "")
	if err != nil {
		return wrapTransport(s.kind, err)
	}
	if meteorSentOK.MatchString(body) {
		return nil
	}
	if s.loggedOut(final) {
		return s.expire()
	}
	return &SendError{Carrier: s.kind, Reason: ReasonUnexpectedResponse, Detail: "no sentTrue marker in response"}
}

func (s *meteorPlatform) loggedOut(finalURL string) bool {
	return strings.Contains(finalURL, "login")
}

// expire marks the session dead so the next Authenticate does a full login.
func (s *meteorPlatform) expire() error {
	s.authed = false
	s.forceLogin = true
	s.log.Debug("session expired mid-run", logx.String("action", "will re-login"))
	return &AuthError{Carrier: s.kind, Expired: true}
}
