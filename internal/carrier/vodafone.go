package carrier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"webtexter/internal/message"
)

// vodafoneSession drives the My Vodafone webtext form. Both the login and
// the compose form carry a struts synchronizer token that has to be scraped
// from the page before each POST.
type vodafoneSession struct {
	*state

	site       string
	loginURL   string
	webtextURL string
	sendURL    string
}

var vodafoneToken = regexp.MustCompile(`name="org\.apache\.struts\.taglib\.html\.TOKEN" value="([0-9a-fA-F]+)"`)

const vodafoneSessionCookie = "JSESSIONID"

func newVodafone(s *state) *vodafoneSession {
	return &vodafoneSession{
		state:      s,
		site:       "https://www.vodafone.ie/",
		loginURL:   "https://www.vodafone.ie/myv/services/login/Login.shtml",
		webtextURL: "https://www.vodafone.ie/myv/messaging/webtext/index.jsp",
		sendURL:    "https://www.vodafone.ie/myv/messaging/webtext/Process.shtml",
	}
}

func (s *vodafoneSession) MaxMessageLength() int { return 160 }

// NormalizeNumber requires the national 08x form; the compose form splits
// the prefix into its own field.
func (s *vodafoneSession) NormalizeNumber(raw string) (string, error) {
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

func (s *vodafoneSession) Authenticate(ctx context.Context) error {
	if !s.forceLogin && s.hasCookie(s.endpoint(s.site), vodafoneSessionCookie) {
		s.log.Debug("reusing persisted session")
		s.authed = true
		return nil
	}

	loginURL := s.endpoint(s.loginURL)
	page, _, err := s.get(ctx, loginURL, "")
	if err != nil {
		return &AuthError{Carrier: s.kind, Cause: err}
	}
	token := vodafoneToken.FindStringSubmatch(page)
	if token == nil {
		return &AuthError{Carrier: s.kind, Cause: errors.New("no struts token on the login page")}
	}

	form := url.Values{
		"org.apache.struts.taglib.html.TOKEN": {token[1]},
		"username":                            {s.creds.Username},
		"password":                            {s.creds.Password},
	}
	_, final, err := s.postForm(ctx, loginURL, form, loginURL)
	if err != nil {
		return &AuthError{Carrier: s.kind, Cause: err}
	}
	if strings.Contains(final, "Login.shtml") {
		return &AuthError{Carrier: s.kind, Cause: errors.New("login form was served again")}
	}
	s.authed = true
	s.forceLogin = false
	s.persist(s.endpoint(s.site))
	return nil
}

func (s *vodafoneSession) Send(ctx context.Context, number string, chunk message.Chunk) error {
	if !s.authed {
		return ErrNotAuthenticated
	}

	// Fresh token per send; the form invalidates it after every POST.
	composeURL := s.endpoint(s.webtextURL)
	page, final, err := s.get(ctx, composeURL, "")
	if err != nil {
		return wrapTransport(s.kind, err)
	}
	if strings.Contains(final, "Login.shtml") {
		return s.expire()
	}
	token := vodafoneToken.FindStringSubmatch(page)
	if token == nil {
		return &SendError{Carrier: s.kind, Reason: ReasonUnexpectedResponse, Detail: "no struts token on the compose page"}
	}

	form := url.Values{
		"org.apache.struts.taglib.html.TOKEN": {token[1]},
		"fPrefix":                             {number[:3]},
		"fNumber":                             {number[3:]},
		"fMessage":                            {chunk.Rendered()},
	}
	body, final, err := s.postForm(ctx, s.endpoint(s.sendURL), form, composeURL)
	if err != nil {
		return wrapTransport(s.kind, err)
	}
	if strings.Contains(body, "Message sent") {
		return nil
	}
	if strings.Contains(final, "Login.shtml") {
		return s.expire()
	}
	if strings.Contains(body, "invalid number") || strings.Contains(body, "Invalid number") {
		return &SendError{Carrier: s.kind, Reason: ReasonRejectedNumber, Detail: number}
	}
	return &SendError{Carrier: s.kind, Reason: ReasonUnexpectedResponse, Detail: "no confirmation in response"}
}

func (s *vodafoneSession) expire() error {
	s.authed = false
	s.forceLogin = true
	return &AuthError{Carrier: s.kind, Expired: true}
}
