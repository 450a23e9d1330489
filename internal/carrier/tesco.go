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

// tescoSession drives the Tesco Mobile self-care webtext form. Login and
// compose both carry a CSRF token in a hidden field.
type tescoSession struct {
	*state

	site       string
	loginURL   string
	webtextURL string
	sendURL    string
}

var tescoCSRF = regexp.MustCompile(`name="_csrf" value="([^"]+)"`)

const tescoSessionCookie = "SESSION"

func newTesco(s *state) *tescoSession {
	return &tescoSession{
		state:      s,
		site:       "https://my.tescomobile.ie/",
		loginURL:   "https://my.tescomobile.ie/login",
		webtextURL: "https://my.tescomobile.ie/webtext",
		sendURL:    "https://my.tescomobile.ie/webtext/send",
	}
}

func (s *tescoSession) MaxMessageLength() int { return 160 }

func (s *tescoSession) NormalizeNumber(raw string) (string, error) {
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

func (s *tescoSession) Authenticate(ctx context.Context) error {
	if !s.forceLogin && s.hasCookie(s.endpoint(s.site), tescoSessionCookie) {
		s.log.Debug("reusing persisted session")
		s.authed = true
		return nil
	}

	loginURL := s.endpoint(s.loginURL)
	page, _, err := s.get(ctx, loginURL, "")
	if err != nil {
		return &AuthError{Carrier: s.kind, Cause: err}
	}
	csrf := tescoCSRF.FindStringSubmatch(page)
	if csrf == nil {
		return &AuthError{Carrier: s.kind, Cause: errors.New("no csrf token on the login page")}
	}

	form := url.Values{
		"username": {s.creds.Username},
		"password": {s.creds.Password},
		"_csrf":    {csrf[1]},
	}
	_, final, err := s.postForm(ctx, loginURL, form, loginURL)
	if err != nil {
		return &AuthError{Carrier: s.kind, Cause: err}
	}
	if strings.Contains(final, "/login") {
		return &AuthError{Carrier: s.kind, Cause: errors.New("login form was served again")}
	}
	s.authed = true
	s.forceLogin = false
	s.persist(s.endpoint(s.site))
	return nil
}

func (s *tescoSession) Send(ctx context.Context, number string, chunk message.Chunk) error {
	if !s.authed {
		return ErrNotAuthenticated
	}

	composeURL := s.endpoint(s.webtextURL)
	page, final, err := s.get(ctx, composeURL, "")
	if err != nil {
		return wrapTransport(s.kind, err)
	}
	if strings.Contains(final, "/login") {
		return s.expire()
	}
	csrf := tescoCSRF.FindStringSubmatch(page)
	if csrf == nil {
		return &SendError{Carrier: s.kind, Reason: ReasonUnexpectedResponse, Detail: "no csrf token on the compose page"}
	}

	form := url.Values{
		"number":  {number},
		"message": {chunk.Rendered()},
		"_csrf":   {csrf[1]},
	}
	body, final, err := s.postForm(ctx, s.endpoint(s.sendURL), form, composeURL)
	if err != nil {
		return wrapTransport(s.kind, err)
	}
	if strings.Contains(body, "Your message has been sent") {
		return nil
	}
	if strings.Contains(final, "/login") {
		return s.expire()
	}
	if strings.Contains(body, "Invalid number") {
		return &SendError{Carrier: s.kind, Reason: ReasonRejectedNumber, Detail: number}
	}
	return &SendError{Carrier: s.kind, Reason: ReasonUnexpectedResponse, Detail: "no confirmation in response"}
}

func (s *tescoSession) expire() error {
	s.authed = false
	s.forceLogin = true
	return &AuthError{Carrier: s.kind, Expired: true}
}
