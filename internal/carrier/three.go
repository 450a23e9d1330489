package carrier

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"webtexter/internal/message"
)

// threeSession drives the Three webtext portal, a CakePHP app. Login posts
// the phone number and PIN; a successful login redirects straight to the
// compose page, which doubles as the send endpoint.
type threeSession struct {
	*state

	site     string
	loginURL string
	sendURL  string
}

var threeRemaining = regexp.MustCompile(`Remaining texts\D*(\d+) \(of (\d+)\)`)

const threeSessionCookie = "AWSELB"

func newThree(s *state) *threeSession {
	return &threeSession{
		state:    s,
		site:     "https://webtexts.three.ie/",
		loginURL: "https://webtexts.three.ie/webtext/users/login",
		sendURL:  "https://webtexts.three.ie/webtext/messages/send",
	}
}

func (s *threeSession) MaxMessageLength() int { return 160 }

func (s *threeSession) NormalizeNumber(raw string) (string, error) {
	return cleanNumber(raw)
}

func (s *threeSession) Authenticate(ctx context.Context) error {
	if !s.forceLogin && s.hasCookie(s.endpoint(s.site), threeSessionCookie) {
		s.log.Debug("reusing persisted session")
		s.authed = true
		return nil
	}

	form := url.Values{
		"data[User][telephoneNo]": {s.creds.Username},
		"data[User][pin]":         {s.creds.Password},
	}
	_, final, err := s.postForm(ctx, s.endpoint(s.loginURL), form, "")
	if err != nil {
		return &AuthError{Carrier: s.kind, Cause: err}
	}
	if !strings.Contains(final, "/webtext/messages/send") {
		return &AuthError{Carrier: s.kind, Cause: errors.New("login did not reach the compose page")}
	}
	s.authed = true
	s.forceLogin = false
	s.persist(s.endpoint(s.site))
	return nil
}

func (s *threeSession) TextsRemaining(ctx context.Context) (int, error) {
	body, _, err := s.get(ctx, s.endpoint(s.sendURL), "")
	if err != nil {
		return -1, err
	}
	m := threeRemaining.FindStringSubmatch(body)
	if m == nil {
		return -1, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1, nil
	}
	return n, nil
}

func (s *threeSession) Send(ctx context.Context, number string, chunk message.Chunk) error {
	if !s.authed {
		return ErrNotAuthenticated
	}
	form := url.Values{
		"data[Message][message]":               {chunk.Rendered()},
		"data[Message][recipients_individual]": {number},
	}
	body, final, err := s.postForm(ctx, s.endpoint(s.sendURL), form, "")
	if err != nil {
		return wrapTransport(s.kind, err)
	}
	if strings.Contains(body, "Message sent") {
		return nil
	}
	if strings.Contains(final, "/users/login") {
		s.authed = false
		s.forceLogin = true
		return &AuthError{Carrier: s.kind, Expired: true}
	}
	if strings.Contains(body, "Invalid number") {
		return &SendError{Carrier: s.kind, Reason: ReasonRejectedNumber, Detail: number}
	}
	return &SendError{Carrier: s.kind, Reason: ReasonUnexpectedResponse, Detail: "no confirmation in response"}
}
