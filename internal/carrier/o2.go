package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"webtexter/internal/message"
)

// o2Session drives the O2 webtext flow, the oddest of the lot: login goes
// through an access-manager form, the messaging host then hands out an SID
// scraped from an SSO redirect, and send responses are JavaScript object
// literals rather than real JSON (single quotes, bare keys, comments).
type o2Session struct {
	*state

	site        string
	msgSite     string
	loginURL    string
	loggedinURL string
	ssoURL      string
	sendURL     string
	evalURL     string

	sid string
}

var o2SIDPattern = regexp.MustCompile(`o2om_smscenter_new\.osp\?MsgContentID=-1&SID=_&SID=(\w+)`)

// o2AuthCookie is the access-manager SSO cookie; a fresh one lets the next
// run skip the amserver login and go straight to the SID hop.
const o2AuthCookie = "iPlanetDirectoryPro"

func newO2(s *state) *o2Session {
	return &o2Session{
		state:       s,
		site:        "https://www.o2online.ie/",
		msgSite:     "http://messaging.o2online.ie/",
		loginURL:    "https://www.o2online.ie/amserver/UI/Login",
		loggedinURL: "http://www.o2online.ie/wps/wcm/connect/O2/Logged+in/LoginCheck",
		ssoURL:      "http://messaging.o2online.ie/ssomanager.osp?APIID=AUTH-WEBSSO&TargetApp=o2om_smscenter_new.osp%3FMsgContentID%3D-1%26SID%3D_",
		sendURL:     "http://messaging.o2online.ie/smscenter_send.osp",
		evalURL:     "http://messaging.o2online.ie/smscenter_evaluate.osp",
	}
}

func (s *o2Session) MaxMessageLength() int { return 160 }

func (s *o2Session) NormalizeNumber(raw string) (string, error) {
	return cleanNumber(raw)
}

func (s *o2Session) Authenticate(ctx context.Context) error {
	if !s.forceLogin && s.hasCookie(s.endpoint(s.site), o2AuthCookie) {
		s.log.Debug("reusing persisted session")
		// The messaging SID is not persisted; the SSO hop hands out a
		// fresh one against the reused access-manager cookie.
		if err := s.findSID(ctx); err == nil {
			s.authed = true
			return nil
		}
		s.forceLogin = true
	}

	form := url.Values{
		"org":            {"o2ext"},
		"IDButton":       {"Go"},
		"CONNECTFORMGET": {"TRUE"},
		"IDToken1":       {s.creds.Username},
		"IDToken2":       {s.creds.Password},
	}
	_, final, err := s.postForm(ctx, s.endpoint(s.loginURL), form, s.endpoint(s.loggedinURL))
	if err != nil {
		return &AuthError{Carrier: s.kind, Cause: err}
	}
	if !strings.Contains(final, "LoginCheck") {
		return &AuthError{Carrier: s.kind, Cause: errors.New("access manager did not confirm the login")}
	}
	// The messaging host wants its own SID, handed out via the SSO hop.
	if err := s.findSID(ctx); err != nil {
		return &AuthError{Carrier: s.kind, Cause: err}
	}
	s.authed = true
	s.forceLogin = false
	s.persist(s.endpoint(s.site), s.endpoint(s.msgSite))
	return nil
}

func (s *o2Session) findSID(ctx context.Context) error {
	body, _, err := s.get(ctx, s.endpoint(s.ssoURL), "")
	if err != nil {
		return err
	}
	m := o2SIDPattern.FindStringSubmatch(body)
	if m == nil {
		return errors.New("no SID in ssomanager response")
	}
	s.sid = m[1]
	return nil
}

// TextsRemaining asks the evaluate endpoint for the free-message balance.
func (s *o2Session) TextsRemaining(ctx context.Context) (int, error) {
	form := url.Values{
		"SID":     {s.sid},
		"SMSText": {"text"},
		"FID":     {"6406"},
	}
	body, _, err := s.postForm(ctx, s.endpoint(s.evalURL), form, s.endpoint(s.evalURL))
	if err != nil {
		return -1, err
	}
	content, err := parseLooseJSON(body)
	if err != nil {
		return -1, nil
	}
	n, ok := content["freeMessageCount"].(float64)
	if !ok {
		return -1, nil
	}
	return int(n), nil
}

func (s *o2Session) Send(ctx context.Context, number string, chunk message.Chunk) error {
	if !s.authed {
		return ErrNotAuthenticated
	}
	form := url.Values{
		"SID":          {s.sid},
		"MsgContentID": {"-1"},
		"SMSTo":        {number},
		"SMSText":      {chunk.Rendered()},
	}
	body, final, err := s.postForm(ctx, s.endpoint(s.sendURL), form, s.endpoint(s.sendURL))
	if err != nil {
		return wrapTransport(s.kind, err)
	}
	content, perr := parseLooseJSON(body)
	if perr != nil {
		if strings.Contains(final, "Login") {
			s.authed = false
			s.forceLogin = true
			return &AuthError{Carrier: s.kind, Expired: true}
		}
		return &SendError{Carrier: s.kind, Reason: ReasonUnexpectedResponse, Cause: perr}
	}
	if ok, _ := content["isSuccess"].(bool); ok {
		return nil
	}
	if msg, _ := content["errorMessage"].(string); msg != "" {
		reason := ReasonUnexpectedResponse
		if strings.Contains(strings.ToLower(msg), "number") {
			reason = ReasonRejectedNumber
		}
		return &SendError{Carrier: s.kind, Reason: reason, Detail: msg}
	}
	return &SendError{Carrier: s.kind, Reason: ReasonUnexpectedResponse, Detail: "isSuccess false"}
}

// ---- loose JSON ----

var (
	looseBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	looseLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	looseMultiplier   = regexp.MustCompile(` \* \d+,`)
	looseBareKey      = regexp.MustCompile(`([{,]\s*)(\w+)\s*:`)
)

// parseLooseJSON decodes the messaging host's JavaScript-literal responses:
// comments are stripped, single quotes become double quotes, bare keys get
// quoted, and " * N," size annotations are dropped.
func parseLooseJSON(s string) (map[string]any, error) {
	s = looseBlockComment.ReplaceAllString(s, "")
	s = looseLineComment.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "'", `"`)
	s = looseMultiplier.ReplaceAllString(s, ",")
	s = looseBareKey.ReplaceAllString(s, `$1"$2":`)

	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &m); err != nil {
		return nil, fmt.Errorf("response is not a message-center object: %w", err)
	}
	return m, nil
}
