package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	oauth2v2 "google.golang.org/api/oauth2/v2"

	"github.com/teemow/followmail/internal/gmail"
	"github.com/teemow/followmail/internal/session"
	"github.com/teemow/followmail/internal/store"
)

const testGoogleID = "g-1"

// fakeAuth stands in for the Google OAuth provider.
type fakeAuth struct{}

func (fakeAuth) AuthURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (fakeAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if code != "good-code" {
		return nil, &oauth2.RetrieveError{ErrorCode: "invalid_grant"}
	}
	return &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1"}, nil
}

func (fakeAuth) UserInfo(context.Context, *oauth2.Token) (*oauth2v2.Userinfo, error) {
	return &oauth2v2.Userinfo{Id: testGoogleID, Email: "me@example.com", Name: "Me"}, nil
}

func (a fakeAuth) UserInfoFromSource(ctx context.Context, ts oauth2.TokenSource) (*oauth2v2.Userinfo, error) {
	if _, err := ts.Token(); err != nil {
		return nil, err
	}
	return a.UserInfo(ctx, nil)
}

func (fakeAuth) TokenSource(_ context.Context, refreshToken string) oauth2.TokenSource {
	return fakeTokenSource(refreshToken)
}

type fakeTokenSource string

func (ts fakeTokenSource) Token() (*oauth2.Token, error) {
	if ts == "revoked" {
		return nil, &oauth2.RetrieveError{ErrorCode: "invalid_grant"}
	}
	return &oauth2.Token{AccessToken: "access-" + string(ts)}, nil
}

// fakeMailbox is an in-memory Gmail account.
type fakeMailbox struct {
	mu sync.Mutex

	// err fails every call, as a rejected credential would.
	err error

	threads     map[string]*gmailapi.Thread
	threadOrder []string
	messages    map[string]*gmailapi.Message
	attachments map[string]string

	queries    []string
	maxResults []int64
	sent       []gmail.Reply
	drafts     []gmail.Reply
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		threads:     make(map[string]*gmailapi.Thread),
		messages:    make(map[string]*gmailapi.Message),
		attachments: make(map[string]string),
	}
}

func (f *fakeMailbox) addThread(id string, msgs ...*gmailapi.Message) {
	for _, m := range msgs {
		m.ThreadId = id
		f.messages[m.Id] = m
	}
	f.threads[id] = &gmailapi.Thread{Id: id, Messages: msgs}
	f.threadOrder = append(f.threadOrder, id)
}

func (f *fakeMailbox) record(query string, max int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.maxResults = append(f.maxResults, max)
}

// matches is a tiny Gmail query engine: "" matches all, "from:x" and "to:x"
// match a substring of the header.
func matches(m *gmailapi.Message, query string) bool {
	if query == "" {
		return true
	}
	field, value, _ := strings.Cut(query, ":")
	header := map[string]string{"from": "From", "to": "To"}[field]
	for _, h := range m.Payload.Headers {
		if h.Name == header && strings.Contains(h.Value, value) {
			return true
		}
	}
	return false
}

func (f *fakeMailbox) ListThreads(_ context.Context, query string, max int64) ([]*gmailapi.Thread, error) {
	f.record(query, max)
	if f.err != nil {
		return nil, f.err
	}
	var out []*gmailapi.Thread
	for _, id := range f.threadOrder {
		for _, m := range f.threads[id].Messages {
			if matches(m, query) {
				out = append(out, &gmailapi.Thread{Id: id})
				break
			}
		}
	}
	return out, nil
}

func (f *fakeMailbox) GetThread(_ context.Context, id string) (*gmailapi.Thread, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.threads[id]
	if !ok {
		return nil, fmt.Errorf("failed to get thread %s: %w", id, &googleapi.Error{Code: http.StatusNotFound})
	}
	return t, nil
}

func (f *fakeMailbox) ListMessages(_ context.Context, query string, max int64) ([]*gmailapi.Message, error) {
	f.record(query, max)
	if f.err != nil {
		return nil, f.err
	}
	var out []*gmailapi.Message
	for _, id := range f.threadOrder {
		for _, m := range f.threads[id].Messages {
			if matches(m, query) {
				out = append(out, &gmailapi.Message{Id: m.Id})
			}
		}
	}
	return out, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, id string) (*gmailapi.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, &googleapi.Error{Code: http.StatusNotFound}
	}
	return m, nil
}

func (f *fakeMailbox) AttachmentData(_ context.Context, _, attachmentID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, ok := f.attachments[attachmentID]
	if !ok {
		return "", &googleapi.Error{Code: http.StatusNotFound}
	}
	return data, nil
}

func (f *fakeMailbox) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	data, err := f.AttachmentData(ctx, messageID, attachmentID)
	if err != nil {
		return nil, err
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

func (f *fakeMailbox) SendReply(_ context.Context, r gmail.Reply) (*gmailapi.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, r)
	return &gmailapi.Message{Id: "sent-1", ThreadId: r.ThreadID}, nil
}

func (f *fakeMailbox) SaveDraft(_ context.Context, r gmail.Reply) (*gmailapi.Draft, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, r)
	return &gmailapi.Draft{Id: "draft-1"}, nil
}

func enc(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

// htmlMessage builds a single-part HTML message.
func htmlMessage(id, from, to, subject, body string, internalDate int64) *gmailapi.Message {
	return &gmailapi.Message{
		Id:           id,
		InternalDate: internalDate,
		Payload: &gmailapi.MessagePart{
			MimeType: "text/html",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "To", Value: to},
				{Name: "Subject", Value: subject},
				{Name: "Message-ID", Value: "<" + id + "@mail.example.com>"},
			},
			Body: &gmailapi.MessagePartBody{Data: enc(body)},
		},
	}
}

type testEnv struct {
	server   *Server
	handler  http.Handler
	store    *store.MemoryStore
	sessions *session.Manager
	mailbox  *fakeMailbox
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	sessions, err := session.NewManager("test-secret")
	require.NoError(t, err)

	mb := newFakeMailbox()
	factory := func(_ context.Context, ts oauth2.TokenSource) (Mailbox, error) {
		if _, err := ts.Token(); err != nil {
			revoked := newFakeMailbox()
			revoked.err = fmt.Errorf("oauth2: cannot fetch token: %w", err)
			return revoked, nil
		}
		return mb, nil
	}

	srv, err := New(cfg, Deps{
		Auth:      fakeAuth{},
		Store:     st,
		Sessions:  sessions,
		Mailboxes: factory,
	})
	require.NoError(t, err)

	return &testEnv{
		server:   srv,
		handler:  srv.Handler(),
		store:    st,
		sessions: sessions,
		mailbox:  mb,
	}
}

// login stores a user and returns their session cookie.
func (e *testEnv) login(t *testing.T, refreshToken string) *http.Cookie {
	t.Helper()
	_, err := e.store.UpsertUser(context.Background(), testGoogleID, "me@example.com", refreshToken)
	require.NoError(t, err)
	token, err := e.sessions.Issue(testGoogleID)
	require.NoError(t, err)
	return &http.Cookie{Name: session.CookieName, Value: token}
}

func (e *testEnv) do(t *testing.T, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

var errBoom = errors.New("boom")

func httptestRequest(method, target, origin string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Origin", origin)
	return req
}

func serve(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}
