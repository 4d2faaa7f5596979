package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// fakeGmail serves a small subset of the Gmail REST API.
type fakeGmail struct {
	mu       sync.Mutex
	queries  []string
	sent     []*gmail.Message
	drafts   []*gmail.Draft
	auth     []string
	threads  int
	pageSize int
}

func (f *fakeGmail) handler() http.Handler {
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /gmail/v1/users/me/threads", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()

		start, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
		end := min(start+f.pageSize, f.threads)
		res := &gmail.ListThreadsResponse{}
		for i := start; i < end; i++ {
			res.Threads = append(res.Threads, &gmail.Thread{Id: "t" + strconv.Itoa(i)})
		}
		if end < f.threads {
			res.NextPageToken = strconv.Itoa(end)
		}
		writeJSON(w, res)
	})

	mux.HandleFunc("GET /gmail/v1/users/me/threads/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		writeJSON(w, &gmail.Thread{
			Id: r.PathValue("id"),
			Messages: []*gmail.Message{{
				Id:      "m1",
				Payload: &gmail.MessagePart{MimeType: "text/html"},
			}},
		})
	})

	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.mu.Unlock()
		writeJSON(w, &gmail.ListMessagesResponse{
			Messages: []*gmail.Message{{Id: "m1"}, {Id: "m2"}},
		})
	})

	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, &gmail.Message{Id: r.PathValue("id"), ThreadId: "t1", InternalDate: 1700000000000})
	})

	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}/attachments/{att}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("att") {
		case "huge":
			writeJSON(w, &gmail.MessagePartBody{Size: MaxAttachmentSize + 1, Data: "aGk"})
		case "empty":
			writeJSON(w, &gmail.MessagePartBody{Size: 0})
		case "garbled":
			writeJSON(w, &gmail.MessagePartBody{Size: 3, Data: "!!!"})
		default:
			// "hello?" in base64url without padding
			writeJSON(w, &gmail.MessagePartBody{Size: 6, Data: "aGVsbG8_"})
		}
	})

	mux.HandleFunc("POST /gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		var msg gmail.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.sent = append(f.sent, &msg)
		f.mu.Unlock()
		writeJSON(w, &gmail.Message{Id: "sent1", ThreadId: msg.ThreadId})
	})

	mux.HandleFunc("POST /gmail/v1/users/me/drafts", func(w http.ResponseWriter, r *http.Request) {
		var d gmail.Draft
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.drafts = append(f.drafts, &d)
		f.mu.Unlock()
		writeJSON(w, &gmail.Draft{Id: "d1", Message: &gmail.Message{Id: "m9", ThreadId: d.Message.ThreadId}})
	})

	return mux
}

func newTestClient(t *testing.T, f *fakeGmail) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access-1", TokenType: "Bearer"})
	client, err := NewClient(context.Background(), ts, nil, option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresTokenSource(t *testing.T) {
	_, err := NewClient(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestListThreads_Paginates(t *testing.T) {
	f := &fakeGmail{threads: 7, pageSize: 3}
	client := newTestClient(t, f)

	threads, err := client.ListThreads(context.Background(), "from:a@x.com", 100)
	require.NoError(t, err)
	require.Len(t, threads, 7)
	assert.Equal(t, "t0", threads[0].Id)
	assert.Equal(t, "t6", threads[6].Id)
	assert.Equal(t, []string{"from:a@x.com", "from:a@x.com", "from:a@x.com"}, f.queries)
	assert.Equal(t, "Bearer access-1", f.auth[0])
}

func TestListThreads_TrimsToMaxResults(t *testing.T) {
	f := &fakeGmail{threads: 10, pageSize: 10}
	client := newTestClient(t, f)

	threads, err := client.ListThreads(context.Background(), "", 4)
	require.NoError(t, err)
	assert.Len(t, threads, 4)
	assert.Equal(t, []string{""}, f.queries)
}

func TestListThreads_Empty(t *testing.T) {
	client := newTestClient(t, &fakeGmail{pageSize: 10})

	threads, err := client.ListThreads(context.Background(), "from:nobody@x.com", 100)
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestGetThread(t *testing.T) {
	client := newTestClient(t, &fakeGmail{})

	thread, err := client.GetThread(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", thread.Id)
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, "m1", thread.Messages[0].Id)
}

func TestGetThread_NotFound(t *testing.T) {
	client := newTestClient(t, &fakeGmail{})

	_, err := client.GetThread(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *googleapi.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
}

func TestListAndGetMessages(t *testing.T) {
	f := &fakeGmail{}
	client := newTestClient(t, f)

	msgs, err := client.ListMessages(context.Background(), "from:a@x.com", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"from:a@x.com"}, f.queries)

	msg, err := client.GetMessage(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, "m2", msg.Id)
	assert.Equal(t, int64(1700000000000), msg.InternalDate)
}

func TestAttachments(t *testing.T) {
	client := newTestClient(t, &fakeGmail{})
	ctx := context.Background()

	data, err := client.AttachmentData(ctx, "m1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8_", data)

	raw, err := client.GetAttachment(ctx, "m1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "hello?", string(raw))

	_, err = client.GetAttachment(ctx, "m1", "huge")
	assert.ErrorContains(t, err, "exceeds maximum size")

	raw, err = client.GetAttachment(ctx, "m1", "empty")
	require.NoError(t, err)
	assert.NotNil(t, raw)
	assert.Empty(t, raw)

	_, err = client.GetAttachment(ctx, "m1", "garbled")
	assert.ErrorContains(t, err, "failed to decode attachment")

	_, err = client.GetAttachment(ctx, "", "a1")
	assert.Error(t, err)
	_, err = client.AttachmentData(ctx, "m1", "")
	assert.Error(t, err)
}

func TestContextCanceled(t *testing.T) {
	client := newTestClient(t, &fakeGmail{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetThread(ctx, "t1")
	assert.ErrorIs(t, err, context.Canceled)
}
