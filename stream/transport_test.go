package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/internal/httpclient"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects callback invocations
type recorder struct {
	mu     sync.Mutex
	events []Event
	errs   []error
	closes int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnEvent: func(e Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
		OnClose: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.closes++
		},
	}
}

func (r *recorder) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestTransport(srv *httptest.Server) *Transport {
	return New(WithClient(httpclient.WrapClient(srv.Client())), WithMaxFrameBytes(64*1024))
}

func sseServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpen_ParsesFrames(t *testing.T) {
	body := "event: node_created\ndata: {\"node\":{\"id\":\"n1\"}}\n\n" +
		": keepalive\n\n" +
		"event: edge_created\r\ndata: {\"sourceNodeId\":\"n1\",\"targetNodeId\":\"n2\"}\r\n\r\n" +
		"data: {\"hello\":true}\n\n" +
		"event: no_data\n\n"
	srv := sseServer(t, body)

	rec := &recorder{}
	err := newTestTransport(srv).Open(context.Background(), srv.URL, map[string]string{"userId": "u1"}, rec.callbacks())
	require.NoError(t, err)

	require.Len(t, rec.events, 3)
	assert.Equal(t, "node_created", rec.events[0].Type)
	assert.JSONEq(t, `{"node":{"id":"n1"}}`, string(rec.events[0].Data))
	assert.Equal(t, "edge_created", rec.events[1].Type)
	assert.Equal(t, DefaultEventType, rec.events[2].Type)
	assert.Empty(t, rec.errs)
	assert.Equal(t, 1, rec.closes)
}

func TestOpen_JoinsMultilineData(t *testing.T) {
	srv := sseServer(t, "event: tool_call\ndata: {\"tool\":\ndata: \"search\"}\n\n")

	rec := &recorder{}
	require.NoError(t, newTestTransport(srv).Open(context.Background(), srv.URL, nil, rec.callbacks()))

	require.Len(t, rec.events, 1)
	assert.JSONEq(t, `{"tool":"search"}`, string(rec.events[0].Data))
}

func TestOpen_MalformedFrameContinues(t *testing.T) {
	body := "event: node_created\ndata: {not json\n\n" +
		"event: node_removed\ndata: {\"nodeId\":\"n1\"}\n\n"
	srv := sseServer(t, body)

	rec := &recorder{}
	err := newTestTransport(srv).Open(context.Background(), srv.URL, nil, rec.callbacks())
	require.NoError(t, err, "a bad frame does not fail the stream")

	require.Len(t, rec.errs, 1)
	assert.True(t, errors.Is(rec.errs[0], errors.ErrMalformedFrame))
	assert.Contains(t, errors.FlattenDetails(rec.errs[0]), "{not json")

	require.Len(t, rec.events, 1)
	assert.Equal(t, "node_removed", rec.events[0].Type)
	assert.Equal(t, 1, rec.closes)
}

func TestOpen_EmptyDataSkipped(t *testing.T) {
	body := "event: node_created\ndata:\n\n" +
		"event: agent_start\ndata: \n\n" +
		"event: node_removed\ndata: {\"nodeId\":\"n1\"}\n\n"
	srv := sseServer(t, body)

	rec := &recorder{}
	require.NoError(t, newTestTransport(srv).Open(context.Background(), srv.URL, nil, rec.callbacks()))

	assert.Empty(t, rec.errs, "empty payloads are not malformed")
	require.Len(t, rec.events, 1)
	assert.Equal(t, "node_removed", rec.events[0].Type)
}

func TestOpen_TrailingPartialFrameDropped(t *testing.T) {
	srv := sseServer(t, "event: a\ndata: {}\n\nevent: b\ndata: {}")

	rec := &recorder{}
	require.NoError(t, newTestTransport(srv).Open(context.Background(), srv.URL, nil, rec.callbacks()))

	require.Len(t, rec.events, 1)
	assert.Equal(t, "a", rec.events[0].Type)
}

func TestOpen_JSONFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"not_ready"}`)
	}))
	defer srv.Close()

	rec := &recorder{}
	require.NoError(t, newTestTransport(srv).Open(context.Background(), srv.URL, nil, rec.callbacks()))

	require.Len(t, rec.events, 1)
	assert.Equal(t, EventJSONResponse, rec.events[0].Type)
	assert.JSONEq(t, `{"status":"not_ready"}`, string(rec.events[0].Data))
	assert.Equal(t, 1, rec.closes)
}

func TestOpen_FallbackNotJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	rec := &recorder{}
	err := newTestTransport(srv).Open(context.Background(), srv.URL, nil, rec.callbacks())
	require.Error(t, err)
	assert.Empty(t, rec.events)
	assert.Len(t, rec.errs, 1)
	assert.Equal(t, 1, rec.closes)
}

func TestOpen_StatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"server message", http.StatusConflict, `{"error":"branch already running"}`, "branch already running"},
		{"no message", http.StatusInternalServerError, `oops`, "stream request failed (500)"},
		{"empty error field", http.StatusBadGateway, `{"error":""}`, "stream request failed (502)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			rec := &recorder{}
			err := newTestTransport(srv).Open(context.Background(), srv.URL, nil, rec.callbacks())
			require.Error(t, err)
			assert.Equal(t, tt.message, err.Error())

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.True(t, errors.Is(err, errors.ErrStreamFailed))

			require.Len(t, rec.errs, 1)
			assert.Equal(t, 1, rec.closes)
		})
	}
}

func TestOpen_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	client := srv.Client()
	srv.Close()

	rec := &recorder{}
	err := New(WithClient(httpclient.WrapClient(client))).Open(context.Background(), url, nil, rec.callbacks())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStreamFailed))
	assert.False(t, errors.IsCancelled(err))
	assert.Len(t, rec.errs, 1)
	assert.Equal(t, 1, rec.closes)
}

func TestOpen_CancellationIsNotAnError(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: agent_start\ndata: {\"agent\":\"topic\"}\n\n")
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	done := make(chan error, 1)
	go func() {
		done <- newTestTransport(srv).Open(ctx, srv.URL, nil, rec.callbacks())
	}()

	<-started
	assert.Eventually(t, func() bool { return rec.eventCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.IsCancelled(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Open did not return after cancel")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.errs, "cancellation must not reach OnError")
	assert.Equal(t, 1, rec.closes)
}

func TestOpen_RejectsBlockedURL(t *testing.T) {
	rec := &recorder{}
	err := New().Open(context.Background(), "http://127.0.0.1:1/agents", nil, rec.callbacks())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSRF")
	assert.Equal(t, 1, rec.closes)
}

func TestOpen_NilCallbacks(t *testing.T) {
	srv := sseServer(t, "event: a\ndata: {}\n\n")
	assert.NoError(t, newTestTransport(srv).Open(context.Background(), srv.URL, nil, Callbacks{}))
}

func TestOpen_LineTooLong(t *testing.T) {
	srv := sseServer(t, "event: a\ndata: \""+strings.Repeat("x", 70*1024)+"\"\n\n")

	rec := &recorder{}
	err := newTestTransport(srv).Open(context.Background(), srv.URL, nil, rec.callbacks())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedFrame))
}

func TestIsEventStream(t *testing.T) {
	assert.True(t, isEventStream("text/event-stream"))
	assert.True(t, isEventStream("text/event-stream; charset=utf-8"))
	assert.False(t, isEventStream("application/json"))
	assert.False(t, isEventStream(""))
}
