package jetstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memCursors struct {
	mu   sync.Mutex
	vals map[string]int64
	errs bool
}

func newMemCursors() *memCursors {
	return &memCursors{vals: make(map[string]int64)}
}

func (m *memCursors) GetCursor(ctx context.Context, service string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errs {
		return 0, errors.New("cursor store unavailable")
	}
	return m.vals[service], nil
}

func (m *memCursors) SetCursor(ctx context.Context, service string, cursor int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errs {
		return errors.New("cursor store unavailable")
	}
	m.vals[service] = cursor
	return nil
}

func (m *memCursors) get(service string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vals[service]
}

func TestNewSubscriberDefaults(t *testing.T) {
	sub, err := NewSubscriber(Config{}, func(ctx context.Context, evt *Event) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, sub.url)
	assert.Equal(t, "jetstream", sub.cursorKey)
	assert.NotNil(t, sub.logger)
}

func TestNewSubscriberRequiresHandler(t *testing.T) {
	_, err := NewSubscriber(Config{}, nil)
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name        string
		collections []string
		dids        []string
		cursor      int64
		want        string
	}{
		{
			name: "no filters from live",
			want: "wss://jetstream.example.com/subscribe",
		},
		{
			name:        "collections and cursor",
			collections: []string{"app.bsky.feed.post", "app.bsky.feed.like"},
			cursor:      1725911162329308,
			want:        "wss://jetstream.example.com/subscribe?cursor=1725911162329308&wantedCollections=app.bsky.feed.post&wantedCollections=app.bsky.feed.like",
		},
		{
			name: "dids only",
			dids: []string{"did:plc:abc123"},
			want: "wss://jetstream.example.com/subscribe?wantedDids=did%3Aplc%3Aabc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := NewSubscriber(Config{
				URL:               "wss://jetstream.example.com/subscribe",
				WantedCollections: tt.collections,
				WantedDIDs:        tt.dids,
				Logger:            discardLogger(),
			}, func(ctx context.Context, evt *Event) error { return nil })
			require.NoError(t, err)

			got, err := url.Parse(sub.buildURL(tt.cursor))
			require.NoError(t, err)
			want, err := url.Parse(tt.want)
			require.NoError(t, err)
			assert.Equal(t, want.Host, got.Host)
			assert.Equal(t, want.Path, got.Path)
			assert.Equal(t, want.Query(), got.Query())
		})
	}
}

// serveEvents upgrades each connection, reports its query parameters, writes
// the given frames, and then holds the connection open until the client
// drops it.
func serveEvents(t *testing.T, frames []string, queries chan<- url.Values) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case queries <- r.URL.Query():
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscriberDispatchesEvents(t *testing.T) {
	frames := []string{commitEventJSON, identityEventJSON, accountEventJSON}
	queries := make(chan url.Values, 1)
	srv := serveEvents(t, frames, queries)

	cursors := newMemCursors()
	require.NoError(t, cursors.SetCursor(context.Background(), "jetstream", 41))

	received := make(chan *Event, len(frames))
	sub, err := NewSubscriber(Config{
		URL:               wsURL(srv),
		WantedCollections: []string{"app.bsky.feed.post"},
		Cursors:           cursors,
		Logger:            discardLogger(),
	}, func(ctx context.Context, evt *Event) error {
		received <- evt
		if evt.Kind == KindIdentity {
			return errors.New("handler hiccup")
		}
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	var got []*Event
	for len(got) < len(frames) {
		select {
		case evt := <-received:
			got = append(got, evt)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}

	// Events arrive in stream order, including the one whose handler errored.
	assert.Equal(t, KindCommit, got[0].Kind)
	assert.Equal(t, KindIdentity, got[1].Kind)
	assert.Equal(t, KindAccount, got[2].Kind)

	// The stored cursor and collection filter were sent on connect.
	select {
	case q := <-queries:
		assert.Equal(t, "41", q.Get("cursor"))
		assert.Equal(t, []string{"app.bsky.feed.post"}, q["wantedCollections"])
	default:
		t.Fatal("server saw no connection")
	}

	// The latest position was saved when the connection dropped.
	assert.Equal(t, int64(1725911162329308), cursors.get("jetstream"))
}

func TestSubscriberStartsLiveWhenCursorLoadFails(t *testing.T) {
	queries := make(chan url.Values, 1)
	srv := serveEvents(t, nil, queries)

	cursors := newMemCursors()
	cursors.errs = true

	sub, err := NewSubscriber(Config{
		URL:     wsURL(srv),
		Cursors: cursors,
		Logger:  discardLogger(),
	}, func(ctx context.Context, evt *Event) error { return nil })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	select {
	case q := <-queries:
		assert.Empty(t, q.Get("cursor"))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}
}
