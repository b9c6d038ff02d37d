package jetstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultURL is the public Jetstream instance used when Config.URL is empty.
const DefaultURL = "wss://jetstream1.us-east.bsky.network/subscribe"

const (
	cursorSaveInterval = 5 * time.Second
	statsLogInterval   = 30 * time.Second
	reconnectDelay     = 5 * time.Second
)

// ErrNoHandler is returned by NewSubscriber when no handler is given.
var ErrNoHandler = errors.New("jetstream: no handler provided")

// CursorStore persists the stream position (the time_us of the last processed
// event) so a subscriber can resume where it left off.
type CursorStore interface {
	GetCursor(ctx context.Context, service string) (int64, error)
	SetCursor(ctx context.Context, service string, cursor int64) error
}

// Handler processes one event. A non-nil error is logged and the stream
// continues; the cursor still advances past the event.
type Handler func(ctx context.Context, evt *Event) error

// Config configures a Subscriber.
type Config struct {
	// URL is the Jetstream websocket endpoint. Defaults to DefaultURL.
	URL string

	// WantedCollections restricts commit events to these collection NSIDs.
	// Empty means all collections.
	WantedCollections []string

	// WantedDIDs restricts events to these repos. Empty means all repos.
	WantedDIDs []string

	// Cursors persists the stream position between runs. Nil disables
	// resumption; every connection starts from live.
	Cursors CursorStore

	// CursorKey is the service name the cursor is stored under.
	// Defaults to "jetstream".
	CursorKey string

	// Logger receives connection and stats logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Subscriber consumes a Jetstream endpoint and dispatches events to a
// Handler. It reconnects on transient errors and periodically saves its
// cursor through the configured CursorStore.
type Subscriber struct {
	url         string
	collections []string
	dids        []string
	cursors     CursorStore
	cursorKey   string
	handler     Handler
	logger      *slog.Logger
}

// NewSubscriber creates a subscriber that dispatches events to handler.
func NewSubscriber(cfg Config, handler Handler) (*Subscriber, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.CursorKey == "" {
		cfg.CursorKey = "jetstream"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Subscriber{
		url:         cfg.URL,
		collections: cfg.WantedCollections,
		dids:        cfg.WantedDIDs,
		cursors:     cfg.Cursors,
		cursorKey:   cfg.CursorKey,
		handler:     handler,
		logger:      cfg.Logger,
	}, nil
}

// Run connects to the endpoint and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.subscribe(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("jetstream connection error, reconnecting", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) string {
	u, err := url.Parse(s.url)
	if err != nil {
		return s.url
	}
	q := u.Query()
	for _, c := range s.collections {
		q.Add("wantedCollections", c)
	}
	for _, did := range s.dids {
		q.Add("wantedDids", did)
	}
	if cursor > 0 {
		q.Set("cursor", fmt.Sprintf("%d", cursor))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Subscriber) loadCursor(ctx context.Context) int64 {
	if s.cursors == nil {
		return 0
	}
	cursor, err := s.cursors.GetCursor(ctx, s.cursorKey)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
		return 0
	}
	return cursor
}

func (s *Subscriber) saveCursor(ctx context.Context, cursor int64) bool {
	if s.cursors == nil || cursor == 0 {
		return false
	}
	if err := s.cursors.SetCursor(ctx, s.cursorKey, cursor); err != nil {
		s.logger.Error("failed to save cursor", "error", err)
		return false
	}
	return true
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	wsURL := s.buildURL(s.loadCursor(ctx))
	s.logger.Info("connecting to jetstream", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial jetstream: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	s.logger.Info("connected to jetstream")

	var latestCursor, eventsReceived, commitsReceived int64
	lastCursorSave := time.Now()
	lastStatsLog := time.Now()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			// Keep the position on disconnect so the reconnect resumes
			// instead of replaying the save interval.
			s.saveCursor(context.WithoutCancel(ctx), latestCursor)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		var event Event
		if err := json.Unmarshal(message, &event); err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}

		eventsReceived++
		if event.TimeUS > latestCursor {
			latestCursor = event.TimeUS
		}
		if event.Kind == KindCommit {
			commitsReceived++
		}

		if err := s.handler(ctx, &event); err != nil {
			s.logger.Error("failed to handle event",
				"error", err,
				"kind", event.Kind,
				"did", event.DID,
			)
		}

		if time.Since(lastStatsLog) >= statsLogInterval {
			s.logger.Info("jetstream stats",
				"events_received", eventsReceived,
				"commits_received", commitsReceived,
				"cursor", latestCursor,
			)
			lastStatsLog = time.Now()
		}

		if time.Since(lastCursorSave) >= cursorSaveInterval {
			if s.saveCursor(ctx, latestCursor) {
				lastCursorSave = time.Now()
			}
		}
	}
}
