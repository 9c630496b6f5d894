package server

import (
	"log/slog"
	"sync"
	"time"

	"frzterr/internal/feed"
	"frzterr/internal/middleware"
	"frzterr/internal/service"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// upgradeOnly rejects plain HTTP requests on WebSocket routes.
func (s *Server) upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// FeedStream returns the handler for GET /api/ws/feed. It sends the current
// snapshot of the feed named by ?scope=&user= and then every snapshot the
// controller publishes. Slow readers only ever get the latest one. The
// stream closes when the viewer changes.
func (s *Server) FeedStream() fiber.Handler {
	stream := websocket.New(func(conn *websocket.Conn) {
		viewer, _ := conn.Locals("viewerID").(string)
		scope, _ := conn.Locals("feedScope").(feed.Scope)
		ctl := s.rt.Feeds.Feed(scope)
		log := middleware.Logger.With(slog.String("viewer_id", viewer), slog.String("scope", scope.String()))

		box := newSnapshotBox()
		cancel := ctl.Subscribe(box.offer)
		defer cancel()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		first := ctl.Snapshot()
		box.sent(first.Version)
		if err := writeJSON(conn, first); err != nil {
			log.Warn("websocket write error", slog.String("error", err.Error()))
			return
		}

		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-closed:
				return
			case snap := <-box.ch:
				if !box.sent(snap.Version) {
					continue
				}
				if err := writeJSON(conn, snap); err != nil {
					log.Warn("websocket write error", slog.String("error", err.Error()))
					return
				}
			case <-ping.C:
				if s.rt.Auth.ViewerID() != viewer {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "viewer changed"),
						time.Now().Add(wsWriteTimeout))
					return
				}
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	})

	return func(c *fiber.Ctx) error {
		scope, err := scopeFromQuery(c)
		if err != nil {
			return respondError(c, err)
		}
		c.Locals("feedScope", scope)
		return stream(c)
	}
}

// snapshotBox holds at most one pending snapshot for a stream. offer never
// blocks, so publishers are not held up by a slow or departed reader, and
// it keeps only snapshots newer than anything offered or sent before.
type snapshotBox struct {
	mu      sync.Mutex
	offered uint64
	written uint64
	any     bool
	wrote   bool
	ch      chan service.FeedSnapshot
}

func newSnapshotBox() *snapshotBox {
	return &snapshotBox{ch: make(chan service.FeedSnapshot, 1)}
}

func (b *snapshotBox) offer(snap service.FeedSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.any && snap.Version <= b.offered {
		return
	}
	b.any, b.offered = true, snap.Version
	for {
		select {
		case b.ch <- snap:
			return
		default:
			select {
			case <-b.ch:
			default:
			}
		}
	}
}

// sent records that version is about to go out. It reports false when a
// snapshot at least as new was already written.
func (b *snapshotBox) sent(version uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wrote && version <= b.written {
		return false
	}
	b.wrote, b.written = true, version
	if !b.any || version > b.offered {
		b.any, b.offered = true, version
	}
	return true
}

func writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
