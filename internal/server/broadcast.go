package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const subscriberSendBuffer = 16

// wsFrame is one outgoing message with its WebSocket message type.
type wsFrame struct {
	data        []byte
	messageType int
}

// subscriber is one WebSocket client receiving routing table snapshots.
type subscriber struct {
	conn     *websocket.Conn
	send     chan wsFrame
	compress bool
}

// broadcaster pushes routing table snapshots to WebSocket subscribers
// whenever the table epoch advances. Each subscriber gets the current
// snapshot on connect and every later change; slow subscribers are dropped
// rather than blocking the fan-out.
type broadcaster struct {
	upgrader websocket.Upgrader
	handler  *Handler
	log      *logrus.Entry

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}

	wake chan struct{}
}

func newBroadcaster(handler *Handler, log *logrus.Entry) *broadcaster {
	b := &broadcaster{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		handler:     handler,
		log:         log,
		subscribers: make(map[*subscriber]struct{}),
		wake:        make(chan struct{}, 1),
	}
	handler.OnEpochChange(func(int) { b.notify() })
	return b
}

// notify schedules a snapshot push; coalesces bursts of epoch changes.
func (b *broadcaster) notify() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// ServeHTTP upgrades a subscription request. "?compress=lz4" requests
// LZ4-compressed binary frames instead of text frames.
func (b *broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	sub := &subscriber{
		conn:     conn,
		send:     make(chan wsFrame, subscriberSendBuffer),
		compress: r.URL.Query().Get("compress") == "lz4",
	}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	// Initial snapshot so subscribers never start blind.
	if frame, ok := b.currentFrame(sub.compress); ok {
		sub.send <- frame
	}

	go b.writeLoop(sub)
	go b.readLoop(sub)
}

// run fans snapshots out until ctx is cancelled.
func (b *broadcaster) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return ctx.Err()
		case <-b.wake:
			b.push()
		}
	}
}

func (b *broadcaster) push() {
	plain, okPlain := b.currentFrame(false)
	compressed, okCompressed := b.currentFrame(true)

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		frame, ok := plain, okPlain
		if sub.compress {
			frame, ok = compressed, okCompressed
		}
		if !ok {
			continue
		}
		select {
		case sub.send <- frame:
		default:
			// Subscriber cannot keep up; drop it.
			delete(b.subscribers, sub)
			close(sub.send)
		}
	}
}

// currentFrame renders the current snapshot, optionally compressed. The
// boolean is false when serialization fails. Compression falls back to the
// plain text frame when the snapshot is too small to be worth it.
func (b *broadcaster) currentFrame(compress bool) (wsFrame, bool) {
	snap, err := b.handler.Snapshot()
	if err != nil {
		b.log.WithError(err).Error("snapshot serialization failed")
		return wsFrame{}, false
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		b.log.WithError(err).Error("snapshot encoding failed")
		return wsFrame{}, false
	}
	if compress {
		if data, ok := compressSnapshot(payload); ok {
			return wsFrame{data: data, messageType: websocket.BinaryMessage}, true
		}
	}
	return wsFrame{data: payload, messageType: websocket.TextMessage}, true
}

func (b *broadcaster) writeLoop(sub *subscriber) {
	defer sub.conn.Close()
	for frame := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := sub.conn.WriteMessage(frame.messageType, frame.data); err != nil {
			b.drop(sub)
			return
		}
	}
}

// readLoop drains control frames and detects disconnects.
func (b *broadcaster) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			b.drop(sub)
			return
		}
	}
}

func (b *broadcaster) drop(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.send)
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		close(sub.send)
		sub.conn.Close()
		delete(b.subscribers, sub)
	}
}
