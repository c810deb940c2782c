package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
)

var ErrUnexpectedMessage = errors.New("ws: unexpected message type")

// Link is a peer's connection to a remote room.
type Link struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	writeWait time.Duration
}

// Dial connects to the room endpoint at rawURL as name.
func Dial(ctx context.Context, rawURL, name string) (*Link, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &Link{conn: conn, writeWait: defaultWriteWait}, nil
}

func (l *Link) Send(ctx context.Context, frame proto.Frame) error {
	data, err := proto.Encode(frame)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(l.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.conn.SetWriteDeadline(deadline)
	return l.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Receive blocks for the next frame. Cancelling ctx unblocks the read, after
// which the link should be closed.
func (l *Link) Receive(ctx context.Context) (proto.Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		l.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	kind, payload, err := l.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return proto.Frame{}, ctx.Err()
		}
		return proto.Frame{}, err
	}
	if kind != websocket.BinaryMessage {
		return proto.Frame{}, ErrUnexpectedMessage
	}
	return proto.Decode(payload)
}

func (l *Link) Close() error {
	l.writeMu.Lock()
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	l.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	l.writeMu.Unlock()
	return l.conn.Close()
}
