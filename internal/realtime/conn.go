package realtime

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 10
)

var errConnClosed = stderrors.New("realtime: connection closed")

// Upgrader accepts websocket connections from any origin; rooms are guarded by their code and tokens.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler processes a message sent by the client. A non-nil reply is written back to that client only.
type Handler func(ctx context.Context, msg []byte) (reply []byte)

// Serve pumps msgs to the client and client messages to handle until either side goes away or ctx is done.
// It closes ws before returning.
func Serve(ctx context.Context, ws *websocket.Conn, msgs <-chan []byte, handle Handler) {
	replies := make(chan []byte, subscriberBuffer)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return readPump(ctx, ws, handle, replies)
	})
	eg.Go(func() error {
		return writePump(ctx, ws, msgs, replies)
	})
	eg.Go(func() error {
		<-ctx.Done()
		// Unblocks the read pump.
		return ws.Close()
	})

	if err := eg.Wait(); err != nil && !stderrors.Is(err, errConnClosed) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		slog.DebugContext(ctx, "realtime: connection ended", "error", err)
	}
}

func readPump(ctx context.Context, ws *websocket.Conn, handle Handler, replies chan<- []byte) error {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return err
			}
			return errConnClosed
		}

		if handle == nil {
			continue
		}

		reply := handle(ctx, msg)
		if reply == nil {
			continue
		}

		select {
		case replies <- reply:
		case <-ctx.Done():
			return errConnClosed
		}
	}
}

func writePump(ctx context.Context, ws *websocket.Conn, msgs <-chan []byte, replies <-chan []byte) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(typ int, data []byte) error {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		return ws.WriteMessage(typ, data)
	}

	for {
		select {
		case <-ctx.Done():
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return errConnClosed

		case msg, ok := <-msgs:
			if !ok {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return errConnClosed
			}
			if err := write(websocket.TextMessage, msg); err != nil {
				return err
			}

		case msg := <-replies:
			if err := write(websocket.TextMessage, msg); err != nil {
				return err
			}

		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
