// Package signal is the websocket edge of the gateway: it decodes client
// events, calls into the orchestrator, and pushes room notifications.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/app/orch"
	"github.com/stickpm/sfu/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrStaleRequest = errors.New("stale request")
)

type SignalWSController struct {
	Orch *orch.Orchestrator

	// ReadLimit bounds inbound message size; PingPeriod drives the
	// keepalive pings. Zero values disable either.
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewSignalWSController(o *orch.Orchestrator) *SignalWSController {
	return &SignalWSController{Orch: o}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	// Highest negotiation sequence seen on this connection. Replayed or
	// out-of-order negotiation messages are rejected, not re-executed.
	lastSeq atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// checkSeq admits a negotiation message only when its sequence advances
// past everything already seen. Zero means the client does not number its
// messages; those are admitted as-is.
func (c *WsSignalConn) checkSeq(seq int64) error {
	if seq == 0 {
		return nil
	}
	for {
		last := c.lastSeq.Load()
		if seq <= last {
			return ErrStaleRequest
		}
		if c.lastSeq.CompareAndSwap(last, seq) {
			return nil
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	user := ctl.Orch.Sessions.GetOrCreateUser(sid)
	sess := core.NewMemberSession(user).UpdateSignal(conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Sessions.BindSignal(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}
