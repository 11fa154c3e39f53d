// Package gateway is the presence & push side of the pipeline: it admits
// authenticated websocket sessions, tracks who is online, relays typing
// signals and fans consumed broker events out to open sessions.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/sonyflake"
	"go.uber.org/zap"

	"github.com/vietbevis/clothes-shop-chat/internal/auth"
	"github.com/vietbevis/clothes-shop-chat/internal/event"
	"github.com/vietbevis/clothes-shop-chat/internal/hub"
	"github.com/vietbevis/clothes-shop-chat/internal/metrics"
)

// Server→client event names.
const (
	EvMessageNew    = "message:new"
	EvMessageUpdate = "message:update"
	EvMessageDelete = "message:delete"
	EvMessageStatus = "message:status"
	EvUsersOnline   = "users:online"
	EvUserStatus    = "user:status"
	EvTypingStart   = "typing:start"
	EvTypingStop    = "typing:stop"
)

// Frame is the ws wire format in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	// To targets a client→server typing signal.
	To int64 `json:"to,omitempty"`
}

type Options struct {
	TokenHeader       string
	TokenBearerPrefix string
	TokenQueryKey     string

	WriteTimeout time.Duration
	PingInterval time.Duration
	OutQueue     int
}

type Gateway struct {
	hub      *hub.Hub
	verifier *auth.Verifier
	sf       *sonyflake.Sonyflake
	opt      Options
	log      *zap.Logger

	upgrader websocket.Upgrader
}

func New(h *hub.Hub, v *auth.Verifier, sf *sonyflake.Sonyflake, opt Options, log *zap.Logger) *Gateway {
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = 5 * time.Second
	}
	if opt.PingInterval == 0 {
		opt.PingInterval = 30 * time.Second
	}
	if opt.OutQueue <= 0 {
		opt.OutQueue = 256
	}
	return &Gateway{
		hub:      h,
		verifier: v,
		sf:       sf,
		opt:      opt,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS is the push-channel handshake: the token is presented as a
// connection-time credential, verified exactly like the HTTP layer does.
// Admission failure closes the connection before any session is registered.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	tok := auth.ExtractToken(r, g.opt.TokenHeader, g.opt.TokenBearerPrefix, g.opt.TokenQueryKey)
	payload, err := g.verifier.Verify(r.Context(), tok)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sid, err := g.sf.NextID()
	if err != nil {
		_ = ws.Close()
		return
	}
	s := &hub.Session{UID: payload.UserID, SID: int64(sid), Out: make(chan []byte, g.opt.OutQueue)}

	first := g.hub.Add(s)
	metrics.OnlineConns.Set(float64(g.hub.Len()))
	metrics.OnlineUsers.Set(float64(g.hub.Users()))

	go g.writeLoop(ws, s)

	// The newcomer gets the full online snapshot; everyone else learns about
	// the user only on the OFFLINE→ONLINE edge.
	g.send(s, EvUsersOnline, g.hub.OnlineUsers())
	if first {
		g.broadcast(EvUserStatus, statusData{UserID: s.UID, Online: true})
	}

	g.readLoop(ws, s)
}

type statusData struct {
	UserID int64 `json:"userId"`
	Online bool  `json:"online"`
}

type typingData struct {
	From int64 `json:"from"`
	TS   int64 `json:"ts"`
}

func (g *Gateway) readLoop(ws *websocket.Conn, s *hub.Session) {
	defer g.closeSession(ws, s)

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * g.opt.PingInterval))
	})
	_ = ws.SetReadDeadline(time.Now().Add(2 * g.opt.PingInterval))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		switch f.Event {
		case EvTypingStart, EvTypingStop:
			// Relayed only to the target's personal channel, fire-and-forget.
			if f.To > 0 && f.To != s.UID {
				g.emit(f.To, f.Event, typingData{From: s.UID, TS: time.Now().Unix()})
			}
		}
	}
}

func (g *Gateway) writeLoop(ws *websocket.Conn, s *hub.Session) {
	ping := time.NewTicker(g.opt.PingInterval)
	defer func() {
		ping.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case b, ok := <-s.Out:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(g.opt.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(g.opt.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) closeSession(ws *websocket.Conn, s *hub.Session) {
	// Out is never closed: late emits that raced the removal land in a
	// buffered channel nobody reads, and the write loop exits on its next
	// ping against the closed conn.
	_ = ws.Close()
	last := g.hub.Remove(s.UID, s.SID)
	metrics.OnlineConns.Set(float64(g.hub.Len()))
	metrics.OnlineUsers.Set(float64(g.hub.Users()))
	if last {
		g.broadcast(EvUserStatus, statusData{UserID: s.UID, Online: false})
	}
}

// Dispatch implements broker.Dispatcher: route each consumed event to the
// users it concerns. Users with no open session are dropped silently; clients
// recover by refetching on reconnect.
func (g *Gateway) Dispatch(_ context.Context, evt *event.Envelope) error {
	p, err := evt.Decode()
	if err != nil {
		return err
	}
	switch p := p.(type) {
	case *event.CreatedPayload:
		g.emit(p.Message.ReceiverID, EvMessageNew, p.Message)
	case *event.UpdatedPayload:
		g.emit(p.Message.ReceiverID, EvMessageUpdate, p.Message)
	case *event.DeletedPayload:
		g.emit(p.SenderID, EvMessageDelete, p)
		g.emit(p.ReceiverID, EvMessageDelete, p)
	case *event.StatusPayload:
		g.emit(p.ReaderID, EvMessageStatus, p)
		g.emit(p.PartnerID, EvMessageStatus, p)
	}
	return nil
}

// emit fans a frame out to all of uid's open sessions.
func (g *Gateway) emit(uid int64, ev string, data any) {
	sessions := g.hub.Sessions(uid)
	if len(sessions) == 0 {
		metrics.WSPushOffline.Inc()
		return
	}
	b, err := encodeFrame(ev, data)
	if err != nil {
		return
	}
	for _, s := range sessions {
		g.queue(s, b)
	}
}

func (g *Gateway) broadcast(ev string, data any) {
	b, err := encodeFrame(ev, data)
	if err != nil {
		return
	}
	for _, s := range g.hub.All() {
		g.queue(s, b)
	}
}

func (g *Gateway) send(s *hub.Session, ev string, data any) {
	b, err := encodeFrame(ev, data)
	if err != nil {
		return
	}
	g.queue(s, b)
}

func (g *Gateway) queue(s *hub.Session, b []byte) {
	select {
	case s.Out <- b:
		metrics.WSPushOK.Inc()
	default:
		metrics.WSPushBackpressure.Inc()
	}
}

func encodeFrame(ev string, data any) ([]byte, error) {
	d, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: ev, Data: d})
}
