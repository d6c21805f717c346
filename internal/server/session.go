package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"noteease/internal/model"
	"noteease/internal/notes"
)

const maxMessageSize = 4096

// Message types on the live feed.
const (
	MessageNotes  = "notes"
	MessageError  = "error"
	MessageSearch = "search"
)

// LiveMessage is a frame sent to a live-feed client.
type LiveMessage struct {
	Type  string       `json:"type"`
	Query string       `json:"query"`
	Notes []model.Note `json:"notes,omitempty"`
	Error string       `json:"error,omitempty"`
}

// ClientMessage is a frame received from a live-feed client.
type ClientMessage struct {
	Type  string `json:"type"`
	Query string `json:"query"`
}

type session struct {
	srv   *Server
	conn  *websocket.Conn
	store *notes.Store
}

func (s *Server) serveLive(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed disabled")
		return
	}

	store, err := s.sessions()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Warn("websocket upgrade failed", "error", err)
		store.Close()
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.live.Add(1)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	s.logger.Debug("live session opened", "remote", conn.RemoteAddr().String())

	sess := &session{srv: s, conn: conn, store: store}
	go sess.run()
}

func (sess *session) run() {
	s := sess.srv
	defer s.live.Done()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.readPump()
	}()
	sess.writePump(done)

	sess.conn.Close()
	<-done

	if err := sess.store.Close(); err != nil {
		s.logger.Warn("closing session store", "error", err)
	}

	s.mu.Lock()
	delete(s.conns, sess.conn)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionClosed()
	}
	s.logger.Debug("live session closed", "remote", sess.conn.RemoteAddr().String())
}

// readPump applies search frames until the connection fails or closes.
func (sess *session) readPump() {
	pongWait := sess.srv.pongWait

	sess.conn.SetReadLimit(maxMessageSize)
	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := sess.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.srv.logger.Warn("live session read failed", "error", err)
			}
			return
		}
		switch msg.Type {
		case MessageSearch:
			sess.store.UpdateSearchQuery(msg.Query)
		default:
			sess.srv.logger.Debug("ignoring live frame", "type", msg.Type)
		}
	}
}

// writePump forwards list and failure changes to the client and keeps the
// connection alive with pings. It returns when done closes or a write fails.
func (sess *session) writePump(done <-chan struct{}) {
	s := sess.srv

	visible, stopVisible := sess.store.WatchVisibleNotes()
	defer stopVisible()
	failures, stopFailures := sess.store.WatchFailures()
	defer stopFailures()

	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	ready := sess.store.Loaded()

	for {
		select {
		case <-done:
			sess.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case list, ok := <-visible:
			if !ok {
				return
			}
			select {
			case <-ready:
			default:
				// Before the first snapshot the list is only the initial empty value.
				continue
			}
			if list == nil {
				list = []model.Note{}
			}
			if err := sess.send(LiveMessage{Type: MessageNotes, Query: sess.store.SearchQuery(), Notes: list}); err != nil {
				return
			}

		case err, ok := <-failures:
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			if err := sess.send(LiveMessage{Type: MessageError, Query: sess.store.SearchQuery(), Error: err.Error()}); err != nil {
				return
			}

		case <-ticker.C:
			if err := sess.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (sess *session) send(msg LiveMessage) error {
	sess.conn.SetWriteDeadline(time.Now().Add(sess.srv.writeWait))
	if err := sess.conn.WriteJSON(msg); err != nil {
		sess.srv.logger.Debug("live session write failed", "error", err)
		return err
	}
	return nil
}

func (sess *session) write(messageType int, payload []byte) error {
	sess.conn.SetWriteDeadline(time.Now().Add(sess.srv.writeWait))
	return sess.conn.WriteMessage(messageType, payload)
}
