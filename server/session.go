package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"planet-chat/contract"
	"planet-chat/domain"
	"planet-chat/domain/event"
	apperrors "planet-chat/errors"
	"planet-chat/macro"
	"planet-chat/spamguard"
	"planet-chat/stream"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// lockedGuard makes one client's spam guard safe to share between the
// session's read goroutine and the macro engine's idle timer.
type lockedGuard struct {
	mu    sync.Mutex
	guard *spamguard.Guard
}

func (g *lockedGuard) Check(text string, now time.Time) spamguard.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.guard.Check(text, now)
}

func (g *lockedGuard) Record(text string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.guard.Record(text, now)
}

func (g *lockedGuard) MutedUntil() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.guard.MutedUntil()
}

var _ macro.MuteGate = (*lockedGuard)(nil)

// Session is one authenticated websocket connection. It occupies at
// most one room at a time; entering another room tears the previous
// occupancy down first.
type Session struct {
	conn        *websocket.Conn
	server      *ChatServer
	log         *slog.Logger
	participant domain.Participant
	roles       []string

	send     chan *ServerMessage
	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	room   domain.RoomID
	view   *stream.View
	engine *macro.Engine
	guard  *lockedGuard
}

var _ contract.EventSink = (*Session)(nil)

func NewSession(participant domain.Participant, roles []string,
	conn *websocket.Conn, server *ChatServer, log *slog.Logger) *Session {
	return &Session{
		conn:        conn,
		server:      server,
		log:         log,
		participant: participant,
		roles:       roles,
		send:        make(chan *ServerMessage, sendBuffer),
		stop:        make(chan struct{}),
	}
}

// Write drains the send queue onto the wire and keeps the connection
// alive with pings.
func (s *Session) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		s.log.Debug("Write pump exiting", "user", s.participant.UserID)
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			bytes, err := json.Marshal(msg)
			if err != nil {
				s.log.Error("Failed to serialize frame", "error", err)
				continue
			}
			if !s.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-s.stop:
			return
		case <-ticker.C:
			if !s.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// Read parses client frames and dispatches them. Pongs double as
// presence heartbeats: each one renews the room lease.
func (s *Session) Read() {
	defer func() {
		_ = s.conn.Close()
		s.cleanup()
		s.log.Debug("Read pump exiting", "user", s.participant.UserID)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.renewLease()
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Warn("Websocket read failed", "error", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Debug("Unparseable client frame", "error", err)
			s.queue(ErrInvalidMessage(0))
			continue
		}
		s.handle(&msg)
	}
}

func (s *Session) handle(msg *ClientMessage) {
	switch {
	case msg.Enter != nil:
		s.handleEnter(msg)
	case msg.Leave != nil:
		s.handleLeave(msg)
	case msg.Publish != nil:
		s.handlePublish(msg)
	case msg.LoadOlder != nil:
		s.handleLoadOlder(msg)
	case msg.ListRooms != nil:
		s.handleListRooms(msg)
	case msg.CreateRoom != nil:
		s.handleCreateRoom(msg)
	case msg.SetMacro != nil:
		s.handleSetMacro(msg)
	case msg.UseMacro != nil:
		s.handleUseMacro(msg)
	case msg.Gift != nil:
		s.handleGift(msg)
	case msg.ScheduleDestroy != nil:
		s.handleScheduleDestroy(msg)
	case msg.DestroyNow != nil:
		s.handleDestroyNow(msg)
	case msg.Search != nil:
		s.handleSearch(msg)
	default:
		s.queue(ErrInvalidMessage(msg.Id))
	}
}

func (s *Session) handleEnter(msg *ClientMessage) {
	if !s.validate(msg.Id, msg.Enter) {
		return
	}
	roomID := domain.RoomID(msg.Enter.RoomId)
	room, err := s.server.rooms.GetRoom(roomID)
	if err != nil {
		s.queue(ErrRoomNotFound(msg.Id))
		return
	}

	s.leaveCurrentRoom()

	// the guard is per user, not per room: an active mute must hold
	// across room hops on the same connection
	userID := s.participant.UserID
	guard := &lockedGuard{guard: s.server.keeper.Get(userID)}

	view := stream.NewView(s.server.messages, s.server.pageSize, s.log)
	if err := view.Open(roomID); err != nil {
		s.log.Error("Opening message view failed", "room", roomID, "error", err)
		s.queue(ErrInternalError(msg.Id))
		return
	}
	// synthetic entry notice for the joiner only; carries no backing
	// record and is never persisted
	view.AppendLocal(domain.Message{
		Room:       roomID,
		SenderID:   "system",
		SenderName: "System",
		Body:       fmt.Sprintf("You entered %s", room.Title),
		SentAt:     Now(),
	})

	set, err := s.server.macros.GetMacroSet(userID)
	if err != nil {
		s.log.Warn("Loading macro set failed, starting empty", "user", userID, "error", err)
	}
	engine := macro.NewEngine(set, userID, guard, s.macroSender(roomID), s.server.idleDelay, s.log)

	s.mu.Lock()
	s.room = roomID
	s.view = view
	s.engine = engine
	s.guard = guard
	s.mu.Unlock()

	s.server.orchestrator.RegisterParticipant(userID, roomID, s)
	s.server.presence.Enter(roomID, userID)
	engine.Start(s.server.presence.Participants(roomID))

	s.mu.Lock()
	frames := toMessageFrames(view.Messages())
	hasMore := view.HasMore()
	s.mu.Unlock()

	s.queue(NoErrOK(msg.Id, map[string]any{
		"room_id":   string(room.ID),
		"title":     room.Title,
		"occupancy": s.server.presence.Count(roomID),
	}))
	s.queue(&ServerMessage{
		Timestamp: Now(),
		History: &History{
			RoomId:   string(roomID),
			Messages: frames,
			HasMore:  hasMore,
		},
	})

	// the persisted counterpart of the local entry notice: everyone
	// but the joiner sees it, and it survives in history
	s.server.orchestrator.Dispatch(domain.PostMessageCommand{
		Room:           roomID,
		SenderID:       "system",
		SenderName:     "System",
		Body:           fmt.Sprintf("%s entered the room", s.participant.DisplayName),
		SentAt:         Now(),
		ExcludedUserID: userID,
	})
}

func (s *Session) handleLeave(msg *ClientMessage) {
	if !s.validate(msg.Id, msg.Leave) {
		return
	}
	s.mu.Lock()
	current := s.room
	s.mu.Unlock()
	if current == "" || string(current) != msg.Leave.RoomId {
		s.queue(ErrNotInRoom(msg.Id))
		return
	}
	s.leaveCurrentRoom()
	s.queue(NoErrOK(msg.Id, nil))
}

func (s *Session) handlePublish(msg *ClientMessage) {
	if !s.validate(msg.Id, msg.Publish) {
		return
	}
	s.mu.Lock()
	room, guard, engine := s.room, s.guard, s.engine
	s.mu.Unlock()
	if room == "" || string(room) != msg.Publish.RoomId {
		s.queue(ErrNotInRoom(msg.Id))
		return
	}

	now := Now()
	result := guard.Check(msg.Publish.Body, now)
	switch result.Verdict {
	case spamguard.Mute:
		s.queue(&ServerMessage{
			Id:        msg.Id,
			Timestamp: now,
			Muted:     &MutedFrame{RoomId: string(room), MutedUntil: result.MutedUntil},
		})
		return
	case spamguard.Warn:
		s.queue(&ServerMessage{
			Id:        msg.Id,
			Timestamp: now,
			Warning: &WarningFrame{
				RoomId:   string(room),
				Notice:   result.Notice,
				Warnings: result.Warnings,
			},
		})
		return
	}

	guard.Record(msg.Publish.Body, now)
	s.server.orchestrator.Dispatch(domain.PostMessageCommand{
		Room:        room,
		SenderID:    s.participant.UserID,
		SenderName:  s.participant.DisplayName,
		SenderLevel: s.server.levelFor(s.roles),
		Body:        msg.Publish.Body,
		SentAt:      now,
	})
	engine.MessageSent()
	s.queue(NoErrOK(msg.Id, nil))
}

func (s *Session) handleLoadOlder(msg *ClientMessage) {
	if !s.validate(msg.Id, msg.LoadOlder) {
		return
	}
	s.mu.Lock()
	room, view := s.room, s.view
	s.mu.Unlock()
	if room == "" || string(room) != msg.LoadOlder.RoomId {
		s.queue(ErrNotInRoom(msg.Id))
		return
	}

	s.mu.Lock()
	_, err := view.LoadOlder()
	if err != nil {
		s.mu.Unlock()
		s.log.Error("Loading older messages failed", "room", room, "error", err)
		s.queue(ErrInternalError(msg.Id))
		return
	}
	frames := toMessageFrames(view.Messages())
	hasMore := view.HasMore()
	s.mu.Unlock()
	s.queue(&ServerMessage{
		Id:        msg.Id,
		Timestamp: Now(),
		History: &History{
			RoomId:   string(room),
			Messages: frames,
			HasMore:  hasMore,
		},
	})
}

func (s *Session) handleListRooms(msg *ClientMessage) {
	rooms, err := s.server.rooms.ListRooms()
	if err != nil {
		s.queue(ErrInternalError(msg.Id))
		return
	}
	// opportunistic sweep: elapsed countdowns and stale rooms vanish
	// before anyone sees them listed
	if removed := s.server.lifecycle.GarbageCollect(rooms, Now()); len(removed) > 0 {
		if rooms, err = s.server.rooms.ListRooms(); err != nil {
			s.queue(ErrInternalError(msg.Id))
			return
		}
	}

	summaries := make([]RoomSummary, len(rooms))
	for i, room := range rooms {
		summaries[i] = RoomSummary{
			Id:            string(room.ID),
			Title:         room.Title,
			Icon:          room.Icon,
			OwnerId:       room.OwnerID,
			OccupantCount: s.server.presence.Count(room.ID),
			DestroyAt:     room.DestroyAt,
		}
	}
	s.queue(&ServerMessage{
		Id:        msg.Id,
		Timestamp: Now(),
		Rooms:     &RoomList{Rooms: summaries},
	})
}

func (s *Session) handleCreateRoom(msg *ClientMessage) {
	if !s.validate(msg.Id, msg.CreateRoom) {
		return
	}
	room, err := s.server.lifecycle.CreateRoom(msg.CreateRoom.Title, msg.CreateRoom.Icon, s.participant.UserID)
	if err != nil {
		s.queueLifecycleError(msg.Id, err)
		return
	}
	s.queue(NoErrOK(msg.Id, map[string]any{"room_id": string(room.ID)}))
}

func (s *Session) handleSetMacro(msg *ClientMessage) {
	if !s.validate(msg.Id, msg.SetMacro) {
		return
	}
	var set domain.MacroSet
	copy(set.Manual[:], msg.SetMacro.Manual)
	copy(set.Automatic[:], msg.SetMacro.Automatic)

	if err := s.server.macros.SaveMacroSet(s.participant.UserID, set); err != nil {
		s.log.Error("Saving macro set failed", "user", s.participant.UserID, "error", err)
		s.queue(ErrInternalError(msg.Id))
		return
	}
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine != nil {
		engine.UpdateSet(set)
	}
	s.queue(NoErrOK(msg.Id, nil))
}

func (s *Session) handleUseMacro(msg *ClientMessage) {
	if !s.validate(msg.Id, msg.UseMacro) {
		return
	}
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		s.queue(ErrNotInRoom(msg.Id))
		return
	}
	s.queue(NoErrOK(msg.Id, map[string]any{"text": engine.ApplyManual(msg.UseMacro.Slot)}))
}

func (s *Session) handleGift(msg *ClientMessage) {
	if !s.validate(msg.Id, msg.Gift) {
		return
	}
	s.mu.Lock()
	room, engine := s.room, s.engine
	s.mu.Unlock()
	if room == "" || string(room) != msg.Gift.RoomId {
		s.queue(ErrNotInRoom(msg.Id))
		return
	}

	var receiver domain.Participant
	for _, p := range s.server.presence.Participants(room) {
		if p.UserID == msg.Gift.ToUserId {
			receiver = p
			break
		}
	}
	if receiver.UserID == "" {
		s.queue(errResponse(msg.Id, http.StatusNotFound, "recipient not in room"))
		return
	}

	engine.GiftSent(receiver.DisplayName)
	s.server.orchestrator.Publish(event.GiftOffered{
		Room: room,
		From: s.participant,
		To:   receiver,
		At:   Now(),
	})
	s.queue(NoErrOK(msg.Id, nil))
}

func (s *Session) handleScheduleDestroy(msg *ClientMessage) {
	if !s.validate(msg.Id, msg.ScheduleDestroy) {
		return
	}
	destroyAt, err := s.server.lifecycle.ScheduleDestruction(
		domain.RoomID(msg.ScheduleDestroy.RoomId), s.participant.UserID, s.roles)
	if err != nil {
		s.queueLifecycleError(msg.Id, err)
		return
	}
	s.queue(NoErrOK(msg.Id, map[string]any{"destroy_at": destroyAt}))
}

func (s *Session) handleDestroyNow(msg *ClientMessage) {
	if !s.validate(msg.Id, msg.DestroyNow) {
		return
	}
	err := s.server.lifecycle.DestroyImmediately(
		domain.RoomID(msg.DestroyNow.RoomId), s.participant.UserID)
	if err != nil {
		s.queueLifecycleError(msg.Id, err)
		return
	}
	s.queue(NoErrOK(msg.Id, nil))
}

func (s *Session) handleSearch(msg *ClientMessage) {
	if !s.validate(msg.Id, msg.Search) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hits, err := s.server.index.Search(ctx, domain.RoomID(msg.Search.RoomId), msg.Search.Terms, msg.Search.Limit)
	if err != nil {
		s.log.Error("Search failed", "room", msg.Search.RoomId, "error", err)
		s.queue(ErrInternalError(msg.Id))
		return
	}

	frames := make([]SearchHit, len(hits))
	for i, hit := range hits {
		frames[i] = SearchHit{
			MessageId:  hit.MessageID.String(),
			SenderName: hit.SenderName,
			Body:       hit.Body,
			SentAt:     hit.SentAt,
		}
	}
	s.queue(&ServerMessage{
		Id:        msg.Id,
		Timestamp: Now(),
		Hits:      &SearchHits{RoomId: msg.Search.RoomId, Hits: frames},
	})
}

// Consume receives the fanout traffic for the session's current room
// and translates it into push frames.
func (s *Session) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	room, view, engine := s.room, s.view, s.engine
	s.mu.Unlock()
	if room == "" || e.RoomID() != room {
		return nil
	}

	switch evt := e.(type) {
	case event.MessagePosted:
		if !evt.Message.VisibleTo(s.participant.UserID) {
			return nil
		}
		// the view is session local, the lock serializes it against the
		// read goroutine
		s.mu.Lock()
		if s.view == view {
			view.Apply(e)
		}
		s.mu.Unlock()
		s.queue(&ServerMessage{Timestamp: Now(), Message: lo.ToPtr(toMessageFrame(evt.Message))})

	case event.OccupancyChanged:
		s.queue(&ServerMessage{
			Timestamp: Now(),
			Occupancy: &Occupancy{RoomId: string(room), Count: evt.Count},
		})

	case event.ParticipantEntered:
		// the entry notice itself arrives as a stored message with the
		// joiner excluded; here only the macro diff runs
		engine.Observe(s.server.presence.Participants(room))

	case event.ParticipantLeft:
		engine.Observe(s.server.presence.Participants(room))
		s.notice(room, fmt.Sprintf("%s left the room", evt.User.DisplayName))

	case event.GiftOffered:
		if evt.To.UserID == s.participant.UserID {
			engine.GiftReceived(evt.From.DisplayName)
		}
		s.notice(room, fmt.Sprintf("%s sent a gift to %s", evt.From.DisplayName, evt.To.DisplayName))

	case event.DestructionScheduled:
		s.notice(room, fmt.Sprintf("This room will be destroyed at %s",
			evt.DestroyAt.UTC().Format(time.RFC3339)))

	case event.RoomDestroyed:
		s.notice(room, "This room has been destroyed")
		s.leaveCurrentRoom()
	}
	return nil
}

func (s *Session) macroSender(roomID domain.RoomID) macro.Sender {
	return func(body string) {
		s.server.orchestrator.Dispatch(domain.PostMessageCommand{
			Room:        roomID,
			SenderID:    s.participant.UserID,
			SenderName:  s.participant.DisplayName,
			SenderLevel: s.server.levelFor(s.roles),
			Body:        body,
			SentAt:      Now(),
		})
	}
}

func (s *Session) renewLease() {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room == "" {
		return
	}
	if !s.server.presence.Renew(room, s.participant.UserID) {
		// expired mid-session, probably a long GC pause; re-enter
		s.server.presence.Enter(room, s.participant.UserID)
	}
}

// leaveCurrentRoom tears down all per-room state. Safe to call when
// not in a room.
func (s *Session) leaveCurrentRoom() {
	s.mu.Lock()
	room, view, engine := s.room, s.view, s.engine
	s.room, s.view, s.engine, s.guard = "", nil, nil, nil
	s.mu.Unlock()
	if room == "" {
		return
	}

	engine.Stop()
	view.Close()
	s.server.orchestrator.UnregisterParticipant(s.participant.UserID, room)
	s.server.presence.Leave(room, s.participant.UserID)
}

func (s *Session) notice(room domain.RoomID, text string) {
	s.queue(&ServerMessage{
		Timestamp: Now(),
		Notice:    &Notice{RoomId: string(room), Text: text},
	})
}

func (s *Session) validate(id int, payload any) bool {
	if err := s.server.validate.Struct(payload); err != nil {
		s.queue(ErrInvalidMessage(id))
		return false
	}
	return true
}

func (s *Session) queue(msg *ServerMessage) bool {
	select {
	case s.send <- msg:
		return true
	default:
		s.log.Warn("Send queue full, dropping frame", "user", s.participant.UserID)
		return false
	}
}

func (s *Session) writeFrame(msgType int, payload []byte) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(msgType, payload); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
			websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
			s.log.Warn("Websocket write failed", "error", err)
		}
		return false
	}
	return true
}

func (s *Session) cleanup() {
	s.leaveCurrentRoom()
	s.server.keeper.Drop(s.participant.UserID)
	s.server.removeSession(s)
	s.stopOnce.Do(func() { close(s.stop) })
}

// queueLifecycleError maps room-lifecycle failures onto wire codes.
func (s *Session) queueLifecycleError(id int, err error) {
	switch {
	case errors.Is(err, apperrors.ErrRoomNotFound):
		s.queue(ErrRoomNotFound(id))
	case errors.Is(err, apperrors.ErrNotRoomOwner), errors.Is(err, apperrors.ErrNotPrivileged):
		s.queue(ErrNotPermitted(id))
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		s.queue(ErrPaymentRequired(id))
	default:
		s.log.Error("Unexpected lifecycle failure", "error", err)
		s.queue(ErrInternalError(id))
	}
}
