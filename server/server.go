// Package server exposes the chat subsystem over websockets. One
// authenticated connection maps to one Session; all room traffic
// flows through the orchestrator's fanout.
package server

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"planet-chat/auth"
	"planet-chat/lifecycle"
	"planet-chat/presence"
	"planet-chat/repositories"
	"planet-chat/runtime"
	"planet-chat/search"
	"planet-chat/spamguard"
)

type ChatServer struct {
	log          *slog.Logger
	orchestrator *runtime.Orchestrator
	presence     *presence.Registry
	lifecycle    *lifecycle.Service
	rooms        repositories.IRoomRepository
	messages     repositories.IMessageRepository
	macros       repositories.IMacroSetRepository
	index        *search.Index
	keeper       *spamguard.Keeper
	directory    *presence.Directory
	tokens       *auth.TokenManager
	validate     *validator.Validate

	pageSize       int
	idleDelay      time.Duration
	allowedOrigins []string

	sessionsLock sync.Mutex
	sessions     map[*Session]struct{}
}

type Config struct {
	PageSize       int
	IdleDelay      time.Duration
	AllowedOrigins []string
}

func NewChatServer(log *slog.Logger, orchestrator *runtime.Orchestrator,
	presenceRegistry *presence.Registry, lifecycleService *lifecycle.Service,
	rooms repositories.IRoomRepository, messages repositories.IMessageRepository,
	macros repositories.IMacroSetRepository, index *search.Index,
	directory *presence.Directory, tokens *auth.TokenManager, cfg Config) *ChatServer {
	return &ChatServer{
		log:            log,
		orchestrator:   orchestrator,
		presence:       presenceRegistry,
		lifecycle:      lifecycleService,
		rooms:          rooms,
		messages:       messages,
		macros:         macros,
		index:          index,
		keeper:         spamguard.NewKeeper(),
		directory:      directory,
		tokens:         tokens,
		validate:       validator.New(),
		pageSize:       cfg.PageSize,
		idleDelay:      cfg.IdleDelay,
		allowedOrigins: cfg.AllowedOrigins,
		sessions:       make(map[*Session]struct{}),
	}
}

// ServeWS authenticates the handshake and hands the connection to a
// new session. The token travels in the Authorization header or, for
// browser clients that cannot set headers on websockets, in the token
// query parameter.
func (cs *ChatServer) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	claims, err := cs.tokens.Validate(tokenString)
	if err != nil {
		cs.log.Debug("Rejected handshake", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(cs.allowedOrigins) == 0 {
				return true
			}
			return slices.Contains(cs.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cs.log.Warn("Upgrading connection failed", "error", err)
		return
	}

	participant := claims.Participant()
	cs.directory.Put(participant)

	session := NewSession(participant, claims.Roles, conn, cs, cs.log)
	cs.addSession(session)
	cs.log.Info("Session opened",
		slog.String("user", claims.UserID),
		slog.String("name", claims.DisplayName))

	go session.Write()
	go session.Read()
}

func (cs *ChatServer) addSession(s *Session) {
	cs.sessionsLock.Lock()
	defer cs.sessionsLock.Unlock()
	cs.sessions[s] = struct{}{}
}

func (cs *ChatServer) removeSession(s *Session) {
	cs.sessionsLock.Lock()
	defer cs.sessionsLock.Unlock()
	delete(cs.sessions, s)
}

// SessionCount reports the number of open connections.
func (cs *ChatServer) SessionCount() int {
	cs.sessionsLock.Lock()
	defer cs.sessionsLock.Unlock()
	return len(cs.sessions)
}

// levelFor derives the displayed sender level from token roles.
func (cs *ChatServer) levelFor(roles []string) int {
	if lo.Contains(roles, lifecycle.ModeratorRole) {
		return 10
	}
	return 1
}
