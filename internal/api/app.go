package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/akarpov/gametrade/internal/chat"
	"github.com/akarpov/gametrade/internal/config"
	"github.com/akarpov/gametrade/internal/database"
	"github.com/akarpov/gametrade/internal/lockout"
	"github.com/akarpov/gametrade/internal/media"
	"github.com/akarpov/gametrade/internal/presence"
	"github.com/akarpov/gametrade/internal/stats"
	"github.com/gorilla/handlers"
)

type App struct {
	log            *log.Logger
	db             database.Repository
	tracker        *presence.Tracker
	guard          *lockout.Guard
	chat           *chat.Service
	media          *media.Store
	stats          stats.StatsProvider
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewApp(mux *http.ServeMux, logger *log.Logger, db database.Repository,
	tracker *presence.Tracker, guard *lockout.Guard, chatService *chat.Service,
	mediaStore *media.Store, statsProvider stats.StatsProvider, cfg *config.Config) *App {

	s := &App{
		log:            logger,
		db:             db,
		tracker:        tracker,
		guard:          guard,
		chat:           chatService,
		media:          mediaStore,
		stats:          statsProvider,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.trackPresence(s.session)))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("POST /api/session/heartbeat", s.authMiddleware(s.heartbeat))
	mux.Handle("POST /api/conversations", s.authMiddleware(s.trackPresence(s.createConversation)))
	mux.Handle("GET /api/conversations", s.authMiddleware(s.trackPresence(s.listConversations)))
	mux.Handle("GET /api/conversations/{id}/messages", s.authMiddleware(s.trackPresence(s.getMessages)))
	mux.Handle("GET /api/conversations/{id}/messages/new", s.authMiddleware(s.trackPresence(s.getNewMessages)))
	mux.Handle("GET /api/conversations/{id}/messages/status", s.authMiddleware(s.trackPresence(s.messageStatuses)))
	mux.Handle("POST /api/conversations/{id}/messages", s.authMiddleware(s.trackPresence(s.sendMessage)))
	mux.Handle("POST /api/conversations/{id}/voice-message", s.authMiddleware(s.trackPresence(s.sendVoiceMessage)))
	mux.Handle("POST /api/conversations/{id}/read", s.authMiddleware(s.trackPresence(s.markAllRead)))
	mux.Handle("POST /api/messages/{id}/read", s.authMiddleware(s.trackPresence(s.markMessageRead)))
	mux.Handle("GET /api/chat/unread-count", s.authMiddleware(s.trackPresence(s.globalUnread)))
	mux.Handle("GET /api/users/status", s.authMiddleware(s.trackPresence(s.usersStatus)))
	mux.Handle("GET /api/users/online-count", s.authMiddleware(s.trackPresence(s.onlineCount)))
	mux.Handle("GET /api/media/{name}", s.authMiddleware(s.trackPresence(s.serveMedia)))
	mux.HandleFunc("GET /healthz", s.healthCheck)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.LoggingHandler(logger.Writer(), h)
	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *App) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
