package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/chipledger/internal/auth"
	"github.com/MarcoPoloResearchLab/chipledger/internal/entry"
	"github.com/MarcoPoloResearchLab/chipledger/internal/ledger"
	"github.com/MarcoPoloResearchLab/chipledger/internal/metrics"
	"github.com/MarcoPoloResearchLab/chipledger/internal/rooms"
	"github.com/MarcoPoloResearchLab/chipledger/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	actorContextKey = "chipledger_actor"
	roomContextKey  = "chipledger_room"
	loginPath       = "/login"
)

var (
	errMissingAuthenticator = errors.New("authenticator dependency required")
	errMissingSessions      = errors.New("session issuer and validator dependencies required")
	errMissingRooms         = errors.New("room directory dependency required")
	errMissingLedger        = errors.New("ledger dependency required")
	errMissingEntry         = errors.New("entry workflow dependency required")
)

// Authenticator resolves credentials to a registered identity.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (users.Identity, error)
}

// SessionIssuer signs session tokens.
type SessionIssuer interface {
	IssueSession(userID, email, displayName string) (string, time.Duration, error)
}

// SessionValidator reads and validates the session cookie.
type SessionValidator interface {
	CookieName() string
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// LoginLimiter throttles login attempts per scope.
type LoginLimiter interface {
	Allow(ctx context.Context, scope string) (bool, int64, error)
	Window() time.Duration
}

// RoomDirectory is the room surface used by the handlers.
type RoomDirectory interface {
	CreateRoom(ctx context.Context, actor auth.Actor, roomKey, roomName string) (rooms.Room, error)
	FindRoomByKey(ctx context.Context, roomKey string) (rooms.Room, error)
	GetRoom(ctx context.Context, roomID string) (rooms.Room, error)
	ListRecentRooms(ctx context.Context, userID string, limit int) ([]rooms.RecentRoom, error)
}

// Ledger is the balance surface used by the handlers.
type Ledger interface {
	GetBalance(ctx context.Context, roomID, userID string) (ledger.Balance, error)
	RecordBuyIn(ctx context.Context, roomID string, actor auth.Actor, chipsAmount, moneyAmount int64) (ledger.Transaction, error)
	RecordAdjustment(ctx context.Context, roomID string, actor auth.Actor, newBalance int64) (ledger.Transaction, error)
	ListTransactions(ctx context.Context, roomID string) ([]ledger.Transaction, error)
	ListLeaderboard(ctx context.Context, roomID string) ([]ledger.LeaderboardEntry, error)
}

// EntryWorkflow drives room entry.
type EntryWorkflow interface {
	Check(ctx context.Context, actor auth.Actor, roomKey string) (entry.Outcome, error)
	ConfirmCreate(ctx context.Context, actor auth.Actor, roomKey, roomName string) (entry.Outcome, error)
	ConfirmJoin(ctx context.Context, actor auth.Actor, roomKey string) (entry.Outcome, error)
}

// Dependencies wires the HTTP surface. LoginLimiter, Metrics and
// MetricsHandler are optional.
type Dependencies struct {
	Authenticator    Authenticator
	SessionIssuer    SessionIssuer
	SessionValidator SessionValidator
	LoginLimiter     LoginLimiter
	Rooms            RoomDirectory
	Ledger           Ledger
	Entry            EntryWorkflow
	Metrics          *metrics.HTTPMetrics
	MetricsHandler   http.Handler
	AllowedOrigins   []string
	SecureCookies    bool
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the chipledger API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Authenticator == nil {
		return nil, errMissingAuthenticator
	}
	if deps.SessionIssuer == nil || deps.SessionValidator == nil {
		return nil, errMissingSessions
	}
	if deps.Rooms == nil {
		return nil, errMissingRooms
	}
	if deps.Ledger == nil {
		return nil, errMissingLedger
	}
	if deps.Entry == nil {
		return nil, errMissingEntry
	}
	if err := registerValidators(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(deps.Metrics.Middleware())
	router.Use(requestLogger(logger))
	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	handler := &httpHandler{
		authenticator: deps.Authenticator,
		issuer:        deps.SessionIssuer,
		sessions:      deps.SessionValidator,
		limiter:       deps.LoginLimiter,
		rooms:         deps.Rooms,
		ledger:        deps.Ledger,
		entry:         deps.Entry,
		secureCookies: deps.SecureCookies,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}
	router.GET(loginPath, handler.handleLoginPage)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/rooms", handler.handleFindRoom)
	protected.POST("/rooms", handler.handleCreateRoom)
	protected.GET("/rooms/recent", handler.handleRecentRooms)
	protected.POST("/entrance/check", handler.handleEntranceCheck)
	protected.POST("/entrance/create", handler.handleEntranceCreate)
	protected.POST("/entrance/join", handler.handleEntranceJoin)

	room := protected.Group("/rooms/:roomId")
	room.Use(handler.resolveRoom)
	room.GET("/balance", handler.handleGetBalance)
	room.PUT("/balance", handler.handleAdjustBalance)
	room.POST("/buy-in", handler.handleBuyIn)
	room.GET("/transactions", handler.handleListTransactions)
	room.GET("/leaderboard", handler.handleLeaderboard)

	return router, nil
}

type httpHandler struct {
	authenticator Authenticator
	issuer        SessionIssuer
	sessions      SessionValidator
	limiter       LoginLimiter
	rooms         RoomDirectory
	ledger        Ledger
	entry         EntryWorkflow
	secureCookies bool
	logger        *zap.Logger
}

func corsConfig(allowedOrigins []string) cors.Config {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
		return config
	}
	config.AllowOrigins = allowedOrigins
	return config
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(started)),
		}
		if actor, ok := actorFrom(c); ok {
			fields = append(fields, zap.String("user_id", actor.UserID))
		}
		logger.Debug("http request", fields...)
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.Redirect(http.StatusSeeOther, loginPath)
		c.Abort()
		return
	}
	c.Set(actorContextKey, claims.Actor())
	c.Next()
}

func (h *httpHandler) resolveRoom(c *gin.Context) {
	room, err := h.rooms.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		respondError(c, err)
		c.Abort()
		return
	}
	c.Set(roomContextKey, room)
	c.Next()
}

func actorFrom(c *gin.Context) (auth.Actor, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return auth.Actor{}, false
	}
	actor, ok := value.(auth.Actor)
	return actor, ok && actor.Valid()
}

func roomFrom(c *gin.Context) rooms.Room {
	value, _ := c.Get(roomContextKey)
	room, _ := value.(rooms.Room)
	return room
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	respondOK(c, http.StatusOK, gin.H{"status": "ok"})
}
