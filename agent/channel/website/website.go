// Package website serves the chat widget: chat, history and profile routes.
package website

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/channel"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
	statex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/state"
	ratelimitx "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/ratelimit"
)

type Config struct {
	// JWTSecret enables bearer token checks on chat requests.
	JWTSecret      string        `envconfig:"JWT_SECRET"`
	RequireToken   bool          `split_words:"true" default:"false"`
	RequestTimeout time.Duration `split_words:"true" default:"30s"`
}

type chatRequest struct {
	UserID    string         `json:"userId"`
	Message   string         `json:"message"`
	SessionID string         `json:"sessionId"`
	Metadata  map[string]any `json:"metadata"`
}

type Adapter struct {
	orch    channel.Handler
	store   contractx.ConversationStore
	limiter ratelimitx.Limiter
	cfg     Config
}

func New(orch channel.Handler, store contractx.ConversationStore, limiter ratelimitx.Limiter, cfg Config) (*Adapter, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if store == nil {
		return nil, errors.New("conversation store is required")
	}
	if limiter == nil {
		limiter = ratelimitx.Noop{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Adapter{orch: orch, store: store, limiter: limiter, cfg: cfg}, nil
}

func (a *Adapter) Register(r gin.IRouter) {
	g := r.Group("/api/website")
	g.POST("/chat", a.Chat)
	g.GET("/history/:userId", a.History)
	g.POST("/profile/:userId", a.UpdateProfile)
}

func (a *Adapter) Chat(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), a.cfg.RequestTimeout)
	defer cancel()

	var body chatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		res := a.orch.Reject(ctx, errcodex.InvalidFormat, contractx.Request{Channel: contractx.ChannelWebsite}, err)
		c.JSON(http.StatusBadRequest, res)
		return
	}

	req := contractx.Request{
		UserID:   strings.TrimSpace(body.UserID),
		Text:     body.Message,
		Channel:  contractx.ChannelWebsite,
		Metadata: body.Metadata,
	}
	// A widget session id identifies the visitor better than the page-level user id.
	if sid := strings.TrimSpace(body.SessionID); sid != "" {
		req.UserID = sid
	}
	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}
	req.Metadata["ip"] = c.ClientIP()
	req.Metadata["user_agent"] = c.Request.UserAgent()
	if body.SessionID != "" {
		req.Metadata["session_id"] = body.SessionID
	}

	if code, err := a.authenticate(c.GetHeader("Authorization")); err != nil {
		c.JSON(http.StatusUnauthorized, a.orch.Reject(ctx, code, req, err))
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, a.orch.Reject(ctx, errcodex.InvalidInput, req, errors.New("userId is required")))
		return
	}
	if !channel.Admit(ctx, a.limiter, req) {
		c.JSON(http.StatusTooManyRequests, a.orch.Reject(ctx, errcodex.RateLimitExceeded, req, nil))
		return
	}

	c.JSON(http.StatusOK, a.orch.Handle(ctx, req))
}

// authenticate checks the bearer token when a secret is configured.
func (a *Adapter) authenticate(header string) (errcodex.Entry, error) {
	if a.cfg.JWTSecret == "" {
		return errcodex.Entry{}, nil
	}
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		if a.cfg.RequireToken {
			return errcodex.Unauthorized, errors.New("missing bearer token")
		}
		return errcodex.Entry{}, nil
	}

	token, err := jwt.Parse(strings.TrimSpace(raw), func(t *jwt.Token) (any, error) {
		return []byte(a.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return errcodex.InvalidToken, fmt.Errorf("parse token: %w", err)
	}
	return errcodex.Entry{}, nil
}

func (a *Adapter) History(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = statex.DefaultHistoryLimit
	}

	history, err := a.store.History(c.Request.Context(), userID, contractx.ChannelWebsite, limit)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("get history")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not retrieve history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": history})
}

func (a *Adapter) UpdateProfile(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))

	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Profile must be a JSON object"})
		return
	}
	if err := a.store.UpdateProfile(c.Request.Context(), userID, contractx.ChannelWebsite, patch); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("update profile")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Could not update profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Profile updated"})
}
