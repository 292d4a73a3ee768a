// Package telegram receives Bot API webhook updates and replies through sendMessage.
package telegram

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/channel"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/dedupe"
	ratelimitx "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/ratelimit"
)

const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type Config struct {
	BotToken       string        `split_words:"true"`
	WebhookSecret  string        `split_words:"true"`
	APIBaseURL     string        `envconfig:"API_BASE_URL" default:"https://api.telegram.org"`
	SendTimeout    time.Duration `split_words:"true" default:"10s"`
	RequestTimeout time.Duration `split_words:"true" default:"25s"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	// From is absent on channel posts; such updates have no user to answer.
	From *user `json:"from"`
}

type user struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Adapter struct {
	orch    channel.Handler
	sender  Sender
	sink    contractx.ErrorSink
	limiter ratelimitx.Limiter
	seen    *dedupe.Cache
	cfg     Config
}

func New(
	orch channel.Handler,
	sender Sender,
	sink contractx.ErrorSink,
	limiter ratelimitx.Limiter,
	seen *dedupe.Cache,
	cfg Config,
) (*Adapter, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if sender == nil {
		sender = noopSender{}
	}
	if limiter == nil {
		limiter = ratelimitx.Noop{}
	}
	if seen == nil {
		seen = dedupe.New(time.Hour, 10_000)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = WebhookTimeout
	}
	return &Adapter{orch: orch, sender: sender, sink: sink, limiter: limiter, seen: seen, cfg: cfg}, nil
}

func (a *Adapter) Register(r gin.IRouter) {
	r.POST("/api/telegram/webhook", a.Webhook)
}

func (a *Adapter) Webhook(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), a.cfg.RequestTimeout)
	defer cancel()

	if !a.authorized(c.GetHeader(SecretHeader)) {
		a.orch.Reject(ctx, errcodex.Unauthorized, contractx.Request{Channel: contractx.ChannelTelegram}, errors.New("webhook secret mismatch"))
		c.JSON(http.StatusForbidden, gin.H{"success": false})
		return
	}

	var upd update
	err := c.ShouldBindJSON(&upd)
	switch {
	case err != nil:
	case upd.Message == nil:
		err = errors.New("update has no message")
	case upd.Message.From == nil || upd.Message.From.ID == 0:
		err = errors.New("message has no sender")
	}
	if err != nil {
		a.orch.Reject(ctx, errcodex.TelegramInvalidWebhook, contractx.Request{Channel: contractx.ChannelTelegram}, err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}

	if a.seen.Seen(strconv.FormatInt(upd.UpdateID, 10)) {
		log.Debug().Int64("update_id", upd.UpdateID).Msg("duplicate telegram update ignored")
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	// Stickers, photos and other non-text updates are acknowledged silently.
	if upd.Message.Text == "" {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	msg := upd.Message
	req := contractx.Request{
		UserID:  channel.UserID(contractx.ChannelTelegram, strconv.FormatInt(msg.From.ID, 10)),
		Text:    msg.Text,
		Channel: contractx.ChannelTelegram,
		Metadata: map[string]any{
			"chat_id":    msg.Chat.ID,
			"username":   msg.From.Username,
			"first_name": msg.From.FirstName,
			"last_name":  msg.From.LastName,
		},
	}

	var res contractx.Result
	if channel.Admit(ctx, a.limiter, req) {
		res = a.orch.Handle(ctx, req)
	} else {
		res = a.orch.Reject(ctx, errcodex.RateLimitExceeded, req, nil)
	}

	if err := a.sender.SendMessage(ctx, msg.Chat.ID, res.Response); err != nil {
		entry := errcodex.TelegramSendFailed
		if errors.Is(err, channel.ErrBlocked) {
			entry = errcodex.TelegramBotBlocked
		}
		channel.RecordDelivery(ctx, a.sink, entry, res.RequestID, req, err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *Adapter) authorized(got string) bool {
	if a.cfg.WebhookSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.cfg.WebhookSecret)) == 1
}
