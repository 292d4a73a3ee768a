// Package whatsapp handles the WhatsApp Business Cloud API webhook.
package whatsapp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
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

const businessAccountObject = "whatsapp_business_account"

type Config struct {
	VerifyToken   string `split_words:"true"`
	AccessToken   string `split_words:"true"`
	PhoneNumberID string `envconfig:"PHONE_NUMBER_ID"`
	APIBaseURL    string `envconfig:"API_BASE_URL" default:"https://graph.facebook.com/v18.0"`
	// MessageWindow is how old an inbound message may be and still get a
	// free-form reply.
	MessageWindow  time.Duration `split_words:"true" default:"24h"`
	SendTimeout    time.Duration `split_words:"true" default:"10s"`
	RequestTimeout time.Duration `split_words:"true" default:"25s"`
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []inbound `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inbound struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
}

type Adapter struct {
	orch    channel.Handler
	sender  Sender
	sink    contractx.ErrorSink
	limiter ratelimitx.Limiter
	seen    *dedupe.Cache
	cfg     Config
	now     func() time.Time
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
	if cfg.MessageWindow <= 0 {
		cfg.MessageWindow = 24 * time.Hour
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 25 * time.Second
	}
	return &Adapter{
		orch:    orch,
		sender:  sender,
		sink:    sink,
		limiter: limiter,
		seen:    seen,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

func (a *Adapter) Register(r gin.IRouter) {
	r.GET("/api/whatsapp/webhook", a.Verify)
	r.POST("/api/whatsapp/webhook", a.Webhook)
}

// Verify answers the subscription handshake Meta performs when the webhook is configured.
func (a *Adapter) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && a.cfg.VerifyToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.VerifyToken)) == 1 {
		log.Info().Msg("whatsapp webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	log.Warn().Str("mode", mode).Msg("whatsapp webhook verification failed")
	c.Status(http.StatusForbidden)
}

func (a *Adapter) Webhook(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), a.cfg.RequestTimeout)
	defer cancel()

	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.orch.Reject(ctx, errcodex.InvalidFormat, contractx.Request{Channel: contractx.ChannelWhatsApp}, err)
		c.Status(http.StatusBadRequest)
		return
	}
	if payload.Object != businessAccountObject {
		c.Status(http.StatusNotFound)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, msg := range change.Value.Messages {
				a.process(ctx, msg)
			}
		}
	}
	c.Status(http.StatusOK)
}

func (a *Adapter) process(ctx context.Context, msg inbound) {
	if msg.Type != "text" {
		return
	}
	if a.seen.Seen(msg.ID) {
		log.Debug().Str("message_id", msg.ID).Msg("duplicate whatsapp message ignored")
		return
	}

	sentAt, err := parseUnix(msg.Timestamp)
	req := contractx.Request{
		UserID:  channel.UserID(contractx.ChannelWhatsApp, msg.From),
		Text:    msg.Text.Body,
		Channel: contractx.ChannelWhatsApp,
		Metadata: map[string]any{
			"phone_number": msg.From,
			"message_id":   msg.ID,
			"timestamp":    sentAt.UnixMilli(),
		},
	}
	if err != nil {
		a.orch.Reject(ctx, errcodex.InvalidFormat, req, err)
		return
	}

	// Free-form replies are only allowed inside the customer service window,
	// so stale messages are recorded and dropped before any resolution work.
	if age := a.now().Sub(sentAt); age > a.cfg.MessageWindow {
		a.orch.Reject(ctx, errcodex.WhatsAppSessionExpired, req, fmt.Errorf("message is %s old", age.Round(time.Minute)))
		return
	}

	var res contractx.Result
	if channel.Admit(ctx, a.limiter, req) {
		res = a.orch.Handle(ctx, req)
	} else {
		res = a.orch.Reject(ctx, errcodex.RateLimitExceeded, req, nil)
	}

	if err := a.sender.SendText(ctx, msg.From, res.Response); err != nil {
		channel.RecordDelivery(ctx, a.sink, errcodex.WhatsAppDeliveryFailed, res.RequestID, req, err)
	}
}

func parseUnix(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse message timestamp %q: %w", s, err)
	}
	return time.Unix(sec, 0).UTC(), nil
}
