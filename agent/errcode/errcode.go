// Package errcode holds the closed table of user-facing error codes. Codes are
// used by monitoring and must never be renumbered; add new entries instead.
package errcode

import (
	"context"
	"errors"
	"fmt"
	"net"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

const TaxonomyVersion = 1

type Band int

const (
	BandValidation        Band = 1000
	BandAI                Band = 2000
	BandNetwork           Band = 3000
	BandPersist           Band = 4000
	BandAuth              Band = 5000
	BandBusinessMessaging Band = 6000
	BandBotPlatform       Band = 7000
	BandServer            Band = 8000
	BandBusinessLogic     Band = 9000
)

func (b Band) String() string {
	switch b {
	case BandValidation:
		return "validation"
	case BandAI:
		return "ai_service"
	case BandNetwork:
		return "network"
	case BandPersist:
		return "persistence"
	case BandAuth:
		return "auth"
	case BandBusinessMessaging:
		return "whatsapp"
	case BandBotPlatform:
		return "telegram"
	case BandServer:
		return "server"
	case BandBusinessLogic:
		return "business_logic"
	default:
		return "unknown"
	}
}

type Entry struct {
	Code     int    `json:"code"`
	Name     string `json:"name"`
	Message  string `json:"message"`
	Internal string `json:"internal"`
}

func (e Entry) Band() Band {
	if e.Code == Unknown.Code {
		return 0
	}
	return Band(e.Code / 1000 * 1000)
}

var (
	InvalidInput        = Entry{1001, "INVALID_INPUT", "Hmm, I didn't quite get that. Can you rephrase?", "Invalid or empty input received"}
	MessageTooLong      = Entry{1002, "MESSAGE_TOO_LONG", "That's a bit long! Can you break it down for me?", "Message exceeds maximum length"}
	UnsupportedLanguage = Entry{1003, "UNSUPPORTED_LANGUAGE", "I currently only understand English. Can you try in English?", "Message in unsupported language"}
	InvalidFormat       = Entry{1004, "INVALID_FORMAT", "I'm not sure what format that is. Can you try differently?", "Message format not recognized"}

	AITimeout         = Entry{2001, "AI_TIMEOUT", "Sorry, I'm thinking a bit slow right now. Try again?", "AI service timeout exceeded"}
	AIQuotaExceeded   = Entry{2002, "AI_QUOTA_EXCEEDED", "I'm a bit overwhelmed right now. Call us at +256761903887?", "AI API quota exceeded"}
	AIUnavailable     = Entry{2003, "AI_UNAVAILABLE", "My brain's taking a break. Can you try in a minute?", "AI service unavailable"}
	AIInvalidResponse = Entry{2004, "AI_INVALID_RESPONSE", "I got confused there. Let me try again - what do you need?", "AI returned invalid response"}

	NetworkError = Entry{3001, "NETWORK_ERROR", "Connection hiccup! Can you send that again?", "Network request failed"}
	TimeoutError = Entry{3002, "TIMEOUT_ERROR", "That took too long. Let's try again?", "Request timeout"}
	DNSError     = Entry{3003, "DNS_ERROR", "Can't reach my servers. Try again in a moment?", "DNS resolution failed"}

	DBConnectionError = Entry{4001, "DB_CONNECTION_ERROR", "Having trouble saving that. But I'm still here to help!", "Database connection failed"}
	DBQueryError      = Entry{4002, "DB_QUERY_ERROR", "Quick glitch on my end. What were you asking?", "Database query failed"}
	DBSaveError       = Entry{4003, "DB_SAVE_ERROR", "Couldn't save that, but I remember! What's next?", "Failed to save to database"}

	Unauthorized      = Entry{5001, "UNAUTHORIZED", "I don't recognize you. Are you sure you're chatting from the right place?", "Unauthorized access attempt"}
	InvalidToken      = Entry{5002, "INVALID_TOKEN", "Session expired. Can you start a new chat?", "Invalid or expired token"}
	RateLimitExceeded = Entry{5003, "RATE_LIMIT_EXCEEDED", "Whoa, slow down! Give me a second to catch up.", "Rate limit exceeded"}

	WhatsAppSessionExpired = Entry{6001, "WHATSAPP_SESSION_EXPIRED", "Our WhatsApp session expired. Send a message to restart!", "WhatsApp 24-hour window expired"}
	WhatsAppTemplateFailed = Entry{6002, "WHATSAPP_TEMPLATE_FAILED", "Message couldn't be sent. Call us at +256761903887?", "WhatsApp template message failed"}
	WhatsAppDeliveryFailed = Entry{6003, "WHATSAPP_DELIVERY_FAILED", "Message didn't go through. Are you connected to internet?", "WhatsApp delivery failed"}
	WhatsAppInvalidNumber  = Entry{6004, "WHATSAPP_INVALID_NUMBER", "This number doesn't seem right. Check and try again?", "Invalid WhatsApp number"}

	TelegramBotBlocked     = Entry{7001, "TELEGRAM_BOT_BLOCKED", "Looks like you blocked me. Unblock to continue chatting!", "User blocked the Telegram bot"}
	TelegramSendFailed     = Entry{7002, "TELEGRAM_SEND_FAILED", "Couldn't send that message. Try again?", "Telegram message send failed"}
	TelegramInvalidWebhook = Entry{7003, "TELEGRAM_INVALID_WEBHOOK", "Something's wrong with the connection. We're fixing it!", "Invalid Telegram webhook payload"}

	ServerError    = Entry{8001, "SERVER_ERROR", "Oops, something broke on my end. Try again?", "Internal server error"}
	ServerOverload = Entry{8002, "SERVER_OVERLOAD", "I'm handling a lot right now. Give me a moment?", "Server overloaded"}
	ServerCrash    = Entry{8003, "SERVER_CRASH", "I just restarted. What were we talking about?", "Server crashed and restarted"}

	ProductNotFound       = Entry{9001, "PRODUCT_NOT_FOUND", "I don't think we have that. Want to see what we do have?", "Requested product not found"}
	InvalidOrder          = Entry{9002, "INVALID_ORDER", "Something's off with that order. Let's go through it again?", "Order validation failed"}
	PriceCalculationError = Entry{9003, "PRICE_CALCULATION_ERROR", "Having trouble calculating that. Let me check and get back to you?", "Price calculation failed"}

	Unknown = Entry{9999, "UNKNOWN_ERROR", "Something unexpected happened. Can you try again? Or call +256761903887", "Unknown error occurred"}
)

var table = func() map[int]Entry {
	all := []Entry{
		InvalidInput, MessageTooLong, UnsupportedLanguage, InvalidFormat,
		AITimeout, AIQuotaExceeded, AIUnavailable, AIInvalidResponse,
		NetworkError, TimeoutError, DNSError,
		DBConnectionError, DBQueryError, DBSaveError,
		Unauthorized, InvalidToken, RateLimitExceeded,
		WhatsAppSessionExpired, WhatsAppTemplateFailed, WhatsAppDeliveryFailed, WhatsAppInvalidNumber,
		TelegramBotBlocked, TelegramSendFailed, TelegramInvalidWebhook,
		ServerError, ServerOverload, ServerCrash,
		ProductNotFound, InvalidOrder, PriceCalculationError,
		Unknown,
	}
	m := make(map[int]Entry, len(all))
	for _, e := range all {
		if _, dup := m[e.Code]; dup {
			panic(fmt.Sprintf("errcode: duplicate code %d", e.Code))
		}
		m[e.Code] = e
	}
	return m
}()

// Lookup returns the entry registered for code.
func Lookup(code int) (Entry, bool) {
	e, ok := table[code]
	return e, ok
}

// All returns every entry; order is unspecified.
func All() []Entry {
	out := make([]Entry, 0, len(table))
	for _, e := range table {
		out = append(out, e)
	}
	return out
}

// Error carries a taxonomy entry through ordinary error returns.
type Error struct {
	Entry Entry
	Cause error
}

func New(e Entry, cause error) *Error {
	return &Error{Entry: e, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%d %s: %v", e.Entry.Code, e.Entry.Internal, e.Cause)
	}
	return fmt.Sprintf("%d %s", e.Entry.Code, e.Entry.Internal)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// From resolves err to exactly one entry. Anything unrecognised is Unknown.
func From(err error) Entry {
	if err == nil {
		return Unknown
	}

	var coded *Error
	if errors.As(err, &coded) {
		return coded.Entry
	}

	switch {
	case errors.Is(err, contractx.ErrAIQuotaExceeded):
		return AIQuotaExceeded
	case errors.Is(err, contractx.ErrAITimeout):
		return AITimeout
	case errors.Is(err, contractx.ErrAIUnavailable):
		return AIUnavailable
	case errors.Is(err, contractx.ErrAIInvalidResponse):
		return AIInvalidResponse
	case errors.Is(err, contractx.ErrValidation):
		return InvalidInput
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutError
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return DNSError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return TimeoutError
		}
		return NetworkError
	}
	return Unknown
}

// Diagnostic renders the internal text logged next to a record.
func Diagnostic(e Entry, err error) string {
	if err == nil {
		return e.Internal
	}
	return fmt.Sprintf("%s: %v", e.Internal, err)
}
