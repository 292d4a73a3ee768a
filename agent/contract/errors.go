package contract

import "errors"

var (
	ErrValidation = errors.New("validation failed")

	// AI collaborator failure classes.
	ErrAITimeout         = errors.New("ai completion timed out")
	ErrAIQuotaExceeded   = errors.New("ai quota exceeded")
	ErrAIUnavailable     = errors.New("ai service unavailable")
	ErrAIInvalidResponse = errors.New("ai returned invalid response")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrNilConversation      = errors.New("conversation is nil")
	ErrInvalidChannel       = errors.New("unsupported channel")
)
