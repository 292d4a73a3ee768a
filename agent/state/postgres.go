package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	"github.com/uptrace/bun"
)

type conversationRow struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID          string              `bun:"id,pk"`
	UserID      string              `bun:"user_id,notnull"`
	Channel     string              `bun:"channel,notnull"`
	Messages    []contractx.Message `bun:"messages,type:jsonb,notnull"`
	UserProfile map[string]any      `bun:"user_profile,type:jsonb,notnull"`
	Status      string              `bun:"status,notnull"`
	CreatedAt   time.Time           `bun:"created_at,notnull"`
	UpdatedAt   time.Time           `bun:"updated_at,notnull"`
}

func rowFrom(conv *contractx.Conversation) *conversationRow {
	conv = normalize(conv)
	return &conversationRow{
		ID:          conv.ID,
		UserID:      conv.UserID,
		Channel:     string(conv.Channel),
		Messages:    conv.Messages,
		UserProfile: conv.UserProfile,
		Status:      string(conv.Status),
		CreatedAt:   conv.CreatedAt.UTC(),
		UpdatedAt:   conv.UpdatedAt.UTC(),
	}
}

func (r *conversationRow) conversation() *contractx.Conversation {
	return normalize(&contractx.Conversation{
		ID:          r.ID,
		UserID:      r.UserID,
		Channel:     contractx.Channel(r.Channel),
		Messages:    r.Messages,
		UserProfile: r.UserProfile,
		Status:      contractx.ConversationStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	})
}

const activeIndex = "conversations_user_channel_active"

// PostgresStore keeps conversations as rows with messages as jsonb. A partial
// unique index allows one active row per (user, channel) next to any number
// of closed or archived ones.
type PostgresStore struct {
	db  bun.IDB
	now func() time.Time
}

var _ contractx.ConversationStore = (*PostgresStore)(nil)

func NewPostgresStore(db bun.IDB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*conversationRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create conversations: %w", err)
	}
	_, err := s.db.NewCreateIndex().
		Model((*conversationRow)(nil)).
		Index(activeIndex).
		Unique().
		IfNotExists().
		Column("user_id", "channel").
		Where("status = ?", string(contractx.StatusActive)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create %s: %w", activeIndex, err)
	}
	return nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, userID string, channel contractx.Channel) (*contractx.Conversation, error) {
	conv, err := s.load(ctx, userID, channel)
	if errors.Is(err, ErrConversationNotFound) {
		return newConversation(userID, channel, s.now()), nil
	}
	return conv, err
}

func (s *PostgresStore) Append(ctx context.Context, conv *contractx.Conversation, msg contractx.Message) error {
	if err := checkConversation(conv); err != nil {
		return err
	}
	appendMessage(conv, msg, s.now())
	return s.save(ctx, conv)
}

func (s *PostgresStore) History(ctx context.Context, userID string, channel contractx.Channel, limit int) ([]contractx.Message, error) {
	conv, err := s.load(ctx, userID, channel)
	if errors.Is(err, ErrConversationNotFound) {
		return []contractx.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return tail(conv.Messages, limit), nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, userID string, channel contractx.Channel, patch map[string]any) error {
	conv, err := s.GetOrCreate(ctx, userID, channel)
	if err != nil {
		return err
	}
	conv.MergeProfile(patch)
	conv.UpdatedAt = s.now().UTC()
	return s.save(ctx, conv)
}

func (s *PostgresStore) load(ctx context.Context, userID string, channel contractx.Channel) (*contractx.Conversation, error) {
	if err := checkKey(userID, channel); err != nil {
		return nil, err
	}
	row := new(conversationRow)
	err := s.db.NewSelect().
		Model(row).
		Where("user_id = ?", userID).
		Where("channel = ?", string(channel)).
		Where("status = ?", string(contractx.StatusActive)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	return row.conversation(), nil
}

// save upserts an active conversation on its (user_id, channel) slot, so
// concurrent creators are last-write-wins; other rows upsert on id.
func (s *PostgresStore) save(ctx context.Context, conv *contractx.Conversation) error {
	if err := checkConversation(conv); err != nil {
		return err
	}
	conflict := "CONFLICT (id) DO UPDATE"
	if isActive(conv) {
		conflict = "CONFLICT (user_id, channel) WHERE status = 'active' DO UPDATE"
	}
	_, err := s.db.NewInsert().
		Model(rowFrom(conv)).
		On(conflict).
		Set("messages = EXCLUDED.messages").
		Set("user_profile = EXCLUDED.user_profile").
		Set("status = EXCLUDED.status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}
