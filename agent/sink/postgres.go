package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	"github.com/uptrace/bun"
)

type errorLog struct {
	bun.BaseModel `bun:"table:error_logs,alias:el"`

	ID                 int64     `bun:"id,pk,autoincrement"`
	ErrorCode          int       `bun:"error_code,notnull"`
	UserFacingMessage  string    `bun:"user_facing_message,notnull"`
	InternalDiagnostic string    `bun:"internal_diagnostic"`
	UserID             string    `bun:"user_id"`
	Channel            string    `bun:"channel"`
	RequestID          string    `bun:"request_id"`
	OriginalUserText   string    `bun:"original_user_text"`
	Resolved           bool      `bun:"resolved,notnull,default:false"`
	CreatedAt          time.Time `bun:"created_at,notnull"`
}

// PostgresWriter appends records to the error_logs table.
type PostgresWriter struct {
	db bun.IDB
}

func NewPostgresWriter(db bun.IDB) (*PostgresWriter, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &PostgresWriter{db: db}, nil
}

// Migrate creates error_logs and its timestamp index when missing.
func (p *PostgresWriter) Migrate(ctx context.Context) error {
	if _, err := p.db.NewCreateTable().Model((*errorLog)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create error_logs: %w", err)
	}
	if _, err := p.db.NewCreateIndex().
		Model((*errorLog)(nil)).
		Index("error_logs_created_at_idx").
		Column("created_at").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create error_logs index: %w", err)
	}
	return nil
}

func (p *PostgresWriter) Write(ctx context.Context, rec contractx.ErrorRecord) error {
	row := &errorLog{
		ErrorCode:          rec.ErrorCode,
		UserFacingMessage:  rec.UserFacingMessage,
		InternalDiagnostic: rec.InternalDiagnostic,
		UserID:             rec.UserID,
		Channel:            string(rec.Channel),
		RequestID:          rec.RequestID,
		OriginalUserText:   rec.OriginalUserText,
		Resolved:           rec.Resolved,
		CreatedAt:          rec.Timestamp.UTC(),
	}
	if _, err := p.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert error log: %w", err)
	}
	return nil
}

func (p *PostgresWriter) CountUnresolvedSince(ctx context.Context, since time.Time) (int, error) {
	n, err := p.db.NewSelect().
		Model((*errorLog)(nil)).
		Where("resolved = ?", false).
		Where("created_at >= ?", since.UTC()).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count unresolved errors: %w", err)
	}
	return n, nil
}
