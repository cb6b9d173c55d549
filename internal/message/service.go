package message

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdeskhq/zapdesk/internal/db"
)

// Store persists chat messages in Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a message store.
func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "message")),
	}
}

const recordColumns = `id, session_id, channel_id, sender_type, message_type, content, media_mime, caption, remote_id, sent_at, created_at`

// Insert persists a message record and returns it with generated fields.
func (s *Store) Insert(ctx context.Context, record Record) (Record, error) {
	pgChannelID, err := db.ParseUUID(record.ChannelID)
	if err != nil {
		return Record{}, fmt.Errorf("invalid channel id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (session_id, channel_id, sender_type, message_type, content, media_mime, caption, remote_id, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+recordColumns,
		record.SessionID, pgChannelID, record.SenderType, record.MessageType,
		record.Content, record.MediaMime, record.Caption, record.RemoteID, record.SentAt,
	)
	created, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("insert message: %w", err)
	}
	return created, nil
}

// QueryBySession returns the session's messages in insertion order.
func (s *Store) QueryBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM messages WHERE session_id = $1 ORDER BY created_at`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, record)
	}
	return items, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var record Record
	if err := row.Scan(
		&record.ID, &record.SessionID, &record.ChannelID,
		&record.SenderType, &record.MessageType, &record.Content,
		&record.MediaMime, &record.Caption, &record.RemoteID,
		&record.SentAt, &record.CreatedAt,
	); err != nil {
		return Record{}, err
	}
	return record, nil
}
