package instance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdeskhq/zapdesk/internal/db"
)

// Store persists channel-instance mappings in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const mappingColumns = `id, channel_id, channel_name, instance_id, instance_name, base_url, api_key, is_active, created_at, updated_at`

// GetActiveMapping returns the single active mapping for the channel.
func (s *Store) GetActiveMapping(ctx context.Context, channelID string) (Mapping, bool, error) {
	pgChannelID, err := db.ParseUUID(channelID)
	if err != nil {
		return Mapping{}, false, fmt.Errorf("invalid channel id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM channel_instances WHERE channel_id = $1 AND is_active`,
		pgChannelID,
	)
	mapping, err := scanMapping(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Mapping{}, false, nil
		}
		return Mapping{}, false, err
	}
	return mapping, true, nil
}

// CreateMapping deactivates any existing active mapping for the channel and
// inserts the new one as active, in a single transaction so no window exists
// with zero or two active mappings.
func (s *Store) CreateMapping(ctx context.Context, mapping Mapping) (Mapping, error) {
	pgChannelID, err := db.ParseUUID(mapping.ChannelID)
	if err != nil {
		return Mapping{}, fmt.Errorf("invalid channel id: %w", err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Mapping{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE channel_instances SET is_active = FALSE, updated_at = now() WHERE channel_id = $1 AND is_active`,
		pgChannelID,
	); err != nil {
		return Mapping{}, fmt.Errorf("deactivate previous mappings: %w", err)
	}
	row := tx.QueryRow(ctx,
		`INSERT INTO channel_instances (channel_id, channel_name, instance_id, instance_name, base_url, api_key, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		 RETURNING `+mappingColumns,
		pgChannelID, mapping.ChannelName, mapping.InstanceID, mapping.InstanceName, mapping.BaseURL, mapping.APIKey,
	)
	created, err := scanMapping(row)
	if err != nil {
		return Mapping{}, fmt.Errorf("insert mapping: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Mapping{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// DeactivateMapping marks the channel's active mapping inactive.
func (s *Store) DeactivateMapping(ctx context.Context, channelID string) error {
	pgChannelID, err := db.ParseUUID(channelID)
	if err != nil {
		return fmt.Errorf("invalid channel id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE channel_instances SET is_active = FALSE, updated_at = now() WHERE channel_id = $1 AND is_active`,
		pgChannelID,
	)
	return err
}

// ListActiveMappings returns all active mappings, used to restore realtime
// connections at startup.
func (s *Store) ListActiveMappings(ctx context.Context) ([]Mapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+mappingColumns+` FROM channel_instances WHERE is_active ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Mapping, 0)
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, mapping)
	}
	return items, rows.Err()
}

func scanMapping(row pgx.Row) (Mapping, error) {
	var mapping Mapping
	if err := row.Scan(
		&mapping.ID, &mapping.ChannelID,
		&mapping.ChannelName, &mapping.InstanceID, &mapping.InstanceName,
		&mapping.BaseURL, &mapping.APIKey, &mapping.IsActive,
		&mapping.CreatedAt, &mapping.UpdatedAt,
	); err != nil {
		return Mapping{}, err
	}
	return mapping, nil
}
