package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/maintenance-service/internal/domain"
)

// IntegrationLogRepository stores the append-only record of Cedar sync
// attempts. Entries are never mutated or deleted by normal operation.
type IntegrationLogRepository interface {
	Append(ctx context.Context, entry *domain.IntegrationLogEntry) error
	ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.IntegrationLogEntry, error)
	Stats(ctx context.Context) (domain.SyncStatistics, error)
}

type integrationLogRepository struct {
	pool *pgxpool.Pool
}

// NewIntegrationLogRepository builds repository.
func NewIntegrationLogRepository(pool *pgxpool.Pool) IntegrationLogRepository {
	return &integrationLogRepository{pool: pool}
}

func (r *integrationLogRepository) Append(ctx context.Context, entry *domain.IntegrationLogEntry) error {
	const query = `
        INSERT INTO integration_log (ticket_id, action, external_wo_id, payload_fingerprint, result, error_detail)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.Action,
		entry.ExternalWOID,
		entry.PayloadFingerprint,
		entry.Result,
		entry.ErrorDetail,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *integrationLogRepository) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.IntegrationLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, ticket_id, action, external_wo_id, payload_fingerprint, result, error_detail, created_at
        FROM integration_log WHERE ticket_id=$1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.IntegrationLogEntry
	for rows.Next() {
		var entry domain.IntegrationLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Action,
			&entry.ExternalWOID,
			&entry.PayloadFingerprint,
			&entry.Result,
			&entry.ErrorDetail,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *integrationLogRepository) Stats(ctx context.Context) (domain.SyncStatistics, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE result='SUCCESS'),
               COUNT(*) FILTER (WHERE result='FAILURE')
        FROM integration_log`
	var stats domain.SyncStatistics
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.Total, &stats.Succeeded, &stats.Failed); err != nil {
		return domain.SyncStatistics{}, err
	}
	return stats, nil
}
