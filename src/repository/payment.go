package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paygateway/src/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

type PaymentRepository interface {
	Insert(ctx context.Context, p *domain.Payment) error
	UpdateTerminal(ctx context.Context, p *domain.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Payment, error)
	ExistsByCorrelationID(ctx context.Context, correlationID uuid.UUID) (bool, error)
	QuerySummary(ctx context.Context, from, to time.Time) (domain.PaymentSummary, error)
	Purge(ctx context.Context) error
}

func NewPostgresPaymentRepository(db *sql.DB) PaymentRepository {
	return &postgresPaymentRepository{db: db}
}

type postgresPaymentRepository struct {
	db *sql.DB
}

func (r *postgresPaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (id, correlation_id, amount, status, requested_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.CorrelationID, p.Amount, p.Status, p.RequestedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
			return domain.ErrDuplicateCorrelationID
		}
		return infra("insert payment", err)
	}
	return nil
}

// UpdateTerminal records the single pending-to-terminal transition.
// A terminal row is never touched again.
func (r *postgresPaymentRepository) UpdateTerminal(ctx context.Context, p *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, processed_at = $2, processor = $3
		WHERE id = $4 AND status = $5
	`
	res, err := r.db.ExecContext(ctx, query, p.Status, p.ProcessedAt, nullableProcessor(p.Processor), p.ID, domain.StatusPending)
	if err != nil {
		return infra("update payment", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return infra("update payment rows affected", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *postgresPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *postgresPaymentRepository) FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Payment, error) {
	return r.findOne(ctx, "correlation_id = $1", correlationID)
}

func (r *postgresPaymentRepository) findOne(ctx context.Context, where string, arg any) (*domain.Payment, error) {
	query := `
		SELECT id, correlation_id, amount, status, requested_at, processed_at, processor
		FROM payments
		WHERE ` + where
	p := &domain.Payment{}
	var processedAt sql.NullTime
	var processor sql.NullString
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.CorrelationID, &p.Amount, &p.Status, &p.RequestedAt, &processedAt, &processor,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, infra("find payment", err)
	}
	if processedAt.Valid {
		t := processedAt.Time
		p.ProcessedAt = &t
	}
	if processor.Valid {
		p.Processor = domain.ProcessorName(processor.String)
	}
	return p, nil
}

func (r *postgresPaymentRepository) ExistsByCorrelationID(ctx context.Context, correlationID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM payments WHERE correlation_id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, correlationID).Scan(&exists); err != nil {
		return false, infra("exists by correlation id", err)
	}
	return exists, nil
}

// QuerySummary aggregates succeeded payments by processor over the window.
// Processors with no matching rows report zero values.
func (r *postgresPaymentRepository) QuerySummary(ctx context.Context, from, to time.Time) (domain.PaymentSummary, error) {
	query := `
		SELECT processor, COUNT(*), COALESCE(SUM(amount), 0)
		FROM payments
		WHERE status = $1
		  AND processed_at >= $2
		  AND processed_at <= $3
		GROUP BY processor
	`
	rows, err := r.db.QueryContext(ctx, query, domain.StatusSucceeded, from, to)
	if err != nil {
		return domain.PaymentSummary{}, infra("query summary", err)
	}
	defer rows.Close()

	var summary domain.PaymentSummary
	for rows.Next() {
		var processor sql.NullString
		var item domain.SummaryItem
		if err := rows.Scan(&processor, &item.TotalRequests, &item.TotalAmount); err != nil {
			return domain.PaymentSummary{}, infra("scan summary row", err)
		}
		switch domain.ProcessorName(processor.String) {
		case domain.ProcessorDefault:
			summary.Default = item
		case domain.ProcessorFallback:
			summary.Fallback = item
		}
	}
	if err := rows.Err(); err != nil {
		return domain.PaymentSummary{}, infra("iterate summary rows", err)
	}
	return summary, nil
}

func (r *postgresPaymentRepository) Purge(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM payments`); err != nil {
		return infra("purge payments", err)
	}
	return nil
}

func nullableProcessor(name domain.ProcessorName) sql.NullString {
	if name == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(name), Valid: true}
}

func infra(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrInfrastructure, err)
}
