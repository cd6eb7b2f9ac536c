package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Flowstack/internal/domain"
)

// FlowRepo — репозиторий определений flow в PostgreSQL.
type FlowRepo struct {
	pool *pgxpool.Pool
}

// NewFlowRepo создаёт новый FlowRepo.
func NewFlowRepo(pool *pgxpool.Pool) *FlowRepo {
	return &FlowRepo{pool: pool}
}

const flowColumns = `id, name, description, definition, cron_expr, enabled, deleted, created_at, updated_at`

// CreateFlow создаёт flow и заполняет ID и метки времени.
func (r *FlowRepo) CreateFlow(ctx context.Context, flow *domain.FlowRecord) error {
	defJSON, err := encodeJSON(flow.Definition)
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}

	query := `
		INSERT INTO flows (name, description, definition, cron_expr, enabled, deleted)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING id, created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		flow.Name,
		flow.Description,
		defJSON,
		flow.CronExpr,
		flow.Enabled,
	).Scan(&flow.ID, &flow.CreatedAt, &flow.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("flow %q: %w", flow.Name, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert flow: %w", err)
	}
	flow.Deleted = false
	return nil
}

// GetFlow возвращает flow по ID (включая удалённые).
func (r *FlowRepo) GetFlow(ctx context.Context, id int64) (*domain.FlowRecord, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE id = $1`
	return r.scanFlow(r.pool.QueryRow(ctx, query, id))
}

// GetFlowByName возвращает неудалённый flow по имени.
func (r *FlowRepo) GetFlowByName(ctx context.Context, name string) (*domain.FlowRecord, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE name = $1 AND NOT deleted`
	return r.scanFlow(r.pool.QueryRow(ctx, query, name))
}

// ListFlows возвращает flows по фильтру, упорядоченные по ID.
func (r *FlowRepo) ListFlows(ctx context.Context, filter FlowFilter) ([]domain.FlowRecord, error) {
	query := `
		SELECT ` + flowColumns + `
		FROM flows
		WHERE ($1 OR NOT deleted) AND (NOT $2 OR enabled)
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, filter.IncludeDeleted, filter.EnabledOnly)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var flows []domain.FlowRecord
	for rows.Next() {
		flow, err := r.scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, *flow)
	}
	return flows, rows.Err()
}

// UpdateFlow обновляет flow.
func (r *FlowRepo) UpdateFlow(ctx context.Context, flow *domain.FlowRecord) error {
	defJSON, err := encodeJSON(flow.Definition)
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}

	query := `
		UPDATE flows
		SET name = $2, description = $3, definition = $4, cron_expr = $5,
		    enabled = $6, deleted = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		flow.ID,
		flow.Name,
		flow.Description,
		defJSON,
		flow.CronExpr,
		flow.Enabled,
		flow.Deleted,
	).Scan(&flow.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("flow %q: %w", flow.Name, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("update flow: %w", err)
	}
	return nil
}

// SoftDeleteFlow помечает flow удалённым и выключает расписание.
func (r *FlowRepo) SoftDeleteFlow(ctx context.Context, id int64) error {
	query := `UPDATE flows SET deleted = TRUE, enabled = FALSE, updated_at = NOW() WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanFlow сканирует строку в FlowRecord.
func (r *FlowRepo) scanFlow(row pgx.Row) (*domain.FlowRecord, error) {
	var (
		flow    domain.FlowRecord
		defJSON []byte
	)
	err := row.Scan(
		&flow.ID,
		&flow.Name,
		&flow.Description,
		&defJSON,
		&flow.CronExpr,
		&flow.Enabled,
		&flow.Deleted,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow: %w", err)
	}
	if err := decodeJSON(defJSON, &flow.Definition); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return &flow, nil
}
