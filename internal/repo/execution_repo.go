package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Flowstack/internal/domain"
)

// ExecutionRepo — репозиторий истории выполнений в PostgreSQL.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const flowExecColumns = `id, execution_uuid, flow_id, status, context, error, started_at, finished_at`

const nodeExecColumns = `id, execution_uuid, flow_id, flow_execution_id, node_id, node_name, status,
	input, output, log, started_at, finished_at`

// --- FlowExecution ---

// CreateFlowExecution вставляет запись о выполнении flow.
func (r *ExecutionRepo) CreateFlowExecution(ctx context.Context, exec *domain.FlowExecution) error {
	ctxJSON, err := encodeJSON(exec.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	query := `
		INSERT INTO flow_executions (execution_uuid, flow_id, status, context, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = r.pool.QueryRow(ctx, query,
		exec.ExecutionUUID,
		exec.FlowID,
		string(exec.Status),
		ctxJSON,
		exec.Error,
		exec.StartedAt,
		exec.FinishedAt,
	).Scan(&exec.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("flow execution %s: %w", exec.ExecutionUUID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert flow execution: %w", err)
	}
	return nil
}

// GetFlowExecution возвращает выполнение flow по UUID.
func (r *ExecutionRepo) GetFlowExecution(ctx context.Context, executionUUID uuid.UUID) (*domain.FlowExecution, error) {
	query := `SELECT ` + flowExecColumns + ` FROM flow_executions WHERE execution_uuid = $1`
	return scanFlowExecution(r.pool.QueryRow(ctx, query, executionUUID))
}

// UpdateFlowExecution обновляет статус, контекст, ошибку и время завершения.
func (r *ExecutionRepo) UpdateFlowExecution(ctx context.Context, exec *domain.FlowExecution) error {
	ctxJSON, err := encodeJSON(exec.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	query := `
		UPDATE flow_executions
		SET status = $2, context = $3, error = $4, finished_at = $5
		WHERE execution_uuid = $1
	`
	result, err := r.pool.Exec(ctx, query,
		exec.ExecutionUUID,
		string(exec.Status),
		ctxJSON,
		exec.Error,
		exec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update flow execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestFlowExecution возвращает последнее выполнение flow.
func (r *ExecutionRepo) LatestFlowExecution(ctx context.Context, flowID int64) (*domain.FlowExecution, error) {
	query := `
		SELECT ` + flowExecColumns + `
		FROM flow_executions
		WHERE flow_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`
	return scanFlowExecution(r.pool.QueryRow(ctx, query, flowID))
}

// ListFlowExecutions возвращает выполнения flow, новые первыми.
func (r *ExecutionRepo) ListFlowExecutions(ctx context.Context, flowID int64, limit int) ([]domain.FlowExecution, error) {
	query := `
		SELECT ` + flowExecColumns + `
		FROM flow_executions
		WHERE flow_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, flowID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list flow executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.FlowExecution
	for rows.Next() {
		exec, err := scanFlowExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

// --- NodeExecution ---

// CreateNodeExecution вставляет запись о выполнении node.
func (r *ExecutionRepo) CreateNodeExecution(ctx context.Context, exec *domain.NodeExecution) error {
	inputJSON, err := encodeJSON(exec.Input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	outputJSON, err := encodeJSON(exec.Output)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	query := `
		INSERT INTO node_executions (execution_uuid, flow_id, flow_execution_id, node_id, node_name,
		                             status, input, output, log, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err = r.pool.QueryRow(ctx, query,
		exec.ExecutionUUID,
		exec.FlowID,
		exec.FlowExecutionID,
		exec.NodeID,
		exec.NodeName,
		string(exec.Status),
		inputJSON,
		outputJSON,
		exec.Log,
		exec.StartedAt,
		exec.FinishedAt,
	).Scan(&exec.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("node execution %s: %w", exec.ExecutionUUID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert node execution: %w", err)
	}
	return nil
}

// GetNodeExecution возвращает выполнение node по UUID.
func (r *ExecutionRepo) GetNodeExecution(ctx context.Context, executionUUID uuid.UUID) (*domain.NodeExecution, error) {
	query := `SELECT ` + nodeExecColumns + ` FROM node_executions WHERE execution_uuid = $1`
	return scanNodeExecution(r.pool.QueryRow(ctx, query, executionUUID))
}

// UpdateNodeExecution обновляет статус, выходы, лог и время завершения.
func (r *ExecutionRepo) UpdateNodeExecution(ctx context.Context, exec *domain.NodeExecution) error {
	outputJSON, err := encodeJSON(exec.Output)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	query := `
		UPDATE node_executions
		SET status = $2, output = $3, log = $4, finished_at = $5
		WHERE execution_uuid = $1
	`
	result, err := r.pool.Exec(ctx, query,
		exec.ExecutionUUID,
		string(exec.Status),
		outputJSON,
		exec.Log,
		exec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update node execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNodeExecutions возвращает выполнения node одного выполнения flow в порядке вставки.
func (r *ExecutionRepo) ListNodeExecutions(ctx context.Context, flowExecutionID int64) ([]domain.NodeExecution, error) {
	query := `
		SELECT ` + nodeExecColumns + `
		FROM node_executions
		WHERE flow_execution_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, flowExecutionID)
	if err != nil {
		return nil, fmt.Errorf("list node executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.NodeExecution
	for rows.Next() {
		exec, err := scanNodeExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

func scanFlowExecution(row pgx.Row) (*domain.FlowExecution, error) {
	var (
		exec    domain.FlowExecution
		status  string
		ctxJSON []byte
	)
	err := row.Scan(
		&exec.ID,
		&exec.ExecutionUUID,
		&exec.FlowID,
		&status,
		&ctxJSON,
		&exec.Error,
		&exec.StartedAt,
		&exec.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow execution: %w", err)
	}
	exec.Status = domain.ParseExecStatus(status)
	if err := decodeJSON(ctxJSON, &exec.Context); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return &exec, nil
}

func scanNodeExecution(row pgx.Row) (*domain.NodeExecution, error) {
	var (
		exec       domain.NodeExecution
		status     string
		inputJSON  []byte
		outputJSON []byte
	)
	err := row.Scan(
		&exec.ID,
		&exec.ExecutionUUID,
		&exec.FlowID,
		&exec.FlowExecutionID,
		&exec.NodeID,
		&exec.NodeName,
		&status,
		&inputJSON,
		&outputJSON,
		&exec.Log,
		&exec.StartedAt,
		&exec.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan node execution: %w", err)
	}
	exec.Status = domain.ParseExecStatus(status)
	if err := decodeJSON(inputJSON, &exec.Input); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if err := decodeJSON(outputJSON, &exec.Output); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	return &exec, nil
}
