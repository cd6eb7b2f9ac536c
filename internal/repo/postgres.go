package repo

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore — Store поверх PostgreSQL.
type PostgresStore struct {
	*FlowRepo
	*ExecutionRepo

	pool *pgxpool.Pool
}

// NewPostgresStore создаёт Store поверх пула соединений.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		FlowRepo:      NewFlowRepo(pool),
		ExecutionRepo: NewExecutionRepo(pool),
		pool:          pool,
	}
}

// Close закрывает пул соединений.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
