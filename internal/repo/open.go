package repo

import (
	"context"
	"fmt"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

// Options — параметры открытия хранилища.
type Options struct {
	Driver    string
	DSN       string
	BadgerDir string

	// Migrate — применить миграции при открытии PostgreSQL.
	Migrate bool
}

// Open открывает хранилище выбранного драйвера.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverPostgres:
		pool, err := NewPool(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return NewPostgresStore(pool), nil

	case DriverBadger:
		return OpenBadger(opts.BadgerDir)

	case DriverMemory:
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
