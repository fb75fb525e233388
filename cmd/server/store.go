package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forgo/canvas/internal/config"
	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/handler"
	"github.com/forgo/canvas/internal/repository"
	"github.com/forgo/canvas/internal/repository/postgres"
	"github.com/forgo/canvas/internal/service"
)

// backend is the persistence selected by DB_DRIVER
type backend struct {
	Users      service.UserRepository
	Settlement service.SettlementStore
	Pinger     handler.Pinger
	close      func()
}

func (b *backend) Close() {
	if b.close != nil {
		b.close()
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (*backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:      cfg.PostgresDSN,
			MaxConns: int32(cfg.MaxConns),
		})
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}

		slog.Info("connected to postgres", slog.Int("max_conns", cfg.MaxConns))

		return &backend{
			Users:      postgres.NewUserRepository(pool),
			Settlement: postgres.NewSettlementStore(pool),
			Pinger:     pool,
			close:      pool.Close,
		}, nil

	case config.DriverSurrealDB, "":
		db := database.NewSurrealDB(database.Config{
			Host:      cfg.Host,
			Port:      cfg.Port,
			User:      cfg.User,
			Password:  cfg.Password,
			Namespace: cfg.Namespace,
			Database:  cfg.Database,
		})
		if err := db.Connect(ctx); err != nil {
			return nil, err
		}

		slog.Info("connected to surrealdb",
			slog.String("host", cfg.Host),
			slog.String("database", cfg.Database),
		)

		return &backend{
			Users:      repository.NewUserRepository(db),
			Settlement: repository.NewSettlementStore(db),
			Pinger:     db,
			close:      func() { _ = db.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}
}
