package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/valkey-io/valkey-go"

	"github.com/rkm/fieldsat/internal/config"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (ObservationStore, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite observation store", "path", cfg.SQLitePath)
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres observation store")
		return s, nil
	case "mongo":
		s, err := NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, err
		}
		logger.Info("using mongo observation store", "database", cfg.MongoDatabase, "collection", cfg.MongoCollection)
		return s, nil
	case "valkey":
		client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{cfg.ValkeyAddr}})
		if err != nil {
			return nil, fmt.Errorf("error connecting to valkey: %w", err)
		}
		s := NewValkeyStore(client, cfg.ValkeyPrefix)
		if err := s.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("error while pinging valkey: %w", err)
		}
		logger.Info("using valkey observation store", "addr", cfg.ValkeyAddr)
		return s, nil
	case "", "memory":
		logger.Info("using in-memory observation store")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
