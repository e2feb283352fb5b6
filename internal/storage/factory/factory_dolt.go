package factory

import (
	"context"

	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/storage/dolt"
)

func init() {
	RegisterBackend(config.BackendDolt, func(ctx context.Context, cfg config.Storage) (storage.Backend, error) {
		return dolt.Open(ctx, &dolt.Config{
			Database: cfg.Dolt.Database,
			Host:     cfg.Dolt.Host,
			Port:     cfg.Dolt.Port,
			User:     cfg.Dolt.User,
			Password: cfg.Dolt.Password,
			Embedded: cfg.Dolt.Embedded,
			DataDir:  cfg.Dolt.DataDir,
		})
	})
}
