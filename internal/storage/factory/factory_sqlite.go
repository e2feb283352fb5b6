package factory

import (
	"context"

	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/storage/sqlite"
)

func init() {
	RegisterBackend(config.BackendSQLite, func(ctx context.Context, cfg config.Storage) (storage.Backend, error) {
		return sqlite.Open(ctx, cfg.Path)
	})
}
