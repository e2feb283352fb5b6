package factory

import (
	"context"

	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/storage/sharded"
)

func init() {
	RegisterBackend(config.BackendSharded, func(ctx context.Context, cfg config.Storage) (storage.Backend, error) {
		return sharded.Open(ctx, cfg.Path, cfg.Shards)
	})
}
