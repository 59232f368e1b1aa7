package store

import (
	"fmt"
	"log/slog"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/types"
)

// Stats counts store operations since creation.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Removes int64 `json:"removes"`
	Bytes   int64 `json:"bytes,omitempty"`
}

// New builds the blob store selected by cfg.Cache.Storage.
func New(cfg *config.Config, logger *slog.Logger) (types.BlobStore, error) {
	switch cfg.Cache.Storage {
	case config.StorageMemory, "":
		return NewMemoryStore(cfg.Memory, logger)
	case config.StorageRedis:
		return NewRedisStore(cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Cache.Storage)
	}
}
