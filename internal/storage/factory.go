// Package storage selects and constructs the persistence backend.
package storage

import (
	"fmt"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/storage/badger"
	"github.com/aiveilix/aiveilix/internal/storage/memory"
	"github.com/aiveilix/aiveilix/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendBadger  = "badger"
	BackendSurreal = "surrealdb"
	BackendMemory  = "memory"
)

// NewManager creates a storage manager based on the configuration.
// Supported backends: "badger" (default, embedded), "surrealdb" and
// "memory" (non-persistent, for development).
func NewManager(logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	backend := config.Storage.Backend
	if backend == "" {
		backend = BackendBadger
	}

	switch backend {
	case BackendBadger:
		return badger.NewManager(logger, config.Storage.Path)

	case BackendSurreal:
		return surrealdb.NewManager(logger, config)

	case BackendMemory:
		logger.Warn().Msg("Using non-persistent in-memory storage")
		return memory.NewManager(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: badger, surrealdb, memory)", backend)
	}
}
