package providers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/listenupapp/library-server/internal/config"
	"github.com/listenupapp/library-server/internal/logger"
	"github.com/listenupapp/library-server/internal/store"
	badgerstore "github.com/listenupapp/library-server/internal/store/badger"
	"github.com/listenupapp/library-server/internal/store/sqlite"
)

// SQLiteFile is the database file name under the data path.
const SQLiteFile = "library.db"

// BadgerDir is the Badger directory name under the data path.
const BadgerDir = "badger"

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the store selected by the configured driver.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	st, path, err := OpenStore(cfg.Store, log)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "driver", cfg.Store.Driver, "path", path)

	return &StoreHandle{Store: st}, nil
}

// OpenStore opens the configured store, creating the data directory when
// needed. Shared with the seed command.
func OpenStore(cfg config.StoreConfig, log *logger.Logger) (store.Store, string, error) {
	if err := os.MkdirAll(cfg.DataPath, 0o700); err != nil {
		return nil, "", fmt.Errorf("create data directory: %w", err)
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		path := filepath.Join(cfg.DataPath, SQLiteFile)
		st, err := sqlite.Open(path, log.Logger)
		if err != nil {
			return nil, "", err
		}
		return st, path, nil
	case config.DriverBadger:
		path := filepath.Join(cfg.DataPath, BadgerDir)
		st, err := badgerstore.New(path, log.Logger, badgerstore.Options{})
		if err != nil {
			return nil, "", err
		}
		return st, path, nil
	default:
		return nil, "", fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
