package actions

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/thleqel/llm-test-platform/internal/clickhouse"
	"github.com/thleqel/llm-test-platform/internal/config"
	"github.com/thleqel/llm-test-platform/internal/store"
	"github.com/thleqel/llm-test-platform/internal/store/filestore"
	"github.com/thleqel/llm-test-platform/internal/store/sqlitestore"
)

// OpenStore returns the result store selected by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.AppConfig, log logrus.FieldLogger) (store.Store, error) {
	log.WithField("backend", cfg.StoreBackend).Debug("opening result store")

	var (
		s   store.Store
		err error
	)

	// Each case assigns through a concrete variable so a failed open never
	// yields a non-nil interface holding a nil pointer.
	switch cfg.StoreBackend {
	case store.BackendFile, "":
		var fs *filestore.Store
		fs, err = filestore.New(cfg.ResultsDir, log)
		if err == nil {
			s = fs
		}
	case store.BackendSQLite:
		var ss *sqlitestore.Store
		ss, err = sqlitestore.New(cfg.SQLitePath, log)
		if err == nil {
			s = ss
		}
	case store.BackendClickHouse:
		var cs *clickhouse.Store
		cs, err = clickhouse.Open(ctx, cfg, log)
		if err == nil {
			s = cs
		}
	default:
		err = fmt.Errorf("%w: %s", store.ErrUnknownBackend, cfg.StoreBackend)
	}

	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.StoreBackend, err)
	}

	return s, nil
}
