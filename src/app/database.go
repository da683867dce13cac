package app

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/heapdb/src/cfg"
	"github.com/Blackdeer1524/heapdb/src/db"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/pkg/utils"
)

// DatabaseEntrypoint opens the configured database and runs Action against
// it. The database is flushed when the action returns or the process is
// interrupted.
type DatabaseEntrypoint struct {
	ConfigPath string
	Action     func(ctx context.Context, d *db.Database) error

	// Fs defaults to the OS file system.
	Fs afero.Fs

	Cfg cfg.Config
	Log common.Logger

	db *db.Database
}

var _ Entrypoint = &DatabaseEntrypoint{}

func NewLogger(env cfg.Environment) common.Logger {
	if env == cfg.EnvDev {
		return utils.Must(zap.NewDevelopment()).Sugar()
	}
	return utils.Must(zap.NewProduction()).Sugar()
}

func (e *DatabaseEntrypoint) Init(_ context.Context) error {
	config, err := cfg.Load(e.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	e.Cfg = config

	if e.Log == nil {
		e.Log = NewLogger(e.Cfg.Environment)
	}
	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}

	e.db, err = db.Open(db.Options{
		DataDir:        e.Cfg.DataDir,
		PageSize:       e.Cfg.PageSize,
		PoolPages:      e.Cfg.BufferPoolPages,
		EvictionPolicy: e.Cfg.EvictionPolicy,
	}, e.Fs, e.Log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	return nil
}

func (e *DatabaseEntrypoint) Run(ctx context.Context) error {
	return e.Action(ctx, e.db)
}

func (e *DatabaseEntrypoint) Close() (err error) {
	if e.db != nil {
		err = e.db.Close()
	}

	if e.Log != nil {
		if err != nil {
			e.Log.Errorw("failed to close database", "error", err)
		}

		// Sync fails on stderr for some terminals
		_ = e.Log.Sync()
	}

	return
}
