package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/heimdex/heimdex-render/internal/config"
	"github.com/heimdex/heimdex-render/internal/db"
	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/melt"
	"github.com/heimdex/heimdex-render/internal/process"
	"github.com/heimdex/heimdex-render/internal/project"
	"github.com/heimdex/heimdex-render/internal/render"
	"github.com/heimdex/heimdex-render/internal/renders"
	"github.com/heimdex/heimdex-render/internal/session"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error

	dbOnce   sync.Once
	database *db.DB
	dbErr    error

	logOutput io.Writer

	// Replaced in tests.
	shell    func(ctx context.Context, cmdline string) ([]byte, error)
	launcher process.Launcher
	lister   process.Lister
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		logOutput:  os.Stderr,
	}
}

func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			path = os.Getenv(config.EnvConfigFile)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *slog.Logger {
	level := config.DefaultLogLevel
	if c.config != nil {
		level = c.config.LogLevel()
	}
	return logging.NewLoggerTo(c.logOutput, level)
}

func (c *commandContext) journal() logging.Journal {
	m := c.config.Melt()
	return logging.NewFileSink(m.TmpDir, m.MaxLogSize, m.DateFormat)
}

func (c *commandContext) builder() *melt.Builder {
	b := melt.NewBuilder(c.config.Melt(), c.logger()).SetJournal(c.journal())
	if c.shell != nil {
		b.SetShell(c.shell)
	}
	return b
}

func (c *commandContext) db() (*db.DB, error) {
	c.dbOnce.Do(func() {
		if err := os.MkdirAll(c.config.DataDir(), 0o755); err != nil {
			c.dbErr = fmt.Errorf("create data dir: %w", err)
			return
		}
		c.database, c.dbErr = db.New(c.config.DBPath(), c.logger())
	})
	return c.database, c.dbErr
}

func (c *commandContext) close() error {
	if c.database == nil {
		return nil
	}
	err := c.database.Close()
	c.database = nil
	return err
}

// tracker polls renders, resolving implicit handles from the local session
// slot shared with earlier `meltctl render` invocations.
func (c *commandContext) tracker() (*render.Tracker, error) {
	database, err := c.db()
	if err != nil {
		return nil, err
	}
	lister := c.lister
	if lister == nil {
		lister = process.NewPSLister()
	}
	t := render.NewTracker(c.config.Melt(), lister, session.NewSQLiteStore(database.Conn()), c.logger())
	t.SetSettleDelay(c.config.SettleDelay())
	t.SetJournal(c.journal())
	return t, nil
}

func (c *commandContext) renderService() (*renders.Service, error) {
	database, err := c.db()
	if err != nil {
		return nil, err
	}
	t, err := c.tracker()
	if err != nil {
		return nil, err
	}
	return renders.NewService(renders.NewRepository(database.Conn()), t, c.logger()), nil
}

func (c *commandContext) runner(b *melt.Builder) (*render.Runner, error) {
	database, err := c.db()
	if err != nil {
		return nil, err
	}
	launcher := c.launcher
	if launcher == nil {
		launcher = process.NewDetachedLauncher(c.logger())
	}
	return render.NewRunner(b, launcher, session.NewSQLiteStore(database.Conn()), c.logger()), nil
}

// loadProject decodes the project file and applies it to a new builder.
// Non-fatal problems are written to errOut.
func (c *commandContext) loadProject(path string, errOut io.Writer) (*project.Document, *melt.Builder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open project: %w", err)
	}
	defer f.Close()

	doc, err := project.Decode(f)
	if err != nil {
		return nil, nil, err
	}
	b := c.builder()
	warnings, err := doc.Apply(b)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		fmt.Fprintf(errOut, "warning: %s\n", w)
	}
	return doc, b, nil
}
