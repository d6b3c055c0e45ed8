// Package common provides shared dependencies and rendering for command implementations.
package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/artifact"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/config"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/database"
	infralogger "github.com/jonesrussell/north-cloud/product-tagger/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/rules"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/telemetry"
)

// GlobalFlags holds the persistent root flags.
type GlobalFlags struct {
	ConfigPath string
	Debug      bool
}

// CommandDeps holds common dependencies for all commands.
// Use this instead of context.Value for type-safe dependency injection.
type CommandDeps struct {
	Config    *config.Config
	Logger    infralogger.Logger
	Telemetry *telemetry.Provider

	db *sqlx.DB
}

// NewCommandDeps loads and validates the configuration and builds the logger.
func NewCommandDeps(flags *GlobalFlags) (*CommandDeps, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.Debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := infralogger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &CommandDeps{
		Config:    cfg,
		Logger:    log.With(infralogger.String("service", cfg.Service.Name)),
		Telemetry: telemetry.NewProvider(),
	}, nil
}

// DB opens the configured database on first use and applies pending migrations.
func (d *CommandDeps) DB() (*sqlx.DB, error) {
	if d.db != nil {
		return d.db, nil
	}
	if err := database.RunMigrations(d.Config.Database, d.Logger); err != nil {
		return nil, err
	}
	db, err := database.Open(d.Config.Database)
	if err != nil {
		return nil, err
	}
	d.db = db
	return db, nil
}

// Store returns the configured artifact store.
func (d *CommandDeps) Store() (artifact.Store, error) {
	switch d.Config.Artifacts.Backend {
	case config.BackendDatabase:
		db, err := d.DB()
		if err != nil {
			return nil, err
		}
		return artifact.NewSQLStore(db), nil
	default:
		store, err := artifact.NewFSStore(d.Config.Artifacts.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to open artifact store: %w", err)
		}
		return store, nil
	}
}

// RuleSet loads the rules from the configured source.
func (d *CommandDeps) RuleSet(ctx context.Context) (rules.RuleSet, error) {
	var (
		rs  rules.RuleSet
		err error
	)
	switch d.Config.Rules.Source {
	case config.RulesFile:
		rs, err = rules.LoadFile(d.Config.Rules.Path)
	case config.RulesDatabase:
		db, dbErr := d.DB()
		if dbErr != nil {
			return rules.RuleSet{}, dbErr
		}
		rs, err = database.NewRulesRepository(db).List(ctx, true)
	default:
		rs = rules.Default()
	}
	if err != nil {
		return rules.RuleSet{}, err
	}
	if err = d.CheckRules(rs); err != nil {
		return rules.RuleSet{}, err
	}
	return rs, nil
}

// CheckRules rejects rules that target a taxonomy no configured graph serves.
func (d *CommandDeps) CheckRules(rs rules.RuleSet) error {
	graphs := d.Config.Graphs()
	names := make([]string, len(graphs))
	for i, g := range graphs {
		names[i] = g.Name
	}
	if err := rs.CheckTaxonomies(names); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}
	return nil
}

// RuleEngine compiles the configured rules.
func (d *CommandDeps) RuleEngine(ctx context.Context) (*rules.Engine, error) {
	rs, err := d.RuleSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return rules.NewEngine(rs, d.Logger, d.Telemetry)
}

// Close writes the metrics textfile, closes the database and flushes the logger.
func (d *CommandDeps) Close() error {
	var errs []error
	if err := d.Telemetry.WriteTextfile(d.Config.Metrics.TextfilePath); err != nil {
		errs = append(errs, err)
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	// stderr sync fails on terminals
	_ = d.Logger.Sync()
	return errors.Join(errs...)
}

// Run builds the dependencies, stores a command-scoped logger in the command context,
// calls fn and closes the dependencies.
func Run(cmd *cobra.Command, flags *GlobalFlags, fn func(*CommandDeps) error) (err error) {
	deps, err := NewCommandDeps(flags)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, deps.Close())
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := deps.Logger.With(infralogger.String("command", cmd.CommandPath()))
	cmd.SetContext(infralogger.WithContext(ctx, log))
	return fn(deps)
}
