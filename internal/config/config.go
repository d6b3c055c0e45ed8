// Package config holds the tagger configuration.
package config

import (
	"errors"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/cascade"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/database"
	infraconfig "github.com/jonesrussell/north-cloud/product-tagger/internal/infra/config"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/output"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/stage"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
)

// Artifact backends.
const (
	BackendFilesystem = "filesystem"
	BackendDatabase   = "database"
)

// Rule sources.
const (
	RulesEmbedded = "embedded"
	RulesFile     = "file"
	RulesDatabase = "database"
)

// Default configuration values.
const (
	defaultServiceName       = "product-tagger"
	defaultServiceVersion    = "1.0.0"
	defaultWorkers           = cascade.DefaultWorkers
	defaultLevelDepth        = 3
	defaultSmoothing         = 1.0
	defaultArtifactLocation  = "model_artifacts"
	defaultDBDriver          = database.DriverSQLite
	defaultDBPath            = "tagger.db"
	defaultDBHost            = "localhost"
	defaultDBPort            = "5432"
	defaultDBUser            = "postgres"
	defaultDBName            = "product_tagger"
	defaultDBSSLMode         = "disable"
	defaultESURL             = "http://localhost:9200"
	defaultESIndex           = "tagged_products"
	defaultRequestsPerSecond = 5.0
)

// Config holds all configuration for the tagger.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Logging       logger.Config       `yaml:"logging"`
	Training      TrainingConfig      `yaml:"training"`
	Artifacts     ArtifactsConfig     `yaml:"artifacts"`
	Database      database.Config     `yaml:"database"`
	Rules         RulesConfig         `yaml:"rules"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// Workers bounds prediction concurrency within one taxonomy.
	Workers int `env:"TAGGER_WORKERS" yaml:"workers"`
}

// TrainingConfig holds cascade training settings.
type TrainingConfig struct {
	MinimumClassSupport int     `env:"TAGGER_MIN_CLASS_SUPPORT" yaml:"minimum_class_support"`
	LevelSeparator      string  `yaml:"level_separator"`
	Depth               int     `yaml:"depth"`
	Smoothing           float64 `yaml:"smoothing"`
	BalancedPriors      *bool   `yaml:"balanced_priors"`
	PriceBins           int     `yaml:"price_bins"`
}

// ArtifactsConfig selects where stage artifacts and manifests are stored.
type ArtifactsConfig struct {
	Location string `env:"TAGGER_ARTIFACT_STORE"   yaml:"location"`
	Backend  string `env:"TAGGER_ARTIFACT_BACKEND" yaml:"backend"`
}

// RulesConfig selects the rule set source.
type RulesConfig struct {
	Source string `env:"TAGGER_RULES_SOURCE" yaml:"source"`
	Path   string `env:"TAGGER_RULES_PATH"   yaml:"path"`
}

// ElasticsearchConfig holds the search sink settings.
type ElasticsearchConfig struct {
	URL               string  `env:"ELASTICSEARCH_URL"   yaml:"url"`
	Index             string  `env:"ELASTICSEARCH_INDEX" yaml:"index"`
	BulkSize          int     `yaml:"bulk_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// MetricsConfig holds the metrics textfile location. Empty disables the dump.
type MetricsConfig struct {
	TextfilePath string `env:"TAGGER_METRICS_TEXTFILE" yaml:"textfile_path"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	cfg.Logging.SetDefaults()
	setTrainingDefaults(&cfg.Training)
	setArtifactDefaults(&cfg.Artifacts)
	setDatabaseDefaults(&cfg.Database)
	if cfg.Rules.Source == "" {
		cfg.Rules.Source = RulesEmbedded
	}
	setElasticsearchDefaults(&cfg.Elasticsearch)
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Workers == 0 {
		s.Workers = defaultWorkers
	}
}

func setTrainingDefaults(t *TrainingConfig) {
	if t.MinimumClassSupport == 0 {
		t.MinimumClassSupport = stage.DefaultMinSupport
	}
	if t.LevelSeparator == "" {
		t.LevelSeparator = taxonomy.DefaultSeparator
	}
	if t.Depth == 0 {
		t.Depth = defaultLevelDepth
	}
	if t.Smoothing == 0 {
		t.Smoothing = defaultSmoothing
	}
	if t.BalancedPriors == nil {
		balanced := true
		t.BalancedPriors = &balanced
	}
	if t.PriceBins == 0 {
		t.PriceBins = stage.DefaultOptions().PriceBins
	}
}

func setArtifactDefaults(a *ArtifactsConfig) {
	if a.Location == "" {
		a.Location = defaultArtifactLocation
	}
	if a.Backend == "" {
		a.Backend = BackendFilesystem
	}
}

func setDatabaseDefaults(d *database.Config) {
	if d.Driver == "" {
		d.Driver = defaultDBDriver
	}
	if d.Path == "" {
		d.Path = defaultDBPath
	}
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == "" {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.DBName == "" {
		d.DBName = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = database.DefaultMaxOpenConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = database.DefaultMaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = database.DefaultConnMaxLifetime
	}
}

func setElasticsearchDefaults(e *ElasticsearchConfig) {
	if e.URL == "" {
		e.URL = defaultESURL
	}
	if e.Index == "" {
		e.Index = defaultESIndex
	}
	if e.BulkSize == 0 {
		e.BulkSize = output.DefaultBulkSize
	}
	if e.RequestsPerSecond == 0 {
		e.RequestsPerSecond = defaultRequestsPerSecond
	}
}

// Validate checks the loaded configuration and returns every field error joined.
func (c *Config) Validate() error {
	errs := []error{
		infraconfig.ValidateLogLevel(c.Logging.Level),
		infraconfig.ValidateOneOf("logging.format", c.Logging.Format, "json", "console"),
		infraconfig.ValidateMin("service.workers", c.Service.Workers, 1),
		infraconfig.ValidateMin("training.minimum_class_support", c.Training.MinimumClassSupport, 1),
		infraconfig.ValidateMin("training.depth", c.Training.Depth, 1),
		infraconfig.ValidateMin("training.price_bins", c.Training.PriceBins, 1),
		infraconfig.ValidatePositive("training.smoothing", c.Training.Smoothing),
		infraconfig.ValidateRequired("training.level_separator", c.Training.LevelSeparator),
		infraconfig.ValidateRequired("artifacts.location", c.Artifacts.Location),
		infraconfig.ValidateOneOf("artifacts.backend", c.Artifacts.Backend, BackendFilesystem, BackendDatabase),
		infraconfig.ValidateOneOf("database.driver", c.Database.Driver, database.DriverSQLite, database.DriverPostgres),
		infraconfig.ValidateOneOf("rules.source", c.Rules.Source, RulesEmbedded, RulesFile, RulesDatabase),
		infraconfig.ValidateMin("elasticsearch.bulk_size", c.Elasticsearch.BulkSize, 1),
	}
	if c.Rules.Source == RulesFile {
		errs = append(errs, infraconfig.ValidateRequired("rules.path", c.Rules.Path))
	}
	if c.Database.Driver == database.DriverSQLite {
		errs = append(errs, infraconfig.ValidateRequired("database.path", c.Database.Path))
	}
	return errors.Join(errs...)
}

// NeedsDatabase reports whether the configured backends require a SQL connection.
func (c *Config) NeedsDatabase() bool {
	return c.Artifacts.Backend == BackendDatabase || c.Rules.Source == RulesDatabase
}

// CascadeOptions converts the training section into cascade options.
func (c *Config) CascadeOptions() cascade.Options {
	balanced := c.Training.BalancedPriors == nil || *c.Training.BalancedPriors
	return cascade.Options{
		MinSupport: c.Training.MinimumClassSupport,
		Stage: stage.Options{
			Smoothing:      c.Training.Smoothing,
			BalancedPriors: balanced,
			PriceBins:      c.Training.PriceBins,
		},
		Workers: c.Service.Workers,
	}
}

// Hierarchy returns the Client A hierarchy described by the training section.
func (c *Config) Hierarchy() taxonomy.Hierarchy {
	return taxonomy.NewHierarchy(c.Training.LevelSeparator, c.Training.Depth)
}

// Graphs returns the taxonomy graphs tagged by this configuration.
func (c *Config) Graphs() []taxonomy.Graph {
	return []taxonomy.Graph{taxonomy.NewClientAGraph(c.Hierarchy()), taxonomy.NewClientBGraph()}
}

// SinkConfig converts the elasticsearch section into sink settings.
func (c *Config) SinkConfig() output.SinkConfig {
	return output.SinkConfig{
		Index:             c.Elasticsearch.Index,
		BulkSize:          c.Elasticsearch.BulkSize,
		RequestsPerSecond: c.Elasticsearch.RequestsPerSecond,
	}
}
