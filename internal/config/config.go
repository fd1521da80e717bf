package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"wikistat/internal/catalog"
	"wikistat/internal/domain"
)

// DefaultPath is used when neither a flag nor WIKISTAT_CONFIG names a file.
const DefaultPath = "config/wikistat.yaml"

// Executor modes.
const (
	ModeSQL    = "sql"
	ModeNative = "native"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration of the wikistat loader.
type Config struct {
	Ledger    Ledger           `yaml:"ledger"`
	Wikipedia Wikipedia        `yaml:"wikipedia"`
	Executor  Executor         `yaml:"executor"`
	Engine    Engine           `yaml:"engine"`
	Keywords  []domain.Keyword `yaml:"keywords"`
	Match     Match            `yaml:"match"`
	Output    Output           `yaml:"output"`
	S3        S3               `yaml:"s3"`
	Logging   Logging          `yaml:"logging"`
	Metrics   Metrics          `yaml:"metrics"`
}

// Ledger locates the processed-files database.
type Ledger struct {
	Path string `yaml:"path"`
}

// Wikipedia selects the dump files to load.
type Wikipedia struct {
	BaseURL string `yaml:"base_url"`
	Year    int    `yaml:"year"`
	Month   int    `yaml:"month"`
	Days    []int  `yaml:"days"`
	Hours   []int  `yaml:"hours"`
}

// Executor controls how a single file is loaded.
type Executor struct {
	Mode            string        `yaml:"mode"`
	Timeout         time.Duration `yaml:"timeout"`
	Retries         int           `yaml:"retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
}

// Engine configures the SQL engine used in sql mode.
type Engine struct {
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	Table         string `yaml:"table"`
	KeywordsTable string `yaml:"keywords_table"`
	SQLDir        string `yaml:"sql_dir"` // empty: embedded statements
}

// Match controls keyword matching in native mode. Titles are always NFC
// normalized there; sql mode matches the raw bytes.
type Match struct {
	FoldCase bool `yaml:"fold_case"`
}

// Output holds paths for files written in native mode.
type Output struct {
	DataDir string `yaml:"data_dir"`
}

// S3 configures optional publishing of native-mode output. Publishing is
// enabled when Bucket is set.
type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics configures the Prometheus textfile export. Empty disables it.
type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Defaults returns the configuration used for fields a file leaves unset.
func Defaults() *Config {
	return &Config{
		Ledger:    Ledger{Path: "data/processed_files.db"},
		Wikipedia: Wikipedia{BaseURL: "https://dumps.wikimedia.org/other/pageviews/"},
		Executor: Executor{
			Mode:            ModeSQL,
			Retries:         3,
			RetryDelay:      5 * time.Second,
			RateLimitPerMin: 60,
		},
		Engine: Engine{
			Driver:        "duckdb",
			DSN:           "data/wikistat.duckdb",
			Table:         "wikistat_data_engineering",
			KeywordsTable: "data_engineering_keywords",
		},
		Output:  Output{DataDir: "data"},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Path returns the configuration file to read: flagValue if set, then
// WIKISTAT_CONFIG, then DefaultPath.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("WIKISTAT_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path on top of
// Defaults, then applies environment variable overrides and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WIKISTAT_LEDGER_PATH"); v != "" {
		cfg.Ledger.Path = v
	}

	if v := os.Getenv("WIKISTAT_ENGINE_DSN"); v != "" {
		cfg.Engine.DSN = v
	}

	if v := os.Getenv("WIKISTAT_BASE_URL"); v != "" {
		cfg.Wikipedia.BaseURL = v
	}

	if v := os.Getenv("WIKISTAT_DATA_DIR"); v != "" {
		cfg.Output.DataDir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		cfg.S3.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		cfg.S3.SecretKey = v
	}
}

// Validate checks the settings that are not validated by the component that
// consumes them. The date range is checked by catalog.Generate.
func (c *Config) Validate() error {
	var errs []error
	if c.Ledger.Path == "" {
		errs = append(errs, errors.New("ledger.path is required"))
	}
	switch c.Executor.Mode {
	case ModeSQL:
		if c.Engine.Driver == "" {
			errs = append(errs, errors.New("engine.driver is required in sql mode"))
		}
		// The engine compares page titles byte for byte.
		if c.Match.FoldCase {
			errs = append(errs, errors.New("match.fold_case is only supported in native mode"))
		}
	case ModeNative:
		if c.Output.DataDir == "" {
			errs = append(errs, errors.New("output.data_dir is required in native mode"))
		}
		if c.S3.Bucket != "" && c.S3.Endpoint == "" {
			errs = append(errs, errors.New("s3.endpoint is required when s3.bucket is set"))
		}
	default:
		errs = append(errs, fmt.Errorf("executor.mode %q must be %q or %q", c.Executor.Mode, ModeSQL, ModeNative))
	}
	if c.Executor.Timeout < 0 || c.Executor.RetryDelay < 0 || c.Executor.Retries < 0 {
		errs = append(errs, errors.New("executor durations and retry count must not be negative"))
	}
	for i, k := range c.Keywords {
		if k.Keyword == "" {
			errs = append(errs, fmt.Errorf("keywords[%d]: empty keyword", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", catalog.ErrInvalidConfiguration, errors.Join(errs...))
	}
	return nil
}

// Range returns the dump catalog selection.
func (c *Config) Range() catalog.Range {
	return catalog.Range{
		Year:  c.Wikipedia.Year,
		Month: c.Wikipedia.Month,
		Days:  c.Wikipedia.Days,
		Hours: c.Wikipedia.Hours,
	}
}
