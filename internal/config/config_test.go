package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"wikistat/internal/catalog"
	"wikistat/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wikistat.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"WIKISTAT_LEDGER_PATH", "WIKISTAT_ENGINE_DSN", "WIKISTAT_BASE_URL",
		"WIKISTAT_DATA_DIR", "LOG_LEVEL", "S3_ACCESS_KEY", "S3_SECRET_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
ledger:
  path: "/var/lib/wikistat/processed_files.db"
wikipedia:
  base_url: "https://dumps.wikimedia.org/other/pageviews/"
  year: 2025
  month: 1
  days: [1, 2]
  hours: [0, 1]
executor:
  mode: native
  timeout: 10m
  retries: 5
  retry_delay: 2s
  rate_limit_per_min: 30
keywords:
  - keyword: Apache_Kafka
    category: streaming
  - keyword: DuckDB
    category: database
match:
  fold_case: true
output:
  data_dir: "/var/lib/wikistat/data"
s3:
  endpoint: "localhost:9000"
  bucket: "wikistat"
  prefix: "pageviews"
logging:
  level: "debug"
  format: "text"
metrics:
  textfile: "/var/lib/node_exporter/wikistat.prom"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Ledger.Path != "/var/lib/wikistat/processed_files.db" {
		t.Errorf("Ledger.Path = %q", cfg.Ledger.Path)
	}
	if cfg.Executor.Mode != ModeNative {
		t.Errorf("Executor.Mode = %q, want %q", cfg.Executor.Mode, ModeNative)
	}
	if cfg.Executor.Timeout != 10*time.Minute {
		t.Errorf("Executor.Timeout = %v, want 10m", cfg.Executor.Timeout)
	}
	if cfg.Executor.RetryDelay != 2*time.Second {
		t.Errorf("Executor.RetryDelay = %v, want 2s", cfg.Executor.RetryDelay)
	}
	if cfg.Executor.Retries != 5 || cfg.Executor.RateLimitPerMin != 30 {
		t.Errorf("Executor = %+v", cfg.Executor)
	}
	wantKeywords := []domain.Keyword{
		{Keyword: "Apache_Kafka", Category: "streaming"},
		{Keyword: "DuckDB", Category: "database"},
	}
	if !reflect.DeepEqual(cfg.Keywords, wantKeywords) {
		t.Errorf("Keywords = %+v, want %+v", cfg.Keywords, wantKeywords)
	}
	if !cfg.Match.FoldCase {
		t.Error("Match.FoldCase = false, want true")
	}
	if cfg.S3.Bucket != "wikistat" || cfg.S3.Prefix != "pageviews" {
		t.Errorf("S3 = %+v", cfg.S3)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Textfile != "/var/lib/node_exporter/wikistat.prom" {
		t.Errorf("Metrics.Textfile = %q", cfg.Metrics.Textfile)
	}

	want := catalog.Range{Year: 2025, Month: 1, Days: []int{1, 2}, Hours: []int{0, 1}}
	if got := cfg.Range(); !reflect.DeepEqual(got, want) {
		t.Errorf("Range() = %+v, want %+v", got, want)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
wikipedia:
  year: 2025
  month: 1
  days: [1]
  hours: [0]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	d := Defaults()
	if cfg.Wikipedia.BaseURL != d.Wikipedia.BaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.Wikipedia.BaseURL, d.Wikipedia.BaseURL)
	}
	if cfg.Executor.Mode != ModeSQL || cfg.Engine.Driver != "duckdb" {
		t.Errorf("executor mode %q driver %q, want sql/duckdb", cfg.Executor.Mode, cfg.Engine.Driver)
	}
	if cfg.Engine.Table != "wikistat_data_engineering" || cfg.Engine.KeywordsTable != "data_engineering_keywords" {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if cfg.Ledger.Path != d.Ledger.Path {
		t.Errorf("Ledger.Path = %q, want %q", cfg.Ledger.Path, d.Ledger.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
ledger:
  path: "from-file.db"
logging:
  level: "info"
`)

	t.Setenv("WIKISTAT_LEDGER_PATH", "/tmp/override.db")
	t.Setenv("WIKISTAT_ENGINE_DSN", "/tmp/engine.duckdb")
	t.Setenv("WIKISTAT_BASE_URL", "http://mirror.local/pageviews/")
	t.Setenv("WIKISTAT_DATA_DIR", "/tmp/data")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("S3_ACCESS_KEY", "AKIA")
	t.Setenv("S3_SECRET_KEY", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	checks := []struct {
		name, got, want string
	}{
		{"Ledger.Path", cfg.Ledger.Path, "/tmp/override.db"},
		{"Engine.DSN", cfg.Engine.DSN, "/tmp/engine.duckdb"},
		{"Wikipedia.BaseURL", cfg.Wikipedia.BaseURL, "http://mirror.local/pageviews/"},
		{"Output.DataDir", cfg.Output.DataDir, "/tmp/data"},
		{"Logging.Level", cfg.Logging.Level, "warn"},
		{"S3.AccessKey", cfg.S3.AccessKey, "AKIA"},
		{"S3.SecretKey", cfg.S3.SecretKey, "secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name, content string
	}{
		{"bad mode", "executor:\n  mode: spark\n"},
		{"negative retries", "executor:\n  retries: -1\n"},
		{"empty keyword", "keywords:\n  - keyword: \"\"\n"},
		{"bucket without endpoint", "executor:\n  mode: native\ns3:\n  bucket: b\n"},
		{"fold case in sql mode", "executor:\n  mode: sql\nmatch:\n  fold_case: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, catalog.ErrInvalidConfiguration) {
				t.Errorf("Load error = %v, want ErrInvalidConfiguration", err)
			}
		})
	}

	if _, err := Load(writeConfig(t, "ledger: [not, a, map]\n")); err == nil {
		t.Error("Load should fail on malformed YAML")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load should fail on a missing file")
	}
}

func TestPath(t *testing.T) {
	t.Setenv("WIKISTAT_CONFIG", "")
	if got := Path(""); got != DefaultPath {
		t.Errorf("Path(\"\") = %q, want %q", got, DefaultPath)
	}
	t.Setenv("WIKISTAT_CONFIG", "/etc/wikistat.yaml")
	if got := Path(""); got != "/etc/wikistat.yaml" {
		t.Errorf("Path with env = %q", got)
	}
	if got := Path("local.yaml"); got != "local.yaml" {
		t.Errorf("Path with flag = %q", got)
	}
}
