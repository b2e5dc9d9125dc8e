// Package config loads the YAML run configuration. Defaults reproduce the
// ADNI analysis: 1000 bootstrap replicas of the supervised_aae model, EMCI
// trimmed by 24 and LMCI by 8 subjects.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"normative/internal/blob"
)

// Ledger drivers.
const (
	LedgerMemory   = "memory"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

// Config is the full run configuration.
type Config struct {
	Dataset     string        `yaml:"dataset"`
	Data        StoreConfig   `yaml:"data"`
	Outputs     StoreConfig   `yaml:"outputs"`
	Ledger      LedgerConfig  `yaml:"ledger"`
	Infer       InferConfig   `yaml:"infer"`
	Balance     BalanceConfig `yaml:"balance"`
	Logging     LoggingConfig `yaml:"logging"`
	MetricsFile string        `yaml:"metrics_file"`
}

// StoreConfig selects a blob backend for inputs or outputs.
type StoreConfig struct {
	Driver string   `yaml:"driver"`
	Root   string   `yaml:"root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config mirrors the s3 driver settings. Credentials come from the AWS
// default chain.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// LedgerConfig selects the run ledger backend.
type LedgerConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// InferConfig drives the bootstrap inference runner.
type InferConfig struct {
	Model         string   `yaml:"model"`
	Replicas      int      `yaml:"replicas"`
	Parallel      int      `yaml:"parallel"`
	Seed          int64    `yaml:"seed"`
	Features      []string `yaml:"features"`
	IDsSuffix     string   `yaml:"ids_suffix"`
	KeepGoing     bool     `yaml:"keep_going"`
	SkipCompleted bool     `yaml:"skip_completed"`
}

// Group names a diagnostic code for reports.
type Group struct {
	Name string `yaml:"name"`
	Code int    `yaml:"code"`
}

// Removal trims Count youngest members from the group with Code.
type Removal struct {
	Code  int `yaml:"code"`
	Count int `yaml:"count"`
}

// BalanceConfig drives the cohort balancer.
type BalanceConfig struct {
	Groups       []Group   `yaml:"groups"`
	Removals     []Removal `yaml:"removals"`
	Retain       []int     `yaml:"retain"`
	Welch        bool      `yaml:"welch"`
	InputSuffix  string    `yaml:"input_suffix"`
	OutputSuffix string    `yaml:"output_suffix"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Dataset: "ADNI",
		Data:    StoreConfig{Driver: string(blob.DriverFilesystem), Root: "data"},
		Outputs: StoreConfig{Driver: string(blob.DriverFilesystem), Root: "outputs"},
		Ledger:  LedgerConfig{Driver: LedgerSQLite, SQLitePath: "outputs/normative.db"},
		Infer: InferConfig{
			Model:     "supervised_aae",
			Replicas:  1000,
			Parallel:  1,
			Seed:      42,
			IDsSuffix: "_homogeneous_ids.csv",
		},
		Balance: BalanceConfig{
			Groups: []Group{
				{Name: "HC", Code: 1},
				{Name: "AD", Code: 17},
				{Name: "EMCI", Code: 27},
				{Name: "LMCI", Code: 28},
			},
			Removals:     []Removal{{Code: 27, Count: 24}, {Code: 28, Count: 8}},
			Retain:       []int{1, 17, 27, 28},
			InputSuffix:  "_cleaned_ids.csv",
			OutputSuffix: "_homogeneous_ids.csv",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. An empty path returns Default().
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(bytes.NewReader(b), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays YAML from r onto cfg.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from NORMATIVE_* variables. getenv is usually
// os.Getenv.
//
//	NORMATIVE_DATASET
//	NORMATIVE_BLOB_DRIVER: fs|s3|memory, applied to both stores
//	NORMATIVE_BLOB_S3_BUCKET / _REGION / _ENDPOINT / _PATH_STYLE
//	NORMATIVE_LEDGER_DRIVER: memory|sqlite|postgres
//	NORMATIVE_SQLITE_PATH, NORMATIVE_POSTGRES_DSN
//	NORMATIVE_LOG_LEVEL, NORMATIVE_LOG_FORMAT
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Dataset, "NORMATIVE_DATASET")
	for _, sc := range []*StoreConfig{&c.Data, &c.Outputs} {
		set(&sc.Driver, "NORMATIVE_BLOB_DRIVER")
		set(&sc.S3.Bucket, "NORMATIVE_BLOB_S3_BUCKET")
		set(&sc.S3.Region, "NORMATIVE_BLOB_S3_REGION")
		set(&sc.S3.Endpoint, "NORMATIVE_BLOB_S3_ENDPOINT")
		if v := getenv("NORMATIVE_BLOB_S3_PATH_STYLE"); v != "" {
			sc.S3.PathStyle = strings.EqualFold(v, "true")
		}
	}
	// A shared bucket keeps inputs and outputs apart by prefix.
	if c.Data.Driver == string(blob.DriverS3) && c.Data.S3.Prefix == "" && c.Data.S3.Bucket == c.Outputs.S3.Bucket {
		c.Data.S3.Prefix = "data"
	}
	if c.Outputs.Driver == string(blob.DriverS3) && c.Outputs.S3.Prefix == "" && c.Data.S3.Bucket == c.Outputs.S3.Bucket {
		c.Outputs.S3.Prefix = "outputs"
	}
	set(&c.Ledger.Driver, "NORMATIVE_LEDGER_DRIVER")
	set(&c.Ledger.SQLitePath, "NORMATIVE_SQLITE_PATH")
	set(&c.Ledger.PostgresDSN, "NORMATIVE_POSTGRES_DSN")
	set(&c.Logging.Level, "NORMATIVE_LOG_LEVEL")
	set(&c.Logging.Format, "NORMATIVE_LOG_FORMAT")
}

// Validate rejects configurations the procedures cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Dataset) == "" {
		errs = append(errs, errors.New("dataset is required"))
	}
	for name, sc := range map[string]StoreConfig{"data": c.Data, "outputs": c.Outputs} {
		switch blob.Driver(sc.Driver) {
		case blob.DriverFilesystem, blob.DriverMemory, "":
		case blob.DriverS3:
			if sc.S3.Bucket == "" {
				errs = append(errs, fmt.Errorf("%s: s3 bucket is required", name))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unknown blob driver %q", name, sc.Driver))
		}
	}
	switch c.Ledger.Driver {
	case LedgerMemory, LedgerSQLite, "":
	case LedgerPostgres:
		if c.Ledger.PostgresDSN == "" {
			errs = append(errs, errors.New("ledger: postgres_dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger: unknown driver %q", c.Ledger.Driver))
	}
	if c.Infer.Replicas < 0 {
		errs = append(errs, fmt.Errorf("infer: replicas must be >= 0, got %d", c.Infer.Replicas))
	}
	if c.Infer.Parallel < 1 {
		errs = append(errs, fmt.Errorf("infer: parallel must be >= 1, got %d", c.Infer.Parallel))
	}
	if c.Infer.Model == "" {
		errs = append(errs, errors.New("infer: model is required"))
	}
	if len(c.Balance.Groups) < 2 {
		errs = append(errs, errors.New("balance: at least two groups are required"))
	}
	seen := make(map[int]bool, len(c.Balance.Groups))
	for _, g := range c.Balance.Groups {
		if seen[g.Code] {
			errs = append(errs, fmt.Errorf("balance: duplicate group code %d", g.Code))
		}
		seen[g.Code] = true
	}
	for _, r := range c.Balance.Removals {
		if r.Count < 0 {
			errs = append(errs, fmt.Errorf("balance: removal count for group %d must be >= 0", r.Code))
		}
	}
	if len(c.Balance.Retain) == 0 {
		errs = append(errs, errors.New("balance: retain list is empty"))
	}
	return errors.Join(errs...)
}

// BlobOptions converts a store section into blob.Options.
func (s StoreConfig) BlobOptions() blob.Options {
	return blob.Options{
		Driver: blob.Driver(s.Driver),
		Root:   s.Root,
		S3: blob.S3Config{
			Bucket:    s.S3.Bucket,
			Region:    s.S3.Region,
			Prefix:    s.S3.Prefix,
			Endpoint:  s.S3.Endpoint,
			PathStyle: s.S3.PathStyle,
		},
	}
}

// GroupName returns the configured name for code, or the code itself.
func (b BalanceConfig) GroupName(code int) string {
	for _, g := range b.Groups {
		if g.Code == code {
			return g.Name
		}
	}
	return fmt.Sprintf("%d", code)
}
