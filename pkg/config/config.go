// Package config loads pathwaygraph configuration.
//
// Values are layered, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. A YAML file passed with --config
//  3. A .env file (variables already set in the process are kept)
//  4. Environment variables
//
// CLI flags are applied on top by the command itself.
//
// Example Usage:
//
//	cfg, err := config.Load("pathwaygraph.yaml", ".env")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables:
//
// Source:
//   - PATHWAYGRAPH_SOURCE_DRIVER="pgx", "sqlite" or "fixture"
//   - PATHWAYGRAPH_SOURCE_DSN="postgres://reactome@localhost/reactome"
//   - PATHWAYGRAPH_FIXTURE_PATH="./testdata/pathways.yaml"
//   - PATHWAYGRAPH_ROOTS="109581,1640170"
//   - PATHWAYGRAPH_MAX_DEPTH=0
//
// Target:
//   - PATHWAYGRAPH_TARGET="badger" or "neo4j"
//   - PATHWAYGRAPH_DATA_DIR="./graph.db"
//   - PATHWAYGRAPH_CLEAN=true (badger data directory)
//   - PATHWAYGRAPH_NEO4J_CLEAN=false (empties the Neo4j database first)
//   - NEO4J_URI="bolt://localhost:7687"
//   - NEO4J_AUTH="username/password" or "none"
//   - NEO4J_USER, NEO4J_PASSWORD, NEO4J_DATABASE
//
// Other:
//   - PATHWAYGRAPH_MODEL_PATH, PATHWAYGRAPH_LOG_MODE, PATHWAYGRAPH_LOG_LEVEL
//   - PATHWAYGRAPH_METRICS_TEXTFILE
//   - AWS_REGION, PATHWAYGRAPH_S3_ENDPOINT, PATHWAYGRAPH_S3_PATH_STYLE
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Source drivers.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
	DriverFixture  = "fixture"
)

// Target kinds.
const (
	TargetBadger = "badger"
	TargetNeo4j  = "neo4j"
)

// Config holds all pathwaygraph settings.
type Config struct {
	Source      SourceConfig      `yaml:"source"`
	Target      TargetConfig      `yaml:"target"`
	Schema      SchemaConfig      `yaml:"schema"`
	Constraints ConstraintsConfig `yaml:"constraints"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Export      ExportConfig      `yaml:"export"`
}

// SourceConfig selects the relational database (or fixture) to read.
type SourceConfig struct {
	// Driver is "pgx", "sqlite" or "fixture".
	Driver string `yaml:"driver"`
	// DSN for pgx and sqlite.
	DSN string `yaml:"dsn,omitempty"`
	// FixturePath is the YAML fixture for the fixture driver.
	FixturePath string `yaml:"fixture_path,omitempty"`
	// Roots overrides the top-level pathway list.
	Roots []int64 `yaml:"roots,omitempty"`
	// MaxDepth bounds the traversal; 0 means unlimited.
	MaxDepth int `yaml:"max_depth"`
}

// TargetConfig selects where the graph is written.
type TargetConfig struct {
	// Kind is "badger" or "neo4j".
	Kind       string      `yaml:"kind"`
	DataDir    string      `yaml:"data_dir"`
	Clean      bool        `yaml:"clean"`
	SyncWrites bool        `yaml:"sync_writes"`
	LowMemory  bool        `yaml:"low_memory"`
	Neo4j      Neo4jConfig `yaml:"neo4j"`
}

// Neo4jConfig holds the live server target.
type Neo4jConfig struct {
	URI         string        `yaml:"uri"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password,omitempty"`
	Database    string        `yaml:"database,omitempty"`
	BatchSize   int           `yaml:"batch_size"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxPoolSize int           `yaml:"max_pool_size,omitempty"`
	// Clean deletes everything in the database before loading.
	Clean bool `yaml:"clean"`
}

// SchemaConfig points at an alternative class model.
type SchemaConfig struct {
	// ModelPath replaces the embedded Reactome model when set.
	ModelPath string `yaml:"model_path,omitempty"`
}

// LabelProperty names one label/property pair.
type LabelProperty struct {
	Label    string `yaml:"label"`
	Property string `yaml:"property"`
}

// ConstraintsConfig overrides the built-in constraint and index lists.
// A nil list keeps the defaults; an empty list disables that kind.
type ConstraintsConfig struct {
	Unique  []LabelProperty `yaml:"unique,omitempty"`
	Indexes []LabelProperty `yaml:"indexes,omitempty"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Mode is "dev" or "prod".
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

// MetricsConfig configures the run metrics output.
type MetricsConfig struct {
	// TextfilePath is a node-exporter textfile; empty disables it.
	TextfilePath string `yaml:"textfile_path,omitempty"`
}

// ExportConfig holds S3 settings for `export --out s3://...`.
type ExportConfig struct {
	S3Region    string `yaml:"s3_region,omitempty"`
	S3Endpoint  string `yaml:"s3_endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Driver: DriverPostgres,
			DSN:    "postgres://reactome@localhost:5432/reactome?sslmode=disable",
		},
		Target: TargetConfig{
			Kind:    TargetBadger,
			DataDir: "./graph.db",
			Clean:   true,
			Neo4j: Neo4jConfig{
				URI:       "bolt://localhost:7687",
				User:      "neo4j",
				Database:  "neo4j",
				BatchSize: 1000,
				Timeout:   30 * time.Second,
			},
		},
		Logging: LoggingConfig{Mode: "dev", Level: "info"},
		Export:  ExportConfig{S3Region: "us-east-1"},
	}
}

// Load builds a Config from defaults, the optional YAML file at
// configPath, the optional dotenv file at envPath and the environment.
// A missing envPath is ignored; a missing configPath is an error.
func Load(configPath, envPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envPath, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Source.Driver = getEnv("PATHWAYGRAPH_SOURCE_DRIVER", c.Source.Driver)
	c.Source.DSN = getEnv("PATHWAYGRAPH_SOURCE_DSN", c.Source.DSN)
	c.Source.FixturePath = getEnv("PATHWAYGRAPH_FIXTURE_PATH", c.Source.FixturePath)
	c.Source.MaxDepth = getEnvInt("PATHWAYGRAPH_MAX_DEPTH", c.Source.MaxDepth)
	if raw := getEnvStringSlice("PATHWAYGRAPH_ROOTS", nil); raw != nil {
		roots, err := ParseRoots(raw)
		if err != nil {
			return fmt.Errorf("PATHWAYGRAPH_ROOTS: %w", err)
		}
		c.Source.Roots = roots
	}

	c.Target.Kind = getEnv("PATHWAYGRAPH_TARGET", c.Target.Kind)
	c.Target.DataDir = getEnv("PATHWAYGRAPH_DATA_DIR", c.Target.DataDir)
	c.Target.Clean = getEnvBool("PATHWAYGRAPH_CLEAN", c.Target.Clean)
	c.Target.SyncWrites = getEnvBool("PATHWAYGRAPH_SYNC_WRITES", c.Target.SyncWrites)
	c.Target.LowMemory = getEnvBool("PATHWAYGRAPH_LOW_MEMORY", c.Target.LowMemory)

	// NEO4J_AUTH format: "username/password" or "none"
	if auth := getEnv("NEO4J_AUTH", ""); auth != "" && auth != "none" {
		if user, pass, ok := strings.Cut(auth, "/"); ok {
			c.Target.Neo4j.User, c.Target.Neo4j.Password = user, pass
		} else {
			c.Target.Neo4j.Password = auth
		}
	}
	c.Target.Neo4j.URI = getEnv("NEO4J_URI", c.Target.Neo4j.URI)
	c.Target.Neo4j.User = getEnv("NEO4J_USER", c.Target.Neo4j.User)
	c.Target.Neo4j.Password = getEnv("NEO4J_PASSWORD", c.Target.Neo4j.Password)
	c.Target.Neo4j.Database = getEnv("NEO4J_DATABASE", c.Target.Neo4j.Database)
	c.Target.Neo4j.BatchSize = getEnvInt("PATHWAYGRAPH_NEO4J_BATCH_SIZE", c.Target.Neo4j.BatchSize)
	c.Target.Neo4j.Timeout = getEnvDuration("PATHWAYGRAPH_NEO4J_TIMEOUT", c.Target.Neo4j.Timeout)
	c.Target.Neo4j.Clean = getEnvBool("PATHWAYGRAPH_NEO4J_CLEAN", c.Target.Neo4j.Clean)

	c.Schema.ModelPath = getEnv("PATHWAYGRAPH_MODEL_PATH", c.Schema.ModelPath)
	c.Logging.Mode = getEnv("PATHWAYGRAPH_LOG_MODE", c.Logging.Mode)
	c.Logging.Level = getEnv("PATHWAYGRAPH_LOG_LEVEL", c.Logging.Level)
	c.Metrics.TextfilePath = getEnv("PATHWAYGRAPH_METRICS_TEXTFILE", c.Metrics.TextfilePath)

	c.Export.S3Region = getEnv("AWS_REGION", c.Export.S3Region)
	c.Export.S3Endpoint = getEnv("PATHWAYGRAPH_S3_ENDPOINT", c.Export.S3Endpoint)
	c.Export.S3PathStyle = getEnvBool("PATHWAYGRAPH_S3_PATH_STYLE", c.Export.S3PathStyle)
	return nil
}

// ParseRoots converts decimal ids.
func ParseRoots(raw []string) ([]int64, error) {
	roots := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid root id %q", s)
		}
		roots = append(roots, id)
	}
	return roots, nil
}

// Validate checks that the selected source and target are usable.
//
// Returns nil if configuration is valid, or an error describing the problem.
func (c *Config) Validate() error {
	switch c.Source.Driver {
	case DriverPostgres, DriverSQLite:
		if c.Source.DSN == "" {
			return fmt.Errorf("source driver %s requires a dsn", c.Source.Driver)
		}
	case DriverFixture:
		if c.Source.FixturePath == "" {
			return fmt.Errorf("fixture source requires fixture_path")
		}
	default:
		return fmt.Errorf("unknown source driver %q (want pgx, sqlite or fixture)", c.Source.Driver)
	}
	if c.Source.MaxDepth < 0 {
		return fmt.Errorf("invalid max depth: %d", c.Source.MaxDepth)
	}
	for _, id := range c.Source.Roots {
		if id <= 0 {
			return fmt.Errorf("invalid root id: %d", id)
		}
	}

	switch c.Target.Kind {
	case TargetBadger:
		if c.Target.DataDir == "" {
			return fmt.Errorf("badger target requires data_dir")
		}
	case TargetNeo4j:
		if c.Target.Neo4j.URI == "" {
			return fmt.Errorf("neo4j target requires uri")
		}
		if c.Target.Neo4j.BatchSize < 0 {
			return fmt.Errorf("invalid neo4j batch size: %d", c.Target.Neo4j.BatchSize)
		}
	default:
		return fmt.Errorf("unknown target %q (want badger or neo4j)", c.Target.Kind)
	}

	for _, lp := range append(append([]LabelProperty{}, c.Constraints.Unique...), c.Constraints.Indexes...) {
		if lp.Label == "" || lp.Property == "" {
			return fmt.Errorf("constraint entries need label and property: %+v", lp)
		}
	}
	return nil
}

// String returns a summary safe for logging. DSNs and passwords are left
// out.
func (c *Config) String() string {
	target := c.Target.DataDir
	if c.Target.Kind == TargetNeo4j {
		target = c.Target.Neo4j.URI
	}
	return fmt.Sprintf(
		"Config{Source: %s, Roots: %d, Target: %s(%s), Model: %s, Log: %s/%s}",
		c.Source.Driver, len(c.Source.Roots),
		c.Target.Kind, target,
		orDefault(c.Schema.ModelPath, "embedded"),
		c.Logging.Mode, c.Logging.Level,
	)
}

var sectionComments = map[string]string{
	"source":      "Relational source: driver pgx (Postgres), sqlite or fixture (YAML).\nroots overrides the FrontPage pathway list.",
	"target":      "Graph target: badger (embedded store in data_dir) or neo4j (live server).",
	"schema":      "model_path replaces the embedded Reactome class model.",
	"constraints": "Leave unset for the built-in lists; an empty list disables that kind.",
	"logging":     "mode dev|prod, level debug|info|warn|error.",
	"metrics":     "textfile_path writes Prometheus metrics for the node-exporter textfile collector.",
	"export":      "S3 settings used by `pathwaygraph export --out s3://bucket/key`.",
}

// WriteDefault writes a commented default configuration file. Existing
// files are not overwritten.
func WriteDefault(path string) error {
	var doc yaml.Node
	if err := doc.Encode(Default()); err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	doc.HeadComment = "pathwaygraph configuration"
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if comment, ok := sectionComments[doc.Content[i].Value]; ok {
			doc.Content[i].HeadComment = comment
		}
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}
