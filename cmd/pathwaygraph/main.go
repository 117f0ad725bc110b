// Package main provides the pathwaygraph CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/orneryd/pathwaygraph/pkg/config"
	"github.com/orneryd/pathwaygraph/pkg/importer"
	"github.com/orneryd/pathwaygraph/pkg/logging"
	"github.com/orneryd/pathwaygraph/pkg/metrics"
	"github.com/orneryd/pathwaygraph/pkg/model"
	"github.com/orneryd/pathwaygraph/pkg/neo4jload"
	"github.com/orneryd/pathwaygraph/pkg/publish"
	"github.com/orneryd/pathwaygraph/pkg/schema"
	"github.com/orneryd/pathwaygraph/pkg/source"
	"github.com/orneryd/pathwaygraph/pkg/source/sqlsource"
	"github.com/orneryd/pathwaygraph/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pathwaygraph",
		Short: "pathwaygraph - Reactome relational database to property graph importer",
		Long: `pathwaygraph reads the Reactome knowledgebase from its relational dump
and writes it as a labelled property graph.

Features:
  • Postgres (pgx) and SQLite sources, plus YAML fixtures
  • Embedded badger graph store or a live Neo4j server as target
  • Multi-label nodes from the class hierarchy
  • Deduplicated relationships with a cardinality property
  • Deferred unique constraints and indexes
  • Neo4j JSON export to a file or S3`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file (ignored when missing)")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pathwaygraph v%s (%s)\n", version, commit)
		},
	})

	// Init command
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInit,
	}
	rootCmd.AddCommand(initCmd)

	// Import command
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import the source database into a property graph",
		RunE:  runImport,
	}
	importCmd.Flags().String("driver", "", "Source driver: pgx, sqlite or fixture")
	importCmd.Flags().String("dsn", "", "Source connection string")
	importCmd.Flags().String("fixture", "", "YAML fixture file (fixture driver)")
	importCmd.Flags().StringSlice("roots", nil, "Root pathway ids, overriding the FrontPage list")
	importCmd.Flags().Int("max-depth", 0, "Maximum traversal depth (0 = unlimited)")
	importCmd.Flags().String("target", "", "Target: badger or neo4j")
	importCmd.Flags().String("data-dir", "", "Badger data directory")
	importCmd.Flags().Bool("clean", true, "Remove an existing data directory first")
	importCmd.Flags().String("neo4j-uri", "", "Neo4j bolt URI")
	importCmd.Flags().Bool("neo4j-clean", false, "Delete everything in the Neo4j database first")
	importCmd.Flags().String("model", "", "Class model YAML (default: embedded Reactome model)")
	importCmd.Flags().String("metrics-textfile", "", "Write Prometheus metrics to this file")
	importCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(importCmd)

	// Stats command
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show counts and schema of an imported store",
		RunE:  runStats,
	}
	statsCmd.Flags().String("data-dir", "", "Badger data directory")
	rootCmd.AddCommand(statsCmd)

	// Lookup command
	lookupCmd := &cobra.Command{
		Use:   "lookup",
		Short: "Find nodes by label and property value",
		RunE:  runLookup,
	}
	lookupCmd.Flags().String("data-dir", "", "Badger data directory")
	lookupCmd.Flags().String("label", "", "Node label")
	lookupCmd.Flags().String("property", "", "Property name")
	lookupCmd.Flags().String("value", "", "Property value (integers are matched numerically)")
	_ = lookupCmd.MarkFlagRequired("label")
	_ = lookupCmd.MarkFlagRequired("property")
	_ = lookupCmd.MarkFlagRequired("value")
	rootCmd.AddCommand(lookupCmd)

	// Export command
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the store as Neo4j JSON to a file or s3://bucket/key",
		RunE:  runExport,
	}
	exportCmd.Flags().String("data-dir", "", "Badger data directory")
	exportCmd.Flags().String("out", "", "Output file or s3://bucket/key")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)

	return rootCmd
}

// loadConfig reads the layered configuration and applies the flags the
// user actually set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	envPath, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	setString := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	setString("driver", &cfg.Source.Driver)
	setString("dsn", &cfg.Source.DSN)
	setString("fixture", &cfg.Source.FixturePath)
	setString("target", &cfg.Target.Kind)
	setString("data-dir", &cfg.Target.DataDir)
	setString("neo4j-uri", &cfg.Target.Neo4j.URI)
	setString("model", &cfg.Schema.ModelPath)
	setString("metrics-textfile", &cfg.Metrics.TextfilePath)
	setString("log-level", &cfg.Logging.Level)

	if flags.Changed("fixture") && !flags.Changed("driver") {
		cfg.Source.Driver = config.DriverFixture
	}
	if flags.Changed("roots") {
		raw, _ := flags.GetStringSlice("roots")
		roots, err := config.ParseRoots(raw)
		if err != nil {
			return nil, fmt.Errorf("--roots: %w", err)
		}
		cfg.Source.Roots = roots
	}
	if flags.Changed("max-depth") {
		cfg.Source.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("clean") {
		cfg.Target.Clean, _ = flags.GetBool("clean")
	}
	if flags.Changed("neo4j-clean") {
		cfg.Target.Neo4j.Clean, _ = flags.GetBool("neo4j-clean")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	log, err := logging.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return log, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "pathwaygraph.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if err := config.WriteDefault(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote default configuration to %s\n", path)
	return nil
}

func openSource(ctx context.Context, cfg *config.Config, log *logging.Logger) (source.Source, error) {
	if cfg.Source.Driver == config.DriverFixture {
		src, err := source.LoadFixture(cfg.Source.FixturePath)
		if err != nil {
			return nil, err
		}
		if len(cfg.Source.Roots) > 0 {
			src.SetRoots(cfg.Source.Roots...)
		}
		return src, nil
	}
	return sqlsource.Open(ctx, sqlsource.Config{
		Driver: cfg.Source.Driver,
		DSN:    cfg.Source.DSN,
		Roots:  cfg.Source.Roots,
	}, log)
}

func openEngine(dataDir string, log *logging.Logger) (*storage.BadgerEngine, error) {
	engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
		DataDir: dataDir,
		Logger:  storage.NewBadgerLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", dataDir, err)
	}
	return engine, nil
}

// importTarget is a BulkLoader plus whatever must be closed after Finalize.
// abort replaces Finalize when the run fails.
type importTarget struct {
	loader importer.BulkLoader
	abort  func(cause error) error
	close  func() error
}

func openTarget(ctx context.Context, cfg *config.Config, runID string, log *logging.Logger) (*importTarget, error) {
	switch cfg.Target.Kind {
	case config.TargetNeo4j:
		n := cfg.Target.Neo4j
		loader, err := neo4jload.Open(ctx, neo4jload.Config{
			URI:         n.URI,
			User:        n.User,
			Password:    n.Password,
			Database:    n.Database,
			BatchSize:   n.BatchSize,
			Timeout:     n.Timeout,
			MaxPoolSize: n.MaxPoolSize,
			Clean:       n.Clean,
		}, log)
		if err != nil {
			return nil, err
		}
		return &importTarget{loader: loader, abort: loader.Abort, close: func() error { return nil }}, nil

	default:
		if cfg.Target.Clean {
			if err := storage.CleanDataDir(cfg.Target.DataDir); err != nil {
				return nil, fmt.Errorf("cleaning %s: %w", cfg.Target.DataDir, err)
			}
		}
		engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
			DataDir:    cfg.Target.DataDir,
			SyncWrites: cfg.Target.SyncWrites,
			LowMemory:  cfg.Target.LowMemory,
			Logger:     storage.NewBadgerLogger(log),
		})
		if err != nil {
			return nil, fmt.Errorf("opening store %s: %w", cfg.Target.DataDir, err)
		}
		bulk := storage.NewBulkInserter(engine, runID)
		return &importTarget{loader: bulk, abort: bulk.Abort, close: engine.Close}, nil
	}
}

func toLabelProperties(in []config.LabelProperty) []importer.LabelProperty {
	if in == nil {
		return nil
	}
	out := make([]importer.LabelProperty, len(in))
	for i, lp := range in {
		out[i] = importer.LabelProperty{Label: lp.Label, Property: lp.Property}
	}
	return out
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🚀 pathwaygraph v%s\n", version)
	fmt.Fprintf(out, "   Source: %s\n", cfg.Source.Driver)
	fmt.Fprintf(out, "   Target: %s\n", cfg.Target.Kind)

	m, err := model.Load(cfg.Schema.ModelPath)
	if err != nil {
		return fmt.Errorf("loading class model: %w", err)
	}
	catalog := schema.NewCatalog(m, log)

	src, err := openSource(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	runID := uuid.NewString()
	target, err := openTarget(ctx, cfg, runID, log)
	if err != nil {
		return fmt.Errorf("opening target: %w", err)
	}
	defer target.close()

	recorder := metrics.NewRecorder()
	imp := importer.New(catalog, target.loader, log, importer.Config{
		Constraints: importer.NewConstraintManager(
			toLabelProperties(cfg.Constraints.Unique),
			toLabelProperties(cfg.Constraints.Indexes),
			log,
		),
		Metrics:  recorder,
		MaxDepth: cfg.Source.MaxDepth,
		RunID:    runID,
	})

	fmt.Fprintln(out, "📥 Importing...")
	result, runErr := imp.Run(ctx, src)
	if runErr != nil {
		if abortErr := target.abort(runErr); abortErr != nil {
			log.Warn("could not record aborted run", "error", abortErr)
		}
	} else if finErr := target.loader.Finalize(); finErr != nil {
		runErr = fmt.Errorf("finalizing target: %w", finErr)
	}
	if runErr != nil {
		log.Error("import failed", "error", runErr, "nodes", result.NodesCreated)
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("import interrupted: %w", runErr)
		}
		return runErr
	}

	recorder.Succeeded(time.Now())
	if err := recorder.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		log.Warn("could not write metrics textfile", "path", cfg.Metrics.TextfilePath, "error", err)
	}

	printResult(out, result)
	return nil
}

func printResult(out io.Writer, r *importer.Result) {
	fmt.Fprintf(out, "   ✅ %d roots, %d nodes, %d relationships in %s\n",
		r.Roots, r.NodesCreated, r.RelationshipsCreated, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "   🔒 %d constraints/indexes applied", r.Constraints.Applied)
	if n := len(r.Constraints.Failures); n > 0 {
		fmt.Fprintf(out, ", %d failed", n)
	}
	fmt.Fprintln(out)
	if n := r.WarningCount(); n > 0 {
		fmt.Fprintf(out, "   ⚠️  %d warnings\n", n)
	}
	fmt.Fprintf(out, "   Run: %s\n", r.RunID)
}

// readConfig loads configuration for the read-only commands.
func readConfig(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, log, err := readConfig(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	engine, err := openEngine(cfg.Target.DataDir, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	nodes, err := engine.NodeCount()
	if err != nil {
		return err
	}
	edges, err := engine.EdgeCount()
	if err != nil {
		return err
	}
	labels, err := engine.LabelCounts()
	if err != nil {
		return err
	}
	types, err := engine.EdgeTypeCounts()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📊 Store %s\n", cfg.Target.DataDir)
	fmt.Fprintf(out, "   Nodes:         %d\n", nodes)
	fmt.Fprintf(out, "   Relationships: %d\n", edges)

	if meta, err := engine.Metadata(); err == nil && meta.Complete {
		fmt.Fprintf(out, "   Run:           %s (%s, finished %s)\n",
			meta.RunID, meta.Duration().Round(time.Millisecond), meta.FinishedAt.Format(time.RFC3339))
	} else if err == nil {
		fmt.Fprintf(out, "   Run:           %s INCOMPLETE, aborted %s: %s\n",
			meta.RunID, meta.FinishedAt.Format(time.RFC3339), meta.Error)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	fmt.Fprintln(out, "\nLabels:")
	for _, lc := range labels {
		fmt.Fprintf(out, "   %-32s %d\n", lc.Label, lc.Count)
	}
	fmt.Fprintln(out, "\nRelationship types:")
	for _, lc := range types {
		fmt.Fprintf(out, "   %-32s %d\n", lc.Label, lc.Count)
	}

	sm := engine.GetSchema()
	fmt.Fprintln(out, "\nConstraints:")
	for _, c := range sm.GetConstraints() {
		fmt.Fprintf(out, "   %s %s (%s.%v)\n", c.Name, c.Type, c.Label, c.Properties)
	}
	fmt.Fprintln(out, "\nIndexes:")
	for _, idx := range sm.GetIndexStats() {
		fmt.Fprintf(out, "   %s (%s.%s) entries=%d selectivity=%.2f\n",
			idx.Name, idx.Label, idx.Property, idx.TotalEntries, idx.Selectivity)
	}
	return nil
}

// parseLookupValue matches integers numerically and everything else as a
// string.
func parseLookupValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return s
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, log, err := readConfig(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	label, _ := cmd.Flags().GetString("label")
	property, _ := cmd.Flags().GetString("property")
	value, _ := cmd.Flags().GetString("value")

	engine, err := openEngine(cfg.Target.DataDir, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	nodes, err := engine.FindNodesByProperty(label, property, parseLookupValue(value))
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if len(nodes) == 0 {
		return fmt.Errorf("no %s node with %s = %s", label, property, value)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	for _, n := range nodes {
		if err := enc.Encode(n); err != nil {
			return err
		}
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, log, err := readConfig(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	target, _ := cmd.Flags().GetString("out")
	ctx := cmd.Context()

	pub, err := publish.ForTarget(ctx, target, publish.S3Config{
		Region:    cfg.Export.S3Region,
		Endpoint:  cfg.Export.S3Endpoint,
		PathStyle: cfg.Export.S3PathStyle,
	})
	if err != nil {
		return err
	}

	engine, err := openEngine(cfg.Target.DataDir, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	var buf bytes.Buffer
	if err := engine.WriteNeo4jExport(&buf); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	location, err := pub.Publish(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return err
	}
	log.Info("export published", "location", location, "bytes", buf.Len())
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Exported to %s\n", location)
	return nil
}
