package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/intake-dedup/internal/config"
	"github.com/intake-dedup/internal/db"
	"github.com/intake-dedup/internal/debug"
	"github.com/intake-dedup/internal/dedup"
	"github.com/intake-dedup/internal/ingest"
	"github.com/intake-dedup/internal/match"
	"github.com/intake-dedup/internal/metrics"
	"github.com/intake-dedup/internal/patient"
	"github.com/intake-dedup/internal/reference"
	"github.com/intake-dedup/internal/store"
	"github.com/intake-dedup/internal/web"
)

// app carries what every subcommand needs once the root command has run
type app struct {
	configPath string
	debug      bool
	cfg        *config.Config
	logger     zerolog.Logger
}

func main() {
	rootCmd, a := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		a.logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{
		logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
	}

	rootCmd := &cobra.Command{
		Use:           "dedup",
		Short:         "Patient intake deduplication",
		Long:          `Cleans patient intake records and groups records describing the same person under one dedup_id`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default .env in the working directory); keys may carry the DEDUP_ prefix")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug output")

	// Add subcommands
	rootCmd.AddCommand(createRunCmd(a))
	rootCmd.AddCommand(createDBCmd(a))
	rootCmd.AddCommand(createServeCmd(a))
	rootCmd.AddCommand(createCheckReferenceCmd(a))

	return rootCmd, a
}

func (a *app) init(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Debug = true
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, cfg.Debug, stderr)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	debug.SetLogger(logger)
	return nil
}

// newLogger builds the process logger. Debug forces the debug level.
func newLogger(level, format string, debugMode bool, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log_level %q: %w", level, err)
	}
	if debugMode {
		lvl = zerolog.DebugLevel
	}

	out := w
	if strings.ToLower(format) == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

func (a *app) pipeline(table *reference.Table, m *metrics.Metrics) (*dedup.Pipeline, error) {
	return dedup.NewPipeline(dedup.Config{
		Table: table,
		Thresholds: match.Thresholds{
			Similarity: a.cfg.SimilarityThreshold,
			Match:      a.cfg.MatchThreshold,
		},
		Workers: a.cfg.Workers,
		Metrics: m,
		Logger:  &a.logger,
		Debug:   a.cfg.Debug,
	})
}

func (a *app) connect(ctx context.Context) (*db.Connection, error) {
	conn, err := db.NewConnection(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Msg("connected to database")
	return conn, nil
}

// loadReference reads the reference table from the database or from path,
// falling back to the configured reference file
func (a *app) loadReference(ctx context.Context, fromDB bool, path string) (*reference.Table, error) {
	if fromDB {
		conn, err := a.connect(ctx)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		return store.New(conn.DB).LoadReference(ctx)
	}
	if path == "" {
		path = a.cfg.ReferenceFile
	}
	return reference.LoadFile(path)
}

// createRunCmd creates the batch dedup subcommand
func createRunCmd(a *app) *cobra.Command {
	var (
		input         string
		output        string
		referencePath string
		matchesPath   string
		fromDB        bool
		save          bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deduplicate a batch of intake records",
		Long:  `Reads records from CSV (or patient_intake with --from-db), deduplicates them and writes them back out with a dedup_id column`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if input == "" && !fromDB {
				return fmt.Errorf("either --input or --from-db is required")
			}

			table, err := a.loadReference(ctx, fromDB && referencePath == "", referencePath)
			if err != nil {
				return err
			}

			var conn *db.Connection
			if fromDB || save {
				conn, err = a.connect(ctx)
				if err != nil {
					return err
				}
				defer conn.Close()
			}

			var records []patient.Record
			if fromDB {
				records, err = store.New(conn.DB).LoadRecords(ctx)
			} else {
				records, _, err = ingest.NewImporter(a.logger).ReadFile(input)
			}
			if err != nil {
				return err
			}

			pipeline, err := a.pipeline(table, metrics.New(prometheus.NewRegistry()))
			if err != nil {
				return err
			}
			res, err := pipeline.Run(ctx, records)
			if err != nil {
				return err
			}

			if output == "-" {
				err = ingest.Write(cmd.OutOrStdout(), res.Records)
			} else {
				err = ingest.WriteFile(output, res.Records)
			}
			if err != nil {
				return err
			}

			if matchesPath != "" {
				if err := writeMatches(matchesPath, res.Matches); err != nil {
					return err
				}
			}

			if save {
				id, err := store.New(conn.DB).SaveRun(ctx, store.RunOf(res.Stats, pipeline.Thresholds(), time.Now()), res.Records)
				if err != nil {
					return err
				}
				a.logger.Info().Str("run_id", id.String()).Msg("run saved")
			}

			for _, ps := range res.Stats.Passes {
				a.logger.Info().
					Str("pass", ps.Pass).
					Int("blocks", ps.Blocks).
					Int("candidates", ps.Candidates).
					Int("matches", ps.Matches).
					Msg("pass summary")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Record CSV to deduplicate")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output CSV, - for stdout")
	cmd.Flags().StringVar(&referencePath, "reference", "", "Reference CSV (default reference_file from config)")
	cmd.Flags().StringVar(&matchesPath, "matches", "", "Also write the matched pairs and their features to this CSV")
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "Read records and reference data from the database")
	cmd.Flags().BoolVar(&save, "save", false, "Store the run and its dedup ids in the database")

	return cmd
}

// writeMatches writes the evidence behind every matched pair: the pass that
// found it, its score and the comparisons that agreed
func writeMatches(path string, matches []match.Scored) error {
	passes := make(map[string]match.Pass)
	for _, p := range match.DefaultPasses() {
		passes[p.Name] = p
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	writer.Write([]string{"pass", "left", "right", "score", "agreeing"})
	for _, m := range matches {
		explained := passes[m.Pass].Explain(m)
		var agreeing []string
		for name, v := range explained {
			if v == 1 {
				agreeing = append(agreeing, name)
			}
		}
		sort.Strings(agreeing)

		writer.Write([]string{
			m.Pass,
			m.Left,
			m.Right,
			strconv.FormatFloat(m.Score, 'f', -1, 64),
			strings.Join(agreeing, "|"),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// createDBCmd creates database management commands
func createDBCmd(a *app) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the dedup tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := store.New(conn.DB).Migrate(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info().Msg("schema up to date")
			return nil
		},
	}

	loadReferenceCmd := &cobra.Command{
		Use:   "load-reference [csv]",
		Short: "Replace state_postcode with the rows of a reference CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := reference.LoadFile(args[0])
			if err != nil {
				return err
			}

			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := store.New(conn.DB).ReplaceReference(cmd.Context(), table.Intervals()); err != nil {
				return err
			}
			a.logger.Info().Int("intervals", len(table.Intervals())).Msg("reference loaded")
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import [csv]",
		Short: "Append intake records from a CSV to patient_intake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, stats, err := ingest.NewImporter(a.logger).ReadFile(args[0])
			if err != nil {
				return err
			}

			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			n, err := store.New(conn.DB).InsertRecords(cmd.Context(), records)
			if err != nil {
				return err
			}
			a.logger.Info().Int("inserted", n).Int("skipped", stats.Skipped).Msg("records imported")
			return nil
		},
	}

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			run, err := store.New(conn.DB).LatestRun(cmd.Context())
			if err != nil {
				a.logger.Info().Err(err).Msg("database connection successful")
				return nil
			}
			a.logger.Info().
				Str("latest_run", run.ID.String()).
				Time("finished_at", run.FinishedAt).
				Int("clusters", run.Clusters).
				Msg("database connection successful")
			return nil
		},
	}

	dbCmd.AddCommand(migrateCmd, loadReferenceCmd, importCmd, pingCmd)
	return dbCmd
}

// createServeCmd creates the HTTP API subcommand
func createServeCmd(a *app) *cobra.Command {
	var (
		referenceFromDB bool
		noDB            bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dedup HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if noDB && referenceFromDB {
				return fmt.Errorf("--reference-from-db needs a database")
			}

			table, err := a.loadReference(ctx, referenceFromDB, "")
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			pipeline, err := a.pipeline(table, metrics.New(reg))
			if err != nil {
				return err
			}

			opts := web.Options{
				Config:   a.cfg,
				Table:    table,
				Pipeline: pipeline,
				Gatherer: reg,
				Logger:   a.logger,
			}
			if !noDB {
				conn, err := a.connect(ctx)
				if err != nil {
					return err
				}
				defer conn.Close()

				st := store.New(conn.DB)
				if err := st.Migrate(ctx); err != nil {
					return err
				}
				opts.Store = st
				opts.DB = conn.DB
			}

			server, err := web.NewServer(opts)
			if err != nil {
				return err
			}
			return server.Start(ctx)
		},
	}

	cmd.Flags().BoolVar(&referenceFromDB, "reference-from-db", false, "Load the reference table from state_postcode")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "Serve without a database; runs are not persisted")

	return cmd
}

// createCheckReferenceCmd creates the reference table report
func createCheckReferenceCmd(a *app) *cobra.Command {
	var fromDB bool

	cmd := &cobra.Command{
		Use:   "check-reference [csv]",
		Short: "Validate a reference table and report postcodes shared between states",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			table, err := a.loadReference(cmd.Context(), fromDB, path)
			if err != nil {
				return err
			}
			return reportReference(cmd.OutOrStdout(), table)
		},
	}

	cmd.Flags().BoolVar(&fromDB, "from-db", false, "Check state_postcode instead of a CSV")
	return cmd
}

// reportReference prints interval counts per state and every postcode range
// registered for more than one state, which state inference leaves null
func reportReference(w io.Writer, table *reference.Table) error {
	intervals := table.Intervals()
	perState := make(map[string]int)
	for _, iv := range intervals {
		perState[iv.State]++
	}

	fmt.Fprintf(w, "%d intervals\n", len(intervals))
	for _, s := range reference.States {
		fmt.Fprintf(w, "  %-4s %d\n", s, perState[s])
	}

	var shared []string
	for i, a := range intervals {
		for _, b := range intervals[i+1:] {
			if a.State == b.State {
				continue
			}
			lo, hi := max(a.Min, b.Min), min(a.Max, b.Max)
			if lo <= hi {
				shared = append(shared, fmt.Sprintf("  %d-%d: %s, %s", lo, hi, a.State, b.State))
			}
		}
	}
	sort.Strings(shared)

	fmt.Fprintf(w, "%d shared ranges\n", len(shared))
	for _, line := range shared {
		fmt.Fprintln(w, line)
	}
	return nil
}
