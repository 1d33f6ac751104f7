// Command lantern-indexd builds external HNSW indexes for Postgres tables,
// either as a one-shot CLI build or as a daemon that services job rows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/lanterndata/lantern-indexd/internal/buildrun"
	"github.com/lanterndata/lantern-indexd/internal/config"
	"github.com/lanterndata/lantern-indexd/internal/hnswindex"
	"github.com/lanterndata/lantern-indexd/internal/jobcontroller"
	"github.com/lanterndata/lantern-indexd/internal/logger"
)

var (
	flagURI        string
	flagTable      string
	flagColumn     string
	flagMetricKind string
	flagM          int
	flagEFC        int
	flagEF         int
	flagDims       int
	flagOut        string
	flagIndexName  string
	flagPQ         bool

	rootCmd = &cobra.Command{
		Use:   "lantern-indexd",
		Short: "External HNSW index builder for Postgres",
	}
)

func main() {
	rootCmd.AddCommand(buildCmd(), daemonCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a single index and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&flagURI, "uri", "", "Postgres connection URI (overrides LANTERN_INDEXD_POSTGRES_DSN)")
	cmd.Flags().StringVar(&flagTable, "table", "", "target table (required)")
	cmd.Flags().StringVar(&flagColumn, "column", "", "target vector column (required)")
	cmd.Flags().StringVar(&flagMetricKind, "metric-kind", "l2sq", "distance metric: l2sq, cos, or hamming")
	cmd.Flags().IntVar(&flagM, "m", 16, "max neighbors per node")
	cmd.Flags().IntVar(&flagEFC, "efc", 128, "ef_construction")
	cmd.Flags().IntVar(&flagEF, "ef", 64, "ef")
	cmd.Flags().IntVar(&flagDims, "dims", 0, "vector dimension (0 infers from the first row)")
	cmd.Flags().StringVar(&flagOut, "out", "", "server-visible directory the index file is exported to (overrides LANTERN_INDEXD_SERVER_SCRATCH_DIR)")
	cmd.Flags().StringVar(&flagIndexName, "index-name", "", "index name (empty lets Postgres pick one)")
	cmd.Flags().BoolVar(&flagPQ, "pq", false, "enable product quantization")

	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("column")

	return cmd
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the job controller, servicing index-build jobs as they're inserted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

func runBuild(ctx context.Context) error {
	log := logger.New("lantern-indexd")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		return err
	}

	dsn := cfg.PostgresDSN
	if flagURI != "" {
		dsn = flagURI
	}
	serverDir := cfg.ServerPath
	if flagOut != "" {
		serverDir = flagOut
	}

	metric, err := hnswindex.ParseMetric(flagMetricKind)
	if err != nil {
		return err
	}

	idxCfg := hnswindex.Config{
		Dim:            flagDims,
		Metric:         metric,
		M:              flagM,
		EFConstruction: flagEFC,
		EF:             flagEF,
		PQ:             flagPQ,
	}
	if err := idxCfg.Validate(); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", config.DisplayName(dsn), err)
	}
	defer pool.Close()

	req := buildrun.Request{
		Table:      flagTable,
		Column:     flagColumn,
		IndexName:  flagIndexName,
		ScratchDir: cfg.ScratchDir,
		ServerDir:  serverDir,
		Config:     idxCfg,
	}

	return buildrun.Run(ctx, pool, req, log)
}

func runDaemon(ctx context.Context) error {
	log := logger.New("lantern-indexd-daemon")

	cfg, err := config.New()
	if err != nil {
		return err
	}

	log.Info().Str("db", config.DisplayName(cfg.PostgresDSN)).Str("channel", cfg.NotifyChannel).Msg("starting daemon")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", config.DisplayName(cfg.PostgresDSN), err)
	}
	defer pool.Close()

	build := buildrun.Builder(cfg.ScratchDir, cfg.ServerPath, log)
	controller := jobcontroller.New(pool, cfg.NotifyChannel, build, log)

	err = controller.Run(ctx)
	if ctx.Err() != nil {
		log.Info().Msg("daemon stopped")
		return nil
	}
	return err
}
