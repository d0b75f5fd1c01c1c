package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmextract/internal/config"
	"github.com/wegman-software/osmextract/internal/logger"
	"github.com/wegman-software/osmextract/internal/metrics"
	"github.com/wegman-software/osmextract/internal/pipeline"
	"github.com/wegman-software/osmextract/internal/sink"
	"github.com/wegman-software/osmextract/internal/style"
)

var cacheModeFlag string

var extractCmd = &cobra.Command{
	Use:   "extract <input.osm.pbf>",
	Short: "Extract filtered features from a PBF file",
	Long: `Read an OSM PBF file and write the features matching the filter
configuration to the output.

The output format is inferred from the output path extension (.geojson,
.geojsonl, .parquet) unless --format is given. Use "-" as the output path
to stream newline-delimited GeoJSON to stdout.

When the table builds way geometries the file is read twice: pass one
indexes node coordinates, pass two assembles and writes features.`,
	Args: cobra.ExactArgs(1),
	Run:  runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&cfg.OutputPath, "output", "o", "", "Output path, or - for stdout (geojsonl)")
	extractCmd.Flags().StringVarP(&cfg.FilterFile, "filters", "f", "", "Path to the filter configuration YAML")
	extractCmd.Flags().StringVar(&cfg.Format, "format", "", "Output format: geojson, geojsonl, geoparquet, postgres (default: detect from extension)")
	extractCmd.Flags().StringVar(&cacheModeFlag, "node-cache-mode", "auto", "Node cache backend: auto, sparse, dense, memory")
	extractCmd.Flags().StringVar(&cfg.CachePath, "node-cache-path", "", "Dense cache file to create or reuse (default: temp file)")
	extractCmd.Flags().Int64Var(&cfg.CacheMaxNodes, "node-cache-max-nodes", cfg.CacheMaxNodes, "Upper bound on node ids in the cache")
	extractCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per sink batch / Parquet row group")
	extractCmd.Flags().BoolVar(&cfg.AllTags, "all-tags", false, "Include the full tag map in each feature's properties")
}

func runExtract(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.Get()
	defer logger.Sync()

	mode, err := config.ParseCacheMode(cacheModeFlag)
	if err != nil {
		exitWithError("invalid configuration", err)
	}
	cfg.CacheMode = mode

	if cfg.Format == "" && cfg.OutputPath == "-" {
		cfg.Format = "geojsonl"
	}
	if cfg.Format == "" {
		cfg.Format = config.DetectFormat(cfg.OutputPath)
		if cfg.Format == "" {
			exitWithError("cannot infer output format from path; pass --format", nil)
		}
	}

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	styleCfg, err := style.Load(cfg.FilterFile)
	if err != nil {
		exitWithError("failed to load filter configuration", err)
	}
	table, err := styleCfg.Compile()
	if err != nil {
		exitWithError("failed to compile filter configuration", err)
	}

	columns := make([]sink.ColumnSpec, len(table.Columns))
	for i, col := range table.Columns {
		columns[i] = sink.ColumnSpec{Name: col.Name, Type: col.Type}
	}

	opts := sink.Options{BatchSize: cfg.BatchSize}
	if cfg.Format == "postgres" {
		opts.Postgres = &sink.PostgresOptions{
			ConnString: cfg.ConnectionString(),
			Schema:     cfg.DBSchema,
			Table:      table.Name,
		}
	}
	out, err := sink.Open(cfg.Format, cfg.OutputPath, columns, opts)
	if err != nil {
		exitWithError("failed to open output", err)
	}

	log.Info("Starting extraction",
		zap.String("input", cfg.InputFile),
		zap.String("table", table.Name),
		zap.String("format", cfg.Format),
		zap.Int("workers", cfg.Workers),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(cfg.MetricsInterval, log)
		go collector.Start(ctx)
	}

	start := time.Now()
	src := &pipeline.FileSource{Path: cfg.InputFile, Procs: cfg.Workers}
	summary, err := pipeline.New(cfg, table, src, out).Run(ctx)
	if err != nil {
		exitWithError("extraction failed", err)
	}

	log.Info("Extraction complete",
		zap.Duration("duration", time.Since(start).Round(time.Second)),
		zap.Int64("features", summary.Features),
		zap.Int64("nodes_indexed", summary.NodesIndexed),
		zap.Int64("unresolved_refs", summary.UnresolvedRefs),
		zap.Int64("ways_dropped", summary.WaysDropped),
	)
}
