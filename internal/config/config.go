package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// DenseThresholdBytes is the input size above which auto mode picks the
// dense node cache (planet/continent extracts).
const DenseThresholdBytes = 5 * 1024 * 1024 * 1024

// DefaultMaxNodes bounds the dense cache address space. OSM has roughly
// 10B nodes as of 2025; generous headroom avoids a prepass id scan.
const DefaultMaxNodes = 16_000_000_000

// CacheMode selects the node coordinate cache backend.
type CacheMode int

const (
	// CacheAuto selects sparse or dense from the input file size.
	CacheAuto CacheMode = iota
	// CacheSparse is a disk-backed sorted array; needs sorted node ids.
	CacheSparse
	// CacheDense is a direct-addressed memory-mapped sparse file.
	CacheDense
	// CacheMemory is an in-process hash map with no disk footprint.
	CacheMemory
)

// String returns the mode's flag spelling.
func (m CacheMode) String() string {
	switch m {
	case CacheAuto:
		return "auto"
	case CacheSparse:
		return "sparse"
	case CacheDense:
		return "dense"
	case CacheMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// ParseCacheMode parses a node cache mode string.
// "mmap" is accepted as an alias for dense.
func ParseCacheMode(s string) (CacheMode, error) {
	switch strings.ToLower(s) {
	case "auto":
		return CacheAuto, nil
	case "sparse":
		return CacheSparse, nil
	case "dense", "mmap":
		return CacheDense, nil
	case "memory":
		return CacheMemory, nil
	default:
		return CacheAuto, fmt.Errorf("invalid node cache mode %q (want auto, sparse, dense or memory)", s)
	}
}

// ResolveCacheMode turns auto into a concrete mode based on the input file
// size, returning the resolved mode and a human-readable description.
func ResolveCacheMode(requested CacheMode, inputPath string) (CacheMode, string) {
	if requested != CacheAuto {
		return requested, requested.String()
	}

	var size int64
	if info, err := os.Stat(inputPath); err == nil {
		size = info.Size()
	}
	sizeGB := float64(size) / (1024 * 1024 * 1024)

	if size >= DenseThresholdBytes {
		return CacheDense, fmt.Sprintf("dense (auto-selected for %.1f GB input)", sizeGB)
	}
	return CacheSparse, fmt.Sprintf("sparse (auto-selected for %.1f GB input)", sizeGB)
}

// Config holds the global configuration for an extraction run.
type Config struct {
	// Input settings
	InputFile  string
	FilterFile string // Path to table/filter YAML

	// Output settings
	OutputPath string // File path, or "-" for stdout (geojsonl only)
	Format     string // geojson, geojsonl, geoparquet, postgres; empty = detect

	// Node cache settings
	CacheMode     CacheMode
	CachePath     string // Explicit dense cache file (kept after the run)
	CacheMaxNodes int64  // Upper bound on node ids (dense) / count (memory)

	// Database settings (postgres sink)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSchema   string

	// Processing settings
	Workers   int
	BatchSize int // Rows per sink batch / parquet row group

	// Feature flags
	AllTags bool // Include the full tag map in the extras bag
	Verbose bool

	// Logging and metrics
	LogFile         string
	MetricsInterval time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CacheMode:     CacheAuto,
		CacheMaxNodes: DefaultMaxNodes,
		DBHost:        "localhost",
		DBPort:        5432,
		DBName:        "osm",
		DBUser:        "postgres",
		DBSchema:      "public",
		Workers:       runtime.NumCPU(),
		BatchSize:     10000,
	}
}

// ConnectionString returns a PostgreSQL connection string for the postgres sink.
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if c.FilterFile == "" {
		return fmt.Errorf("filter configuration file is required")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if c.CacheMaxNodes < 1 {
		return fmt.Errorf("node cache max nodes must be positive")
	}
	return nil
}

// DetectFormat infers the output format from the output path extension.
// Returns an empty string when the extension is not recognized.
func DetectFormat(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	switch strings.ToLower(path[idx+1:]) {
	case "geojson":
		return "geojson"
	case "geojsonl", "jsonl", "ndjson":
		return "geojsonl"
	case "parquet":
		return "geoparquet"
	default:
		return ""
	}
}
