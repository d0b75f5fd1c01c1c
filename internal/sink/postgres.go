package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/osmextract/internal/ewkb"
	"github.com/wegman-software/osmextract/internal/logger"
	"github.com/wegman-software/osmextract/internal/style"
)

// PostgresOptions configure the PostGIS sink.
type PostgresOptions struct {
	ConnString string
	Schema     string
	Table      string
}

// Postgres writes features to a PostGIS table. Rows accumulate in batches
// and are bulk-loaded with COPY into a temp table, then inserted with
// geometry conversion. The table is created UNLOGGED for load speed and
// switched to logged at finish, when the spatial index is built.
type Postgres struct {
	pool      *pgxpool.Pool
	ctx       context.Context
	columns   []ColumnSpec
	batchSize int
	fullName  string
	shortName string
	enc       *ewkb.Encoder
	batch     [][]any
}

func NewPostgres(columns []ColumnSpec, batchSize int, opts PostgresOptions) (*Postgres, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	if opts.Table == "" {
		return nil, fmt.Errorf("postgres output requires a table name")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	s := &Postgres{
		pool:      pool,
		ctx:       ctx,
		columns:   columns,
		batchSize: batchSize,
		fullName:  fmt.Sprintf("%s.%s", opts.Schema, opts.Table),
		shortName: opts.Table,
		enc:       ewkb.NewEncoder(ewkb.SRID4326),
		batch:     make([][]any, 0, batchSize),
	}
	if err := s.prepare(ctx, opts.Schema); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) prepare(ctx context.Context, schema string) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if schema != "public" {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	var cols strings.Builder
	for _, col := range s.columns {
		fmt.Fprintf(&cols, "\t\t\t%s %s,\n", pgx.Identifier{col.Name}.Sanitize(), pgType(col.Type))
	}
	createSQL := fmt.Sprintf(`
		DROP TABLE IF EXISTS %s CASCADE;
		CREATE UNLOGGED TABLE %s (
%s			properties JSONB,
			geom GEOMETRY(Geometry, 4326)
		)
	`, s.fullName, s.fullName, cols.String())
	if _, err := s.pool.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func pgType(t style.ColumnType) string {
	switch t {
	case style.TypeInteger:
		return "BIGINT"
	case style.TypeFloat:
		return "DOUBLE PRECISION"
	case style.TypeBool:
		return "BOOLEAN"
	case style.TypeJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (s *Postgres) AddFeature(row *FeatureRow) error {
	geom, err := s.enc.Encode(row.Geometry)
	if err != nil {
		return err
	}
	geomCopy := make([]byte, len(geom))
	copy(geomCopy, geom)

	values := make([]any, 0, len(s.columns)+2)
	for _, col := range s.columns {
		values = append(values, pgValue(row.Columns[col.Name], col.Type))
	}
	extras := row.Extras
	if extras == nil {
		extras = map[string]any{}
	}
	props, err := json.Marshal(extras)
	if err != nil {
		return err
	}
	values = append(values, string(props), geomCopy)

	s.batch = append(s.batch, values)
	if len(s.batch) >= s.batchSize {
		return s.flush()
	}
	return nil
}

func pgValue(v any, t style.ColumnType) any {
	switch t {
	case style.TypeInteger:
		if n := coerceInt(v); n != nil {
			return *n
		}
	case style.TypeFloat:
		if f := coerceFloat(v); f != nil {
			return *f
		}
	case style.TypeBool:
		if b := coerceBool(v); b != nil {
			return *b
		}
	case style.TypeJSON:
		if v == nil {
			return nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		if str := coerceString(v); str != nil {
			return *str
		}
	}
	return nil
}

func (s *Postgres) flush() error {
	if len(s.batch) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(s.ctx)

	colNames := make([]string, 0, len(s.columns)+2)
	for _, col := range s.columns {
		colNames = append(colNames, col.Name)
	}
	colNames = append(colNames, "properties", "geom_ewkb")

	var cols strings.Builder
	for _, col := range s.columns {
		fmt.Fprintf(&cols, "\t\t\t%s %s,\n", pgx.Identifier{col.Name}.Sanitize(), pgType(col.Type))
	}
	tempSQL := fmt.Sprintf(`
		CREATE TEMP TABLE feature_load_tmp (
%s			properties TEXT,
			geom_ewkb BYTEA
		) ON COMMIT DROP
	`, cols.String())
	if _, err := tx.Exec(s.ctx, tempSQL); err != nil {
		return fmt.Errorf("failed to create temp table: %w", err)
	}

	if _, err := tx.CopyFrom(s.ctx, pgx.Identifier{"feature_load_tmp"}, colNames,
		pgx.CopyFromRows(s.batch)); err != nil {
		return fmt.Errorf("COPY failed: %w", err)
	}

	var insertCols strings.Builder
	for _, col := range s.columns {
		insertCols.WriteString(pgx.Identifier{col.Name}.Sanitize())
		insertCols.WriteString(", ")
	}
	insertSQL := fmt.Sprintf(`
		INSERT INTO %s (%sproperties, geom)
		SELECT %sproperties::jsonb, ST_GeomFromEWKB(geom_ewkb)
		FROM feature_load_tmp
	`, s.fullName, insertCols.String(), insertCols.String())
	if _, err := tx.Exec(s.ctx, insertSQL); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	if err := tx.Commit(s.ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	s.batch = s.batch[:0]
	return nil
}

func (s *Postgres) Finish() error {
	if err := s.flush(); err != nil {
		s.pool.Close()
		return err
	}

	log := logger.Get()
	if _, err := s.pool.Exec(s.ctx, fmt.Sprintf("ALTER TABLE %s SET LOGGED", s.fullName)); err != nil {
		log.Debug("Failed to set table logged", zap.Error(err))
	}
	idxSQL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_geom_idx ON %s USING GIST (geom)",
		s.shortName, s.fullName)
	if _, err := s.pool.Exec(s.ctx, idxSQL); err != nil {
		s.pool.Close()
		return fmt.Errorf("failed to create spatial index: %w", err)
	}
	if _, err := s.pool.Exec(s.ctx, fmt.Sprintf("ANALYZE %s", s.fullName)); err != nil {
		log.Debug("Failed to analyze table", zap.Error(err))
	}

	s.pool.Close()
	return nil
}
