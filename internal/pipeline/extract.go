package pipeline

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osmextract/internal/expr"
	"github.com/wegman-software/osmextract/internal/sink"
	"github.com/wegman-software/osmextract/internal/style"
)

// rowBuilder turns a matched element into a feature row. One per worker:
// the Lua evaluator it may hold is not safe for concurrent use.
type rowBuilder struct {
	table   *style.Table
	allTags bool
	eval    *expr.Evaluator
	log     *zap.Logger
}

func newRowBuilder(table *style.Table, allTags bool, log *zap.Logger) *rowBuilder {
	b := &rowBuilder{table: table, allTags: allTags, log: log}
	for _, col := range table.Columns {
		if col.Source.Kind == style.SourceExpr {
			b.eval = expr.NewEvaluator()
			break
		}
	}
	return b
}

func (b *rowBuilder) close() {
	if b.eval != nil {
		b.eval.Close()
	}
}

func (b *rowBuilder) build(geom orb.Geometry, tags map[string]string, meta map[string]any, refs []int64) *sink.FeatureRow {
	columns := make(map[string]any, len(b.table.Columns))
	for _, col := range b.table.Columns {
		if v, ok := b.extract(col, tags, meta, refs); ok {
			columns[col.Name] = v
		}
	}

	row := &sink.FeatureRow{Geometry: geom, Columns: columns}
	if b.allTags {
		tagsObj := make(map[string]any, len(tags))
		for k, v := range tags {
			tagsObj[k] = v
		}
		row.Extras = map[string]any{"tags": tagsObj}
	}
	return row
}

// extract resolves one column. ok == false means the column is absent for
// this element and renders as null.
func (b *rowBuilder) extract(col style.Column, tags map[string]string, meta map[string]any, refs []int64) (any, bool) {
	switch col.Source.Kind {
	case style.SourceTag:
		v, ok := tags[col.Source.Key]
		return v, ok
	case style.SourceMeta:
		v, ok := meta[col.Source.Key]
		return v, ok
	case style.SourceAllTags:
		obj := make(map[string]any, len(tags))
		for k, v := range tags {
			obj[k] = v
		}
		return obj, true
	case style.SourceAllMeta:
		return meta, true
	case style.SourceRefs:
		if refs == nil {
			return nil, false
		}
		return refs, true
	case style.SourceMapping:
		v, ok := col.Source.Mapping.Classify(tags)
		return v, ok
	case style.SourceExpr:
		v, err := b.eval.Eval(col.Source.Program, tags, meta)
		if err != nil {
			b.log.Debug("Column expression failed", zap.String("column", col.Name), zap.Error(err))
			return nil, false
		}
		return v, v != nil
	default:
		return nil, false
	}
}

// nodeMeta collects a node's metadata. Zero values mean the field was not
// present in the input and stay absent.
func nodeMeta(n *osm.Node) map[string]any {
	return elementMeta(int64(n.ID), n.Visible, n.Version, int64(n.ChangesetID), n.Timestamp, int64(n.UserID), n.User)
}

func wayMeta(w *osm.Way) map[string]any {
	return elementMeta(int64(w.ID), w.Visible, w.Version, int64(w.ChangesetID), w.Timestamp, int64(w.UserID), w.User)
}

func elementMeta(id int64, visible bool, version int, changeset int64, ts time.Time, uid int64, user string) map[string]any {
	m := map[string]any{
		"id":      id,
		"visible": visible,
	}
	if version != 0 {
		m["version"] = int64(version)
	}
	if changeset != 0 {
		m["changeset"] = changeset
	}
	if !ts.IsZero() {
		m["timestamp"] = ts.UTC().Format(time.RFC3339)
	}
	if uid != 0 {
		m["uid"] = uid
	}
	if user != "" {
		m["user"] = user
	}
	return m
}
