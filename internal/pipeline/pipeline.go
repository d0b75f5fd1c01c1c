// Package pipeline runs the two-pass extraction: pass 1 indexes node
// coordinates into the node store, pass 2 filters elements, resolves way
// refs, builds geometries and streams feature rows to the sink.
//
// Pass 2 fans out across workers; rows funnel through a single sink
// goroutine so sinks never see concurrent writes. When the table needs no
// way geometry the node store and pass 1 are skipped entirely.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmextract/internal/config"
	"github.com/wegman-software/osmextract/internal/geometry"
	"github.com/wegman-software/osmextract/internal/logger"
	"github.com/wegman-software/osmextract/internal/nodestore"
	"github.com/wegman-software/osmextract/internal/sink"
	"github.com/wegman-software/osmextract/internal/style"
)

const channelDepth = 10000

// chunkSize is the number of consecutive elements a pass-2 worker takes at
// once. PBF blocks carry up to 8000 entities, so a chunk never splits more
// than one block boundary.
const chunkSize = 8000

// Pipeline wires a source, a compiled table and a sink into a run.
type Pipeline struct {
	cfg   *config.Config
	table *style.Table
	src   Source
	out   sink.Sink

	stats Stats
}

func New(cfg *config.Config, table *style.Table, src Source, out sink.Sink) *Pipeline {
	return &Pipeline{cfg: cfg, table: table, src: src, out: out}
}

// Run executes the extraction and finishes the sink. A decode error on any
// block aborts the whole run; an unresolvable way ref does not, it only
// increments the unresolved-refs count in the summary.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	log := logger.Get()

	var reader nodestore.Reader
	if p.table.NeedsWayGeometry() {
		mode, reason := config.ResolveCacheMode(p.cfg.CacheMode, p.cfg.InputFile)
		log.Info("Pass 1: Indexing node coordinates", zap.String("cache", reason))

		start := time.Now()
		r, err := p.runPass1(ctx, mode)
		if err != nil {
			return nil, err
		}
		reader = r
		defer reader.Close()
		p.stats.Pass1Duration = time.Since(start)
		log.Info("Pass 1 complete",
			zap.Int64("nodes", p.stats.NodesIndexed.Load()),
			zap.Duration("duration", p.stats.Pass1Duration.Round(time.Millisecond)))
	} else {
		log.Info("Table needs no way geometry; skipping the node indexing pass")
	}

	log.Info("Pass 2: Extracting features", zap.String("table", p.table.Name))
	start := time.Now()
	if err := p.runPass2(ctx, reader); err != nil {
		return nil, err
	}
	p.stats.Pass2Duration = time.Since(start)

	if err := p.out.Finish(); err != nil {
		return nil, fmt.Errorf("failed to finish output: %w", err)
	}

	summary := p.stats.Summary()
	log.Info("Pass 2 complete",
		zap.Int64("features", summary.Features),
		zap.Int64("unresolved_refs", summary.UnresolvedRefs),
		zap.Duration("duration", p.stats.Pass2Duration.Round(time.Millisecond)))
	return summary, nil
}

// runPass1 scans nodes into a fresh store and finalizes it. The store is
// closed (and its temp files removed) on every error path.
func (p *Pipeline) runPass1(ctx context.Context, mode config.CacheMode) (nodestore.Reader, error) {
	store, err := nodestore.New(mode, nodestore.Options{
		Path:     p.cfg.CachePath,
		MaxNodes: p.cfg.CacheMaxNodes,
	})
	if err != nil {
		return nil, err
	}

	sc, err := p.src.Open(ctx, ScanOptions{Nodes: true})
	if err != nil {
		store.Close()
		return nil, err
	}
	defer sc.Close()

	stop := p.startProgress(ctx, "Node indexing", &p.stats.NodesIndexed)
	defer stop()

	if nodestore.OrderIndependent(mode) {
		err = p.indexParallel(ctx, sc, store)
	} else {
		err = p.indexSequential(ctx, sc, store)
	}
	if err == nil {
		err = scanErr(sc)
	}
	if err != nil {
		store.Close()
		return nil, err
	}

	reader, err := store.Finalize()
	if err != nil {
		return nil, err
	}
	return reader, nil
}

func (p *Pipeline) indexSequential(ctx context.Context, sc Scanner, store nodestore.Store) error {
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, ok := sc.Object().(*osm.Node)
		if !ok {
			continue
		}
		if err := store.Put(int64(n.ID), n.Lat, n.Lon); err != nil {
			return err
		}
		p.stats.NodesIndexed.Add(1)
	}
	return nil
}

// indexParallel spreads Puts across workers. Only used for backends whose
// Put is safe for concurrent distinct ids.
func (p *Pipeline) indexParallel(ctx context.Context, sc Scanner, store nodestore.Store) error {
	g, ctx := errgroup.WithContext(ctx)
	nodes := make(chan *osm.Node, channelDepth)

	for i := 0; i < p.workers(); i++ {
		g.Go(func() error {
			for n := range nodes {
				if err := store.Put(int64(n.ID), n.Lat, n.Lon); err != nil {
					return err
				}
				p.stats.NodesIndexed.Add(1)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(nodes)
		for sc.Scan() {
			n, ok := sc.Object().(*osm.Node)
			if !ok {
				continue
			}
			select {
			case nodes <- n:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

// runPass2 scans all elements, matches them against the table filter and
// streams feature rows to the sink through a single writer goroutine.
//
// The unit of parallel work is a chunk of consecutive elements. A worker
// builds a chunk's rows in element order and forwards them as one batch, so
// row order within a chunk follows the input; only order across chunks is
// left to scheduling.
func (p *Pipeline) runPass2(ctx context.Context, reader nodestore.Reader) error {
	sc, err := p.src.Open(ctx, ScanOptions{
		Nodes: p.table.NodeGeometry,
		Ways:  p.table.NeedsWayGeometry(),
	})
	if err != nil {
		return err
	}
	defer sc.Close()

	stop := p.startProgress(ctx, "Feature extraction", &p.stats.Features)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	chunks := make(chan []osm.Object, p.workers())
	rows := make(chan []*sink.FeatureRow, p.workers())

	// Workers get their own waitgroup so rows can close once they are all
	// done, independent of the scan and sink goroutines.
	var workers sync.WaitGroup
	log := logger.Get()
	for i := 0; i < p.workers(); i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			builder := newRowBuilder(p.table, p.cfg.AllTags, log)
			defer builder.close()
			for chunk := range chunks {
				batch := make([]*sink.FeatureRow, 0, len(chunk))
				for _, obj := range chunk {
					if row, ok := p.process(builder, obj, reader); ok {
						batch = append(batch, row)
					}
				}
				if len(batch) == 0 {
					continue
				}
				select {
				case rows <- batch:
					p.stats.Features.Add(int64(len(batch)))
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(rows)
	}()

	g.Go(func() error {
		defer close(chunks)
		chunk := make([]osm.Object, 0, chunkSize)
		flush := func() error {
			if len(chunk) == 0 {
				return nil
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
			chunk = make([]osm.Object, 0, chunkSize)
			return nil
		}
		for sc.Scan() {
			chunk = append(chunk, sc.Object())
			if len(chunk) == chunkSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := flush(); err != nil {
			return err
		}
		return scanErr(sc)
	})

	g.Go(func() error {
		for batch := range rows {
			for _, row := range batch {
				if err := p.out.AddFeature(row); err != nil {
					return fmt.Errorf("failed to write feature: %w", err)
				}
			}
		}
		return nil
	})

	return g.Wait()
}

// process turns one element into a feature row, or reports it filtered out.
func (p *Pipeline) process(builder *rowBuilder, obj osm.Object, reader nodestore.Reader) (*sink.FeatureRow, bool) {
	switch el := obj.(type) {
	case *osm.Node:
		if !p.table.NodeGeometry {
			return nil, false
		}
		tags := el.Tags.Map()
		if !p.table.Filter.Matches(tags) {
			return nil, false
		}
		geom := geometry.NodePoint(el.Lat, el.Lon)
		return builder.build(geom, tags, nodeMeta(el), nil), true

	case *osm.Way:
		if !p.table.NeedsWayGeometry() {
			return nil, false
		}
		tags := el.Tags.Map()
		if !p.table.Filter.Matches(tags) {
			return nil, false
		}

		refs := make([]int64, len(el.Nodes))
		points := make([]orb.Point, 0, len(el.Nodes))
		for i, wn := range el.Nodes {
			refs[i] = int64(wn.ID)
			lat, lon, ok := reader.Get(int64(wn.ID))
			if !ok {
				p.stats.UnresolvedRefs.Add(1)
				continue
			}
			points = append(points, orb.Point{lon, lat})
		}

		geom, ok := geometry.Way(points, p.table.Way, p.table.ClosedWayMode)
		if !ok {
			p.stats.WaysDropped.Add(1)
			return nil, false
		}
		return builder.build(geom, tags, wayMeta(el), refs), true

	default:
		return nil, false
	}
}

func (p *Pipeline) workers() int {
	if p.cfg.Workers > 0 {
		return p.cfg.Workers
	}
	return 1
}

func scanErr(sc Scanner) error {
	if err := sc.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("input decode failed: %w", err)
	}
	return nil
}
