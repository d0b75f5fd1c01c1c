package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
)

// ScanOptions select which element kinds a scan decodes. Skipping kinds the
// pass does not need avoids decoding whole blocks.
type ScanOptions struct {
	Nodes bool
	Ways  bool
}

// Scanner iterates elements of one scan. The usual loop:
//
//	for sc.Scan() { obj := sc.Object() ... }
//	err := sc.Err()
type Scanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

// Source produces element scans. Each pass opens a fresh scan from the
// start of the input.
type Source interface {
	Open(ctx context.Context, opts ScanOptions) (Scanner, error)
}

// FileSource scans a PBF file, decoding blocks on procs goroutines.
type FileSource struct {
	Path  string
	Procs int
}

func (s *FileSource) Open(ctx context.Context, opts ScanOptions) (Scanner, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	procs := s.Procs
	if procs <= 0 {
		procs = 1
	}
	sc := osmpbf.New(ctx, f, procs)
	sc.SkipNodes = !opts.Nodes
	sc.SkipWays = !opts.Ways
	sc.SkipRelations = true
	return &fileScanner{Scanner: sc, file: f}, nil
}

type fileScanner struct {
	*osmpbf.Scanner
	file *os.File
}

func (s *fileScanner) Close() error {
	err := s.Scanner.Close()
	if closeErr := s.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// SliceSource replays a fixed element sequence, for tests.
type SliceSource struct {
	Objects []osm.Object
}

func (s *SliceSource) Open(_ context.Context, opts ScanOptions) (Scanner, error) {
	return &sliceScanner{objects: s.Objects, opts: opts, pos: -1}, nil
}

type sliceScanner struct {
	objects []osm.Object
	opts    ScanOptions
	pos     int
}

func (s *sliceScanner) Scan() bool {
	for s.pos+1 < len(s.objects) {
		s.pos++
		switch s.objects[s.pos].(type) {
		case *osm.Node:
			if s.opts.Nodes {
				return true
			}
		case *osm.Way:
			if s.opts.Ways {
				return true
			}
		}
	}
	return false
}

func (s *sliceScanner) Object() osm.Object { return s.objects[s.pos] }
func (s *sliceScanner) Err() error         { return nil }
func (s *sliceScanner) Close() error       { return nil }
