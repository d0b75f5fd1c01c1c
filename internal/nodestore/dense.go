package nodestore

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// denseStore direct-addresses a sparse file: node id n owns the 8 bytes at
// offset n*8. The file is truncated to maxNodes*8 up front; filesystems
// allocate blocks lazily, so the on-disk footprint tracks the actual id
// density, not the declared maximum.
type denseStore struct {
	file          *os.File
	data          mmap.MMap
	maxNodes      int64
	removeOnClose bool
}

func newDense(path string, maxNodes int64) (*denseStore, error) {
	var f *os.File
	var err error
	remove := false
	if path == "" {
		f, err = os.CreateTemp("", "osmextract-dense-*.cache")
		remove = true
	} else {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create dense cache file: %w", err)
	}

	if err := f.Truncate(maxNodes * recordSize); err != nil {
		f.Close()
		if remove {
			os.Remove(f.Name())
		}
		return nil, fmt.Errorf("failed to size dense cache file: %w", err)
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		if remove {
			os.Remove(f.Name())
		}
		return nil, fmt.Errorf("failed to map dense cache file: %w", err)
	}

	return &denseStore{file: f, data: m, maxNodes: maxNodes, removeOnClose: remove}, nil
}

// Put is safe to call concurrently for distinct ids: each id writes a
// disjoint byte range of the map.
func (s *denseStore) Put(id int64, lat, lon float64) error {
	if id < 0 || id >= s.maxNodes {
		return fmt.Errorf("node ID %d exceeds the cache maximum of %d nodes; raise the node cache limit or use the memory cache", id, s.maxNodes)
	}
	off := id * recordSize
	binary.LittleEndian.PutUint32(s.data[off:off+4], uint32(toFixed(lon)))
	binary.LittleEndian.PutUint32(s.data[off+4:off+8], uint32(toFixed(lat)))
	return nil
}

func (s *denseStore) Finalize() (Reader, error) {
	if err := s.data.Flush(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to flush dense cache: %w", err)
	}
	if err := s.data.Unmap(); err != nil {
		s.data = nil
		s.Close()
		return nil, fmt.Errorf("failed to unmap dense cache: %w", err)
	}
	s.data = nil

	m, err := mmap.Map(s.file, mmap.RDONLY, 0)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to remap dense cache read-only: %w", err)
	}
	return &denseReader{
		file:          s.file,
		data:          m,
		maxNodes:      s.maxNodes,
		removeOnClose: s.removeOnClose,
	}, nil
}

func (s *denseStore) Close() error {
	var err error
	if s.data != nil {
		err = s.data.Unmap()
		s.data = nil
	}
	name := s.file.Name()
	if closeErr := s.file.Close(); err == nil {
		err = closeErr
	}
	if s.removeOnClose {
		if rmErr := os.Remove(name); err == nil {
			err = rmErr
		}
	}
	return err
}

type denseReader struct {
	file          *os.File
	data          mmap.MMap
	maxNodes      int64
	removeOnClose bool
}

func (r *denseReader) Get(id int64) (float64, float64, bool) {
	if id < 0 || id >= r.maxNodes {
		return 0, 0, false
	}
	off := id * recordSize
	lonFixed := int32(binary.LittleEndian.Uint32(r.data[off : off+4]))
	latFixed := int32(binary.LittleEndian.Uint32(r.data[off+4 : off+8]))
	// An untouched record is all zeros. A real node at exactly (0, 0) is
	// indistinguishable from a hole and reads as missing.
	if lonFixed == 0 && latFixed == 0 {
		return 0, 0, false
	}
	return fromFixed(latFixed), fromFixed(lonFixed), true
}

func (r *denseReader) Close() error {
	var err error
	if r.data != nil {
		err = r.data.Unmap()
		r.data = nil
	}
	name := r.file.Name()
	if closeErr := r.file.Close(); err == nil {
		err = closeErr
	}
	if r.removeOnClose {
		if rmErr := os.Remove(name); err == nil {
			err = rmErr
		}
	}
	return err
}
