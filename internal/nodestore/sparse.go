package nodestore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

type sparseStore struct {
	file    *os.File
	w       *bufio.Writer
	count   int64
	lastID  int64
	hasLast bool
}

func newSparse() (*sparseStore, error) {
	f, err := os.CreateTemp("", "osmextract-sparse-*.cache")
	if err != nil {
		return nil, fmt.Errorf("failed to create sparse cache file: %w", err)
	}
	return &sparseStore{
		file: f,
		w:    bufio.NewWriterSize(f, 1<<20),
	}, nil
}

// Put appends an entry. IDs must arrive in non-decreasing order; repeating
// an id is allowed, and the last entry written for it wins on Get.
func (s *sparseStore) Put(id int64, lat, lon float64) error {
	if s.hasLast && id < s.lastID {
		return fmt.Errorf("node IDs are out of order for sparse cache; run `osmium sort` to sort by type then id")
	}
	s.lastID = id
	s.hasLast = true
	s.count++

	var buf [sparseEntrySize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(id))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(toFixed(lon)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(toFixed(lat)))
	_, err := s.w.Write(buf[:])
	return err
}

func (s *sparseStore) Finalize() (Reader, error) {
	if err := s.w.Flush(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to flush sparse cache: %w", err)
	}

	info, err := s.file.Stat()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to stat sparse cache: %w", err)
	}
	if info.Size()%sparseEntrySize != 0 {
		s.Close()
		return nil, fmt.Errorf("sparse cache file size %d is not aligned to entry size", info.Size())
	}
	if got := info.Size() / sparseEntrySize; got != s.count {
		s.Close()
		return nil, fmt.Errorf("sparse cache entry count mismatch: wrote %d, file has %d", s.count, got)
	}

	r := &sparseReader{file: s.file, count: s.count}
	if s.count > 0 {
		m, err := mmap.Map(s.file, mmap.RDONLY, 0)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to map sparse cache: %w", err)
		}
		r.data = m
	}
	return r, nil
}

func (s *sparseStore) Close() error {
	name := s.file.Name()
	err := s.file.Close()
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	return err
}

type sparseReader struct {
	file  *os.File
	data  mmap.MMap
	count int64
}

// Get binary-searches the sorted entries. With duplicate ids the last
// entry written wins.
func (r *sparseReader) Get(id int64) (float64, float64, bool) {
	// Upper bound: first index whose id is greater than the target.
	lo, hi := int64(0), r.count
	for lo < hi {
		mid := lo + (hi-lo)/2
		off := mid * sparseEntrySize
		if int64(binary.LittleEndian.Uint64(r.data[off:off+8])) <= id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return 0, 0, false
	}
	off := (lo - 1) * sparseEntrySize
	entry := r.data[off : off+sparseEntrySize]
	if int64(binary.LittleEndian.Uint64(entry[0:8])) != id {
		return 0, 0, false
	}
	lon := fromFixed(int32(binary.LittleEndian.Uint32(entry[8:12])))
	lat := fromFixed(int32(binary.LittleEndian.Uint32(entry[12:16])))
	return lat, lon, true
}

func (r *sparseReader) Close() error {
	var err error
	if r.data != nil {
		err = r.data.Unmap()
		r.data = nil
	}
	name := r.file.Name()
	if closeErr := r.file.Close(); err == nil {
		err = closeErr
	}
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	return err
}
