package nodestore

import "fmt"

type memoryStore struct {
	nodes    map[int64][2]int32
	maxNodes int64
}

func newMemory(maxNodes int64) *memoryStore {
	return &memoryStore{
		nodes:    make(map[int64][2]int32),
		maxNodes: maxNodes,
	}
}

func (s *memoryStore) Put(id int64, lat, lon float64) error {
	if _, exists := s.nodes[id]; !exists && int64(len(s.nodes)) >= s.maxNodes {
		return fmt.Errorf("memory node cache exceeds the maximum of %d nodes; raise the node cache limit or use a disk-backed cache", s.maxNodes)
	}
	s.nodes[id] = [2]int32{toFixed(lon), toFixed(lat)}
	return nil
}

func (s *memoryStore) Finalize() (Reader, error) {
	return s, nil
}

func (s *memoryStore) Get(id int64) (float64, float64, bool) {
	rec, ok := s.nodes[id]
	if !ok {
		return 0, 0, false
	}
	return fromFixed(rec[1]), fromFixed(rec[0]), true
}

func (s *memoryStore) Close() error {
	s.nodes = nil
	return nil
}
