package hostvm

import (
	"github.com/syndtr/goleveldb/leveldb/comparer"
	"github.com/syndtr/goleveldb/leveldb/memdb"
)

// Storage is a contract's key/value state held in an in-memory leveldb table.
type Storage struct {
	db *memdb.DB
}

func NewStorage() *Storage {
	return &Storage{db: memdb.New(comparer.DefaultComparer, 0)}
}

// Get returns a copy of the value under key. An absent key reads as empty.
func (s *Storage) Get(key []byte) []byte {
	v, err := s.db.Get(key)
	if err != nil {
		return []byte{}
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (s *Storage) Set(key, value []byte) {
	// memdb.Put has no failure path.
	_ = s.db.Put(key, value)
}

func (s *Storage) Has(key []byte) bool {
	return s.db.Contains(key)
}

func (s *Storage) Len() int {
	return s.db.Len()
}

// Snapshot returns every entry as strings, for assertions and reporting.
func (s *Storage) Snapshot() map[string]string {
	out := make(map[string]string, s.db.Len())
	it := s.db.NewIterator(nil)
	defer it.Release()
	for it.Next() {
		out[string(it.Key())] = string(it.Value())
	}
	return out
}
