package storage

import (
	"sort"

	"github.com/sajjad-MoBe/lsmstore/internal/record"
)

// MemTable is the in-memory buffer of writes that have not been flushed yet.
// It is not safe for concurrent use; the Engine serializes access to it.
type MemTable struct {
	data map[string][]byte
	size int64
}

// NewMemTable creates an empty MemTable
func NewMemTable() *MemTable {
	return &MemTable{
		data: make(map[string][]byte),
	}
}

// Put inserts or overwrites key. The table keeps its own copy of the value.
func (m *MemTable) Put(key, value []byte) {
	k := string(key)
	if old, exists := m.data[k]; exists {
		m.size -= int64(len(old))
	} else {
		m.size += int64(len(k))
	}

	v := make([]byte, len(value))
	copy(v, value)
	m.data[k] = v
	m.size += int64(len(v))
}

// Get returns the stored value for key
func (m *MemTable) Get(key []byte) ([]byte, bool) {
	v, ok := m.data[string(key)]
	return v, ok
}

// Len returns the number of distinct keys
func (m *MemTable) Len() int {
	return len(m.data)
}

// ApproximateSize returns the number of key and value bytes held
func (m *MemTable) ApproximateSize() int64 {
	return m.size
}

// SortedRecords returns every entry ordered by ascending byte-wise key.
// The table itself is left untouched.
func (m *MemTable) SortedRecords() []record.Record {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	// string comparison in Go is byte-wise
	sort.Strings(keys)

	records := make([]record.Record, len(keys))
	for i, k := range keys {
		records[i] = record.Record{Key: []byte(k), Value: m.data[k]}
	}
	return records
}
