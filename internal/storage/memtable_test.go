package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemTableSetGet(t *testing.T) {
	table := NewMemTable()

	table.Put([]byte("test-key"), []byte("test-value"))

	got, found := table.Get([]byte("test-key"))
	assert.True(t, found)
	assert.Equal(t, "test-value", string(got))

	_, found = table.Get([]byte("other"))
	assert.False(t, found)
}

func TestMemTableOverwrite(t *testing.T) {
	table := NewMemTable()

	table.Put([]byte("k"), []byte("short"))
	table.Put([]byte("k"), []byte("much longer"))

	got, _ := table.Get([]byte("k"))
	assert.Equal(t, "much longer", string(got))
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, int64(len("k")+len("much longer")), table.ApproximateSize())
}

func TestMemTableCopiesValue(t *testing.T) {
	table := NewMemTable()

	value := []byte("abc")
	table.Put([]byte("k"), value)
	value[0] = 'z'

	got, _ := table.Get([]byte("k"))
	assert.Equal(t, "abc", string(got))
}

func TestMemTableSortedRecords(t *testing.T) {
	table := NewMemTable()
	for _, k := range []string{"pear", "apple", "Zebra", "banana", "apple2"} {
		table.Put([]byte(k), []byte("v-"+k))
	}

	records := table.SortedRecords()

	keys := make([]string, len(records))
	for i, rec := range records {
		keys[i] = string(rec.Key)
		assert.Equal(t, "v-"+keys[i], string(rec.Value))
	}
	assert.Equal(t, []string{"Zebra", "apple", "apple2", "banana", "pear"}, keys)

	// draining does not mutate the table
	assert.Equal(t, 5, table.Len())
}

func TestMemTableSortedRecordsEmpty(t *testing.T) {
	assert.Empty(t, NewMemTable().SortedRecords())
}
