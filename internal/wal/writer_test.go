package wal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kvErr "github.com/sajjad-MoBe/lsmstore/internal/errors"
	"github.com/sajjad-MoBe/lsmstore/internal/record"
)

func setupWALTest(t *testing.T) (*FileWAL, string) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	w, err := OpenFileWAL(path, true)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	return w, path
}

func replay(t *testing.T, path string) []record.Record {
	var recovered []record.Record
	err := ReplayAll(path, func(rec record.Record) error {
		recovered = append(recovered, rec)
		return nil
	})
	require.NoError(t, err)
	return recovered
}

func TestWALAppend(t *testing.T) {
	w, path := setupWALTest(t)

	require.NoError(t, w.Append(record.Record{Key: []byte("test-key"), Value: []byte("test-value")}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PUT\n8\ntest-key\n10\ntest-value\n", string(data))
	assert.Equal(t, int64(len(data)), w.Size())
}

func TestWALRecovery(t *testing.T) {
	w, path := setupWALTest(t)

	records := []record.Record{
		{Key: []byte("key1"), Value: []byte("value1")},
		{Key: []byte("key2"), Value: []byte("line\nbreak")},
		{Key: []byte("key1"), Value: []byte("value3")},
	}
	for _, rec := range records {
		require.NoError(t, w.Append(rec))
	}

	recovered := replay(t, path)
	require.Len(t, recovered, len(records))
	for i, rec := range records {
		assert.Equal(t, string(rec.Key), string(recovered[i].Key))
		assert.Equal(t, string(rec.Value), string(recovered[i].Value))
	}
}

func TestWALReopenAppends(t *testing.T) {
	w, path := setupWALTest(t)
	require.NoError(t, w.Append(record.Record{Key: []byte("a"), Value: []byte("1")}))
	require.NoError(t, w.Close())

	reopened, err := OpenFileWAL(path, false)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, w.Size(), reopened.Size())

	require.NoError(t, reopened.Append(record.Record{Key: []byte("b"), Value: []byte("2")}))
	require.NoError(t, reopened.Sync())

	recovered := replay(t, path)
	require.Len(t, recovered, 2)
	assert.Equal(t, "b", string(recovered[1].Key))
}

func TestReplayMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	assert.Empty(t, replay(t, filepath.Join(dir, "missing.log")))

	empty := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	assert.Empty(t, replay(t, empty))
}

func TestReplayCorruptTail(t *testing.T) {
	w, path := setupWALTest(t)
	require.NoError(t, w.Append(record.Record{Key: []byte("a"), Value: []byte("1")}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("PUT\n10\nshort")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var seen int
	err = ReplayAll(path, func(rec record.Record) error {
		seen++
		return nil
	})
	require.Error(t, err)
	assert.True(t, kvErr.IsCorruption(err))
	assert.Equal(t, 1, seen)
}

func TestReplayHandlerError(t *testing.T) {
	w, path := setupWALTest(t)
	require.NoError(t, w.Append(record.Record{Key: []byte("a"), Value: []byte("1")}))

	boom := kvErr.New(kvErr.ErrorTypeInternal, "boom", nil)
	err := ReplayAll(path, func(rec record.Record) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestWALClosed(t *testing.T) {
	w, _ := setupWALTest(t)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	err := w.Append(record.Record{Key: []byte("a"), Value: []byte("1")})
	assert.True(t, kvErr.IsIO(err))
	assert.True(t, kvErr.IsIO(w.Sync()))
}

// faultyFile fails the next write after writing only part of it, or fails
// the next fsync after a complete write.
type faultyFile struct {
	*os.File
	shortWrite bool
	failSync   bool
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.shortWrite {
		f.shortWrite = false
		n, _ := f.File.Write(p[:len(p)/2])
		return n, errors.New("disk full")
	}
	return f.File.Write(p)
}

func (f *faultyFile) Sync() error {
	if f.failSync {
		f.failSync = false
		return errors.New("fsync failed")
	}
	return f.File.Sync()
}

func replayKeys(t *testing.T, path string) []string {
	var keys []string
	for _, rec := range replay(t, path) {
		keys = append(keys, string(rec.Key))
	}
	return keys
}

func TestWALFailedAppendIsRolledBack(t *testing.T) {
	w, path := setupWALTest(t)

	faulty := &faultyFile{File: w.file.(*os.File)}
	w.file = faulty

	require.NoError(t, w.Append(record.Record{Key: []byte("a"), Value: []byte("1")}))
	size := w.Size()

	faulty.shortWrite = true
	err := w.Append(record.Record{Key: []byte("torn"), Value: []byte("value")})
	require.Error(t, err)
	assert.True(t, kvErr.IsIO(err))
	assert.Equal(t, size, w.Size())

	faulty.failSync = true
	err = w.Append(record.Record{Key: []byte("unsynced"), Value: []byte("value")})
	require.Error(t, err)
	assert.True(t, kvErr.IsIO(err))
	assert.Equal(t, size, w.Size())

	require.NoError(t, w.Append(record.Record{Key: []byte("b"), Value: []byte("2")}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, w.Size(), info.Size())
	assert.Equal(t, []string{"a", "b"}, replayKeys(t, path))
}
