package wal

import (
	"fmt"
	"io"
	"os"
	"sync"

	kvErr "github.com/sajjad-MoBe/lsmstore/internal/errors"
	"github.com/sajjad-MoBe/lsmstore/internal/record"
)

// FileName is the name of the write-ahead log inside a store directory.
const FileName = "wal.log"

// WALWriter defines the interface for WAL operations
type WALWriter interface {
	Append(rec record.Record) error
	Sync() error
	Close() error
}

// logFile is the part of *os.File the WAL writes through
type logFile interface {
	io.Writer
	Sync() error
	Truncate(size int64) error
	Close() error
}

// FileWAL implements WALWriter using a single append-only file
type FileWAL struct {
	file     logFile
	path     string
	size     int64
	syncMode bool
	closed   bool
	// broken is set when a failed append could not be rolled back
	broken error
	mu     sync.Mutex
}

// OpenFileWAL opens the log at path for appending, creating it if needed.
// With syncMode set every Append is fsynced before it returns.
func OpenFileWAL(path string, syncMode bool) (*FileWAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, kvErr.New(kvErr.ErrorTypeIO, "failed to open WAL file", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, kvErr.New(kvErr.ErrorTypeIO, "failed to stat WAL file", err)
	}

	return &FileWAL{
		file:     file,
		path:     path,
		size:     info.Size(),
		syncMode: syncMode,
	}, nil
}

// Append writes one complete record to the end of the log. If the write or
// its fsync fails the file is truncated back to its previous length, so a
// rejected record is never replayed.
func (w *FileWAL) Append(rec record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return kvErr.New(kvErr.ErrorTypeIO, "WAL is closed", os.ErrClosed)
	}
	if w.broken != nil {
		return kvErr.New(kvErr.ErrorTypeIO, "WAL has an unrecoverable partial record", w.broken)
	}

	data := record.Encode(rec)
	n, err := w.file.Write(data)
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.rollback()
		return kvErr.New(kvErr.ErrorTypeIO, "failed to append WAL record", err)
	}

	if w.syncMode {
		if err := w.sync(); err != nil {
			w.rollback()
			return err
		}
	}
	w.size += int64(len(data))
	return nil
}

// rollback cuts the file back to the last complete record
func (w *FileWAL) rollback() {
	if err := w.file.Truncate(w.size); err != nil {
		w.broken = err
		return
	}
	if w.syncMode {
		if err := w.file.Sync(); err != nil {
			w.broken = err
		}
	}
}

// Sync ensures all written data is on stable storage
func (w *FileWAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return kvErr.New(kvErr.ErrorTypeIO, "WAL is closed", os.ErrClosed)
	}
	return w.sync()
}

func (w *FileWAL) sync() error {
	if err := w.file.Sync(); err != nil {
		return kvErr.New(kvErr.ErrorTypeIO, "failed to sync WAL", err)
	}
	return nil
}

// Size returns the current size of the log file in bytes
func (w *FileWAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Path returns the location of the log file
func (w *FileWAL) Path() string {
	return w.path
}

// Close closes the WAL file
func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.file.Close(); err != nil {
		return kvErr.New(kvErr.ErrorTypeIO, "failed to close WAL file", err)
	}
	return nil
}

// ReplayAll reads the whole log at path and hands every record to handler in
// file order. A missing or empty log yields nothing. Any framing violation
// aborts the replay with a corruption error; no partial tail is skipped.
func ReplayAll(path string, handler func(record.Record) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return kvErr.New(kvErr.ErrorTypeIO, "failed to read WAL file", err)
	}

	pos := 0
	for pos < len(data) {
		rec, next, err := record.Decode(data, pos)
		if err != nil {
			return fmt.Errorf("failed to decode WAL record at offset %d: %w", pos, err)
		}
		if err := handler(rec); err != nil {
			return fmt.Errorf("failed to handle WAL record at offset %d: %w", pos, err)
		}
		pos = next
	}

	return nil
}
