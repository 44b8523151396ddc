package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	kvErr "github.com/sajjad-MoBe/lsmstore/internal/errors"
	"github.com/sajjad-MoBe/lsmstore/internal/record"
)

// TableSuffix is the file extension of immutable table files
const TableSuffix = ".sst"

const tempSuffix = ".tmp"

// TableWriter writes sorted memtable snapshots to uniquely named files
type TableWriter struct {
	dir    string
	lastID int64
	now    func() time.Time
}

// NewTableWriter creates a TableWriter for dir
func NewTableWriter(dir string) *TableWriter {
	return &TableWriter{
		dir: dir,
		now: time.Now,
	}
}

// Write serializes records, which must already be sorted, to a new table
// file and returns its path. The file only appears under its final name once
// its contents are synced.
func (w *TableWriter) Write(records []record.Record) (string, error) {
	id := w.nextID()
	path := TablePath(w.dir, id)
	tmp := path + tempSuffix

	data := record.EncodeTable(records)
	if err := writeFileSync(tmp, data); err != nil {
		os.Remove(tmp)
		return "", kvErr.New(kvErr.ErrorTypeIO, "failed to write table file", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", kvErr.New(kvErr.ErrorTypeIO, "failed to install table file", err)
	}

	if err := syncDir(w.dir); err != nil {
		return "", kvErr.New(kvErr.ErrorTypeIO, "failed to sync store directory", err)
	}

	return path, nil
}

// nextID picks a nanosecond timestamp that is strictly greater than every id
// handed out before and not yet taken by a file in the directory.
func (w *TableWriter) nextID() int64 {
	id := w.now().UnixNano()
	if id <= w.lastID {
		id = w.lastID + 1
	}
	for {
		if _, err := os.Stat(TablePath(w.dir, id)); os.IsNotExist(err) {
			break
		}
		id++
	}
	w.lastID = id
	return id
}

// TablePath returns the path of the table file with the given id
func TablePath(dir string, id int64) string {
	return filepath.Join(dir, strconv.FormatInt(id, 10)+TableSuffix)
}

// ParseTableID extracts the id from a table file name
func ParseTableID(path string) (int64, error) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, TableSuffix) {
		return 0, fmt.Errorf("not a table file: %s", name)
	}
	return strconv.ParseInt(strings.TrimSuffix(name, TableSuffix), 10, 64)
}

// ReadTable decodes every record of the table file at path
func ReadTable(path string) ([]record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kvErr.New(kvErr.ErrorTypeIO, "failed to read table file", err)
	}

	var records []record.Record
	pos := 0
	for pos < len(data) {
		rec, next, err := record.DecodeTable(data, pos)
		if err != nil {
			return nil, fmt.Errorf("failed to decode table %s at offset %d: %w", path, pos, err)
		}
		records = append(records, rec)
		pos = next
	}
	return records, nil
}

func writeFileSync(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
