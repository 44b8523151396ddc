package storage

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	kvErr "github.com/sajjad-MoBe/lsmstore/internal/errors"
	"github.com/sajjad-MoBe/lsmstore/internal/record"
	"github.com/sajjad-MoBe/lsmstore/internal/shared"
	"github.com/sajjad-MoBe/lsmstore/internal/wal"
)

// Config holds the options for opening an Engine
type Config struct {
	// Dir is the store directory. It is created if missing.
	Dir string
	// MemTableFlushThreshold is the number of distinct keys at which the
	// active memtable is flushed to a table file.
	MemTableFlushThreshold int
	// NoSync skips the fsync after each WAL append. Only for tests and
	// benchmarks: a successful Put is no longer guaranteed durable.
	NoSync bool
	// Logger defaults to shared.DefaultLogger.
	Logger *shared.Logger
	// Metrics defaults to collectors on a private registry.
	Metrics *shared.StorageMetrics
}

// DefaultConfig returns the defaults used by the CLI
func DefaultConfig() Config {
	return Config{
		Dir:                    "lsm_tree_db",
		MemTableFlushThreshold: 1,
	}
}

// Validate checks the options that have no usable default
func (c Config) Validate() error {
	if c.Dir == "" {
		return kvErr.New(kvErr.ErrorTypeConfiguration, "directory path is required", nil)
	}
	if c.MemTableFlushThreshold <= 0 {
		return kvErr.New(kvErr.ErrorTypeConfiguration, "memtable flush threshold must be a positive number", nil)
	}
	return nil
}

// Stats is a point-in-time view of the engine
type Stats struct {
	MemTableKeys   int    `json:"memtable_keys"`
	MemTableBytes  int64  `json:"memtable_bytes"`
	PendingFlushes int    `json:"pending_flushes"`
	Tables         int    `json:"tables"`
	WALBytes       int64  `json:"wal_bytes"`
	LastFlushError string `json:"last_flush_error,omitempty"`
}

// Engine owns the WAL, the active memtable and the flush worker of one
// store directory.
type Engine struct {
	config  Config
	logger  *shared.Logger
	metrics *shared.StorageMetrics

	wal    *wal.FileWAL
	tables *TableWriter

	// mu guards everything below it
	mu       sync.RWMutex
	memtable *MemTable
	frozen   []*MemTable // oldest first
	paths    []string
	flushErr error
	closed   bool

	// flushMu keeps at most one flush in flight
	flushMu sync.Mutex

	flushCh   chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open opens or creates the store in cfg.Dir and replays its WAL into a
// fresh memtable. Replayed records never trigger a flush.
func Open(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = shared.DefaultLogger
	}
	if cfg.Metrics == nil {
		cfg.Metrics = shared.NewStorageMetrics(prometheus.NewRegistry())
	}

	if info, err := os.Stat(cfg.Dir); err == nil && !info.IsDir() {
		return nil, kvErr.New(kvErr.ErrorTypeConfiguration, "store path is not a directory: "+cfg.Dir, nil)
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, kvErr.New(kvErr.ErrorTypeIO, "failed to create store directory", err)
	}

	e := &Engine{
		config:   cfg,
		logger:   cfg.Logger.WithFields(map[string]interface{}{"dir": cfg.Dir}),
		metrics:  cfg.Metrics,
		tables:   NewTableWriter(cfg.Dir),
		memtable: NewMemTable(),
		flushCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}

	walPath := filepath.Join(cfg.Dir, wal.FileName)
	replayed := 0
	err := wal.ReplayAll(walPath, func(rec record.Record) error {
		e.memtable.Put(rec.Key, rec.Value)
		replayed++
		return nil
	})
	if err != nil {
		return nil, err
	}

	w, err := wal.OpenFileWAL(walPath, !cfg.NoSync)
	if err != nil {
		return nil, err
	}
	e.wal = w

	e.logger.Info("recovered %d WAL records into %d keys", replayed, e.memtable.Len())
	e.updateGauges()

	e.wg.Add(1)
	go e.flushLoop()

	return e, nil
}

// Put durably logs the write, applies it to the active memtable and
// schedules a flush once the memtable reaches the threshold. It does not
// wait for the flush.
func (e *Engine) Put(key, value []byte) (err error) {
	start := time.Now()
	defer func() { e.observe("put", start, err) }()

	if len(key) == 0 {
		return kvErr.New(kvErr.ErrorTypeInvalidArgument, "key is required", nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return kvErr.New(kvErr.ErrorTypeIO, "engine is closed", os.ErrClosed)
	}

	if err := e.wal.Append(record.Record{Key: key, Value: value}); err != nil {
		return err
	}
	e.memtable.Put(key, value)

	if e.memtable.Len() >= e.config.MemTableFlushThreshold {
		e.logger.Info("memtable size limit reached, flushing %d keys to disk", e.memtable.Len())
		e.freezeLocked()
		e.scheduleFlush()
	}

	e.updateGaugesLocked()
	return nil
}

// Get looks key up in the active memtable, then in memtables still waiting
// to be flushed, newest first. Keys that have already been flushed to table
// files are reported as not found.
func (e *Engine) Get(key []byte) (value []byte, found bool, err error) {
	start := time.Now()
	defer func() { e.observe("get", start, err) }()

	if len(key) == 0 {
		return nil, false, kvErr.New(kvErr.ErrorTypeInvalidArgument, "key is required", nil)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.memtable.Get(key)
	// frozen memtables stay readable until their table file is durable
	for i := len(e.frozen) - 1; !ok && i >= 0; i-- {
		v, ok = e.frozen[i].Get(key)
	}
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Flush freezes the active memtable, if it holds anything, and writes every
// pending memtable before returning. It is also how a caller retries after a
// failed background flush.
func (e *Engine) Flush() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return kvErr.New(kvErr.ErrorTypeIO, "engine is closed", os.ErrClosed)
	}
	if e.memtable.Len() > 0 {
		e.freezeLocked()
		e.updateGaugesLocked()
	}
	e.mu.Unlock()

	return e.flushPending()
}

// WaitForFlush writes any pending memtables, waiting for an in-flight
// background flush first, without touching the active memtable.
func (e *Engine) WaitForFlush() error {
	return e.flushPending()
}

// Tables returns the table files written by this engine instance, oldest
// first.
func (e *Engine) Tables() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, len(e.paths))
	copy(out, e.paths)
	return out
}

// Stats returns the current engine statistics
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{
		MemTableKeys:   e.memtable.Len(),
		MemTableBytes:  e.memtable.ApproximateSize(),
		PendingFlushes: len(e.frozen),
		Tables:         len(e.paths),
		WALBytes:       e.wal.Size(),
	}
	if e.flushErr != nil {
		s.LastFlushError = e.flushErr.Error()
	}
	return s
}

// Dir returns the store directory
func (e *Engine) Dir() string {
	return e.config.Dir
}

// Close stops the flush worker after any in-flight flush and closes the WAL.
// Pending memtables are not flushed; their records remain in the WAL.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		close(e.stopCh)
		e.wg.Wait()

		// wait out a Flush call that is still writing
		e.flushMu.Lock()
		err = e.wal.Close()
		e.flushMu.Unlock()

		e.logger.Info("engine closed")
	})
	return err
}

// freezeLocked moves the active memtable to the flush queue and installs an
// empty one. Callers hold e.mu.
func (e *Engine) freezeLocked() {
	e.frozen = append(e.frozen, e.memtable)
	e.memtable = NewMemTable()
}

func (e *Engine) scheduleFlush() {
	select {
	case e.flushCh <- struct{}{}:
	default: // a flush is already scheduled
	}
}

func (e *Engine) flushLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		case <-e.flushCh:
			if err := e.flushPending(); err != nil {
				e.logger.Error("background flush failed: %v", err)
			}
		}
	}
}

// flushPending writes queued memtables oldest first. A memtable leaves the
// queue only after its table file is durable, so a failed write keeps it for
// the next attempt.
func (e *Engine) flushPending() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	for {
		e.mu.RLock()
		if len(e.frozen) == 0 {
			e.mu.RUnlock()
			return nil
		}
		mt := e.frozen[0]
		e.mu.RUnlock()

		e.logger.Debug("writing %d keys to a table file", mt.Len())

		start := time.Now()
		path, err := e.tables.Write(mt.SortedRecords())
		e.metrics.RecordFlush(time.Since(start), err)

		e.mu.Lock()
		if err != nil {
			e.flushErr = err
			e.mu.Unlock()
			return err
		}
		e.frozen[0] = nil
		e.frozen = e.frozen[1:]
		e.paths = append(e.paths, path)
		e.flushErr = nil
		e.updateGaugesLocked()
		e.mu.Unlock()

		e.logger.Debug("flushed memtable to %s", path)
	}
}

func (e *Engine) observe(operation string, start time.Time, err error) {
	var errType string
	if err != nil {
		errType = string(kvErr.TypeOf(err))
	}
	e.metrics.RecordOperation(operation, time.Since(start), errType)
}

func (e *Engine) updateGauges() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	e.updateGaugesLocked()
}

func (e *Engine) updateGaugesLocked() {
	e.metrics.UpdateEngineState(e.memtable.Len(), len(e.frozen), len(e.paths), e.wal.Size())
}
