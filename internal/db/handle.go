package db

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"tracker-server/internal/config"
	"tracker-server/internal/metrics"
)

// ErrUnavailable is returned while the store connection is down. Callers
// fail fast instead of queuing; the supervisor keeps retrying in the
// background until the store is reachable again.
var ErrUnavailable = errors.New("store unavailable")

// Reconnect backoff: first attempt shortly after the connection drops,
// subsequent attempts at the longer fixed delay, indefinitely.
const (
	reconnectInitialDelay = 2 * time.Second
	reconnectRetryDelay   = 5 * time.Second
)

// Handle owns the store connection and supervises reconnection. All query
// paths go through Handle so a detected connection failure flips the handle
// to unavailable exactly once and wakes the reconnect loop.
type Handle struct {
	cfg    config.Config
	logger *slog.Logger

	// supervised is set by Connect. Wrapped handles have no config to
	// reopen from, so they stay down until closed instead of retrying.
	supervised bool

	mu           sync.RWMutex
	db           *sql.DB
	down         bool
	reconnecting bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Connect opens the store and returns a supervised handle.
func Connect(cfg config.Config, logger *slog.Logger) (*Handle, error) {
	sqlDB, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	metrics.StoreAvailable.Set(1)
	return &Handle{
		cfg:        cfg,
		logger:     logger,
		supervised: true,
		db:         sqlDB,
		stopCh:     make(chan struct{}),
	}, nil
}

// Wrap builds a handle around an existing connection. Used by tests that
// operate on an in-memory database. Wrapped handles are not supervised:
// there is no configuration to reopen from, so a lost connection stays
// down until the handle is closed.
func Wrap(sqlDB *sql.DB, logger *slog.Logger) *Handle {
	return &Handle{
		db:     sqlDB,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// DB returns the underlying connection, or ErrUnavailable while the
// supervisor is reconnecting.
func (h *Handle) DB() (*sql.DB, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.down || h.db == nil {
		return nil, ErrUnavailable
	}
	return h.db, nil
}

func (h *Handle) Exec(query string, args ...any) (sql.Result, error) {
	sqlDB, err := h.DB()
	if err != nil {
		return nil, err
	}
	res, err := sqlDB.Exec(query, args...)
	if err != nil && isConnError(err) {
		h.markDown(err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, err
}

func (h *Handle) Query(query string, args ...any) (*sql.Rows, error) {
	sqlDB, err := h.DB()
	if err != nil {
		return nil, err
	}
	rows, err := sqlDB.Query(query, args...)
	if err != nil && isConnError(err) {
		h.markDown(err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rows, err
}

// Ping reports connectivity; a failed ping flips the handle to unavailable.
func (h *Handle) Ping() error {
	sqlDB, err := h.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Ping(); err != nil {
		h.markDown(err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close stops the supervisor and closes the connection.
func (h *Handle) Close() error {
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

// markDown flips the handle to unavailable and starts the reconnect loop.
// Safe to call from concurrent query paths; only the first caller starts
// the loop.
func (h *Handle) markDown(cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.down {
		return
	}
	h.down = true
	metrics.StoreAvailable.Set(0)
	if h.logger != nil {
		h.logger.Warn("store connection lost", "error", cause)
	}
	if !h.supervised || h.reconnecting {
		return
	}
	h.reconnecting = true
	go h.reconnectLoop()
}

func (h *Handle) reconnectLoop() {
	delay := reconnectInitialDelay
	for {
		select {
		case <-h.stopCh:
			return
		case <-time.After(delay):
		}

		sqlDB, err := Open(h.cfg)
		if err != nil {
			if h.logger != nil {
				h.logger.Warn("store reconnect failed", "error", err, "retry_in", reconnectRetryDelay)
			}
			delay = reconnectRetryDelay
			continue
		}

		h.mu.Lock()
		if h.db != nil {
			_ = h.db.Close()
		}
		h.db = sqlDB
		h.down = false
		h.reconnecting = false
		h.mu.Unlock()

		metrics.StoreAvailable.Set(1)
		if h.logger != nil {
			h.logger.Info("store reconnected")
		}
		return
	}
}

// ForceDownForTest flips the handle to unavailable so callers can exercise
// their fail-fast paths. Test helper only.
func (h *Handle) ForceDownForTest(cause error) {
	h.markDown(cause)
}

// isConnError reports whether the error indicates a lost or unusable
// connection rather than a bad statement.
func isConnError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
			return true
		}
	}
	return false
}
