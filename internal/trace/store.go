// Package trace persists register bus traffic to SQLite, grouped into one
// session per process run, for live inspection and offline reports.
package trace

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/davidplowman/imx258/internal/monitoring"
	"github.com/davidplowman/imx258/internal/regbus"
	"github.com/davidplowman/imx258/internal/security"
)

// Store is the register trace database. It implements regbus.Recorder, so
// a TraceBus can feed it directly.
type Store struct {
	*sql.DB
	path string

	mu        sync.Mutex
	sessionID string
}

// OpenStore opens the trace database at path without initializing the
// schema. The migrate commands use this so golang-migrate alone manages
// the schema.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db, path: path}, nil
}

// NewStore opens (creating if needed) the trace database at path.
func NewStore(path string) (*Store, error) {
	s, err := OpenStore(path)
	if err != nil {
		return nil, err
	}

	_, err = s.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id                TEXT PRIMARY KEY,
			label             TEXT,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS register_ops (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT,
			ts                TEXT,
			op                TEXT,
			addr              INTEGER,
			width             INTEGER,
			value             INTEGER,
			ok                INTEGER,
			error             TEXT,
			latency_us        BIGINT,
			FOREIGN KEY(session_id) REFERENCES sessions(id)
		);
		CREATE INDEX IF NOT EXISTS register_ops_session ON register_ops (session_id);
	`)
	if err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// BeginSession opens a new trace session and makes it current; every
// operation recorded afterwards attaches to it. Returns the session id.
func (s *Store) BeginSession(label string) (string, error) {
	id := uuid.New().String()
	if _, err := s.Exec("INSERT INTO sessions (id, label) VALUES (?, ?)", id, label); err != nil {
		return "", fmt.Errorf("begin session: %w", err)
	}

	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
	return id, nil
}

// SessionID returns the current session id, or "" before BeginSession.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// RecordOp implements regbus.Recorder. Failures are logged, never
// propagated: a lost trace row must not fail the bus operation it records.
func (s *Store) RecordOp(op regbus.TraceOp) {
	session := s.SessionID()
	if session == "" {
		monitoring.Logf("trace: dropping %s op: no open session", op.Op)
		return
	}

	_, err := s.Exec(
		`INSERT INTO register_ops (session_id, ts, op, addr, width, value, ok, error, latency_us)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session,
		op.Time.UTC().Format(time.RFC3339Nano),
		op.Op,
		int64(op.Addr),
		int64(op.Width),
		int64(op.Value),
		op.OK,
		op.Err,
		op.Latency.Microseconds(),
	)
	if err != nil {
		monitoring.Logf("trace: record %s op: %v", op.Op, err)
	}
}

// Session is one recorded trace session.
type Session struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	StartedAt string `json:"started_at"`
	Ops       int64  `json:"ops"`
}

// Sessions lists recorded sessions, newest first.
func (s *Store) Sessions() ([]Session, error) {
	rows, err := s.Query(`
		SELECT s.id, s.label, s.started_at, COUNT(o.id)
		FROM sessions s
		LEFT JOIN register_ops o ON o.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT 100`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var ses Session
		if err := rows.Scan(&ses.ID, &ses.Label, &ses.StartedAt, &ses.Ops); err != nil {
			return nil, err
		}
		sessions = append(sessions, ses)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// LatestSession returns the id of the most recently started session.
func (s *Store) LatestSession() (string, error) {
	var id string
	err := s.QueryRow("SELECT id FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT 1").Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("trace database has no sessions")
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Op is one recorded register operation.
type Op struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Time      string `json:"time"`
	Op        string `json:"op"`
	Addr      uint16 `json:"addr"`
	Width     int    `json:"width"`
	Value     uint32 `json:"value"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyUS int64  `json:"latency_us"`
}

// Ops returns up to limit operations for a session in recording order.
// limit <= 0 selects a sane default.
func (s *Store) Ops(sessionID string, limit int) ([]Op, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.Query(`
		SELECT id, session_id, ts, op, addr, width, value, ok, error, latency_us
		FROM register_ops
		WHERE session_id = ?
		ORDER BY id
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []Op
	for rows.Next() {
		var (
			o           Op
			addr, width int64
			value       int64
		)
		if err := rows.Scan(&o.ID, &o.SessionID, &o.Time, &o.Op,
			&addr, &width, &value, &o.OK, &o.Error, &o.LatencyUS); err != nil {
			return nil, err
		}
		o.Addr = uint16(addr)
		o.Width = int(width)
		o.Value = uint32(value)
		ops = append(ops, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ops, nil
}

// WritePoint is one successful register write positioned on the session
// timeline.
type WritePoint struct {
	ElapsedMS float64
	Addr      uint16
	Value     uint32
}

// WriteSeries returns the successful writes of a session as chart points,
// with times relative to the first write.
func (s *Store) WriteSeries(sessionID string) ([]WritePoint, error) {
	rows, err := s.Query(`
		SELECT ts, addr, value
		FROM register_ops
		WHERE session_id = ? AND op = 'write' AND ok = 1
		ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		points []WritePoint
		origin time.Time
	)
	for rows.Next() {
		var (
			ts          string
			addr, value int64
		)
		if err := rows.Scan(&ts, &addr, &value); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse op timestamp %q: %w", ts, err)
		}
		if origin.IsZero() {
			origin = t
		}
		points = append(points, WritePoint{
			ElapsedMS: float64(t.Sub(origin)) / float64(time.Millisecond),
			Addr:      uint16(addr),
			Value:     uint32(value),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return points, nil
}

// AddrCount is the write count of one register address.
type AddrCount struct {
	Addr  uint16
	Count int64
}

// WriteCounts returns per-address write counts for a session, ordered by
// address.
func (s *Store) WriteCounts(sessionID string) ([]AddrCount, error) {
	rows, err := s.Query(`
		SELECT addr, COUNT(*)
		FROM register_ops
		WHERE session_id = ? AND op = 'write'
		GROUP BY addr
		ORDER BY addr`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []AddrCount
	for rows.Next() {
		var (
			addr int64
			c    AddrCount
		)
		if err := rows.Scan(&addr, &c.Count); err != nil {
			return nil, err
		}
		c.Addr = uint16(addr)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// Latencies returns the latencies of a session's operations of one kind
// ("read" or "write") in microseconds, in recording order.
func (s *Store) Latencies(sessionID, op string) ([]float64, error) {
	rows, err := s.Query(`
		SELECT latency_us
		FROM register_ops
		WHERE session_id = ? AND op = ?
		ORDER BY id`, sessionID, op)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var latencies []float64
	for rows.Next() {
		var us int64
		if err := rows.Scan(&us); err != nil {
			return nil, err
		}
		latencies = append(latencies, float64(us))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return latencies, nil
}

// AttachAdminRoutes mounts the trace debug surface on mux: the tsweb
// debug index, a tailsql live SQL UI over the trace database, and a
// VACUUM INTO gzip backup download.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.DB, &tailsql.DBOptions{
		Label: "IMX258 Trace DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the trace database now",
		http.HandlerFunc(s.handleBackup))
	return nil
}

func (s *Store) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := fmt.Sprintf("trace-backup-%d.db", time.Now().Unix())

	// The name is server-generated, but it ends up on the filesystem:
	// keep it pinned inside the working directory.
	wd, err := os.Getwd()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to resolve working directory: %v", err), http.StatusInternalServerError)
		return
	}
	if err := security.ValidatePathWithinDirectory(backupPath, wd); err != nil {
		http.Error(w, fmt.Sprintf("Invalid backup path: %v", err), http.StatusInternalServerError)
		return
	}

	if _, err := s.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("trace: remove backup file: %v", err)
		}
	}()

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := gz.Write([]byte{}); err != nil {
		// Need to write something to initialize the gzip header
		http.Error(w, fmt.Sprintf("Failed to initialize gzip writer: %v", err), http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("trace: stream backup: %v", err)
	}
}
