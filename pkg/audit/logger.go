package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/castlegate-ai/castlegate/pkg/models"
	_ "modernc.org/sqlite"
)

// Logger writes and queries request outcome records in a dedicated
// SQLite database.
type Logger struct {
	db   *sql.DB
	cfg  models.AuditConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the audit SQLite database and creates the schema.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		request_id      TEXT PRIMARY KEY,
		identity_hash   TEXT NOT NULL,
		identity_prefix TEXT NOT NULL,
		route           TEXT NOT NULL,
		plan            TEXT NOT NULL,
		path            TEXT NOT NULL,
		speech_path     TEXT,
		store_provider  TEXT,
		status_code     INTEGER,
		latency_ms      INTEGER,
		created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_route ON audit_log(route)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_prefix ON audit_log(identity_prefix)`)
	return err
}

// Log inserts an outcome record. Safe to call on a nil logger so the
// gateway does not have to branch on whether auditing is enabled.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audit_log
		(request_id, identity_hash, identity_prefix, route, plan, path,
		 speech_path, store_provider, status_code, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.IdentityHash, entry.IdentityPrefix,
		entry.Route, string(entry.Plan), entry.Path,
		entry.SpeechPath, entry.StoreProvider,
		entry.StatusCode, entry.LatencyMs, entry.CreatedAt,
	)
	return err
}

// Query returns audit entries matching the given options.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT request_id, identity_hash, identity_prefix, route, plan, path,
		speech_path, store_provider, status_code, latency_ms, created_at
		FROM audit_log WHERE 1=1`
	var args []any

	if opts.Route != "" {
		q += " AND route = ?"
		args = append(args, opts.Route)
	}
	if opts.Plan != "" {
		q += " AND plan = ?"
		args = append(args, opts.Plan)
	}
	if opts.Path != "" {
		q += " AND path = ?"
		args = append(args, opts.Path)
	}
	if opts.IdentityPrefix != "" {
		q += " AND identity_prefix = ?"
		args = append(args, opts.IdentityPrefix)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var plan string
		var speechPath, storeProvider sql.NullString
		if err := rows.Scan(
			&e.RequestID, &e.IdentityHash, &e.IdentityPrefix,
			&e.Route, &plan, &e.Path,
			&speechPath, &storeProvider,
			&e.StatusCode, &e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Plan = models.PlanTier(plan)
		e.SpeechPath = speechPath.String
		e.StoreProvider = storeProvider.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counts grouped by route, path and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT route, path, date(created_at) as day, count(*) as cnt
		 FROM audit_log GROUP BY route, path, day ORDER BY day DESC, route, path`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&s.Route, &s.Path, &day, &s.Count); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}

// HashIdentity returns the SHA-256 hex hash and 8-char prefix for a
// caller identity. Only the hash and the short prefix are stored; the
// prefix is raw text kept for operator lookup and can reveal part of a
// short identity such as an IP address.
func HashIdentity(identity string) (hash, prefix string) {
	h := sha256.Sum256([]byte(identity))
	hash = hex.EncodeToString(h[:])
	if len(identity) > 8 {
		prefix = identity[:8]
	} else {
		prefix = identity
	}
	return hash, prefix
}
