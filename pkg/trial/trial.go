// Package trial manages the per-identity daily pro trial. The in-memory
// index is authoritative; every mutation is written through to SQLite so
// state survives restarts, with persistence errors logged and swallowed.
package trial

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/castlegate-ai/castlegate/pkg/models"
)

const createTrialTable = `
CREATE TABLE IF NOT EXISTS trial_records (
	identity TEXT NOT NULL,
	day TEXT NOT NULL,
	used INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME,
	ended_at DATETIME,
	PRIMARY KEY (identity, day)
);
`

// Options tunes a Manager. Now and Schedule exist so tests can simulate
// day rollover without waiting; nil values use the real clock.
type Options struct {
	Enabled  bool
	Duration time.Duration
	Now      func() time.Time
	Schedule func(d time.Duration, f func()) // nil for time.AfterFunc
}

// Manager owns trial state for all identities.
type Manager struct {
	mu       sync.Mutex
	enabled  bool
	duration time.Duration
	now      func() time.Time
	schedule func(d time.Duration, f func())
	records  map[string]*models.TrialRecord // identity:day
	db       *sql.DB                        // nil in memory-only mode
	closed   bool
}

// New creates a Manager persisting to the SQLite database at dbPath.
// An empty dbPath runs memory-only.
func New(dbPath string, opts Options) (*Manager, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Schedule == nil {
		opts.Schedule = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}

	m := &Manager{
		enabled:  opts.Enabled,
		duration: opts.Duration,
		now:      opts.Now,
		schedule: opts.Schedule,
		records:  make(map[string]*models.TrialRecord),
	}

	if dbPath != "" {
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			return nil, fmt.Errorf("open trial db: %w", err)
		}
		if _, err := db.Exec(createTrialTable); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate trial db: %w", err)
		}
		m.db = db
		if err := m.load(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return m, nil
}

// load restores persisted records into the index.
func (m *Manager) load() error {
	rows, err := m.db.Query(`SELECT identity, day, used, started_at, ended_at FROM trial_records`)
	if err != nil {
		return fmt.Errorf("load trial records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.TrialRecord
		var used int
		var started, ended sql.NullTime
		if err := rows.Scan(&rec.Identity, &rec.Day, &used, &started, &ended); err != nil {
			return fmt.Errorf("scan trial record: %w", err)
		}
		rec.Used = used != 0
		if started.Valid {
			t := started.Time
			rec.StartedAt = &t
		}
		if ended.Valid {
			t := ended.Time
			rec.EndedAt = &t
		}
		m.records[rec.Key()] = &rec
	}
	return rows.Err()
}

// StartSweep arms a timer for the next local midnight. When it fires,
// stale-day records are purged and the timer re-arms. This is advisory
// housekeeping; lookups are always scoped to today's date.
func (m *Manager) StartSweep() {
	m.schedule(m.untilMidnight(), m.sweepAndRearm)
}

func (m *Manager) sweepAndRearm() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.Sweep()
	m.schedule(m.untilMidnight(), m.sweepAndRearm)
}

func (m *Manager) untilMidnight() time.Duration {
	now := m.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}

// Sweep deletes records whose day is not today from the index and the
// persisted table.
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.today()
	for key, rec := range m.records {
		if rec.Day != today {
			delete(m.records, key)
		}
	}
	if m.db != nil {
		if _, err := m.db.Exec(`DELETE FROM trial_records WHERE day != ?`, today); err != nil {
			log.Warn("trial sweep failed", "err", err)
		}
	}
}

func (m *Manager) today() string {
	return m.now().Format("2006-01-02")
}

// record returns today's record for identity, or nil. Caller holds m.mu.
func (m *Manager) record(identity string) *models.TrialRecord {
	return m.records[identity+":"+m.today()]
}

// exhausted reports whether the record is spent, either explicitly or by
// elapsed time. Computed lazily; no timers on the query path.
func (m *Manager) exhausted(rec *models.TrialRecord) bool {
	if rec == nil {
		return false
	}
	if rec.Used {
		return true
	}
	if rec.StartedAt != nil && m.now().Sub(*rec.StartedAt) >= m.duration {
		return true
	}
	return false
}

// IsEligible reports whether identity may start or use today's trial.
func (m *Manager) IsEligible(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return false
	}
	return !m.exhausted(m.record(identity))
}

// Remaining returns the unexpired portion of today's trial window. The
// full duration is reported until the trial has been started.
func (m *Manager) Remaining(identity string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(identity)
	if rec == nil || rec.StartedAt == nil {
		if rec != nil && rec.Used {
			return 0
		}
		return m.duration
	}
	if rec.Used {
		return 0
	}
	left := m.duration - m.now().Sub(*rec.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Start begins today's trial for identity. It returns false when the
// identity is not eligible.
func (m *Manager) Start(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled || m.exhausted(m.record(identity)) {
		return false
	}

	now := m.now()
	rec := &models.TrialRecord{
		Identity:  identity,
		Day:       m.today(),
		StartedAt: &now,
	}
	m.records[rec.Key()] = rec
	m.persist(rec)
	return true
}

// MarkUsed marks today's trial consumed. Idempotent; creates the record
// if none exists.
func (m *Manager) MarkUsed(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(identity)
	if rec == nil {
		rec = &models.TrialRecord{Identity: identity, Day: m.today()}
		m.records[rec.Key()] = rec
	}
	if rec.Used {
		return
	}
	now := m.now()
	rec.Used = true
	rec.EndedAt = &now
	m.persist(rec)
}

// Info returns the trial state shape surfaced to callers.
func (m *Manager) Info(identity string) models.TrialInfo {
	m.mu.Lock()
	rec := m.record(identity)
	eligible := m.enabled && !m.exhausted(rec)
	usedToday := rec != nil && rec.Used
	var start *time.Time
	if rec != nil {
		start = rec.StartedAt
	}
	m.mu.Unlock()

	return models.TrialInfo{
		Eligible:    eligible,
		UsedToday:   usedToday,
		RemainingMs: m.Remaining(identity).Milliseconds(),
		StartTime:   start,
	}
}

// Reset clears today's record for an identity, restoring eligibility.
func (m *Manager) Reset(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identity + ":" + m.today()
	delete(m.records, key)
	if m.db != nil {
		_, err := m.db.Exec(`DELETE FROM trial_records WHERE identity = ? AND day = ?`,
			identity, m.today())
		if err != nil {
			log.Warn("trial reset failed", "identity", identity, "err", err)
		}
	}
}

// persist writes a record through to SQLite. I/O errors are logged and
// swallowed; the in-memory index stays authoritative. Caller holds m.mu.
func (m *Manager) persist(rec *models.TrialRecord) {
	if m.db == nil {
		return
	}
	used := 0
	if rec.Used {
		used = 1
	}
	_, err := m.db.Exec(
		`INSERT OR REPLACE INTO trial_records (identity, day, used, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Identity, rec.Day, used, rec.StartedAt, rec.EndedAt,
	)
	if err != nil {
		log.Warn("trial persist failed", "identity", rec.Identity, "err", err)
	}
}

// Close releases the database connection and stops future sweeps from
// re-arming.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	db := m.db
	m.mu.Unlock()
	if db != nil {
		return db.Close()
	}
	return nil
}
