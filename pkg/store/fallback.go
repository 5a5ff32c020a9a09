package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/castlegate-ai/castlegate/pkg/models"
)

// FallbackStore is the local durable store used when the primary is
// unavailable. Each table has its own AUTOINCREMENT sequence, so
// identifier sequences are independent of the primary's.
type FallbackStore struct {
	db *sql.DB
}

const createFallbackTables = `
CREATE TABLE IF NOT EXISTS games (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identity TEXT NOT NULL,
	pgn TEXT NOT NULL,
	result TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_games_identity ON games(identity);

CREATE TABLE IF NOT EXISTS analyses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identity TEXT NOT NULL,
	game_id INTEGER,
	move_number INTEGER NOT NULL,
	move TEXT NOT NULL,
	fen TEXT NOT NULL,
	commentary TEXT,
	score INTEGER,
	mate INTEGER,
	best_move TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_analyses_identity ON analyses(identity);

CREATE TABLE IF NOT EXISTS settings (
	identity TEXT PRIMARY KEY,
	language TEXT NOT NULL DEFAULT 'en',
	voice_mode TEXT NOT NULL DEFAULT '',
	muted INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS puzzles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	fen TEXT NOT NULL,
	solution TEXT NOT NULL,
	rating INTEGER NOT NULL DEFAULT 0,
	theme TEXT
);

CREATE TABLE IF NOT EXISTS puzzle_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identity TEXT NOT NULL,
	puzzle_id INTEGER NOT NULL,
	correct INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// NewFallback opens (and migrates) the local store at dbPath.
func NewFallback(dbPath string) (*FallbackStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open fallback store: %w", err)
	}
	if _, err := db.Exec(createFallbackTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate fallback store: %w", err)
	}
	return &FallbackStore{db: db}, nil
}

// Ping verifies the database handle with a trivial read.
func (f *FallbackStore) Ping(ctx context.Context) error {
	var one int
	return f.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func (f *FallbackStore) SaveGame(ctx context.Context, g models.Game) (int64, error) {
	res, err := f.db.ExecContext(ctx,
		`INSERT INTO games (identity, pgn, result) VALUES (?, ?, ?)`,
		g.Identity, g.PGN, g.Result,
	)
	if err != nil {
		return 0, fmt.Errorf("save game: %w", err)
	}
	return res.LastInsertId()
}

func (f *FallbackStore) ListGames(ctx context.Context, identity string, limit int) ([]models.Game, error) {
	rows, err := f.db.QueryContext(ctx,
		`SELECT id, identity, pgn, COALESCE(result, ''), created_at
		 FROM games WHERE identity = ? ORDER BY created_at DESC LIMIT ?`,
		identity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(&g.ID, &g.Identity, &g.PGN, &g.Result, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (f *FallbackStore) SaveAnalysis(ctx context.Context, rec models.AnalysisRecord) (int64, error) {
	res, err := f.db.ExecContext(ctx,
		`INSERT INTO analyses (identity, game_id, move_number, move, fen, commentary, score, mate, best_move)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Identity, rec.GameID, rec.MoveNumber, rec.Move, rec.FEN, rec.Commentary, rec.Score, rec.Mate, rec.BestMove,
	)
	if err != nil {
		return 0, fmt.Errorf("save analysis: %w", err)
	}
	return res.LastInsertId()
}

func (f *FallbackStore) ListAnalyses(ctx context.Context, identity string, limit int) ([]models.AnalysisRecord, error) {
	rows, err := f.db.QueryContext(ctx,
		`SELECT id, identity, COALESCE(game_id, 0), move_number, move, fen, COALESCE(commentary, ''), score, mate, COALESCE(best_move, ''), created_at
		 FROM analyses WHERE identity = ? ORDER BY created_at DESC LIMIT ?`,
		identity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var recs []models.AnalysisRecord
	for rows.Next() {
		var r models.AnalysisRecord
		var score, mate sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Identity, &r.GameID, &r.MoveNumber, &r.Move, &r.FEN, &r.Commentary, &score, &mate, &r.BestMove, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		if score.Valid {
			v := int(score.Int64)
			r.Score = &v
		}
		if mate.Valid {
			v := int(mate.Int64)
			r.Mate = &v
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (f *FallbackStore) GetSettings(ctx context.Context, identity string) (*models.Settings, error) {
	var s models.Settings
	var muted int
	err := f.db.QueryRowContext(ctx,
		`SELECT identity, language, voice_mode, muted, updated_at FROM settings WHERE identity = ?`,
		identity,
	).Scan(&s.Identity, &s.Language, &s.VoiceMode, &muted, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	s.Muted = muted != 0
	return &s, nil
}

func (f *FallbackStore) SaveSettings(ctx context.Context, s models.Settings) error {
	muted := 0
	if s.Muted {
		muted = 1
	}
	_, err := f.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (identity, language, voice_mode, muted, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		s.Identity, s.Language, s.VoiceMode, muted,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (f *FallbackStore) ListPuzzles(ctx context.Context, limit int) ([]models.Puzzle, error) {
	rows, err := f.db.QueryContext(ctx,
		`SELECT id, fen, solution, rating, COALESCE(theme, '') FROM puzzles ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list puzzles: %w", err)
	}
	defer rows.Close()

	var puzzles []models.Puzzle
	for rows.Next() {
		var p models.Puzzle
		if err := rows.Scan(&p.ID, &p.FEN, &p.Solution, &p.Rating, &p.Theme); err != nil {
			return nil, fmt.Errorf("scan puzzle: %w", err)
		}
		puzzles = append(puzzles, p)
	}
	return puzzles, rows.Err()
}

func (f *FallbackStore) SavePuzzleAttempt(ctx context.Context, a models.PuzzleAttempt) (int64, error) {
	correct := 0
	if a.Correct {
		correct = 1
	}
	res, err := f.db.ExecContext(ctx,
		`INSERT INTO puzzle_attempts (identity, puzzle_id, correct) VALUES (?, ?, ?)`,
		a.Identity, a.PuzzleID, correct,
	)
	if err != nil {
		return 0, fmt.Errorf("save attempt: %w", err)
	}
	return res.LastInsertId()
}

// Close releases the database connection.
func (f *FallbackStore) Close() error {
	return f.db.Close()
}
