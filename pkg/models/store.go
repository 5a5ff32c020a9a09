package models

import "time"

// Game is a persisted chess game.
type Game struct {
	ID        int64     `json:"id"`
	Identity  string    `json:"identity"`
	PGN       string    `json:"pgn"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Settings holds a caller's persisted preferences.
type Settings struct {
	Identity  string    `json:"identity"`
	Language  string    `json:"language"`
	VoiceMode string    `json:"voice_mode"`
	Muted     bool      `json:"muted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Puzzle is a tactics puzzle served to players.
type Puzzle struct {
	ID       int64  `json:"id"`
	FEN      string `json:"fen"`
	Solution string `json:"solution"`
	Rating   int    `json:"rating"`
	Theme    string `json:"theme,omitempty"`
}

// PuzzleAttempt records one solve attempt against a puzzle.
type PuzzleAttempt struct {
	ID        int64     `json:"id"`
	Identity  string    `json:"identity"`
	PuzzleID  int64     `json:"puzzle_id"`
	Correct   bool      `json:"correct"`
	CreatedAt time.Time `json:"created_at"`
}
