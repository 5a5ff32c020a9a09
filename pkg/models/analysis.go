package models

import "time"

// Analysis is the result of one engine evaluation of a position.
// Score is in centipawns from the side to move; Mate is moves to mate
// when the position is forced.
type Analysis struct {
	BestMove string `json:"bestMove,omitempty"`
	Score    *int   `json:"score,omitempty"`
	Mate     *int   `json:"mate,omitempty"`
	Depth    int    `json:"depth"`
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	FEN   string `json:"fen"`
	Depth *int   `json:"depth,omitempty"`
}

// AnalyzeResponse is the successful body of POST /analyze.
type AnalyzeResponse struct {
	Plan      PlanTier `json:"plan"`
	Depth     int      `json:"depth"`
	Model     string   `json:"model"`
	TrialUsed bool     `json:"trialUsed"`
	BestMove  string   `json:"bestMove,omitempty"`
	Score     *int     `json:"score,omitempty"`
	Mate      *int     `json:"mate,omitempty"`
}

// TrialDenied is the 402 body returned when a higher tier is required
// and the caller's daily trial is exhausted.
type TrialDenied struct {
	Reason       string   `json:"reason"`
	Message      string   `json:"message"`
	CurrentPlan  PlanTier `json:"currentPlan"`
	RequiredPlan PlanTier `json:"requiredPlan"`
}

// MoveSettings carries the caller's preferences for move commentary.
type MoveSettings struct {
	Plan     PlanTier `json:"plan"`
	Language string   `json:"language"`
	Mode     string   `json:"mode"` // audience mode: beginner or expert
}

// MoveAnalysisRequest is the body of POST /analysis/move.
type MoveAnalysisRequest struct {
	MoveNumber int          `json:"moveNumber"`
	Move       string       `json:"move"`
	FEN        string       `json:"fen"`
	Settings   MoveSettings `json:"settings"`
	VoiceMode  string       `json:"voiceMode,omitempty"`
	Muted      bool         `json:"muted"`
}

// MoveAnalysisResponse is the body of a successful POST /analysis/move.
// AudioURL is absent, not an error, when the caller muted audio or
// synthesis failed.
type MoveAnalysisResponse struct {
	MoveNumber int    `json:"moveNumber"`
	Move       string `json:"move"`
	FEN        string `json:"fen"`
	Analysis   string `json:"analysis"`
	Score      *int   `json:"score,omitempty"`
	Mate       *int   `json:"mate,omitempty"`
	BestMove   string `json:"bestMove,omitempty"`
	AudioURL   string `json:"audioUrl,omitempty"`
}

// PlanResponse is the body of GET /plan.
type PlanResponse struct {
	Plan   PlanTier   `json:"plan"`
	Trial  TrialInfo  `json:"trial"`
	Config PlanConfig `json:"config"`
}

// AnalysisRecord is a persisted per-move analysis row.
type AnalysisRecord struct {
	ID         int64     `json:"id"`
	Identity   string    `json:"identity"`
	GameID     int64     `json:"game_id,omitempty"`
	MoveNumber int       `json:"move_number"`
	Move       string    `json:"move"`
	FEN        string    `json:"fen"`
	Commentary string    `json:"commentary"`
	Score      *int      `json:"score,omitempty"`
	Mate       *int      `json:"mate,omitempty"`
	BestMove   string    `json:"best_move,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
