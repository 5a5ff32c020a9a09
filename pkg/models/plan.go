package models

// PlanTier identifies a subscription tier.
type PlanTier string

const (
	PlanFree  PlanTier = "free"
	PlanPro   PlanTier = "pro"
	PlanElite PlanTier = "elite"
)

// Valid reports whether the tier is one of the known plan tiers.
func (t PlanTier) Valid() bool {
	switch t {
	case PlanFree, PlanPro, PlanElite:
		return true
	}
	return false
}

// SpeechProviderKind selects which synthesis backend a plan is entitled to.
type SpeechProviderKind string

const (
	SpeechPremium SpeechProviderKind = "premium"
	SpeechBudget  SpeechProviderKind = "budget"
)

// PlanFeatures lists the feature switches attached to a plan.
type PlanFeatures struct {
	ClonedVoice      bool `json:"cloned_voice" yaml:"cloned_voice"`
	AdvancedAnalysis bool `json:"advanced_analysis" yaml:"advanced_analysis"`
	UnlimitedPuzzles bool `json:"unlimited_puzzles" yaml:"unlimited_puzzles"`
}

// PlanConfig is the immutable per-tier configuration, loaded once at startup.
type PlanConfig struct {
	Tier                  PlanTier           `json:"tier" yaml:"tier"`
	SpeechProvider        SpeechProviderKind `json:"speech_provider" yaml:"speech_provider"`
	EngineDepth           int                `json:"engine_depth" yaml:"engine_depth"`
	MaxConcurrentAnalysis int                `json:"max_concurrent_analysis" yaml:"max_concurrent_analysis"`
	GenerationModel       string             `json:"generation_model" yaml:"generation_model"`
	Features              PlanFeatures       `json:"features" yaml:"features"`
}
