package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/castlegate-ai/castlegate/pkg/models"
)

// Config holds all castlegate configuration.
type Config struct {
	Listen     string             `yaml:"listen" env:"LISTEN"`
	DBPath     string             `yaml:"db_path" env:"DB_PATH"`
	Engine     EngineConfig       `yaml:"engine"`
	Generation GenerationConfig   `yaml:"generation"`
	Speech     SpeechConfig       `yaml:"speech"`
	Trial      TrialConfig        `yaml:"trial"`
	Cache      CacheConfig        `yaml:"cache"`
	Store      StoreConfig        `yaml:"store"`
	Audit      models.AuditConfig `yaml:"audit"`
	Plans      PlansConfig        `yaml:"plans"`
}

// EngineConfig points at the external chess analysis service.
type EngineConfig struct {
	URL     string        `yaml:"url" env:"ENGINE_URL"`
	Timeout time.Duration `yaml:"timeout"`
}

// GenerationConfig controls the commentary generation upstream.
type GenerationConfig struct {
	URL           string `yaml:"url" env:"GENERATION_URL"`
	APIKey        string `yaml:"api_key" env:"GENERATION_API_KEY"`
	MaxChars      int    `yaml:"max_chars"`
	RatePerMinute int    `yaml:"rate_per_minute"`
}

// SpeechConfig controls the two synthesis providers. Absent premium
// credentials silently force budget-provider-only behavior.
type SpeechConfig struct {
	PremiumURL     string        `yaml:"premium_url"`
	PremiumAPIKey  string        `yaml:"premium_api_key" env:"PREMIUM_SPEECH_API_KEY"`
	PremiumVoiceID string        `yaml:"premium_voice_id" env:"PREMIUM_SPEECH_VOICE_ID"`
	BudgetURL      string        `yaml:"budget_url"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxTextChars   int           `yaml:"max_text_chars"`
}

// TrialConfig controls the daily pro trial.
type TrialConfig struct {
	Enabled         bool `yaml:"enabled" env:"TRIAL_ENABLED"`
	DurationMinutes int  `yaml:"duration_minutes" env:"TRIAL_DURATION_MIN"`
}

// Duration returns the trial window as a time.Duration.
func (t TrialConfig) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// CacheConfig sizes the in-memory caches and the durable memo store.
type CacheConfig struct {
	AudioBudgetBytes int64         `yaml:"audio_budget_bytes"`
	TextBudgetBytes  int64         `yaml:"text_budget_bytes"`
	MemoTTL          time.Duration `yaml:"memo_ttl"`
}

// StoreConfig controls the primary store and the local fallback.
// ReprobeAfter of zero keeps failover sticky until process restart.
type StoreConfig struct {
	PrimaryURL    string        `yaml:"primary_url" env:"STORE_PRIMARY_URL"`
	PrimaryAPIKey string        `yaml:"primary_api_key" env:"STORE_PRIMARY_API_KEY"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	ReprobeAfter  time.Duration `yaml:"reprobe_after"`
	FallbackPath  string        `yaml:"fallback_path" env:"STORE_FALLBACK_PATH"`
}

// PlansConfig holds the three plan tiers.
type PlansConfig struct {
	Free  models.PlanConfig `yaml:"free"`
	Pro   models.PlanConfig `yaml:"pro"`
	Elite models.PlanConfig `yaml:"elite"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "castlegate.db",
		Engine: EngineConfig{
			Timeout: 15 * time.Second,
		},
		Generation: GenerationConfig{
			MaxChars:      400,
			RatePerMinute: 2,
		},
		Speech: SpeechConfig{
			Timeout:      2 * time.Second,
			MaxTextChars: 300,
		},
		Trial: TrialConfig{
			Enabled:         true,
			DurationMinutes: 30,
		},
		Cache: CacheConfig{
			AudioBudgetBytes: 32 << 20,
			TextBudgetBytes:  256 << 10,
			MemoTTL:          24 * time.Hour,
		},
		Store: StoreConfig{
			ProbeTimeout: 2 * time.Second,
			ReprobeAfter: 0,
			FallbackPath: "castlegate-fallback.db",
		},
		Audit: models.AuditConfig{
			Enabled:       true,
			DBPath:        "castlegate-audit.db",
			RetentionDays: 30,
		},
		Plans: PlansConfig{
			Free: models.PlanConfig{
				Tier:                  models.PlanFree,
				SpeechProvider:        models.SpeechBudget,
				EngineDepth:           12,
				MaxConcurrentAnalysis: 1,
				GenerationModel:       "gpt-4o-mini",
			},
			Pro: models.PlanConfig{
				Tier:                  models.PlanPro,
				SpeechProvider:        models.SpeechPremium,
				EngineDepth:           22,
				MaxConcurrentAnalysis: 2,
				GenerationModel:       "gpt-4o",
				Features: models.PlanFeatures{
					ClonedVoice:      true,
					AdvancedAnalysis: true,
				},
			},
			Elite: models.PlanConfig{
				Tier:                  models.PlanElite,
				SpeechProvider:        models.SpeechPremium,
				EngineDepth:           28,
				MaxConcurrentAnalysis: 4,
				GenerationModel:       "gpt-4o",
				Features: models.PlanFeatures{
					ClonedVoice:      true,
					AdvancedAnalysis: true,
					UnlimitedPuzzles: true,
				},
			},
		},
	}
}

// Load reads a YAML config file, expands environment variables inside it,
// then applies environment overrides on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides config fields from the process environment.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	// Per-tier variables use tier-suffixed names (ENGINE_DEPTH_FREE, MODEL_PRO,
	// MAX_CONCURRENT_ANALYSIS_ELITE), which struct tags cannot express.
	for _, p := range []struct {
		suffix string
		plan   *models.PlanConfig
	}{
		{"FREE", &c.Plans.Free},
		{"PRO", &c.Plans.Pro},
		{"ELITE", &c.Plans.Elite},
	} {
		if v, err := envInt("ENGINE_DEPTH_" + p.suffix); err != nil {
			return err
		} else if v != nil {
			p.plan.EngineDepth = *v
		}
		if v, err := envInt("MAX_CONCURRENT_ANALYSIS_" + p.suffix); err != nil {
			return err
		} else if v != nil {
			p.plan.MaxConcurrentAnalysis = *v
		}
		if v, ok := os.LookupEnv("MODEL_" + p.suffix); ok {
			p.plan.GenerationModel = v
		}
	}
	return nil
}

func envInt(name string) (*int, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return &n, nil
}

// PlanFor returns the configuration for a tier, defaulting to free for
// unknown values.
func (c *Config) PlanFor(tier models.PlanTier) models.PlanConfig {
	switch tier {
	case models.PlanPro:
		return c.Plans.Pro
	case models.PlanElite:
		return c.Plans.Elite
	default:
		return c.Plans.Free
	}
}

// RequiredTierForDepth returns the lowest tier whose engine depth covers the
// requested depth, and false if no tier does.
func (c *Config) RequiredTierForDepth(depth int) (models.PlanTier, bool) {
	switch {
	case depth <= c.Plans.Free.EngineDepth:
		return models.PlanFree, true
	case depth <= c.Plans.Pro.EngineDepth:
		return models.PlanPro, true
	case depth <= c.Plans.Elite.EngineDepth:
		return models.PlanElite, true
	}
	return "", false
}
