// Package plannerconfig loads and validates the option set recognised by
// the planner (spec.md §9): discount, maxTrials, maxDepth, nParticles,
// ucbExploreCoefficient, heuristicExploreCoefficient, maxNnComparisons,
// maxNnDistance, mapPath, plus a domain-specific escape hatch for
// Model-private options. Any top-level key outside that set is treated as a
// Model-private option and kept in Extra; it is not rejected.
package plannerconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PlannerConfig is the root configuration for one planner run. Pointer
// fields distinguish "not specified" from "explicitly zero" so that a
// partial JSON document can be overlaid on DefaultPlannerConfig.
type PlannerConfig struct {
	Discount                     *float64 `json:"discount,omitempty"`
	MaxTrials                    *int64   `json:"maxTrials,omitempty"`
	MaxDepth                     *int64   `json:"maxDepth,omitempty"`
	NParticles                   *int     `json:"nParticles,omitempty"`
	UcbExploreCoefficient        *float64 `json:"ucbExploreCoefficient,omitempty"`
	HeuristicExploreCoefficient  *float64 `json:"heuristicExploreCoefficient,omitempty"`
	MaxNnComparisons             *int64   `json:"maxNnComparisons,omitempty"`
	MaxNnDistance                *float64 `json:"maxNnDistance,omitempty"`
	MapPath                      *string  `json:"mapPath,omitempty"`

	// Extra carries domain-specific keys the Model itself interprets. The
	// core never looks inside it.
	Extra map[string]json.RawMessage `json:"-"`
}

// rawConfig mirrors PlannerConfig but keeps unknown keys around so we can
// tell a genuinely unknown option from a recognised-but-absent one.
type rawConfig map[string]json.RawMessage

var knownKeys = map[string]bool{
	"discount":                     true,
	"maxTrials":                    true,
	"maxDepth":                     true,
	"nParticles":                   true,
	"ucbExploreCoefficient":        true,
	"heuristicExploreCoefficient":  true,
	"maxNnComparisons":             true,
	"maxNnDistance":                true,
	"mapPath":                      true,
}

// DefaultPlannerConfig returns the seed values used by the ABT family of
// planners.
func DefaultPlannerConfig() *PlannerConfig {
	return &PlannerConfig{
		Discount:                    ptrFloat64(0.95),
		MaxTrials:                   ptrInt64(1000),
		MaxDepth:                    ptrInt64(100),
		NParticles:                  ptrInt(1000),
		UcbExploreCoefficient:       ptrFloat64(1.0),
		HeuristicExploreCoefficient: ptrFloat64(0.5),
		MaxNnComparisons:            ptrInt64(50),
		MaxNnDistance:               ptrFloat64(0.5),
		MapPath:                     ptrString(""),
		Extra:                       map[string]json.RawMessage{},
	}
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt64(v int64) *int64       { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// LoadPlannerConfig loads a PlannerConfig from a JSON file, overlaying it on
// DefaultPlannerConfig. Fields omitted from the file keep their default
// value. A top-level key that is not a recognised option is stored in Extra
// rather than reported as an error.
func LoadPlannerConfig(path string) (*PlannerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("configuration error: config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("configuration error: config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: failed to read config file: %w", err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("configuration error: failed to parse config JSON: %w", err)
	}

	cfg := DefaultPlannerConfig()
	extra := map[string]json.RawMessage{}
	for key, value := range raw {
		if !knownKeys[key] {
			extra[key] = value
			continue
		}
		var target any
		switch key {
		case "discount":
			target = &cfg.Discount
		case "maxTrials":
			target = &cfg.MaxTrials
		case "maxDepth":
			target = &cfg.MaxDepth
		case "nParticles":
			target = &cfg.NParticles
		case "ucbExploreCoefficient":
			target = &cfg.UcbExploreCoefficient
		case "heuristicExploreCoefficient":
			target = &cfg.HeuristicExploreCoefficient
		case "maxNnComparisons":
			target = &cfg.MaxNnComparisons
		case "maxNnDistance":
			target = &cfg.MaxNnDistance
		case "mapPath":
			target = &cfg.MapPath
		}
		if err := json.Unmarshal(value, target); err != nil {
			return nil, fmt.Errorf("configuration error: invalid value for %q: %w", key, err)
		}
	}
	cfg.Extra = extra

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration's numeric ranges. An unknown key
// surviving into Extra is, by design, not a validation failure here: the
// domain Model may legitimately consume it. Callers that require a closed
// option set should check len(cfg.Extra) == 0 themselves.
func (c *PlannerConfig) Validate() error {
	if c.Discount != nil && (*c.Discount <= 0 || *c.Discount > 1) {
		return fmt.Errorf("configuration error: discount must be in (0, 1], got %g", *c.Discount)
	}
	if c.MaxTrials != nil && *c.MaxTrials < 0 {
		return fmt.Errorf("configuration error: maxTrials must be non-negative, got %d", *c.MaxTrials)
	}
	if c.MaxDepth != nil && *c.MaxDepth < 0 {
		return fmt.Errorf("configuration error: maxDepth must be non-negative, got %d", *c.MaxDepth)
	}
	if c.NParticles != nil && *c.NParticles <= 0 {
		return fmt.Errorf("configuration error: nParticles must be positive, got %d", *c.NParticles)
	}
	if c.MaxNnComparisons != nil && *c.MaxNnComparisons < 0 {
		return fmt.Errorf("configuration error: maxNnComparisons must be non-negative, got %d", *c.MaxNnComparisons)
	}
	if c.MaxNnDistance != nil && *c.MaxNnDistance < 0 {
		return fmt.Errorf("configuration error: maxNnDistance must be non-negative, got %g", *c.MaxNnDistance)
	}
	return nil
}
