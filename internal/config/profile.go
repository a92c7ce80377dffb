package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"invoicelayout/internal/fields"
	"invoicelayout/internal/lineitems"
	"invoicelayout/internal/pipeline"
)

// Profile is a named set of extraction thresholds. Keys missing from a
// profile file keep their defaults.
//
//	name = "swedish-suppliers"
//
//	[pipeline]
//	page_workers = 8
//
//	[pipeline.line_items]
//	mode = "positional"
//
//	[pipeline.routing]
//	min_chars = 60
type Profile struct {
	Name     string          `toml:"name"`
	Pipeline pipeline.Config `toml:"pipeline"`
}

func DefaultProfile() Profile {
	return Profile{
		Name:     "default",
		Pipeline: pipeline.DefaultConfig(),
	}
}

// LoadProfile reads a TOML profile over the defaults. Unknown keys are
// rejected so that typos do not silently fall back to a default.
func LoadProfile(path string) (Profile, error) {
	profile := DefaultProfile()

	f, err := os.Open(path)
	if err != nil {
		return Profile{}, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&profile); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Profile{}, fmt.Errorf("profile %s: %s", path, strict.String())
		}
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return profile, nil
}

// Profile returns the profile named by PROFILE_PATH, or the defaults, with
// the PAGE_WORKERS setting applied.
func (c *Config) Profile() (Profile, error) {
	profile := DefaultProfile()
	if c.ProfilePath != "" {
		loaded, err := LoadProfile(c.ProfilePath)
		if err != nil {
			return Profile{}, err
		}
		profile = loaded
	}
	if c.PageWorkers > 0 {
		profile.Pipeline.PageWorkers = c.PageWorkers
	}
	return profile, nil
}

// Validate checks the values a TOML file can get wrong.
func (p Profile) Validate() error {
	cfg := p.Pipeline
	for _, s := range cfg.Fields.Strategies {
		if _, ok := fields.ParseStrategy(string(s)); !ok {
			return fmt.Errorf("unknown strategy %q", s)
		}
	}
	switch cfg.LineItems.Mode {
	case lineitems.ModeAuto, lineitems.ModeColumns, lineitems.ModePositional:
	default:
		return fmt.Errorf("unknown line item mode %q", cfg.LineItems.Mode)
	}
	if cfg.Fields.TargetConfidence < 0 || cfg.Fields.TargetConfidence > 1 {
		return fmt.Errorf("target confidence %.2f outside [0,1]", cfg.Fields.TargetConfidence)
	}
	if seg := cfg.Layout.Segments; seg.HeaderRatio <= 0 || seg.HeaderRatio >= seg.FooterRatio || seg.FooterRatio >= 1 {
		return fmt.Errorf("segment ratios must satisfy 0 < header < footer < 1, got %.2f and %.2f", seg.HeaderRatio, seg.FooterRatio)
	}
	if cfg.Validator.Tolerance < 0 || cfg.Validator.TolerancePct < 0 {
		return fmt.Errorf("validator tolerances must not be negative")
	}
	return nil
}
