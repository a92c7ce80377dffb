package ocr

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Reason is a machine-readable routing flag.
type Reason string

const (
	ReasonEmptyText       Reason = "empty_text"
	ReasonTooFewChars     Reason = "too_few_chars"
	ReasonMissingRequired Reason = "missing_required_anchor"
	ReasonNoOptional      Reason = "no_optional_anchor" // informational
	ReasonTooFewWords     Reason = "too_few_words"
	ReasonLowQuality      Reason = "low_quality"
	ReasonOverride        Reason = "override"
)

// RoutingConfig decides when the native text layer is trusted.
type RoutingConfig struct {
	MinChars         int      `toml:"min_chars"`
	MinWords         int      `toml:"min_words"`
	RequiredAnchors  []string `toml:"required_anchors"` // regexes; at least one must match
	OptionalAnchors  []string `toml:"optional_anchors"`
	QualityThreshold float64  `toml:"quality_threshold"`
	AllowOverride    bool     `toml:"allow_override"` // a required anchor rescues low quality
}

func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		MinChars:         40,
		MinWords:         8,
		RequiredAnchors:  []string{`\d+[.,]\d{2}\b`},
		OptionalAnchors:  []string{`(?i)faktura|invoice|rechnung|lasku|summa|total|moms|vat`},
		QualityThreshold: 0.5,
		AllowOverride:    true,
	}
}

// RoutingDecision says whether the native text of one page is used.
type RoutingDecision struct {
	UseNative bool     `json:"use_native"`
	Quality   float64  `json:"quality"`
	Reasons   []Reason `json:"reasons,omitempty"`
}

// Has reports whether the decision carries reason.
func (d RoutingDecision) Has(reason Reason) bool {
	for _, r := range d.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

func (d RoutingDecision) String() string {
	source := "ocr"
	if d.UseNative {
		source = "native"
	}
	if len(d.Reasons) == 0 {
		return source
	}
	reasons := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		reasons[i] = string(r)
	}
	return fmt.Sprintf("%s (%s)", source, strings.Join(reasons, ","))
}

// Router applies a RoutingConfig with its anchors compiled once.
type Router struct {
	config   RoutingConfig
	required []*regexp.Regexp
	optional []*regexp.Regexp
}

func NewRouter(config RoutingConfig) (*Router, error) {
	const op = "NewRouter"

	required, err := compileAll(config.RequiredAnchors)
	if err != nil {
		return nil, WrapOCRError(op, err, "required anchor")
	}
	optional, err := compileAll(config.OptionalAnchors)
	if err != nil {
		return nil, WrapOCRError(op, err, "optional anchor")
	}
	return &Router{config: config, required: required, optional: optional}, nil
}

// Route decides between the native text layer and OCR for one page. Native
// text is trusted when no blocking reason applies, or when low quality is
// the only problem, overrides are allowed and a required anchor matched.
func (r *Router) Route(text string, quality float64) RoutingDecision {
	d := RoutingDecision{Quality: quality}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		d.Reasons = []Reason{ReasonEmptyText}
		return d
	}

	var blocking []Reason
	if visibleRunes(trimmed) < r.config.MinChars {
		blocking = append(blocking, ReasonTooFewChars)
	}
	anchored := matchesAny(r.required, trimmed)
	if len(r.required) > 0 && !anchored {
		blocking = append(blocking, ReasonMissingRequired)
	}
	if len(strings.Fields(trimmed)) < r.config.MinWords {
		blocking = append(blocking, ReasonTooFewWords)
	}
	if quality < r.config.QualityThreshold {
		blocking = append(blocking, ReasonLowQuality)
	}
	d.Reasons = append(d.Reasons, blocking...)
	if len(r.optional) > 0 && !matchesAny(r.optional, trimmed) {
		d.Reasons = append(d.Reasons, ReasonNoOptional)
	}

	switch {
	case len(blocking) == 0:
		d.UseNative = true
	case len(blocking) == 1 && blocking[0] == ReasonLowQuality &&
		r.config.AllowOverride && len(r.required) > 0 && anchored:
		d.UseNative = true
		d.Reasons = append(d.Reasons, ReasonOverride)
	}
	return d
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func visibleRunes(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
