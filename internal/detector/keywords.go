package detector

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strings"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// KeywordSet holds the two keyword tiers.
type KeywordSet struct {
	Critical  []string `mapstructure:"critical"`
	Important []string `mapstructure:"important"`
}

// DefaultKeywords returns the built-in English and German keyword lists.
func DefaultKeywords() KeywordSet {
	return KeywordSet{
		Critical: []string{
			"registration", "register", "apply", "application", "submit",
			"sign up", "now open", "available",
			"warteliste", "anmeldung", "registrierung", "bewerbung", "bewerben",
			"antrag", "formular", "jetzt anmelden", "freie plätze", "verfügbar",
		},
		Important: []string{
			"updated", "deadline", "announcement",
			"aktualisiert", "änderung", "termin", "frist", "öffnung", "geöffnet",
		},
	}
}

// KeywordResult is the outcome of keyword detection. Keywords holds the tier
// that decided the priority.
type KeywordResult struct {
	Matched     bool
	Priority    monitor.Priority
	Confidence  float64
	Keywords    []string
	Critical    []string
	Important   []string
	Description string
}

// KeywordDetector performs case-insensitive substring matching against the
// visible text of normalized content.
type KeywordDetector struct {
	critical  []string
	important []string
	tags      *regexp.Regexp
}

// NewKeywordDetector builds a detector. Empty tiers fall back to the defaults.
func NewKeywordDetector(set KeywordSet) *KeywordDetector {
	defaults := DefaultKeywords()
	if len(set.Critical) == 0 {
		set.Critical = defaults.Critical
	}
	if len(set.Important) == 0 {
		set.Important = defaults.Important
	}
	return &KeywordDetector{
		critical:  lowerAll(set.Critical),
		important: lowerAll(set.Important),
		tags:      regexp.MustCompile(`<[^>]*>`),
	}
}

// Detect matches both tiers against normalized.
func (d *KeywordDetector) Detect(normalized string) KeywordResult {
	text := d.visibleText(normalized)
	return scoreKeywords(matchAll(text, d.critical), matchAll(text, d.important))
}

func (d *KeywordDetector) visibleText(normalized string) string {
	text := d.tags.ReplaceAllString(normalized, " ")
	return strings.ToLower(html.UnescapeString(text))
}

// scoreKeywords converts matched keyword lists into a result. Critical
// matches win: 0.9 + 0.02 per match capped at 1.0. Otherwise important
// matches score 0.7 + 0.05 per match capped at 0.9.
func scoreKeywords(critical, important []string) KeywordResult {
	res := KeywordResult{Priority: monitor.PriorityInfo, Critical: critical, Important: important}
	switch {
	case len(critical) > 0:
		res.Matched = true
		res.Priority = monitor.PriorityCritical
		res.Confidence = math.Min(0.9+0.02*float64(len(critical)), 1.0)
		res.Keywords = critical
		res.Description = fmt.Sprintf("critical keywords found: %s", strings.Join(critical, ", "))
	case len(important) > 0:
		res.Matched = true
		res.Priority = monitor.PriorityImportant
		res.Confidence = math.Min(0.7+0.05*float64(len(important)), 0.9)
		res.Keywords = important
		res.Description = fmt.Sprintf("important keywords found: %s", strings.Join(important, ", "))
	}
	return res
}

func matchAll(text string, keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			out = append(out, kw)
		}
	}
	return out
}

// subtract returns the entries of a that are not in b, keeping order.
func subtract(a, b []string) []string {
	seen := make(map[string]struct{}, len(b))
	for _, s := range b {
		seen[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
