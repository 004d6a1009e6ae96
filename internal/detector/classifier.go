package detector

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/similarity"
)

const defaultMaxCompareRunes = 20000

// Config tunes the Classifier.
type Config struct {
	// Threshold is the similarity ratio below which content counts as
	// changed. Zero selects similarity.Threshold.
	Threshold float64
	// MaxCompareRunes bounds the edit-distance computation; larger inputs are
	// compared by equality. Zero selects 20000, negative disables the bound.
	MaxCompareRunes int
	// NewSignalsOnly fires form and keyword verdicts only when the signal was
	// absent from the previous snapshot.
	NewSignalsOnly bool
	// SkipFormFields disables form field extraction on FORM_DETECTED.
	SkipFormFields bool
}

// Classifier implements monitor.Classifier.
type Classifier struct {
	forms    *FormDetector
	keywords *KeywordDetector
	differ   Differ
	cfg      Config
	logger   *zap.Logger
}

// NewClassifier wires the detectors together. Nil arguments fall back to the
// default form rules, default keywords and a LineDiffer.
func NewClassifier(keywords *KeywordDetector, differ Differ, cfg Config, logger *zap.Logger) *Classifier {
	if keywords == nil {
		keywords = NewKeywordDetector(KeywordSet{})
	}
	if differ == nil {
		differ = NewLineDiffer(0)
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = similarity.Threshold
	}
	if cfg.MaxCompareRunes == 0 {
		cfg.MaxCompareRunes = defaultMaxCompareRunes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		forms:    NewFormDetector(),
		keywords: keywords,
		differ:   differ,
		cfg:      cfg,
		logger:   logger,
	}
}

// Classify runs the cascade: baseline, form, keyword, similarity, none.
// Each step short-circuits the rest. The returned verdict has no IDs set.
func (c *Classifier) Classify(prev *monitor.Snapshot, currentRaw, currentNormalized string) monitor.Verdict {
	if prev == nil {
		return monitor.Verdict{
			HasChanged:  false,
			Type:        monitor.ChangeNone,
			Priority:    monitor.PriorityInfo,
			Confidence:  1.0,
			Similarity:  1.0,
			Description: "initial baseline",
		}
	}

	maxRunes := c.cfg.MaxCompareRunes
	if maxRunes < 0 {
		maxRunes = 0
	}
	ratio := similarity.RatioBounded(prev.NormalizedContent, currentNormalized, maxRunes)

	if form := c.forms.Detect(currentRaw); form.Detected && c.formIsNew(prev) {
		v := monitor.Verdict{
			HasChanged:  true,
			Type:        monitor.ChangeFormDetected,
			Priority:    monitor.PriorityCritical,
			Confidence:  form.Confidence,
			Similarity:  ratio,
			Description: fmt.Sprintf("%s application form detected", form.Type),
			FormType:    string(form.Type),
			Diff:        c.diff(prev.RawContent, currentRaw),
		}
		if !c.cfg.SkipFormFields && form.Type == FormHTML {
			v.FormFields = ExtractFormFields(currentRaw)
		}
		return v
	}

	if kw := c.keywordSignal(prev, currentNormalized); kw.Matched {
		return monitor.Verdict{
			HasChanged:      true,
			Type:            monitor.ChangeKeywordMatch,
			Priority:        kw.Priority,
			Confidence:      kw.Confidence,
			Similarity:      ratio,
			Description:     kw.Description,
			MatchedKeywords: kw.Keywords,
			Diff:            c.diff(prev.RawContent, currentRaw),
		}
	}

	if ratio < c.cfg.Threshold {
		return monitor.Verdict{
			HasChanged:  true,
			Type:        monitor.ChangeContent,
			Priority:    monitor.PriorityInfo,
			Confidence:  1 - ratio,
			Similarity:  ratio,
			Description: fmt.Sprintf("%.1f%% of content changed", (1-ratio)*100),
			Diff:        c.diff(prev.RawContent, currentRaw),
		}
	}

	return monitor.Verdict{
		HasChanged:  false,
		Type:        monitor.ChangeNone,
		Priority:    monitor.PriorityInfo,
		Confidence:  0,
		Similarity:  ratio,
		Description: "no significant changes",
	}
}

func (c *Classifier) formIsNew(prev *monitor.Snapshot) bool {
	if !c.cfg.NewSignalsOnly {
		return true
	}
	return !c.forms.Detect(prev.RawContent).Detected
}

func (c *Classifier) keywordSignal(prev *monitor.Snapshot, currentNormalized string) KeywordResult {
	current := c.keywords.Detect(currentNormalized)
	if !current.Matched || !c.cfg.NewSignalsOnly {
		return current
	}
	before := c.keywords.Detect(prev.NormalizedContent)
	return scoreKeywords(subtract(current.Critical, before.Critical), subtract(current.Important, before.Important))
}

func (c *Classifier) diff(previous, current string) string {
	out, err := c.differ.Diff(previous, current)
	if err != nil {
		c.logger.Warn("diff generation failed", zap.Error(err))
		return DiffPlaceholder
	}
	return out
}
