package detector

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/normalizer"
	"github.com/JakeFAU/pagewatch/internal/similarity"
)

type failingDiffer struct{}

func (failingDiffer) Diff(string, string) (string, error) {
	return "", errors.New("boom")
}

func snapshotOf(raw string) *monitor.Snapshot {
	return &monitor.Snapshot{RawContent: raw, NormalizedContent: normalizer.New().Normalize(raw)}
}

func classify(c *Classifier, prev *monitor.Snapshot, raw string) monitor.Verdict {
	return c.Classify(prev, raw, normalizer.New().Normalize(raw))
}

func TestClassifyBaseline(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, nil, Config{}, nil)
	for _, raw := range []string{"", "<p>x</p>", `<form><input name="email"><button type="submit">Register</button></form>`} {
		v := classify(c, nil, raw)
		require.False(t, v.HasChanged)
		require.Equal(t, monitor.ChangeNone, v.Type)
		require.Equal(t, monitor.PriorityInfo, v.Priority)
		require.InDelta(t, 1.0, v.Confidence, 1e-9)
	}
}

func TestClassifyFormWinsOverKeyword(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, nil, Config{}, nil)
	prev := snapshotOf("<p>Nothing here yet</p>")
	v := classify(c, prev, `<form><input name="email"><button type="submit">Register</button></form>`)
	require.True(t, v.HasChanged)
	require.Equal(t, monitor.ChangeFormDetected, v.Type)
	require.Equal(t, monitor.PriorityCritical, v.Priority)
	require.InDelta(t, 0.95, v.Confidence, 1e-9)
	require.Equal(t, "HTML", v.FormType)
	require.Len(t, v.FormFields, 1)
	require.Equal(t, "email", v.FormFields[0].Name)
	require.NotEmpty(t, v.Diff)
}

func TestClassifyKeywordMatch(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, nil, Config{}, nil)
	v := classify(c, snapshotOf("<p>Hello there</p>"), "<p>Registration is now open</p>")
	require.True(t, v.HasChanged)
	require.Equal(t, monitor.ChangeKeywordMatch, v.Type)
	require.Equal(t, monitor.PriorityCritical, v.Priority)
	require.ElementsMatch(t, []string{"registration", "now open"}, v.MatchedKeywords)
	require.Contains(t, v.Diff, "+<p>Registration is now open</p>")
	require.Contains(t, v.Diff, "-<p>Hello there</p>")
}

func TestClassifyMinorEditIsNoChange(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 10)
	c := NewClassifier(nil, nil, Config{}, nil)
	v := classify(c, snapshotOf("<p>"+body+"Page content A</p>"), "<p>"+body+"Page content B</p>")
	require.False(t, v.HasChanged)
	require.Equal(t, monitor.ChangeNone, v.Type)
	require.Equal(t, monitor.PriorityInfo, v.Priority)
	require.GreaterOrEqual(t, v.Similarity, similarity.Threshold)
	require.Empty(t, v.Diff)
}

func TestClassifyContentReplaced(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, nil, Config{}, nil)
	prev := snapshotOf("Page content A")
	v := classify(c, prev, "Zebra xylophone quartz")
	want := 1 - similarity.Ratio("Page content A", "Zebra xylophone quartz")
	require.True(t, v.HasChanged)
	require.Equal(t, monitor.ChangeContent, v.Type)
	require.Equal(t, monitor.PriorityInfo, v.Priority)
	require.InDelta(t, want, v.Confidence, 1e-9)
	require.Contains(t, v.Description, "% of content changed")
}

func TestClassifyDiffFailureKeepsVerdict(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, failingDiffer{}, Config{}, nil)
	v := classify(c, snapshotOf("<p>old</p>"), `<form><input name="email"><button type="submit">Go</button></form>`)
	require.Equal(t, monitor.ChangeFormDetected, v.Type)
	require.Equal(t, monitor.PriorityCritical, v.Priority)
	require.Equal(t, DiffPlaceholder, v.Diff)
}

func TestClassifyNewSignalsOnly(t *testing.T) {
	t.Parallel()

	form := `<form><input name="email"><button type="submit">Go</button></form>`
	prev := snapshotOf(form + "<p>apply</p>")
	current := form + "<p>apply</p><p>sign up</p>"

	strict := NewClassifier(nil, nil, Config{NewSignalsOnly: true}, nil)
	v := classify(strict, prev, current)
	require.Equal(t, monitor.ChangeKeywordMatch, v.Type)
	require.Equal(t, []string{"sign up"}, v.MatchedKeywords)
	require.InDelta(t, 0.92, v.Confidence, 1e-9)

	loose := NewClassifier(nil, nil, Config{}, nil)
	require.Equal(t, monitor.ChangeFormDetected, classify(loose, prev, current).Type)
}

func TestClassifyBoundedCompare(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, nil, Config{MaxCompareRunes: 5}, nil)
	v := classify(c, snapshotOf("<p>aaaaaaaa</p>"), "<p>aaaaaaab</p>")
	require.True(t, v.HasChanged)
	require.Equal(t, monitor.ChangeContent, v.Type)
	require.InDelta(t, 1.0, v.Confidence, 1e-9)
}

func TestLineDifferSplitsTags(t *testing.T) {
	t.Parallel()

	out, err := NewLineDiffer(0).Diff("<p>a</p><p>b</p>", "<p>a</p><p>c</p>")
	require.NoError(t, err)
	require.Contains(t, out, " <p>a</p>")
	require.Contains(t, out, "-<p>b</p>")
	require.Contains(t, out, "+<p>c</p>")
}

func TestLineDifferTruncates(t *testing.T) {
	t.Parallel()

	out, err := NewLineDiffer(16).Diff("", strings.Repeat("<p>x</p>", 50))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out, "(truncated)"))

	// The cut never lands inside a multi-byte rune.
	for limit := 10; limit <= 20; limit++ {
		out, err = NewLineDiffer(limit).Diff("<p>a</p>", "<p>"+strings.Repeat("ü", 20)+"</p>")
		require.NoError(t, err)
		require.True(t, strings.HasSuffix(out, "(truncated)"))
		require.True(t, utf8.ValidString(out), "limit %d produced %q", limit, out)
	}
}

func TestLineDifferRepairsInvalidInput(t *testing.T) {
	t.Parallel()

	out, err := NewLineDiffer(0).Diff("<p>a</p>", "<p>caf\xe9</p>")
	require.NoError(t, err)
	require.True(t, utf8.ValidString(out))
	require.Contains(t, out, "caf\uFFFD")
}
