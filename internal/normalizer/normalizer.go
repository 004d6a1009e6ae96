// Package normalizer strips volatile markup and values from HTML so that
// successive fetches of an unchanged page compare equal.
package normalizer

import (
	"regexp"
	"strings"
)

var consentTags = []string{"div", "section", "aside", "footer", "header", "nav", "dialog", "form", "p", "span", "ul"}

type replacement struct {
	re  *regexp.Regexp
	rep string
}

// Normalizer is a regex-based implementation of monitor.Normalizer. It is safe
// for concurrent use.
type Normalizer struct {
	body        *regexp.Regexp
	blocks      []*regexp.Regexp
	consent     []*regexp.Regexp
	trackers    []*regexp.Regexp
	versionArgs *regexp.Regexp
	volatile    []replacement
	betweenTags *regexp.Regexp
	spaces      *regexp.Regexp
}

// New compiles the normalization patterns.
func New() *Normalizer {
	n := &Normalizer{
		body: regexp.MustCompile(`(?is)<body[^>]*>(.*)</body>`),
		blocks: []*regexp.Regexp{
			regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
			regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`),
			regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript\s*>`),
			regexp.MustCompile(`(?s)<!--.*?-->`),
		},
		trackers: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<img\b[^>]*\bwidth=["']?1(?:px)?\b["']?[^>]*\bheight=["']?1(?:px)?\b["']?[^>]*>`),
			regexp.MustCompile(`(?i)<img\b[^>]*\bheight=["']?1(?:px)?\b["']?[^>]*\bwidth=["']?1(?:px)?\b["']?[^>]*>`),
			regexp.MustCompile(`(?is)<iframe\b[^>]*(?:display:\s*none|visibility:\s*hidden|\bhidden\b|\bwidth=["']?0\b|\bheight=["']?0\b)[^>]*>.*?</iframe\s*>`),
		},
		versionArgs: regexp.MustCompile(`[?&]v=\d+`),
		volatile: []replacement{
			{regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`), "TIMESTAMP"},
			{regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`), "DATE"},
			{regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`), "TIME"},
			{regexp.MustCompile(`(?i)sessionid=[a-z0-9_-]+`), "sessionid=TOKEN"},
			{regexp.MustCompile(`(?i)csrf[_-]?token=[a-z0-9_-]+`), "csrf_token=TOKEN"},
			{regexp.MustCompile(`(?i)\btoken=[a-z0-9_-]+`), "token=TOKEN"},
			{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), "UUID"},
		},
		betweenTags: regexp.MustCompile(`>\s+<`),
		spaces:      regexp.MustCompile(`\s+`),
	}
	// RE2 has no backreferences, so each container tag gets its own pattern.
	for _, tag := range consentTags {
		n.consent = append(n.consent, regexp.MustCompile(
			`(?is)<`+tag+`\b[^>]*\b(?:class|id)\s*=\s*["'][^"']*(?:cookie|consent|gdpr|onetrust|ccm19|cmp)[^"']*["'][^>]*>.*?</`+tag+`\s*>`,
		))
	}
	return n
}

// Normalize returns the comparison form of rawHTML. The single pass is
// repeated until the output stops changing, so the result is a fixed point:
// Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(rawHTML string) string {
	out := rawHTML
	for {
		next := n.pass(out)
		if next == out {
			return out
		}
		out = next
	}
}

func (n *Normalizer) pass(s string) string {
	// Nested body wrappers unwrap to the innermost one.
	for {
		m := n.body.FindStringSubmatch(s)
		if m == nil {
			break
		}
		s = m[1]
	}
	for _, re := range n.blocks {
		s = re.ReplaceAllString(s, "")
	}
	for _, re := range n.consent {
		s = re.ReplaceAllString(s, "")
	}
	for _, re := range n.trackers {
		s = re.ReplaceAllString(s, "")
	}
	s = n.versionArgs.ReplaceAllString(s, "")
	for _, r := range n.volatile {
		s = r.re.ReplaceAllString(s, r.rep)
	}
	s = n.betweenTags.ReplaceAllString(s, "><")
	s = n.spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
