package detector

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffPlaceholder replaces the diff when it cannot be produced.
const DiffPlaceholder = "diff unavailable"

const (
	defaultDiffMaxBytes = 64 << 10
	defaultDiffTimeout  = time.Second
	diffContextLines    = 3
)

// Differ renders a textual diff between two raw documents.
type Differ interface {
	Diff(previous, current string) (string, error)
}

// LineDiffer is a Differ backed by diffmatchpatch. Markup is split at tag
// boundaries first so that minified pages still diff element by element.
type LineDiffer struct {
	dmp      *diffmatchpatch.DiffMatchPatch
	maxBytes int
}

// NewLineDiffer builds a LineDiffer. Output longer than maxBytes is
// truncated; zero selects 64KiB.
func NewLineDiffer(maxBytes int) *LineDiffer {
	if maxBytes <= 0 {
		maxBytes = defaultDiffMaxBytes
	}
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = defaultDiffTimeout
	return &LineDiffer{dmp: dmp, maxBytes: maxBytes}
}

// Diff returns a unified-style listing: "-" removed lines, "+" added lines,
// and a few unchanged context lines around each hunk.
func (d *LineDiffer) Diff(previous, current string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("diff panicked: %v", r)
		}
	}()
	a, b, lines := d.dmp.DiffLinesToChars(splitTags(previous), splitTags(current))
	diffs := d.dmp.DiffMain(a, b, false)
	diffs = d.dmp.DiffCleanupSemantic(diffs)
	diffs = d.dmp.DiffCharsToLines(diffs, lines)

	var sb strings.Builder
	for i, df := range diffs {
		chunk := splitLines(df.Text)
		switch df.Type {
		case diffmatchpatch.DiffDelete:
			writePrefixed(&sb, "-", chunk)
		case diffmatchpatch.DiffInsert:
			writePrefixed(&sb, "+", chunk)
		case diffmatchpatch.DiffEqual:
			writeContext(&sb, chunk, i > 0, i < len(diffs)-1)
		}
		if sb.Len() > d.maxBytes {
			break
		}
	}
	out = strings.ToValidUTF8(sb.String(), "\uFFFD")
	if len(out) > d.maxBytes {
		cut := d.maxBytes
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + "\n... (truncated)"
	}
	return out, nil
}

func writePrefixed(sb *strings.Builder, prefix string, lines []string) {
	for _, l := range lines {
		sb.WriteString(prefix)
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
}

// writeContext keeps diffContextLines after the previous hunk and before the
// next one and elides the rest.
func writeContext(sb *strings.Builder, lines []string, afterHunk, beforeHunk bool) {
	if !afterHunk && !beforeHunk {
		return
	}
	head, tail := 0, 0
	if afterHunk {
		head = diffContextLines
	}
	if beforeHunk {
		tail = diffContextLines
	}
	if head+tail >= len(lines) {
		writePrefixed(sb, " ", lines)
		return
	}
	writePrefixed(sb, " ", lines[:head])
	fmt.Fprintf(sb, "@@ %d unchanged lines @@\n", len(lines)-head-tail)
	writePrefixed(sb, " ", lines[len(lines)-tail:])
}

func splitTags(s string) string {
	return strings.ReplaceAll(s, "><", ">\n<")
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
