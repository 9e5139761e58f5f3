// Package textprep prepares free-form text for the speech synthesis backend.
// Normalization folds arbitrary Unicode into the character set the model was
// trained on, and chunking splits the result into pieces that fit the model's
// per-call input budget while keeping sentence and word boundaries intact.
//
// Everything in this package is pure and safe for concurrent use.
package textprep

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Result describes the outcome of a normalization run.
type Result struct {
	// Text is the normalized text.
	Text string
	// Substitutions counts how often each table entry fired.
	Substitutions map[rune]int
	// RemovedControl is the number of control, format and unassigned code
	// points that were dropped.
	RemovedControl int
	// Unmapped lists the distinct non-ASCII code points left in Text because
	// no substitution exists for them, in ascending order.
	Unmapped []rune
}

// Changed reports whether normalization substituted or removed anything.
func (r Result) Changed() bool {
	return len(r.Substitutions) > 0 || r.RemovedControl > 0
}

// Normalize folds text into the synthesis-safe character set. It never fails:
// empty input yields an empty string and ill-formed UTF-8 is dropped.
func Normalize(text string) string {
	return NormalizeDetailed(text).Text
}

// NormalizeDetailed is Normalize with a record of what was changed.
//
// The pipeline is: repair ill-formed UTF-8, compose to NFC, apply the
// substitution table, drop category C code points other than \n, \r and \t,
// then trim surrounding whitespace. The last four steps repeat until the
// output stops changing, which keeps the function idempotent when dropping a
// format character lets a combining mark compose with its new neighbour, or
// when stacked marks compose one per pass. A pass after the first only
// changes the text by composing, so each repeat shortens it.
func NormalizeDetailed(text string) Result {
	res := Result{Substitutions: map[rune]int{}}
	if text == "" {
		return res
	}

	s := repairUTF8(text)
	for {
		next := pass(s, &res)
		if next == s {
			break
		}
		s = next
	}

	res.Text = s
	res.Unmapped = unmapped(s)
	return res
}

func pass(s string, res *Result) string {
	s = norm.NFC.String(s)
	s = substitute(s, res.Substitutions)

	before := utf8.RuneCountInString(s)
	s, _, _ = transform.String(runes.Remove(runes.Predicate(isControl)), s)
	res.RemovedControl += before - utf8.RuneCountInString(s)

	return strings.TrimSpace(s)
}

// repairUTF8 drops ill-formed byte sequences. A literal U+FFFD in the input is
// indistinguishable from a repaired one and is dropped as well.
func repairUTF8(s string) string {
	if utf8.ValidString(s) && !strings.ContainsRune(s, utf8.RuneError) {
		return s
	}
	t := transform.Chain(
		runes.ReplaceIllFormed(),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToValidUTF8(s, "")
	}
	return out
}

func substitute(s string, fired map[rune]int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := substitutions[r]; ok {
			fired[r]++
			b.WriteString(rep)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isControl reports whether r belongs to Unicode category group C (control,
// format, surrogate, private use or unassigned) and is not one of the three
// whitespace controls that carry line structure.
func isControl(r rune) bool {
	switch r {
	case '\n', '\r', '\t':
		return false
	}
	if unicode.In(r, unicode.C) {
		return true
	}
	return !unicode.In(r, unicode.L, unicode.M, unicode.N, unicode.P, unicode.S, unicode.Z)
}

func unmapped(s string) []rune {
	seen := map[rune]struct{}{}
	for _, r := range s {
		if r > unicode.MaxASCII {
			seen[r] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]rune, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Normalizer wraps Normalize with structured logging of what changed.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer. A nil logger uses slog.Default().
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize normalizes text and logs substitutions, removed control
// characters and any non-ASCII code points that survived. Logging never
// affects the returned text.
func (n *Normalizer) Normalize(text string) Result {
	res := NormalizeDetailed(text)

	if len(res.Substitutions) > 0 {
		n.logger.Debug("text normalization substitutions",
			slog.String("replaced", formatSubstitutions(res.Substitutions)),
		)
	}
	if res.RemovedControl > 0 {
		n.logger.Debug("removed control characters",
			slog.Int("count", res.RemovedControl),
		)
	}
	if len(res.Unmapped) > 0 {
		n.logger.Warn("non-ASCII characters remain after normalization",
			slog.Int("distinct", len(res.Unmapped)),
			slog.String("characters", string(res.Unmapped)),
		)
	}
	return res
}

func formatSubstitutions(fired map[rune]int) string {
	keys := make([]rune, 0, len(fired))
	for r := range fired {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	parts := make([]string, 0, len(keys))
	for _, r := range keys {
		parts = append(parts, string(r)+"→"+substitutions[r]+" x"+strconv.Itoa(fired[r]))
	}
	return strings.Join(parts, ", ")
}
