package textprep

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peleText = "bukan hanya legenda Brasil, tapi ikon sepak bola dunia. Ia memenangkan tiga Piala Dunia dan menunjukkan bahwa sepak bola bisa menjadi bahasa universal. Gaya bermainnya penuh kreativitas, insting tajam, dan kemampuan mencetak gol dari berbagai situasi. Di masanya, Pelé membuat dunia jatuh cinta pada sepak bola dan mengangkat olahraga ini ke level global."

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"smart quotes and dashes", "Indonesian text with “smart quotes” and – dashes.", `Indonesian text with "smart quotes" and - dashes.`},
		{"ellipsis and glottal stop", "Ellipsis… and weird glottal stopʼ marks", "Ellipsis... and weird glottal stop' marks"},
		{"accents", "Accents: éèêë áàâä íìîï", "Accents: eeee aaaa iiii"},
		{"upper case accents", "ÉCOLE Ñandú ÇA", "ECOLE Nandu CA"},
		{"control characters", "Control characters \x00\x01\x02 test", "Control characters  test"},
		{"scenario A", "Pelé's “quote”—test…", `Pele's "quote"-test...`},
		{"scenario B", "Control \x00\x01 chars", "Control  chars"},
		{"mixed", "Mix: Peléʼs “quote”—test…", `Mix: Pele's "quote"-test...`},
		{"guillemets and low quotes", "«a» ‹b› ‚c„", `"a" <b> ,c"`},
		{"modifier apostrophes", "ʻaʽbʾcʿd", "'a'b'c'd"},
		{"minus and non-breaking hyphen", "3−2 well‑known", "3-2 well-known"},
		{"macron tilde ring ogonek dot", "āãåą ēėę īįĩ ōõø ūũůų", "aaaa eee iii ooo uuuu"},
		{"decomposed accents compose first", "Pele\u0301", "Pele"},
		{"stacked combining marks", "e" + strings.Repeat("\u0301", 6) + " x", "e x"},
		{"whitespace trimmed", "  \t hello world \n ", "hello world"},
		{"line structure kept", "one\ntwo\r\nthree\tfour", "one\ntwo\r\nthree\tfour"},
		{"format characters removed", "zero\u200Bwidth\uFEFF", "zerowidth"},
		{"private use removed", "a\uE000b", "ab"},
		{"unassigned removed", "a\U000E0080b", "ab"},
		{"unmapped letters kept", "Łódź 東京", "Łodź 東京"},
		{"whitespace only", " \n\t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_IllFormedUTF8(t *testing.T) {
	got := Normalize("caf\xe9 ok \xff\xfe")
	assert.Equal(t, "caf ok", got)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		peleText,
		"Pelé's “quote”—test…",
		"Control \x00\x01 chars",
		"e\u200B\u0301",
		"n\u0303\u200B\u0301",
		"  «Ça va?» — ʻOkina…  ",
		"\u0344 \u212B",
		"bad \xc3\x28 bytes",
		"東京 Łódź \u00A0 x",
		"e" + strings.Repeat("\u0301", 6) + " x",
		"o" + strings.Repeat("\u0308\u0301", 4),
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_AlphabetClosure(t *testing.T) {
	inputs := []string{
		peleText,
		"Mix: Peléʼs “quote”—test… \x00\x07\x1b[0m \u200E\u2028",
		"tab\there\r\nand 東京 \uE000 \U000E0080",
	}

	for _, in := range inputs {
		for _, r := range Normalize(in) {
			switch {
			case r == '\n' || r == '\r' || r == '\t':
			case r >= 0x20 && r < 0x7f:
			default:
				assert.False(t, isControl(r), "control rune %U survived in %q", r, in)
				_, hasSub := substitutions[r]
				assert.False(t, hasSub, "substitutable rune %U survived", r)
			}
		}
	}
}

func TestNormalize_PeleTextIsASCII(t *testing.T) {
	got := Normalize(peleText)

	assert.NotContains(t, got, "é")
	assert.Contains(t, got, "Pele membuat")
	for _, r := range got {
		assert.LessOrEqual(t, r, rune(unicode.MaxASCII))
	}
}

func TestNormalizeDetailed(t *testing.T) {
	res := NormalizeDetailed("“Olá” \x00 Łódź…")

	assert.Equal(t, `"Ola"  Łodź...`, res.Text)
	assert.Equal(t, 1, res.Substitutions['“'])
	assert.Equal(t, 1, res.Substitutions['”'])
	assert.Equal(t, 1, res.Substitutions['á'])
	assert.Equal(t, 1, res.Substitutions['ó'])
	assert.Equal(t, 1, res.Substitutions['…'])
	assert.Equal(t, 1, res.RemovedControl)
	assert.Equal(t, []rune{'Ł', 'ź'}, res.Unmapped)
	assert.True(t, res.Changed())
}

func TestNormalizeDetailed_Unchanged(t *testing.T) {
	res := NormalizeDetailed("plain ascii.")

	assert.Equal(t, "plain ascii.", res.Text)
	assert.False(t, res.Changed())
	assert.Empty(t, res.Unmapped)
}

func TestSubstitutionTable_TargetsAreNotKeys(t *testing.T) {
	for src, rep := range substitutions {
		for _, r := range rep {
			_, isKey := substitutions[r]
			assert.False(t, isKey, "replacement for %U contains table key %U", src, r)
			assert.LessOrEqual(t, r, rune(unicode.MaxASCII), "replacement for %U is not ASCII", src)
		}
	}

	rep, ok := Substitution('—')
	require.True(t, ok)
	assert.Equal(t, "-", rep)

	_, ok = Substitution('x')
	assert.False(t, ok)
}

func TestNormalizer_LogsChanges(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	n := NewNormalizer(logger)

	res := n.Normalize("Pelé\x00 東")

	assert.Equal(t, "Pele 東", res.Text)
	out := buf.String()
	assert.Contains(t, out, "text normalization substitutions")
	assert.Contains(t, out, "é→e x1")
	assert.Contains(t, out, "removed control characters")
	assert.Contains(t, out, "non-ASCII characters remain")
}

func TestNormalizer_LoggingDoesNotAffectOutput(t *testing.T) {
	n := NewNormalizer(nil)
	in := "Mix: Peléʼs “quote”—test…"

	assert.Equal(t, Normalize(in), n.Normalize(in).Text)
	assert.False(t, strings.ContainsAny(n.Normalize(in).Text, "“”—…"))
}
