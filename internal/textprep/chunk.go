package textprep

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidConfiguration is returned when a chunk size is zero or negative.
var ErrInvalidConfiguration = errors.New("textprep: invalid configuration")

// Boundary identifies why a chunk ended where it did.
type Boundary int

const (
	// BoundaryEnd marks the final remainder of the text.
	BoundaryEnd Boundary = iota
	// BoundarySentence marks a split right after a sentence terminator.
	BoundarySentence
	// BoundaryWord marks a split at the last whitespace in the window.
	BoundaryWord
	// BoundaryForced marks a mid-word split at exactly the maximum length.
	BoundaryForced
)

var boundaryNames = map[Boundary]string{
	BoundaryEnd:      "end",
	BoundarySentence: "sentence",
	BoundaryWord:     "word",
	BoundaryForced:   "forced",
}

func (b Boundary) String() string {
	if name, ok := boundaryNames[b]; ok {
		return name
	}
	return fmt.Sprintf("Boundary(%d)", int(b))
}

// MarshalText encodes the boundary by name.
func (b Boundary) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Chunk is one bounded piece of normalized text, intended for a single
// synthesis call. Chunks are returned in playback order.
type Chunk struct {
	// Text is the chunk content, trimmed of surrounding whitespace.
	Text string `json:"text"`
	// CharacterCount is the number of code points in Text.
	CharacterCount int `json:"character_count"`
	// SequenceIndex is the 0-based position of the chunk in the document.
	SequenceIndex int `json:"sequence_index"`
	// Boundary records which boundary tier ended the chunk.
	Boundary Boundary `json:"boundary"`
}

// ByteCount returns the UTF-8 encoded size of the chunk text.
func (c Chunk) ByteCount() int {
	return len(c.Text)
}

// Split is the result of a boundary search over the head of a text.
type Split struct {
	Kind Boundary
	// End is the exclusive rune offset where the chunk ends.
	End int
	// Next is the rune offset where the remaining text starts.
	Next int
}

// sentenceEndings are tried in priority order. Each pairs a terminator with
// the whitespace that must follow it.
var sentenceEndings = [...][2]rune{
	{'.', ' '},
	{'!', ' '},
	{'?', ' '},
	{'.', '\n'},
	{'!', '\n'},
	{'?', '\n'},
}

// FindBoundary picks where the next chunk of text should end so that it holds
// at most maxLength runes. text is expected to start with a non-space rune.
//
// The highest-priority sentence ending whose terminator lies inside the window
// wins, taking its last occurrence. Without one, the split falls back to the
// last whitespace at or before maxLength, and without that to a forced split
// at maxLength.
func FindBoundary(text []rune, maxLength int) Split {
	if len(text) <= maxLength {
		return Split{Kind: BoundaryEnd, End: len(text), Next: len(text)}
	}

	best := -1
	bestPriority := len(sentenceEndings)
	for i := maxLength - 1; i >= 0 && bestPriority > 0; i-- {
		for p := 0; p < bestPriority; p++ {
			if text[i] == sentenceEndings[p][0] && text[i+1] == sentenceEndings[p][1] {
				best, bestPriority = i, p
				break
			}
		}
	}
	if best >= 0 {
		return Split{Kind: BoundarySentence, End: best + 1, Next: best + 2}
	}

	for j := maxLength; j > 0; j-- {
		if unicode.IsSpace(text[j]) {
			return Split{Kind: BoundaryWord, End: j, Next: j + 1}
		}
	}

	return Split{Kind: BoundaryForced, End: maxLength, Next: maxLength}
}

// SplitIntoChunks splits text into pieces of at most maxLength code points,
// preferring sentence boundaries, then whitespace, and only breaking a word
// when a single token is longer than maxLength.
func SplitIntoChunks(text string, maxLength int) ([]string, error) {
	chunks, err := split(text, maxLength)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out, nil
}

// SplitForLongGeneration splits text the same way as SplitIntoChunks and
// returns the pieces with their metadata, for batched synthesis of long
// documents.
func SplitForLongGeneration(text string, maxChunkSize int) ([]Chunk, error) {
	return split(text, maxChunkSize)
}

func split(text string, maxLength int) ([]Chunk, error) {
	if maxLength <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfiguration, maxLength)
	}

	chunks := make([]Chunk, 0)
	rest := []rune(strings.TrimSpace(text))
	for len(rest) > 0 {
		s := FindBoundary(rest, maxLength)
		piece := strings.TrimRightFunc(string(rest[:s.End]), unicode.IsSpace)
		if piece != "" {
			chunks = append(chunks, Chunk{
				Text:           piece,
				CharacterCount: utf8.RuneCountInString(piece),
				SequenceIndex:  len(chunks),
				Boundary:       s.Kind,
			})
		}
		rest = trimLeftSpace(rest[s.Next:])
	}
	return chunks, nil
}

func trimLeftSpace(rs []rune) []rune {
	for len(rs) > 0 && unicode.IsSpace(rs[0]) {
		rs = rs[1:]
	}
	return rs
}
