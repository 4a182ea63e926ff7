package chunker

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned for chunking parameters that can never
// produce a valid result. It is fatal and never retried.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Chunk splits text into successive windows of at most maxSize runes, each
// window starting maxSize-overlap runes after the previous one. The final
// window may be shorter. The split is a pure function of its inputs:
// offsets are rune offsets into text, and concatenating the windows with
// the overlapping prefixes removed reproduces text exactly.
func Chunk(text string, maxSize, overlap int) ([]Piece, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, maxSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than max size %d", ErrInvalidConfig, overlap, maxSize)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := maxSize - overlap
	var pieces []Piece
	for start, seq := 0, 0; start < len(runes); start, seq = start+step, seq+1 {
		end := start + maxSize
		if end > len(runes) {
			end = len(runes)
		}
		ov := 0
		if seq > 0 {
			ov = overlap
		}
		pieces = append(pieces, Piece{
			Seq:     seq,
			Start:   start,
			End:     end,
			Overlap: ov,
			Text:    string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return pieces, nil
}

// Piece is one window produced by Chunk, positioned by rune offsets.
type Piece struct {
	Seq     int
	Start   int
	End     int
	Overlap int
	Text    string
}

// Reassemble concatenates pieces with their overlapping prefixes removed.
// For pieces produced by Chunk over some text, it returns that text.
func Reassemble(pieces []Piece) string {
	var out []rune
	for _, p := range pieces {
		r := []rune(p.Text)
		if p.Overlap > len(r) {
			continue
		}
		out = append(out, r[p.Overlap:]...)
	}
	return string(out)
}
