package chunker

import (
	"errors"
	"strings"
	"testing"
)

func TestChunk_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int
		overlap int
	}{
		{name: "zero max size", maxSize: 0, overlap: 0},
		{name: "negative max size", maxSize: -5, overlap: 0},
		{name: "negative overlap", maxSize: 10, overlap: -1},
		{name: "overlap equals max size", maxSize: 10, overlap: 10},
		{name: "overlap exceeds max size", maxSize: 10, overlap: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Chunk("some text", tt.maxSize, tt.overlap)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestChunk_Reconstruction(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		maxSize int
		overlap int
	}{
		{name: "short ascii", text: "hello world", maxSize: 4, overlap: 1},
		{name: "exact window", text: "abcdefgh", maxSize: 4, overlap: 0},
		{name: "single chunk", text: "tiny", maxSize: 100, overlap: 10},
		{name: "japanese", text: "こんにちは、今日は良い天気ですね。", maxSize: 10, overlap: 2},
		{name: "long repeated", text: strings.Repeat("レビュー本文です。", 80), maxSize: 300, overlap: 30},
		{name: "multibyte mix", text: "café ☕ and 寿司 🍣 reviews", maxSize: 7, overlap: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pieces, err := Chunk(tt.text, tt.maxSize, tt.overlap)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := Reassemble(pieces); got != tt.text {
				t.Errorf("reassembled text does not match source\ngot:  %q\nwant: %q", got, tt.text)
			}
			for i, p := range pieces {
				if n := len([]rune(p.Text)); n > tt.maxSize {
					t.Errorf("piece %d has %d runes, exceeds max size %d", i, n, tt.maxSize)
				}
				if p.Seq != i {
					t.Errorf("piece %d has sequence index %d", i, p.Seq)
				}
			}
		})
	}
}

func TestChunk_OverlapSharedExactly(t *testing.T) {
	text := "こんにちは、今日は良い天気ですね。"
	pieces, err := Chunk(text, 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}
	for i := 1; i < len(pieces); i++ {
		prev := []rune(pieces[i-1].Text)
		cur := []rune(pieces[i].Text)
		tail := string(prev[len(prev)-2:])
		head := string(cur[:2])
		if tail != head {
			t.Errorf("pieces %d/%d share %q and %q, want exactly 2 runes of overlap", i-1, i, tail, head)
		}
		if pieces[i].Overlap != 2 {
			t.Errorf("piece %d declares overlap %d, want 2", i, pieces[i].Overlap)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := strings.Repeat("the quick brown fox ", 50)
	first, err := Chunk(text, 64, 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Chunk(text, 64, 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("chunk count differs between runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("piece %d differs between runs", i)
		}
	}
}

func TestChunk_EmptyText(t *testing.T) {
	pieces, err := Chunk("", 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pieces) != 0 {
		t.Errorf("expected no pieces for empty text, got %d", len(pieces))
	}
}

func TestChunk_Offsets(t *testing.T) {
	text := "abcdefghij"
	pieces, err := Chunk(text, 4, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runes := []rune(text)
	for i, p := range pieces {
		if got := string(runes[p.Start:p.End]); got != p.Text {
			t.Errorf("piece %d offsets [%d:%d] yield %q, text is %q", i, p.Start, p.End, got, p.Text)
		}
	}
	last := pieces[len(pieces)-1]
	if last.End != len(runes) {
		t.Errorf("last piece ends at %d, want %d", last.End, len(runes))
	}
}
