package classifier

import (
	"testing"

	"github.com/haasonsaas/loom/pkg/models"
)

func collect(chunks ...[]Chunk) []Chunk {
	var out []Chunk
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func TestStreamHoldsPartialLines(t *testing.T) {
	s := NewStream()

	if got := s.Feed("The function reads"); got != nil {
		t.Fatalf("partial line emitted early: %v", got)
	}
	got := s.Feed(" the file.\n")
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0].Label != models.LabelExplanation || got[0].Text != "The function reads the file.\n" {
		t.Errorf("chunk = %+v", got[0])
	}
}

func TestStreamFlushEmitsRemainder(t *testing.T) {
	s := NewStream()

	s.Feed("Which branch should I use?")
	got := s.Flush()
	if len(got) != 1 || got[0].Label != models.LabelQuestion {
		t.Fatalf("flush chunks = %+v", got)
	}
	if again := s.Flush(); again != nil {
		t.Errorf("second flush emitted %v", again)
	}
}

func TestStreamFenceStateAcrossIncrements(t *testing.T) {
	s := NewStream()

	all := collect(
		s.Feed("```go\n"),
		s.Feed("x := 1\n"),
		s.Feed("```\nAnd that is it.\n"),
		s.Flush(),
	)

	// Fence markers and the fenced line are code; the trailing prose is not.
	if len(all) < 2 {
		t.Fatalf("expected at least 2 chunks, got %+v", all)
	}
	for _, c := range all[:len(all)-1] {
		if c.Label != models.LabelCode {
			t.Errorf("fenced span %q labeled %q", c.Text, c.Label)
		}
	}
	last := all[len(all)-1]
	if last.Label != models.LabelExplanation || last.Text != "And that is it.\n" {
		t.Errorf("trailing chunk = %+v", last)
	}
}

func TestStreamUnclosedFenceEndsAtFlush(t *testing.T) {
	s := NewStream()

	s.Feed("```\nstill inside\n")
	s.Flush()

	// A new stream segment starts outside any fence.
	got := collect(s.Feed("Plain text now.\n"))
	if len(got) != 1 || got[0].Label != models.LabelExplanation {
		t.Errorf("chunks after flush = %+v", got)
	}
}

func TestStreamLabelsLines(t *testing.T) {
	tests := []struct {
		name string
		line string
		want models.ContentLabel
	}{
		{"prose", "Reads the file and returns it.\n", models.LabelExplanation},
		{"command", "$ go test ./...\n", models.LabelCommand},
		{"question", "Should I continue?\n", models.LabelQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStream()
			got := s.Feed(tt.line)
			if len(got) != 1 || got[0].Label != tt.want {
				t.Errorf("Feed(%q) = %+v, want label %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestStreamCoalescesSameLabel(t *testing.T) {
	s := NewStream()

	got := s.Feed("First sentence.\nSecond sentence.\n$ make build\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(got), got)
	}
	if got[0].Text != "First sentence.\nSecond sentence.\n" {
		t.Errorf("coalesced text = %q", got[0].Text)
	}
	if got[1].Label != models.LabelCommand {
		t.Errorf("command chunk = %+v", got[1])
	}
}

func TestStreamCallPending(t *testing.T) {
	s := NewStream()

	if s.CallPending() {
		t.Fatal("fresh stream reports pending calls")
	}
	s.SetCallPending(true)
	if !s.CallPending() {
		t.Fatal("flag not set")
	}
	s.Reset()
	if s.CallPending() {
		t.Error("reset kept the pending flag")
	}
}

func TestStreamReset(t *testing.T) {
	s := NewStream()
	s.Feed("```\npartial")
	s.Reset()

	if got := s.Flush(); got != nil {
		t.Errorf("buffered text survived reset: %v", got)
	}
	got := s.Feed("Outside a fence.\n")
	if len(got) != 1 || got[0].Label != models.LabelExplanation {
		t.Errorf("fence state survived reset: %+v", got)
	}
}
