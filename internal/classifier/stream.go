package classifier

import (
	"strings"

	"github.com/haasonsaas/loom/pkg/models"
)

// Chunk is one labeled span of streamed assistant text.
type Chunk struct {
	Label models.ContentLabel
	Text  string
}

// Stream labels assistant text incrementally as it arrives. Increments are
// buffered until a line completes; fence state carries across increments so
// a code block opened in one chunk labels the lines of the next. The
// call-pending flag tracks whether the model has proposed tool calls that
// have not yet resolved.
type Stream struct {
	partial     strings.Builder
	inFence     bool
	callPending bool
}

// NewStream creates a stream classifier with empty state.
func NewStream() *Stream {
	return &Stream{}
}

// Feed appends an increment and returns labeled chunks for every line it
// completes. A trailing partial line is held until the next increment or
// Flush. Consecutive lines sharing a label coalesce into one chunk.
func (s *Stream) Feed(increment string) []Chunk {
	if increment == "" {
		return nil
	}
	s.partial.WriteString(increment)

	buffered := s.partial.String()
	idx := strings.LastIndexByte(buffered, '\n')
	if idx < 0 {
		return nil
	}

	complete := buffered[:idx+1]
	s.partial.Reset()
	s.partial.WriteString(buffered[idx+1:])
	return s.label(complete)
}

// Flush labels any held partial line and clears the fence state. Call at
// the end of each model stream.
func (s *Stream) Flush() []Chunk {
	rest := s.partial.String()
	s.partial.Reset()
	chunks := s.label(rest)
	s.inFence = false
	return chunks
}

// Reset drops all buffered text, fence state, and the call-pending flag.
func (s *Stream) Reset() {
	s.partial.Reset()
	s.inFence = false
	s.callPending = false
}

// SetCallPending records whether proposed tool calls are awaiting results.
func (s *Stream) SetCallPending(pending bool) {
	s.callPending = pending
}

// CallPending reports whether proposed tool calls are awaiting results.
func (s *Stream) CallPending() bool {
	return s.callPending
}

func (s *Stream) label(text string) []Chunk {
	if text == "" {
		return nil
	}

	var chunks []Chunk
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}

		var label models.ContentLabel
		switch {
		case strings.HasPrefix(strings.TrimSpace(line), "```"):
			s.inFence = !s.inFence
			label = models.LabelCode
		case s.inFence:
			label = models.LabelCode
		default:
			label = classifyLine(line)
		}

		if n := len(chunks); n > 0 && chunks[n-1].Label == label {
			chunks[n-1].Text += line
		} else {
			chunks = append(chunks, Chunk{Label: label, Text: line})
		}
	}
	return chunks
}

func classifyLine(line string) models.ContentLabel {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return models.LabelExplanation
	}
	if commandRe.MatchString(line) {
		return models.LabelCommand
	}
	if planRe.MatchString(line) {
		return models.LabelPlan
	}
	if strings.HasSuffix(trimmed, "?") {
		return models.LabelQuestion
	}
	return models.LabelExplanation
}
