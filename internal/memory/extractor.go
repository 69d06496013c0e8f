package memory

import (
	"context"
	"log"
	"strings"

	"github.com/seedhantkalra/caremind/internal/brain"
	"github.com/seedhantkalra/caremind/internal/protocol"
)

// extractionInstruction is prepended to the exchange when asking the
// completion service for candidate insights.
const extractionInstruction = "Summarize the key takeaways from this conversation. " +
	"Produce 2-3 concise, discussion-specific points, one per line. " +
	"Exclude general or common knowledge; only include details specific to this user and discussion."

// minExtractLineLength discards fragments the summarizer sometimes emits
// (stray markers, single words) before they reach the merge policy.
const minExtractLineLength = 10

// Extractor derives candidate insights from a finished exchange via the
// completion service. Extraction is best-effort: the primary reply must
// never depend on it.
type Extractor struct {
	adapter brain.Adapter
}

func NewExtractor(adapter brain.Adapter) *Extractor {
	return &Extractor{adapter: adapter}
}

// Extract returns the filtered, deduplicated candidate insights for the
// exchange. A completion-service failure is logged and yields an empty
// result; the exchange proceeds without new insights.
func (e *Extractor) Extract(ctx context.Context, exchange []protocol.Turn) []string {
	if len(exchange) == 0 {
		return nil
	}

	turns := make([]protocol.Turn, 0, len(exchange)+1)
	turns = append(turns, protocol.SystemTurn(extractionInstruction))
	turns = append(turns, exchange...)

	text, err := e.adapter.Complete(ctx, turns, nil)
	if err != nil {
		log.Printf("[memory] insight extraction failed: %v", err)
		return nil
	}
	return filterCandidateLines(text)
}

func filterCandidateLines(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, line := range strings.Split(text, "\n") {
		line = trimListMarker(strings.TrimSpace(line))
		if len(line) < minExtractLineLength {
			continue
		}
		if isGenericKnowledge(line) {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

// trimListMarker strips the bullet or numbering the summarizer tends to
// prefix each point with.
func trimListMarker(line string) string {
	for _, marker := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker))
		}
	}
	if len(line) > 2 && line[0] >= '1' && line[0] <= '9' && (line[1] == '.' || line[1] == ')') {
		return strings.TrimSpace(line[2:])
	}
	return line
}
