package agent

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/nextlevelbuilder/datalens/internal/providers"
)

// Pruning keeps long sessions inside the model's context budget by trimming
// old tool results in two passes: soft trim (keep head and tail of a long
// result) and hard clear (replace the whole result with a placeholder).
// The last few assistant messages and everything after them are protected.
const (
	keepLastAssistants = 3
	softTrimRatio      = 0.5
	hardClearRatio     = 0.8
	softTrimMaxChars   = 4000
	softTrimHeadChars  = 1500
	softTrimTailChars  = 1500
	hardClearPlaceholder = "[Old tool result content cleared]"
)

var (
	encOnce sync.Once
	encoder *tiktoken.Tiktoken
)

// countTokens estimates token usage for a message list. Falls back to a
// chars/4 estimate if the encoding is unavailable.
func countTokens(msgs []providers.Message) int {
	encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoder = enc
		}
	})

	total := 0
	for _, m := range msgs {
		if encoder != nil {
			total += len(encoder.Encode(m.Content, nil, nil))
		} else {
			total += utf8.RuneCountInString(m.Content) / 4
		}
		// rough per-message framing overhead
		total += 4
	}
	return total
}

// PruneHistory trims old tool results so the history fits budgetTokens.
// Returns the (possibly new) slice and whether anything changed.
func PruneHistory(msgs []providers.Message, budgetTokens int) ([]providers.Message, bool) {
	if budgetTokens <= 0 || len(msgs) == 0 {
		return msgs, false
	}

	total := countTokens(msgs)
	if float64(total) < softTrimRatio*float64(budgetTokens) {
		return msgs, false
	}

	cutoff := findAssistantCutoff(msgs, keepLastAssistants)
	if cutoff < 0 {
		return msgs, false
	}

	var prunable []int
	for i := 0; i < cutoff; i++ {
		if msgs[i].Role == providers.RoleTool && msgs[i].Content != "" {
			prunable = append(prunable, i)
		}
	}
	if len(prunable) == 0 {
		return msgs, false
	}

	out := make([]providers.Message, len(msgs))
	copy(out, msgs)
	changed := false

	// Pass 1: soft trim long tool results.
	for _, idx := range prunable {
		content := out[idx].Content
		if utf8.RuneCountInString(content) <= softTrimMaxChars {
			continue
		}
		out[idx].Content = fmt.Sprintf("%s\n...\n%s\n\n[Tool result trimmed: kept first %d and last %d characters.]",
			takeHead(content, softTrimHeadChars),
			takeTail(content, softTrimTailChars),
			softTrimHeadChars, softTrimTailChars)
		changed = true
	}

	if float64(countTokens(out)) < hardClearRatio*float64(budgetTokens) {
		if !changed {
			return msgs, false
		}
		return out, true
	}

	// Pass 2: hard clear, oldest first, until under the ratio.
	for _, idx := range prunable {
		if out[idx].Content == hardClearPlaceholder {
			continue
		}
		out[idx].Content = hardClearPlaceholder
		changed = true
		if float64(countTokens(out)) < hardClearRatio*float64(budgetTokens) {
			break
		}
	}

	if !changed {
		return msgs, false
	}
	return out, true
}

// findAssistantCutoff returns the index of the Nth-from-last assistant
// message. Messages at or after this index are protected from pruning.
// Returns -1 if fewer than keepLast assistant messages exist.
func findAssistantCutoff(msgs []providers.Message, keepLast int) int {
	if keepLast <= 0 {
		return len(msgs)
	}
	remaining := keepLast
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == providers.RoleAssistant {
			remaining--
			if remaining == 0 {
				return i
			}
		}
	}
	return -1
}

func takeHead(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func takeTail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
