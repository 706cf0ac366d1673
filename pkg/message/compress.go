package message

import (
	"fmt"

	"github.com/arclane/conduit/pkg/chunk"
)

const (
	// summarizeThresholdFraction is the share of the non-kept
	// messages' tokens that old thinking/planning/observation content
	// must reach before it is folded into a synthetic stage_summary
	// message (§4.3 step 2).
	summarizeThresholdFraction = 0.3
	ellipsis                   = " …[truncated]"
)

// Compress reduces a filtered message list to fit within budget tokens,
// following the three-stage algorithm of §4.3 exactly: always-keep set,
// then stage-summary folding, then oldest-first truncation.
func (m *Manager) Compress(filtered []*Message, budget int) []*Message {
	if budget <= 0 || m.tokens.CountMessages(filtered) <= budget {
		return filtered
	}

	kept, rest := partitionAlwaysKeep(filtered)
	if m.tokens.CountMessages(kept) >= budget {
		// Even the always-keep set doesn't fit: truncate within it,
		// oldest first, as the last resort.
		return truncateOldestFirst(kept, m.tokens, budget)
	}

	candidate := append(append([]*Message{}, rest...), kept...)
	if m.tokens.CountMessages(candidate) <= budget {
		return orderBySeq(candidate)
	}

	summarized := summarizeIntermediate(rest, m.tokens)
	candidate = append(append([]*Message{}, summarized...), kept...)
	if m.tokens.CountMessages(candidate) <= budget {
		return orderBySeq(candidate)
	}

	return truncateOldestFirst(orderBySeq(candidate), m.tokens, budget)
}

// partitionAlwaysKeep splits out the latest user turn, the latest
// assistant-final message, and any tool results referenced by a
// still-included tool_call — the mandatory retain set of §4.3 step 1.
func partitionAlwaysKeep(messages []*Message) (kept, rest []*Message) {
	var latestUserIdx, latestFinalIdx = -1, -1
	for i, msg := range messages {
		if msg.Role == chunk.RoleUser {
			latestUserIdx = i
		}
		if msg.Role == chunk.RoleAssistant && msg.Final {
			latestFinalIdx = i
		}
	}

	referencedToolCallIDs := map[string]bool{}
	keepIdx := map[int]bool{}
	if latestUserIdx >= 0 {
		keepIdx[latestUserIdx] = true
	}
	if latestFinalIdx >= 0 {
		keepIdx[latestFinalIdx] = true
		for _, tc := range messages[latestFinalIdx].ToolCalls {
			referencedToolCallIDs[tc.ID] = true
		}
	}
	for i, msg := range messages {
		if msg.Role == chunk.RoleTool && referencedToolCallIDs[msg.ToolCallID] {
			keepIdx[i] = true
		}
	}

	for i, msg := range messages {
		if keepIdx[i] {
			kept = append(kept, msg)
		} else {
			rest = append(rest, msg)
		}
	}
	return kept, rest
}

// summarizeIntermediate folds old thinking/planning/observation
// messages into one synthetic stage_summary message once their combined
// token count crosses summarizeThresholdFraction of whatever remains,
// leaving everything else untouched.
func summarizeIntermediate(rest []*Message, tc *TokenCounter) []*Message {
	var foldable, keep []*Message
	for _, msg := range rest {
		switch msg.Type {
		case chunk.TypeThinking, chunk.TypePlanning, chunk.TypeObservation:
			foldable = append(foldable, msg)
		default:
			keep = append(keep, msg)
		}
	}

	if len(foldable) == 0 {
		return rest
	}

	foldableTokens := tc.CountMessages(foldable)
	restTokens := tc.CountMessages(rest)
	if restTokens == 0 || float64(foldableTokens)/float64(restTokens) < summarizeThresholdFraction {
		return rest
	}

	summary := &Message{
		MessageID: "stage-summary-" + foldable[0].MessageID,
		Role:      chunk.RoleAssistant,
		Type:      chunk.TypeStageSummary,
		Content:   fmt.Sprintf("[folded %d earlier intermediate messages]", len(foldable)),
		CreatedAt: foldable[0].CreatedAt,
		UpdatedAt: foldable[len(foldable)-1].UpdatedAt,
		seq:       foldable[0].seq,
	}

	return append([]*Message{summary}, keep...)
}

// truncateOldestFirst drops or shortens the oldest messages until the
// list fits budget, inserting an ellipsis marker on truncated content —
// the last-resort step of §4.3.
func truncateOldestFirst(messages []*Message, tc *TokenCounter, budget int) []*Message {
	ordered := orderBySeq(messages)
	for tc.CountMessages(ordered) > budget && len(ordered) > 1 {
		oldest := ordered[0]
		if len(oldest.Content)/2 > len(ellipsis) {
			half := len(oldest.Content) / 2
			oldest.Content = oldest.Content[half:] + ellipsis
			continue
		}
		ordered = ordered[1:]
	}
	return ordered
}

func orderBySeq(messages []*Message) []*Message {
	out := append([]*Message{}, messages...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].seq > out[j].seq; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
