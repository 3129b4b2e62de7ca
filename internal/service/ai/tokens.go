package ai

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"github.com/medintell/oncochat/backend/internal/model/chat"
)

// 每条消息的角色与分隔符开销约 4 tokens。
const perMessageOverhead = 4

// TokenCounter counts the tokens of a piece of text.
type TokenCounter func(text string) int

// NewTiktokenCounter returns a cl100k_base counter, or a length based estimate
// when the encoding cannot be loaded.
func NewTiktokenCounter() TokenCounter {
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("tiktoken encoding unavailable, estimating tokens by length", slog.Any("error", err))
		return EstimateTokens
	}
	return func(text string) int {
		return len(tke.Encode(text, nil, nil))
	}
}

// EstimateTokens approximates four bytes per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// trimHistory drops the oldest history entries until system, history and the
// user turn fit within budget. The order of kept entries is unchanged.
func trimHistory(count TokenCounter, budget int, system, userTurn string, history []chat.Message) []chat.Message {
	if budget <= 0 || len(history) == 0 {
		return history
	}

	total := count(system) + count(userTurn) + 2*perMessageOverhead
	costs := make([]int, len(history))
	for i, msg := range history {
		costs[i] = count(msg.Content) + perMessageOverhead
		total += costs[i]
	}

	start := 0
	for start < len(history) && total > budget {
		total -= costs[start]
		start++
	}
	return history[start:]
}
