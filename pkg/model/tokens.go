package model

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "cl100k_base"

// perMessageOverhead approximates the framing tokens providers charge per
// message (role markers, separators).
const perMessageOverhead = 4

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens estimates the token footprint of a transcript using the
// cl100k_base encoding. When the encoding cannot be initialized (for
// example, no cached BPE data), it falls back to the classic len/4
// heuristic so the quota path never breaks.
func CountTokens(messages []Message) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			slog.Warn("token encoding unavailable, using heuristic", "encoding", tokenEncoding, "error", err)
			return
		}
		encoding = enc
	})

	total := 0
	for _, msg := range messages {
		if encoding != nil {
			total += len(encoding.Encode(msg.Content, nil, nil))
		} else {
			total += len(msg.Content) / 4
		}
		total += perMessageOverhead
	}
	return total
}
