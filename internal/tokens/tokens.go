// Package tokens estimates token counts for message content. The upstream
// provider reports authoritative usage on the completion path; everywhere else
// (user messages, streamed replies, placeholder messages) counts come from
// here so the per-conversation token total stays consistent.
package tokens

import (
	"github.com/rs/zerolog/log"
	tiktoken "github.com/weaviate/tiktoken-go"
)

// Estimator counts tokens with the cl100k_base encoding. When the encoding
// cannot be initialized it falls back to a bytes/4 approximation rather than
// failing the request path.
type Estimator struct {
	enc *tiktoken.Tiktoken
}

func NewEstimator() *Estimator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Warn().Err(err).Msg("tiktoken init failed, falling back to approximate token counts")
		return &Estimator{}
	}
	return &Estimator{enc: enc}
}

// Count returns a non-negative token estimate for the given text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if e.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}
