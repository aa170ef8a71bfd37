package providers

import (
	"encoding/json"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// Per-message overhead used by the chat format (role markers, separators).
const tokensPerMessage = 4

func estimateCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.O200kBase)
		if err == nil {
			codec = c
		}
	})
	return codec
}

func countText(s string) int {
	if s == "" {
		return 0
	}
	c := estimateCodec()
	if c == nil {
		// rough fallback: 1 token per 4 bytes
		return (len(s) + 3) / 4
	}
	ids, _, _ := c.Encode(s)
	return len(ids)
}

// EstimateUsage counts tokens locally for a request/response pair when the
// provider did not report usage. The result is marked Estimated.
func EstimateUsage(req ChatRequest, resp *ChatResponse) *Usage {
	prompt := 0
	for _, m := range req.Messages {
		prompt += tokensPerMessage + countText(m.Content)
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			prompt += countText(tc.Name) + countText(string(args))
		}
	}
	for _, t := range req.Tools {
		schema, _ := json.Marshal(t.Function.Parameters)
		prompt += countText(t.Function.Name) + countText(t.Function.Description) + countText(string(schema))
	}

	completion := 0
	if resp != nil {
		completion = countText(resp.Content)
		for _, tc := range resp.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			completion += countText(tc.Name) + countText(string(args))
		}
	}

	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}
}
