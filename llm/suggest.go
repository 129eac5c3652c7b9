package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SuggestionMatch is one scored candidate returned by generate_suggestions.
type SuggestionMatch struct {
	ID    int64 `json:"id"`
	Score int   `json:"score"`
}

// GenerateSuggestions scores a batch of candidate articles against a
// reader's interest profile in a single call.
func (c *Client) GenerateSuggestions(ctx context.Context, articlesBlock, profile, systemPrompt string) ([]SuggestionMatch, error) {
	if !c.circuit.Allow() {
		return nil, temporaryErr("circuit breaker open or inter-call spacing not yet elapsed")
	}
	key, keyIdx, ok := c.rotator.Next()
	if !ok {
		return nil, temporaryErr("all keys in cooldown")
	}

	userPrompt := fmt.Sprintf("Reader profile: %s\n\nCandidate articles:\n%s", profile, articlesBlock)

	var matches []SuggestionMatch
	callErr := c.circuit.Call(func() error {
		resp, status, err := c.post(ctx, key, systemPrompt, userPrompt)
		if err != nil {
			return temporaryErr(err.Error())
		}
		switch {
		case status == http.StatusTooManyRequests:
			c.rotator.Cooldown(key, keyCooldownSeconds*time.Second)
			return temporaryErr("rate limited")
		case status >= 500:
			return temporaryErr(fmt.Sprintf("upstream status %d", status))
		case status >= 400:
			return permanentErr(fmt.Sprintf("upstream status %d", status))
		}

		obj, ok := ParseJSONObject(resp, nil)
		if !ok {
			return permanentErr("invalid response: could not parse suggestions JSON")
		}
		raw, ok := obj["matches"]
		if !ok {
			return permanentErr("invalid response: missing matches field")
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return permanentErr("invalid response: matches field not serializable")
		}
		if err := json.Unmarshal(encoded, &matches); err != nil {
			return permanentErr("invalid response: matches field malformed")
		}
		return nil
	})
	if callErr != nil {
		return nil, callErr
	}
	_ = c.store.SetSetting(ctx, "llm_rotator_cursor", fmt.Sprintf("%d", keyIdx+1))
	return matches, nil
}
