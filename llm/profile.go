package llm

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

// Profile is the parsed result of a generate_profile call.
type Profile struct {
	Profile string
	Tags    []string
}

var profileFieldPatterns = map[string]*regexp.Regexp{
	"profile": regexp.MustCompile(`"profile"\s*:\s*"([^"]*)"`),
}

// GenerateProfile infers a reader interest profile from a block of
// Title/Summary pairs already formatted by the caller.
func (c *Client) GenerateProfile(ctx context.Context, articlesBlock, systemPrompt string) (*Profile, error) {
	if !c.circuit.Allow() {
		return nil, temporaryErr("circuit breaker open or inter-call spacing not yet elapsed")
	}
	key, keyIdx, ok := c.rotator.Next()
	if !ok {
		return nil, temporaryErr("all keys in cooldown")
	}

	userPrompt := fmt.Sprintf("Here are articles the reader liked, as Title / Summary pairs:\n\n%s", articlesBlock)

	var profile *Profile
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

		obj, ok := ParseJSONObject(resp, profileFieldPatterns)
		if !ok {
			return permanentErr("invalid response: could not parse profile JSON")
		}
		profile = &Profile{
			Profile: stringField(obj, "profile"),
			Tags:    stringSliceField(obj, "tags"),
		}
		return nil
	})
	if callErr != nil {
		return nil, callErr
	}
	_ = c.store.SetSetting(ctx, "llm_rotator_cursor", fmt.Sprintf("%d", keyIdx+1))
	return profile, nil
}
