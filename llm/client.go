package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/httpclient"
	"github.com/caldera-labs/plume/provider"
	"github.com/caldera-labs/plume/store"
)

const (
	maxContentChars      = 12000
	maxOneLineChars      = 150
	minGarbageCheckChars = 200
	keyCooldownSeconds   = 60
)

var garbagePhrases = []string{
	"reload to refresh your session",
	"403 forbidden",
	"subscribe to continue reading",
	"access denied",
	"enable cookies to continue",
	"please verify you are a human",
}

// LooksLikeGarbage reports whether content is too short or carries an
// error/paywall/session phrase, in which case the caller should treat
// it as a successful empty summary rather than calling the model.
func LooksLikeGarbage(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < minGarbageCheckChars {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range garbagePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Summary is the parsed result of a successful (non-garbage)
// generate_summary call.
type Summary struct {
	SummaryPT       string
	OneLineSummary  string
	TranslatedTitle string
	Tags            []string
}

// Client issues chat-completion calls through a shared circuit breaker
// and key rotator.
type Client struct {
	pool     *httpclient.Pool
	logger   zerolog.Logger
	store    *store.Store
	rotator  *KeyRotator
	circuit  *Circuit
	baseURL  string
	model    string
	timeout  time.Duration
}

// NewClient builds a Client. baseURL and model point at a single
// OpenAI-compatible chat-completions deployment.
func NewClient(pool *httpclient.Pool, st *store.Store, logger zerolog.Logger, baseURL, model string, maxRPM int, timeout time.Duration, apiKeys []string, rotatorCursor int) *Client {
	return &Client{
		pool:    pool,
		logger:  logger.With().Str("component", "llm_client").Logger(),
		store:   st,
		rotator: NewKeyRotator(apiKeys, rotatorCursor),
		circuit: NewCircuit(st, "llm_summary", maxRPM),
		baseURL: baseURL,
		model:   model,
		timeout: timeout,
	}
}

var summaryFieldPatterns = map[string]*regexp.Regexp{
	"summary_pt":       regexp.MustCompile(`"summary_pt"\s*:\s*"([^"]*)"`),
	"one_line_summary": regexp.MustCompile(`"one_line_summary"\s*:\s*"([^"]*)"`),
}

// GenerateSummary implements the full generate_summary algorithm: the
// garbage-content short-circuit, circuit/key gating, truncation,
// upstream call, and response classification. systemPrompt comes from
// the caller's freshly-reloaded prompt bundle; the user prompt is built
// here from language, title, and the truncated content.
func (c *Client) GenerateSummary(ctx context.Context, content, title, language, systemPrompt string) (*Summary, error) {
	if LooksLikeGarbage(content) {
		return &Summary{}, nil
	}

	if !c.circuit.Allow() {
		return nil, temporaryErr("circuit breaker open or inter-call spacing not yet elapsed")
	}

	key, keyIdx, ok := c.rotator.Next()
	if !ok {
		return nil, temporaryErr("all keys in cooldown")
	}

	truncated := content
	if len(truncated) > maxContentChars {
		truncated = truncated[:maxContentChars]
	}

	userPrompt := fmt.Sprintf("Language: %s\nTitle: %s\n\nArticle:\n%s", language, title, truncated)

	var summary *Summary
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

		parsed, perr := parseSummaryResponse(resp)
		if perr != nil {
			return perr
		}
		summary = parsed
		return nil
	})
	if callErr != nil {
		return nil, callErr
	}
	_ = c.store.SetSetting(ctx, "llm_rotator_cursor", fmt.Sprintf("%d", keyIdx+1))
	return summary, nil
}

// CircuitState reports the current breaker state ("closed", "open",
// or "half-open"), used by the admin status endpoint and the
// circuit-open metrics gauge.
func (c *Client) CircuitState() string {
	return c.circuit.State()
}

// modelListResponse mirrors the OpenAI-compatible GET /models shape.
type modelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels queries the configured endpoint's model catalog. Callers
// needing repeated access should cache the result themselves.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	key, _, ok := c.rotator.Next()
	if !ok {
		return nil, temporaryErr("all keys in cooldown")
	}

	client := c.pool.Client("llm_list_models", c.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("llm: build models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: models request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := httpclient.ReadCapped(resp, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("llm: reading models response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("llm: models endpoint returned status %d", resp.StatusCode)
	}

	var parsed modelListResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("llm: decode models response: %w", err)
	}
	ids := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func parseSummaryResponse(content string) (*Summary, error) {
	obj, ok := ParseJSONObject(content, summaryFieldPatterns)
	if !ok {
		return nil, permanentErr("invalid response: could not parse summary JSON")
	}

	summaryText := stringField(obj, "summary_pt")
	oneLine := stringField(obj, "one_line_summary")
	if (summaryText == "") != (oneLine == "") {
		return nil, permanentErr("invalid response: mixed half-filled summary")
	}
	if len(oneLine) > maxOneLineChars {
		oneLine = oneLine[:maxOneLineChars]
	}
	return &Summary{
		SummaryPT:       summaryText,
		OneLineSummary:  oneLine,
		TranslatedTitle: stringField(obj, "translated_title"),
		Tags:            stringSliceField(obj, "tags"),
	}, nil
}

// post sends a single chat-completion request and returns the
// assistant's raw text content alongside the HTTP status.
func (c *Client) post(ctx context.Context, apiKey, systemPrompt, userPrompt string) (string, int, error) {
	reqBody := provider.ChatRequest{
		Model: c.model,
		Messages: []provider.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, fmt.Errorf("llm: marshal request: %w", err)
	}

	client := c.pool.Client("llm_chat_completions", c.timeout)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := httpclient.ReadCapped(resp, 1<<20)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("llm: reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return string(raw), resp.StatusCode, nil
	}

	var chatResp provider.ChatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return "", resp.StatusCode, fmt.Errorf("llm: decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", resp.StatusCode, fmt.Errorf("llm: response carried no choices")
	}
	content, ok := extractChoiceContent(chatResp.Choices[0])
	if !ok {
		return "", resp.StatusCode, fmt.Errorf("llm: unrecognized response structure")
	}
	return content, resp.StatusCode, nil
}

// extractChoiceContent walks the structures a deployment may use to
// carry the assistant's reply, in order: message.content,
// message.reasoning (some models return reasoning instead of content),
// choice.text, choice.content.
func extractChoiceContent(choice provider.Choice) (string, bool) {
	if s, ok := choice.Message.Content.(string); ok && s != "" {
		return s, true
	}
	if s, ok := choice.Message.Reasoning.(string); ok && s != "" {
		return s, true
	}
	if s, ok := choice.Text.(string); ok && s != "" {
		return s, true
	}
	if s, ok := choice.Content.(string); ok && s != "" {
		return s, true
	}
	return "", false
}

