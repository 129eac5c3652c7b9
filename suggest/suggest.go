// Package suggest scores recent posts against the reader's interest
// profile and flags strong matches.
package suggest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/config"
	"github.com/caldera-labs/plume/llm"
	"github.com/caldera-labs/plume/profile"
	"github.com/caldera-labs/plume/store"
)

const (
	candidateWindow  = 24 * time.Hour
	minTagOverlap    = 3
	maxCandidates    = 50
	matchScoreToMark = 80
)

// Engine runs the hourly suggestion pass.
type Engine struct {
	store      *store.Store
	client     *llm.Client
	profile    *profile.Builder
	promptPath string
	logger     zerolog.Logger
}

// New builds an Engine.
func New(st *store.Store, client *llm.Client, profileBuilder *profile.Builder, promptPath string, logger zerolog.Logger) *Engine {
	return &Engine{
		store:      st,
		client:     client,
		profile:    profileBuilder,
		promptPath: promptPath,
		logger:     logger.With().Str("component", "suggestion_engine").Logger(),
	}
}

type scoredCandidate struct {
	post    store.Post
	overlap int
}

// Run scores the candidate pool and marks strong matches. It is a
// no-op if no personalization profile has been built yet.
func (e *Engine) Run(ctx context.Context) (int, error) {
	profileText, profileTags, err := e.profile.Current(ctx)
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	candidates, err := e.store.SuggestionCandidates(ctx, time.Now().Add(-candidateWindow))
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	overlaps, err := e.store.TagOverlapCount(ctx, ids, profileTags)
	if err != nil {
		return 0, err
	}

	var scored []scoredCandidate
	for _, c := range candidates {
		if n := overlaps[c.ID]; n >= minTagOverlap {
			scored = append(scored, scoredCandidate{post: c, overlap: n})
		}
	}
	if len(scored) == 0 {
		return 0, nil
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].overlap > scored[j].overlap })
	if len(scored) > maxCandidates {
		scored = scored[:maxCandidates]
	}

	var sb strings.Builder
	byID := make(map[int64]store.Post, len(scored))
	for _, c := range scored {
		byID[c.post.ID] = c.post
		oneLine := ""
		if c.post.ContentHash != nil {
			if summary, err := e.store.GetSummaryByHash(ctx, *c.post.ContentHash); err == nil {
				oneLine = summary.OneLineSummary
			}
		}
		fmt.Fprintf(&sb, "{id: %d, title: %q, one_line_summary: %q}\n", c.post.ID, c.post.Title, oneLine)
	}

	bundle, err := config.LoadPromptBundle(e.promptPath)
	if err != nil {
		return 0, err
	}

	matches, err := e.client.GenerateSuggestions(ctx, sb.String(), profileText, bundle.SuggestionSystem)
	if err != nil {
		return 0, fmt.Errorf("suggest: generate: %w", err)
	}

	marked := 0
	for _, m := range matches {
		if m.Score < matchScoreToMark {
			continue
		}
		if _, ok := byID[m.ID]; !ok {
			continue
		}
		if err := e.store.MarkSuggested(ctx, m.ID, m.Score); err != nil {
			e.logger.Error().Err(err).Int64("post_id", m.ID).Msg("failed to mark suggestion")
			continue
		}
		marked++
	}

	e.logger.Info().Int("candidates", len(candidates)).Int("scored", len(scored)).Int("marked", marked).Msg("suggestion pass complete")
	return marked, nil
}
