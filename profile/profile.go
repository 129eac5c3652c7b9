// Package profile builds the reader's personalization profile from
// their liked posts.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/config"
	"github.com/caldera-labs/plume/llm"
	"github.com/caldera-labs/plume/store"
)

const (
	minLikedPosts   = 10
	maxLikedSamples = 50

	settingKeyProfile = "user_profile"
	settingKeyTags    = "user_profile_tags"
	settingKeyStale   = "user_profile_stale"
)

// Builder regenerates the personalization profile on demand.
type Builder struct {
	store      *store.Store
	client     *llm.Client
	promptPath string
	logger     zerolog.Logger
}

// New builds a Builder.
func New(st *store.Store, client *llm.Client, promptPath string, logger zerolog.Logger) *Builder {
	return &Builder{
		store:      st,
		client:     client,
		promptPath: promptPath,
		logger:     logger.With().Str("component", "profile_builder").Logger(),
	}
}

// MarkStale flags the profile for regeneration on the next scheduled
// run, called whenever a post's liked state changes.
func (b *Builder) MarkStale(ctx context.Context) error {
	return b.store.SetSetting(ctx, settingKeyStale, "1")
}

// Rebuild regenerates the profile if it is flagged stale and enough
// liked posts exist. Returns false without error when either
// condition is not met.
func (b *Builder) Rebuild(ctx context.Context) (bool, error) {
	stale, err := b.store.GetSetting(ctx, settingKeyStale)
	if err != nil && err != store.ErrNotFound {
		return false, err
	}
	if stale != "1" {
		return false, nil
	}

	liked, err := b.store.LikedPostsWithSummary(ctx, maxLikedSamples)
	if err != nil {
		return false, err
	}
	if len(liked) < minLikedPosts {
		return false, nil
	}

	var sb strings.Builder
	for _, post := range liked {
		if post.ContentHash == nil {
			continue
		}
		summary, err := b.store.GetSummaryByHash(ctx, *post.ContentHash)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "Title: %s\nSummary: %s\n\n", post.Title, summary.SummaryText)
	}

	bundle, err := config.LoadPromptBundle(b.promptPath)
	if err != nil {
		return false, err
	}

	result, err := b.client.GenerateProfile(ctx, sb.String(), bundle.ProfileSystem)
	if err != nil {
		return false, fmt.Errorf("profile: generate: %w", err)
	}

	tagsJSON, err := json.Marshal(normalizeTags(result.Tags))
	if err != nil {
		return false, fmt.Errorf("profile: marshal tags: %w", err)
	}
	if err := b.store.SetSetting(ctx, settingKeyProfile, result.Profile); err != nil {
		return false, err
	}
	if err := b.store.SetSetting(ctx, settingKeyTags, string(tagsJSON)); err != nil {
		return false, err
	}
	if err := b.store.ClearSetting(ctx, settingKeyStale); err != nil {
		return false, err
	}

	b.logger.Info().Int("liked_posts", len(liked)).Int("tags", len(result.Tags)).Msg("rebuilt user profile")
	return true, nil
}

// Current returns the persisted profile text and tag set, or
// store.ErrNotFound if no profile has been built yet.
func (b *Builder) Current(ctx context.Context) (string, []string, error) {
	text, err := b.store.GetSetting(ctx, settingKeyProfile)
	if err != nil {
		return "", nil, err
	}
	rawTags, err := b.store.GetSetting(ctx, settingKeyTags)
	if err != nil && err != store.ErrNotFound {
		return "", nil, err
	}
	var tags []string
	if rawTags != "" {
		_ = json.Unmarshal([]byte(rawTags), &tags)
	}
	return text, tags, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
