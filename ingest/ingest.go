// Package ingest turns one feed's fetch result into deduplicated post
// rows and summary-queue entries.
package ingest

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/contenthash"
	"github.com/caldera-labs/plume/feed"
	"github.com/caldera-labs/plume/sanitize"
	"github.com/caldera-labs/plume/store"
	"github.com/caldera-labs/plume/urlnorm"
)

// guidCollisionThreshold is the number of guid/URL mismatches observed
// before a feed's GUIDs are distrusted for dedup going forward.
const guidCollisionThreshold = 3

// Result summarizes one ingestion pass over a single feed.
type Result struct {
	New     int
	Skipped int
	Errors  int
}

// Ingestor wires the fetcher into the store.
type Ingestor struct {
	fetcher *feed.Fetcher
	store   *store.Store
	logger  zerolog.Logger
}

// NewIngestor builds an Ingestor.
func NewIngestor(fetcher *feed.Fetcher, st *store.Store, logger zerolog.Logger) *Ingestor {
	return &Ingestor{fetcher: fetcher, store: st, logger: logger.With().Str("component", "ingestor").Logger()}
}

// IngestFeed runs one complete fetch+dedup+insert pass for f. Each new
// post and its queue entry are inserted in their own transaction; the
// pass as a whole is not one transaction, so posts inserted before a
// later failure stay committed.
func (ig *Ingestor) IngestFeed(ctx context.Context, f *store.Feed) Result {
	result, err := ig.fetcher.Fetch(ctx, f.SourceURL)
	if err != nil {
		if recErr := ig.store.RecordFeedError(ctx, f.ID, err.Error()); recErr != nil {
			ig.logger.Error().Err(recErr).Int64("feed_id", f.ID).Msg("failed to record feed error")
		}
		return Result{Errors: 1}
	}

	if looksLikeHostnamePlaceholder(f.Title) && result.FeedTitle != "" {
		siteURL := f.SiteURL
		if (siteURL == nil || *siteURL == "") && result.SiteURL != "" {
			siteURL = &result.SiteURL
		}
		site := ""
		if siteURL != nil {
			site = *siteURL
		}
		if err := ig.store.UpdateFeedTitle(ctx, f.ID, result.FeedTitle, site); err != nil {
			ig.logger.Error().Err(err).Int64("feed_id", f.ID).Msg("failed to update feed title")
		}
	}

	out := Result{}
	for _, entry := range result.Entries {
		outcome := ig.ingestEntry(ctx, f, entry)
		switch outcome {
		case outcomeNew:
			out.New++
		case outcomeDuplicate:
			out.Skipped++
		case outcomeError:
			out.Errors++
		}
	}

	if err := ig.store.RecordFeedSuccess(ctx, f.ID); err != nil {
		ig.logger.Error().Err(err).Int64("feed_id", f.ID).Msg("failed to record feed success")
	}
	return out
}

type entryOutcome int

const (
	outcomeNew entryOutcome = iota
	outcomeDuplicate
	outcomeError
)

func (ig *Ingestor) ingestEntry(ctx context.Context, f *store.Feed, entry feed.Entry) entryOutcome {
	normalizedURL, urlErr := urlnorm.Normalize(entry.URL)
	// Hash the raw feed content, not the sanitized/truncated short
	// content stored alongside it: the hash addresses the article's
	// actual text, independent of how much of it this feed's listing
	// happened to truncate to.
	contentHash := contenthash.Hash(entry.Content)
	sanitizedContent := sanitize.Sanitize(entry.Content, true)

	dup, guidCollision, err := ig.checkDuplicate(ctx, f, entry.GUID, normalizedURL, urlErr == nil, contentHash)
	if err != nil {
		ig.logger.Error().Err(err).Int64("feed_id", f.ID).Msg("dedup check failed")
		return outcomeError
	}
	if guidCollision {
		count, err := ig.store.IncrementGuidCollisionCount(ctx, f.ID)
		if err != nil {
			ig.logger.Error().Err(err).Int64("feed_id", f.ID).Msg("failed to record guid collision")
		} else if count >= guidCollisionThreshold {
			if err := ig.store.MarkGuidUnreliable(ctx, f.ID); err != nil {
				ig.logger.Error().Err(err).Int64("feed_id", f.ID).Msg("failed to mark guid unreliable")
			}
		}
	}
	if dup {
		return outcomeDuplicate
	}

	var normalizedPtr *string
	if urlErr == nil {
		normalizedPtr = &normalizedURL
	}
	var guidPtr *string
	if entry.GUID != "" {
		guidPtr = &entry.GUID
	}
	var authorPtr *string
	if entry.Author != "" {
		authorPtr = &entry.Author
	}
	var hashPtr *string
	if contentHash != "" {
		hashPtr = &contentHash
	}

	post := &store.Post{
		FeedID:        f.ID,
		GUID:          guidPtr,
		OriginalURL:   entry.URL,
		NormalizedURL: normalizedPtr,
		Title:         entry.Title,
		Author:        authorPtr,
		ShortContent:  &sanitizedContent,
		ContentHash:   hashPtr,
		PublishedAt:   entry.PublishedAt,
	}

	err = ig.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		postID, err := store.InsertPost(ctx, tx, post)
		if err != nil {
			return err
		}
		if contentHash != "" {
			return store.EnqueueSummary(ctx, tx, postID, contentHash, 0)
		}
		return nil
	})
	if err != nil {
		ig.logger.Error().Err(err).Int64("feed_id", f.ID).Msg("failed to insert post")
		return outcomeError
	}
	return outcomeNew
}

// checkDuplicate applies the three-tier dedup order described for C6:
// guid match (with collision tracking when guid matches but the URL
// does not), then normalized URL, then content hash as a last resort
// when neither guid nor URL is usable.
func (ig *Ingestor) checkDuplicate(ctx context.Context, f *store.Feed, guid, normalizedURL string, urlOK bool, contentHash string) (duplicate bool, guidCollision bool, err error) {
	if guid != "" && !f.GuidUnreliable {
		existing, err := ig.store.FindPostByGuid(ctx, f.ID, guid)
		if err != nil && err != store.ErrNotFound {
			return false, false, err
		}
		if err == nil {
			existingURL := ""
			if existing.NormalizedURL != nil {
				existingURL = *existing.NormalizedURL
			}
			if urlOK && existingURL != "" && existingURL != normalizedURL {
				return false, true, nil
			}
			return true, false, nil
		}
	}

	if urlOK && !f.AllowDuplicateURLs {
		_, err := ig.store.FindPostByNormalizedURL(ctx, f.ID, normalizedURL)
		if err != nil && err != store.ErrNotFound {
			return false, false, err
		}
		if err == nil {
			return true, false, nil
		}
	}

	if guid == "" && !urlOK && contentHash != "" {
		_, err := ig.store.FindPostByContentHash(ctx, f.ID, contentHash)
		if err != nil && err != store.ErrNotFound {
			return false, false, err
		}
		if err == nil {
			return true, false, nil
		}
	}

	return false, false, nil
}

func looksLikeHostnamePlaceholder(title string) bool {
	return strings.Contains(title, ".") && !strings.Contains(title, "/")
}
