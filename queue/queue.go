// Package queue drives the summary generation worker loop.
package queue

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/config"
	"github.com/caldera-labs/plume/contenthash"
	"github.com/caldera-labs/plume/extract"
	"github.com/caldera-labs/plume/llm"
	"github.com/caldera-labs/plume/sanitize"
	"github.com/caldera-labs/plume/store"
)

const (
	maxAttemptsBeforeEscalation = 5
	temporaryCooldown           = 24 * time.Hour
	postFullContentFetchDelay   = 2 * time.Second
	backfillPriority            = -1
	backfillBatchSize           = 100
)

// Worker processes one entry per Tick call.
type Worker struct {
	store       *store.Store
	extractor   *extract.Extractor
	client      *llm.Client
	promptPath  string
	language    string
	lockTimeout time.Duration
	logger      zerolog.Logger
}

// NewWorker builds a Worker. lockTimeout is the summary_lock_timeout_seconds
// lease duration after which an abandoned claim becomes reclaimable.
func NewWorker(st *store.Store, extractor *extract.Extractor, client *llm.Client, promptPath, language string, lockTimeout time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		store:       st,
		extractor:   extractor,
		client:      client,
		promptPath:  promptPath,
		language:    language,
		lockTimeout: lockTimeout,
		logger:      logger.With().Str("component", "queue_worker").Logger(),
	}
}

// Outcome classifies what happened to the one entry a Tick processed.
type Outcome int

const (
	// OutcomeNone means nothing was ready to claim.
	OutcomeNone Outcome = iota
	// OutcomeSummarized means a new AI summary was generated and persisted.
	OutcomeSummarized
	// OutcomeSkipped means the entry was removed without generating a
	// summary (already summarized, post deleted, or already read).
	OutcomeSkipped
	// OutcomeRetrying means a temporary or permanent error left the
	// entry (or its cooldown/failure escalation) for a later attempt.
	OutcomeRetrying
	// OutcomeFailed means the content hash was archived to
	// summary_failures after exhausting its retries.
	OutcomeFailed
)

// Tick attempts to process exactly one queue entry. OutcomeNone with a
// nil error means there was nothing ready to claim.
func (w *Worker) Tick(ctx context.Context) (Outcome, error) {
	entry, err := w.store.ClaimNextSummary(ctx, w.lockTimeout)
	if err == store.ErrNotFound {
		return OutcomeNone, nil
	}
	if err != nil {
		return OutcomeNone, err
	}

	outcome, err := w.process(ctx, entry)
	if err != nil {
		w.logger.Error().Err(err).Int64("queue_id", entry.ID).Msg("queue entry processing failed")
	}
	return outcome, nil
}

func (w *Worker) process(ctx context.Context, entry *store.QueueEntry) (Outcome, error) {
	if _, err := w.store.GetSummaryByHash(ctx, entry.ContentHash); err == nil {
		return OutcomeSkipped, w.store.CompleteSummary(ctx, entry.ID)
	}

	post, err := w.store.GetPost(ctx, entry.PostID)
	if err == store.ErrNotFound {
		return OutcomeSkipped, w.store.CompleteSummary(ctx, entry.ID)
	}
	if err != nil {
		return OutcomeRetrying, w.store.ReleaseSummary(ctx, entry.ID)
	}
	if post.IsRead {
		return OutcomeSkipped, w.store.CompleteSummary(ctx, entry.ID)
	}

	fullContent := ""
	if post.FullContent != nil {
		fullContent = *post.FullContent
	} else if post.OriginalURL != "" {
		res := w.extractor.Extract(ctx, post.OriginalURL)
		if res.OK {
			hash := contenthash.Hash(res.Content)
			if err := w.store.SetFullContent(ctx, post.ID, res.Content, hash); err != nil {
				w.logger.Error().Err(err).Int64("post_id", post.ID).Msg("failed to persist full content")
			}
			fullContent = res.Content
		} else {
			if err := w.store.MarkFullContentAttempted(ctx, post.ID); err != nil {
				w.logger.Error().Err(err).Int64("post_id", post.ID).Msg("failed to mark full content attempted")
			}
		}
		time.Sleep(postFullContentFetchDelay)
	}

	content := fullContent
	if content == "" && post.ShortContent != nil {
		content = *post.ShortContent
	}
	plainContent := sanitize.ExtractText(content)

	bundle, err := config.LoadPromptBundle(w.promptPath)
	if err != nil {
		return OutcomeRetrying, w.store.RetrySummary(ctx, entry.ID, err.Error(), store.ErrorTypeTemporary)
	}

	summary, genErr := w.client.GenerateSummary(ctx, plainContent, post.Title, w.language, bundle.SummarySystem)
	return w.applyOutcome(ctx, entry, summary, genErr)
}

// applyOutcome maps a GenerateSummary result onto one of the five
// terminal actions described for the queue worker.
func (w *Worker) applyOutcome(ctx context.Context, entry *store.QueueEntry, summary *llm.Summary, genErr error) (Outcome, error) {
	if genErr == nil {
		return OutcomeSummarized, w.store.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := store.SaveSummary(ctx, tx, &store.AISummary{
				ContentHash:     entry.ContentHash,
				SummaryText:     summary.SummaryPT,
				OneLineSummary:  summary.OneLineSummary,
				TranslatedTitle: nonEmptyPtr(summary.TranslatedTitle),
				TagsJSON:        tagsJSON(summary.Tags),
			}); err != nil {
				return err
			}
			if err := store.ReplacePostTags(ctx, tx, entry.PostID, summary.Tags); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM summary_queue WHERE id = ?", entry.ID); err != nil {
				return err
			}
			return nil
		})
	}

	if strings.Contains(genErr.Error(), "all keys in cooldown") {
		return OutcomeRetrying, w.store.ReleaseSummary(ctx, entry.ID)
	}

	if llm.IsTemporary(genErr) {
		if entry.Attempts+1 >= maxAttemptsBeforeEscalation {
			return OutcomeRetrying, w.store.EscalateToCooldown(ctx, entry.ID, genErr.Error(), int(temporaryCooldown.Seconds()))
		}
		return OutcomeRetrying, w.store.RetrySummary(ctx, entry.ID, genErr.Error(), store.ErrorTypeTemporary)
	}

	if entry.Attempts+1 >= maxAttemptsBeforeEscalation {
		return OutcomeFailed, w.store.ArchiveSummaryFailure(ctx, entry.ID, entry.ContentHash, genErr.Error())
	}
	return OutcomeRetrying, w.store.RetrySummary(ctx, entry.ID, genErr.Error(), store.ErrorTypePermanent)
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func tagsJSON(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `\"`) + `"`
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

// RunBackfillSweep enqueues posts that have a content hash but ended
// up with no queue entry, no summary, and no recorded failure — the
// eventual-consistency repair pass run after each feed-update cycle.
func (w *Worker) RunBackfillSweep(ctx context.Context) (int, error) {
	posts, err := w.store.PostsMissingQueueEntry(ctx, backfillBatchSize)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, post := range posts {
		if post.ContentHash == nil {
			continue
		}
		err := w.store.WithTx(ctx, func(tx *sqlx.Tx) error {
			return store.EnqueueSummary(ctx, tx, post.ID, *post.ContentHash, backfillPriority)
		})
		if err != nil {
			w.logger.Error().Err(err).Int64("post_id", post.ID).Msg("backfill enqueue failed")
			continue
		}
		enqueued++
	}
	return enqueued, nil
}
