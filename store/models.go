package store

import "time"

// Category is a user-defined feed grouping with optional hierarchy.
type Category struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	ParentID *int64 `db:"parent_id"`
	Position int    `db:"position"`
}

// Feed is a configured RSS/Atom source.
type Feed struct {
	ID                 int64      `db:"id"`
	CategoryID         *int64     `db:"category_id"`
	Title              string     `db:"title"`
	SourceURL          string     `db:"source_url"`
	SiteURL            *string    `db:"site_url"`
	LastFetchedAt      *time.Time `db:"last_fetched_at"`
	ErrorCount         int        `db:"error_count"`
	LastError          *string    `db:"last_error"`
	LastErrorAt        *time.Time `db:"last_error_at"`
	NextRetryAt        *time.Time `db:"next_retry_at"`
	DisabledAt         *time.Time `db:"disabled_at"`
	DisabledReason     *string    `db:"disabled_reason"`
	GuidUnreliable     bool       `db:"guid_unreliable"`
	GuidCollisionCount int        `db:"guid_collision_count"`
	AllowDuplicateURLs bool       `db:"allow_duplicate_urls"`
}

// Post is a single ingested feed item.
type Post struct {
	ID                   int64      `db:"id"`
	FeedID               int64      `db:"feed_id"`
	GUID                 *string    `db:"guid"`
	OriginalURL          string     `db:"original_url"`
	NormalizedURL        *string    `db:"normalized_url"`
	Title                string     `db:"title"`
	Author               *string    `db:"author"`
	ShortContent         *string    `db:"short_content"`
	FullContent          *string    `db:"full_content"`
	ContentHash          *string    `db:"content_hash"`
	PublishedAt          *time.Time `db:"published_at"`
	FetchedAt            time.Time  `db:"fetched_at"`
	SortDate             time.Time  `db:"sort_date"`
	IsRead               bool       `db:"is_read"`
	ReadAt               *time.Time `db:"read_at"`
	IsStarred            bool       `db:"is_starred"`
	StarredAt            *time.Time `db:"starred_at"`
	IsLiked              bool       `db:"is_liked"`
	LikedAt              *time.Time `db:"liked_at"`
	IsSuggested          bool       `db:"is_suggested"`
	SuggestionScore      *int       `db:"suggestion_score"`
	SuggestedAt          *time.Time `db:"suggested_at"`
	FetchFullAttemptedAt *time.Time `db:"fetch_full_attempted_at"`
}

// PostTag is one (post_id, tag) pair.
type PostTag struct {
	PostID int64  `db:"post_id"`
	Tag    string `db:"tag"`
}

// AISummary is a content-addressed, shareable summary row.
type AISummary struct {
	ContentHash     string    `db:"content_hash"`
	SummaryText     string    `db:"summary_text"`
	OneLineSummary  string    `db:"one_line_summary"`
	TranslatedTitle *string   `db:"translated_title"`
	TagsJSON        string    `db:"tags"`
	CreatedAt       time.Time `db:"created_at"`
}

// ErrorType enumerates the queue entry failure classification.
type ErrorType string

const (
	ErrorTypeTemporary ErrorType = "temporary"
	ErrorTypePermanent ErrorType = "permanent"
)

// QueueEntry is one pending-summarization work item.
type QueueEntry struct {
	ID            int64      `db:"id"`
	PostID        int64      `db:"post_id"`
	ContentHash   string     `db:"content_hash"`
	Priority      int        `db:"priority"`
	Attempts      int        `db:"attempts"`
	LastError     *string    `db:"last_error"`
	ErrorType     *string    `db:"error_type"`
	LockedAt      *time.Time `db:"locked_at"`
	CooldownUntil *time.Time `db:"cooldown_until"`
	CreatedAt     time.Time  `db:"created_at"`
}

// SummaryFailure archives a content hash that exhausted retries.
type SummaryFailure struct {
	ContentHash string    `db:"content_hash"`
	LastError   string    `db:"last_error"`
	FailedAt    time.Time `db:"failed_at"`
}

// SchedulerLock is the single-row leader-election lock.
type SchedulerLock struct {
	ID          int64     `db:"id"`
	HolderID    string    `db:"holder_id"`
	AcquiredAt  time.Time `db:"acquired_at"`
	HeartbeatAt time.Time `db:"heartbeat_at"`
}

// CleanupLogEntry records one retention pass.
type CleanupLogEntry struct {
	ID                 int64     `db:"id"`
	RanAt              time.Time `db:"ran_at"`
	PostsDeleted       int       `db:"posts_deleted"`
	FullContentCleared int       `db:"full_content_cleared"`
	DurationSeconds    float64   `db:"duration_seconds"`
}
