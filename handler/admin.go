package handler

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/llm"
	"github.com/caldera-labs/plume/scheduler"
	"github.com/caldera-labs/plume/store"
)

const modelCacheTTL = 30 * time.Minute

// AdminHandler implements the operational /healthz and /admin/* surface.
type AdminHandler struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	llm       *llm.Client
	dbPath    string
	maxDBMB   int
	logger    zerolog.Logger

	modelsMu      sync.Mutex
	modelsCache   []string
	modelsCachedAt time.Time
}

// NewAdminHandler builds an AdminHandler.
func NewAdminHandler(st *store.Store, sched *scheduler.Scheduler, client *llm.Client, dbPath string, maxDBMB int, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		store:     st,
		scheduler: sched,
		llm:       client,
		dbPath:    dbPath,
		maxDBMB:   maxDBMB,
		logger:    logger,
	}
}

// Health reports liveness by pinging the database. It is reachable
// without a bearer token, as are /metrics and /api/auth/login.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	IsLeader    bool   `json:"is_leader"`
	CircuitState string `json:"llm_circuit_state"`
	DBSizeBytes int64  `json:"db_size_bytes"`
	DBSizeLimitMB int  `json:"db_size_limit_mb"`
}

// Status reports scheduler leadership, the LLM circuit state, and
// database size against the configured cap — the health_check job's
// own view of the system, surfaced for operators.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	size, err := h.store.FileSizeBytes(h.dbPath)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to stat database file")
	}
	writeJSON(w, http.StatusOK, statusResponse{
		IsLeader:      h.scheduler.IsLeader(),
		CircuitState:  h.llm.CircuitState(),
		DBSizeBytes:   size,
		DBSizeLimitMB: h.maxDBMB,
	})
}

type queueStatusResponse struct {
	Depth int `json:"depth"`
}

// QueueStatus reports the number of summary_queue entries ready to be
// claimed right now.
func (h *AdminHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := h.store.QueueDepth(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue depth")
		return
	}
	writeJSON(w, http.StatusOK, queueStatusResponse{Depth: depth})
}

// ClearQueueCooldowns lifts every pending queue cooldown immediately.
func (h *AdminHandler) ClearQueueCooldowns(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.ClearQueueCooldowns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear cooldowns")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}

type vacuumResponse struct {
	OK            bool    `json:"ok"`
	SizeBeforeMB  float64 `json:"size_before_mb"`
	SizeAfterMB   float64 `json:"size_after_mb"`
	FreedBytes    int64   `json:"freed_bytes"`
	FreedMB       float64 `json:"freed_mb"`
}

// Vacuum runs SQLite VACUUM to reclaim space left by deleted rows
// (notably the retention sweep's row deletes), reporting the database
// file size before and after so an operator can tell whether it was
// worth running.
func (h *AdminHandler) Vacuum(w http.ResponseWriter, r *http.Request) {
	sizeBefore, err := h.store.FileSizeBytes(h.dbPath)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to stat database file before vacuum")
	}

	if err := h.store.Vacuum(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "vacuum failed")
		return
	}

	sizeAfter, err := h.store.FileSizeBytes(h.dbPath)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to stat database file after vacuum")
	}

	freed := sizeBefore - sizeAfter
	if freed < 0 {
		freed = 0
	}
	writeJSON(w, http.StatusOK, vacuumResponse{
		OK:           true,
		SizeBeforeMB: roundMB(sizeBefore),
		SizeAfterMB:  roundMB(sizeAfter),
		FreedBytes:   freed,
		FreedMB:      roundMB(freed),
	})
}

func roundMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}

type reprocessSummaryRequest struct {
	ContentHash string `json:"content_hash"`
}

// ReprocessSummary force-requeues a single post's summary at elevated
// priority, identified by content hash rather than post id: the same
// content hash can be shared by posts across several feeds, and the
// cached summary and failure record it clears are themselves keyed by
// hash, not by any one post.
func (h *AdminHandler) ReprocessSummary(w http.ResponseWriter, r *http.Request) {
	var req reprocessSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContentHash == "" {
		writeError(w, http.StatusBadRequest, "content_hash is required")
		return
	}

	post, err := h.store.FindAnyPostByContentHash(r.Context(), req.ContentHash)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up post")
		return
	}

	if err := h.store.ReprocessPostSummary(r.Context(), post.ID, req.ContentHash); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to requeue summary")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Models returns the LLM endpoint's model catalog, refreshing it at
// most once every modelCacheTTL.
func (h *AdminHandler) Models(w http.ResponseWriter, r *http.Request) {
	h.modelsMu.Lock()
	stale := time.Since(h.modelsCachedAt) > modelCacheTTL
	cached := h.modelsCache
	h.modelsMu.Unlock()

	if !stale && cached != nil {
		writeJSON(w, http.StatusOK, map[string][]string{"models": cached})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	ids, err := h.llm.ListModels(ctx)
	if err != nil {
		if cached != nil {
			writeJSON(w, http.StatusOK, map[string][]string{"models": cached})
			return
		}
		writeError(w, http.StatusBadGateway, "failed to fetch model catalog")
		return
	}

	h.modelsMu.Lock()
	h.modelsCache = ids
	h.modelsCachedAt = time.Now()
	h.modelsMu.Unlock()

	writeJSON(w, http.StatusOK, map[string][]string{"models": ids})
}
