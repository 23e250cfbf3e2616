package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/core/service/draft"
	"triage_server/core/service/review"
	"triage_server/core/service/triage"
	"triage_server/internal/stream"
	"triage_server/pkg/apperr"
	"triage_server/pkg/response"
)

const defaultListLimit = 50

// OpsHandler is the JWT-protected operator API: draft queues, processed
// reply lookups, pattern labeling and search, and pipeline stats.
type OpsHandler struct {
	svc      *triage.Service
	drafts   *draft.Service
	review   *review.Workflow
	patterns out.PatternStore
	ledger   out.ProcessedReplyRepository
	errs     out.SessionErrorRepository
	threads  out.ActiveThreadRepository
	archive  out.ReplyArchive
	queue    *stream.RedisStream
}

func NewOpsHandler(
	svc *triage.Service,
	drafts *draft.Service,
	reviewWorkflow *review.Workflow,
	patterns out.PatternStore,
	ledger out.ProcessedReplyRepository,
	errs out.SessionErrorRepository,
	threads out.ActiveThreadRepository,
	archive out.ReplyArchive,
	queue *stream.RedisStream,
) *OpsHandler {
	return &OpsHandler{
		svc:      svc,
		drafts:   drafts,
		review:   reviewWorkflow,
		patterns: patterns,
		ledger:   ledger,
		errs:     errs,
		threads:  threads,
		archive:  archive,
		queue:    queue,
	}
}

func (h *OpsHandler) Register(router fiber.Router) {
	drafts := router.Group("/drafts")
	drafts.Get("/pending", h.ListPendingDrafts)
	drafts.Get("/expired", h.ListExpiredDrafts)
	drafts.Get("/:id", h.GetDraft)

	replies := router.Group("/replies")
	replies.Get("/:id", h.GetProcessedReply)
	replies.Get("/:id/errors", h.ListReplyErrors)

	patterns := router.Group("/patterns")
	patterns.Get("/search", h.SearchPatterns)
	patterns.Get("/:id", h.GetPattern)
	patterns.Post("/:id/label", h.LabelPattern)

	router.Get("/threads", h.ListActiveThreads)
	router.Get("/stats", h.GetStats)
}

func limitQuery(c *fiber.Ctx) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}

func (h *OpsHandler) ListPendingDrafts(c *fiber.Ctx) error {
	drafts, err := h.drafts.ListPending(c.Context(), limitQuery(c))
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"drafts": drafts, "total": len(drafts)})
}

func (h *OpsHandler) ListExpiredDrafts(c *fiber.Ctx) error {
	drafts, err := h.drafts.GetExpiredDrafts(c.Context(), limitQuery(c))
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"drafts": drafts, "total": len(drafts)})
}

func (h *OpsHandler) GetDraft(c *fiber.Ctx) error {
	d, err := h.drafts.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, d)
}

// GetProcessedReply returns the ledger outcome for a reply, and the
// archived event when available.
func (h *OpsHandler) GetProcessedReply(c *fiber.Ctx) error {
	replyID := c.Params("id")

	marker, result, err := h.ledger.Get(c.Context(), replyID)
	if err != nil {
		return apperr.PersistenceError("ledger lookup", err)
	}
	if marker == nil {
		return apperr.NotFound("processed reply")
	}

	body := fiber.Map{
		"processed": marker,
		"result":    result,
	}
	if h.archive != nil {
		if event, err := h.archive.Get(c.Context(), replyID); err == nil && event != nil {
			body["event"] = event
		}
	}
	return response.OK(c, body)
}

func (h *OpsHandler) ListReplyErrors(c *fiber.Ctx) error {
	entries, err := h.errs.ListByReply(c.Context(), c.Params("id"))
	if err != nil {
		return apperr.PersistenceError("session error lookup", err)
	}
	return response.OK(c, fiber.Map{"errors": entries, "total": len(entries)})
}

func (h *OpsHandler) GetPattern(c *fiber.Ctx) error {
	p, err := h.patterns.Get(c.Context(), c.Params("id"))
	if err != nil {
		return apperr.PersistenceError("pattern lookup", err)
	}
	if p == nil {
		return apperr.NotFound("pattern")
	}
	return response.OK(c, p)
}

// SearchPatterns runs a semantic similarity search over the labeled and
// unlabeled pattern corpus.
func (h *OpsHandler) SearchPatterns(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return apperr.MissingField("q")
	}

	minScore := 0.7
	if s := c.Query("min_score"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 0 && v <= 1 {
			minScore = v
		}
	}

	limit := limitQuery(c)
	if limit > 20 {
		limit = 20
	}

	hits, err := h.patterns.SearchSimilar(c.Context(), c.Query("brain_id"), query, "", limit, minScore)
	if err != nil {
		return apperr.ExternalError("pattern search", err)
	}
	return response.OK(c, fiber.Map{"patterns": hits, "total": len(hits)})
}

type labelPatternRequest struct {
	Label   string `json:"label"`
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}

// LabelPattern records the human verdict on a review pattern, exactly once.
func (h *OpsHandler) LabelPattern(c *fiber.Ctx) error {
	var req labelPatternRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("malformed label payload")
	}
	if req.Outcome != "" && !domain.ValidOutcome(req.Outcome) {
		return apperr.BadRequest("invalid outcome: " + req.Outcome)
	}

	actorID, _ := c.Locals("actor_id").(string)

	p, err := h.review.LabelPattern(c.Context(), c.Params("id"), req.Label,
		domain.PatternOutcome(req.Outcome), actorID, req.Notes)
	if err != nil {
		return err
	}
	return response.OK(c, p)
}

func (h *OpsHandler) ListActiveThreads(c *fiber.Ctx) error {
	threads, err := h.threads.List(c.Context(), limitQuery(c))
	if err != nil {
		return apperr.PersistenceError("thread listing", err)
	}
	return response.OK(c, fiber.Map{"threads": threads, "total": len(threads)})
}

// GetStats returns pipeline counters plus queue depth.
func (h *OpsHandler) GetStats(c *fiber.Ctx) error {
	body := fiber.Map{
		"pipeline": h.svc.Stats(),
	}
	if h.queue != nil {
		depth, err := h.queue.Depth(c.Context(), stream.StreamReplyEvents)
		if err == nil {
			body["queue_depth"] = depth
		}
		pending, err := h.queue.Pending(c.Context(), stream.StreamReplyEvents)
		if err == nil {
			body["queue_pending"] = pending
		}
	}
	return response.OK(c, body)
}
