package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phishbox/internal/ingest"
	"phishbox/internal/model"
	"phishbox/pkg/trace"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type EmailReader interface {
	List(ctx context.Context, limit, offset int) ([]*model.Email, int, error)
	GetByID(ctx context.Context, id int64) (*model.Email, error)
	ListAssignments(ctx context.Context, emailID int64) ([]model.TeamAssignment, error)
}

type ResultReader interface {
	ListByEmail(ctx context.Context, emailID int64) ([]model.WorkflowResult, error)
}

type StatsReader interface {
	Enriched(ctx context.Context) (*model.DashboardStats, error)
}

// BatchPublisher queues fetched batches for the worker.
type BatchPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

type EmailHandler struct {
	emails    EmailReader
	results   ResultReader
	stats     StatsReader
	publisher BatchPublisher
	logger    *zap.Logger
}

func NewEmailHandler(emails EmailReader, results ResultReader, stats StatsReader, publisher BatchPublisher, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{
		emails:    emails,
		results:   results,
		stats:     stats,
		publisher: publisher,
		logger:    logger,
	}
}

// List handles GET /api/emails?limit&offset
func (h *EmailHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	emails, total, err := h.emails.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if emails == nil {
		emails = []*model.Email{}
	}

	c.JSON(http.StatusOK, gin.H{
		"emails": emails,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Get handles GET /api/emails/:id
func (h *EmailHandler) Get(c *gin.Context) {
	id, ok := emailID(c)
	if !ok {
		return
	}

	email, err := h.emails.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	results, err := h.results.ListByEmail(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if results == nil {
		results = []model.WorkflowResult{}
	}

	c.JSON(http.StatusOK, model.EmailDetail{Email: email, WorkflowResults: results})
}

// Assignments handles GET /api/emails/:id/assignments
func (h *EmailHandler) Assignments(c *gin.Context) {
	id, ok := emailID(c)
	if !ok {
		return
	}
	if _, err := h.emails.GetByID(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	list, err := h.emails.ListAssignments(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []model.TeamAssignment{}
	}
	c.JSON(http.StatusOK, gin.H{"email_id": id, "assignments": list})
}

// Fetch handles POST /api/emails/fetch. The batch is queued for the worker
// and the call returns before any email is stored.
func (h *EmailHandler) Fetch(c *gin.Context) {
	var req struct {
		Emails []model.IncomingEmail `json:"emails"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if len(req.Emails) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no emails in batch"})
		return
	}
	if len(req.Emails) > ingest.MaxBatchEmails {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch too large", "max": ingest.MaxBatchEmails})
		return
	}
	for _, e := range req.Emails {
		if err := ingest.Validate(e); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	ctx := c.Request.Context()
	batch := ingest.NewBatch(req.Emails, trace.FromContext(ctx))
	if err := h.publisher.PublishWithContext(ctx, ingest.RoutingKeyBatchFetched, batch); err != nil {
		h.logger.Error("Failed to queue batch",
			zap.String("batch_id", batch.BatchID),
			zap.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to queue batch"})
		return
	}

	h.logger.Info("Batch queued",
		zap.String("batch_id", batch.BatchID),
		zap.Int("emails", len(batch.Emails)),
		zap.String("operator", Operator(c)),
	)
	c.JSON(http.StatusAccepted, gin.H{
		"batch_id": batch.BatchID,
		"queued":   len(batch.Emails),
	})
}

// EnrichedStats handles GET /api/dashboard/enriched-stats
func (h *EmailHandler) EnrichedStats(c *gin.Context) {
	stats, err := h.stats.Enriched(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
