package ingest

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"phishbox/pkg/trace"
	"phishbox/pkg/util"
)

const maxRetries = 5

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, failedBy, originalError string) error
}

// BatchHandler consumes email.batch.fetched. Retryable failures are
// redelivered up to maxRetries times; everything else is parked in the DLQ.
type BatchHandler struct {
	service *Service
	retries RetryCounter
	dlq     DeadLetterPublisher
	logger  *zap.Logger
}

func NewBatchHandler(service *Service, retries RetryCounter, dlq DeadLetterPublisher, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{
		service: service,
		retries: retries,
		dlq:     dlq,
		logger:  logger,
	}
}

func (h *BatchHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var msg BatchMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Error("Failed to unmarshal batch (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.Int("payload_bytes", len(raw)),
		)
		h.deadLetter(ctx, raw, err)
		return nil
	}

	if trace.FromContext(ctx) == "" && msg.TraceID != "" {
		ctx = trace.WithContext(ctx, msg.TraceID)
	}

	retryKey := util.FormatRetryKey("ingest", msg.BatchID)
	_, err := h.service.ProcessBatch(ctx, msg)
	if err == nil {
		if h.retries != nil {
			_ = h.retries.Reset(ctx, retryKey)
		}
		return nil
	}

	retryable, errType := util.IsRetryableError(err)
	count := int64(1)
	if h.retries != nil {
		n, cerr := h.retries.IncrementAndGet(ctx, retryKey)
		if cerr != nil {
			h.logger.Warn("Failed to get retry count, continuing anyway", zap.Error(cerr))
		} else {
			count = n
		}
	}

	h.logger.Error("Batch processing failed",
		zap.String("batch_id", msg.BatchID),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Int64("retry_count", count),
		zap.String("trace_id", trace.FromContext(ctx)),
		zap.Error(err),
	)

	if util.ShouldRetry(count, maxRetries, retryable) {
		return err
	}

	h.deadLetter(ctx, raw, err)
	if h.retries != nil {
		_ = h.retries.Reset(ctx, retryKey)
	}
	return nil
}

func (h *BatchHandler) deadLetter(ctx context.Context, raw []byte, cause error) {
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(ctx, RoutingKeyBatchFetched, raw, "ingest", cause.Error()); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
	}
}
