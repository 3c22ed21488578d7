// Package ingest stores fetched email batches and runs them through
// enrichment and the classifier pool.
package ingest

import (
	"github.com/google/uuid"

	"phishbox/internal/model"
)

// RoutingKeyBatchFetched carries one fetched batch from the API to the worker.
const RoutingKeyBatchFetched = "email.batch.fetched"

// MaxBatchEmails bounds one fetch request.
const MaxBatchEmails = 500

type BatchMessage struct {
	BatchID string                `json:"batch_id"`
	Emails  []model.IncomingEmail `json:"emails"`
	TraceID string                `json:"trace_id,omitempty"`
}

func NewBatch(emails []model.IncomingEmail, traceID string) BatchMessage {
	return BatchMessage{
		BatchID: uuid.NewString(),
		Emails:  emails,
		TraceID: traceID,
	}
}

// Summary counts what happened to one batch.
type Summary struct {
	BatchID    string `json:"batch_id"`
	Received   int    `json:"received"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Processed  int    `json:"processed"`
	Phishing   int    `json:"phishing"`
	Failed     int    `json:"failed"`
}
