package api

import (
	"time"

	"github.com/google/uuid"
)

// RegisterPredicateResponse is returned by POST /predicates.
type RegisterPredicateResponse struct {
	UUID uuid.UUID `json:"uuid"`
}

// PredicateResponse is the control-API representation of a registered
// predicate, returned by GET /predicates and GET /predicates/{uuid}.
type PredicateResponse struct {
	UUID        uuid.UUID `json:"uuid"`
	Name        string    `json:"name"`
	Chain       string    `json:"chain"`
	Status      string    `json:"status"`
	Occurrences uint64    `json:"occurrences"`
	StartBlock  *uint64   `json:"start_block,omitempty"`
	EndBlock    *uint64   `json:"end_block,omitempty"`
}

// IngestResponse is returned by POST /ingest/l1 and POST /ingest/l2.
type IngestResponse struct {
	ReceiptID uint64 `json:"receipt_id"`
}

// PredicateStatusResponse is the minimal shape returned by
// GET /predicates/{uuid}/status.
type PredicateStatusResponse struct {
	UUID        uuid.UUID `json:"uuid"`
	Status      string    `json:"status"`
	Occurrences uint64    `json:"occurrences"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
