package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goran-ethernal/chainobserver/internal/logger"
	"github.com/goran-ethernal/chainobserver/pkg/chain"
	"github.com/goran-ethernal/chainobserver/pkg/predicate"
	"github.com/google/uuid"
)

// PredicateController is the subset of the Observer's control surface the
// API needs: registration and unregistration, both of which must flow
// through the Observer's single command loop (spec.md §4.5) rather than
// mutating the registry directly.
type PredicateController interface {
	Register(ctx context.Context, pred *predicate.Predicate) error
	Unregister(ctx context.Context, id uuid.UUID) error
}

// BlockIngester is the Observer's ingestion surface: the two abstract
// endpoints of spec.md §6, one per chain, each accepting an already-decoded
// Block and returning a receipt id correlating to whatever ChainEvent it
// eventually produces.
type BlockIngester interface {
	IngestL1Block(ctx context.Context, block chain.Block) (uint64, error)
	IngestL2Block(ctx context.Context, block chain.Block) (uint64, error)
}

// Handler handles HTTP requests for the control and ingestion APIs.
type Handler struct {
	controller PredicateController
	ingester   BlockIngester
	registry   *predicate.Registry
	log        *logger.Logger
}

// NewHandler creates a new API handler. controller and ingester are
// typically both satisfied by the same *observer.Observer value.
func NewHandler(controller PredicateController, ingester BlockIngester, registry *predicate.Registry, log *logger.Logger) *Handler {
	return &Handler{
		controller: controller,
		ingester:   ingester,
		registry:   registry,
		log:        log,
	}
}

// RegisterPredicate registers a new chainhook from a predicate spec file.
// @Summary Register a predicate
// @Description Parse a predicate spec (YAML or JSON, selected by Content-Type) for the given network and register it
// @Tags Predicates
// @Accept json,yaml
// @Produce json
// @Param network query string false "Network name within the spec file" default(mainnet)
// @Success 201 {object} RegisterPredicateResponse "Registered predicate uuid"
// @Failure 400 {object} ErrorResponse "Invalid spec or predicate"
// @Router /predicates [post]
func (h *Handler) RegisterPredicate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	network := r.URL.Query().Get("network")
	if network == "" {
		network = "mainnet"
	}

	var pred *predicate.Predicate
	if strings.Contains(r.Header.Get("Content-Type"), "json") {
		pred, err = predicate.ParseSpecJSON(body, network)
	} else {
		pred, err = predicate.ParseSpecYAML(body, network)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid predicate spec: %v", err))
		return
	}

	if err := h.controller.Register(r.Context(), pred); err != nil {
		h.log.Warnw("predicate registration rejected", "name", pred.Name, "err", err)
		respondError(w, http.StatusBadRequest, fmt.Sprintf("predicate rejected: %v", err))
		return
	}

	respondJSON(w, http.StatusCreated, RegisterPredicateResponse{UUID: pred.UUID})
}

// UnregisterPredicate removes a predicate by uuid.
// @Summary Unregister a predicate
// @Tags Predicates
// @Param uuid path string true "Predicate uuid"
// @Success 204 "Unregistered"
// @Failure 400 {object} ErrorResponse "Invalid uuid"
// @Router /predicates/{uuid} [delete]
func (h *Handler) UnregisterPredicate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid uuid")
		return
	}

	if err := h.controller.Unregister(r.Context(), id); err != nil {
		h.log.Errorw("failed to unregister predicate", "uuid", id, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to unregister predicate")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListPredicates lists every registered predicate.
// @Summary List predicates
// @Tags Predicates
// @Produce json
// @Success 200 {array} PredicateResponse "Registered predicates"
// @Router /predicates [get]
func (h *Handler) ListPredicates(w http.ResponseWriter, r *http.Request) {
	preds := h.registry.List()

	out := make([]PredicateResponse, 0, len(preds))
	for _, pred := range preds {
		out = append(out, toPredicateResponse(pred))
	}

	respondJSON(w, http.StatusOK, out)
}

// GetPredicate returns a single predicate's details.
// @Summary Get a predicate
// @Tags Predicates
// @Produce json
// @Param uuid path string true "Predicate uuid"
// @Success 200 {object} PredicateResponse "Predicate details"
// @Failure 404 {object} ErrorResponse "Predicate not found"
// @Router /predicates/{uuid} [get]
func (h *Handler) GetPredicate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid uuid")
		return
	}

	pred, ok := h.registry.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("predicate '%s' not found", id))
		return
	}

	respondJSON(w, http.StatusOK, toPredicateResponse(pred))
}

// GetPredicateStatus returns a predicate's lifecycle status and trigger count.
// @Summary Get a predicate's status
// @Tags Predicates
// @Produce json
// @Param uuid path string true "Predicate uuid"
// @Success 200 {object} PredicateStatusResponse "Predicate status"
// @Failure 404 {object} ErrorResponse "Predicate not found"
// @Router /predicates/{uuid}/status [get]
func (h *Handler) GetPredicateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid uuid")
		return
	}

	pred, ok := h.registry.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("predicate '%s' not found", id))
		return
	}

	respondJSON(w, http.StatusOK, PredicateStatusResponse{
		UUID:        pred.UUID,
		Status:      string(pred.Status),
		Occurrences: pred.Occurrences,
	})
}

// IngestL1Block enqueues a decoded bitcoin block for processing.
// @Summary Ingest a bitcoin block
// @Tags Ingestion
// @Accept json
// @Produce json
// @Success 202 {object} IngestResponse "Accepted with a receipt id"
// @Failure 400 {object} ErrorResponse "Malformed block body"
// @Router /ingest/l1 [post]
func (h *Handler) IngestL1Block(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, h.ingester.IngestL1Block, decodeBitcoinBlock)
}

// IngestL2Block enqueues a decoded stacks block for processing.
// @Summary Ingest a stacks block
// @Tags Ingestion
// @Accept json
// @Produce json
// @Success 202 {object} IngestResponse "Accepted with a receipt id"
// @Failure 400 {object} ErrorResponse "Malformed block body"
// @Router /ingest/l2 [post]
func (h *Handler) IngestL2Block(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, h.ingester.IngestL2Block, decodeStacksBlock)
}

// decodeBitcoinBlock and decodeStacksBlock unmarshal into a value, not a
// pointer, before returning it as a chain.Block: chain.Block's methods have
// value receivers, so a *chain.BitcoinBlock satisfies the interface just as
// well as a chain.BitcoinBlock does, but with a pointer dynamic type. The
// PredicateEngine's matchBlock asserts against the value types
// (chain.BitcoinBlock, chain.StacksBlock), so ingestion must hand it a
// value, not a pointer, or every match silently misses.
func decodeBitcoinBlock(body []byte) (chain.Block, error) {
	var block chain.BitcoinBlock
	if err := json.Unmarshal(body, &block); err != nil {
		return nil, err
	}
	return block, nil
}

func decodeStacksBlock(body []byte) (chain.Block, error) {
	var block chain.StacksBlock
	if err := json.Unmarshal(body, &block); err != nil {
		return nil, err
	}
	return block, nil
}

// ingest reads the request body, decodes it into a chain.Block via decode,
// and hands the result to submit.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, submit func(context.Context, chain.Block) (uint64, error), decode func([]byte) (chain.Block, error)) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	block, err := decode(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid block body: %v", err))
		return
	}

	receipt, err := submit(r.Context(), block)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("ingestion rejected: %v", err))
		return
	}

	respondJSON(w, http.StatusAccepted, IngestResponse{ReceiptID: receipt})
}

// Health returns the API's health status.
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "API health status"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now()})
}

func toPredicateResponse(pred *predicate.Predicate) PredicateResponse {
	return PredicateResponse{
		UUID:        pred.UUID,
		Name:        pred.Name,
		Chain:       string(pred.Chain),
		Status:      string(pred.Status),
		Occurrences: pred.Occurrences,
		StartBlock:  pred.StartBlock,
		EndBlock:    pred.EndBlock,
	}
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(encoded); err != nil {
		return
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	respondJSON(w, status, response)
}
