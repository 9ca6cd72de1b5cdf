// Package handlers provides the HTTP handlers of the interaction engine.
// This file implements the HTTPHandler interface with dependency injection.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/giygas/ddi-engine/engine"
	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
	"github.com/go-chi/chi/v5"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	checker        interfaces.Checker
	classifier     interfaces.Classifier
	resolver       interfaces.DrugResolver
	health         interfaces.HealthChecker
	validator      interfaces.DataValidator
	maxMedications int
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(
	checker interfaces.Checker,
	classifier interfaces.Classifier,
	resolver interfaces.DrugResolver,
	health interfaces.HealthChecker,
	validator interfaces.DataValidator,
	maxMedications int,
) *HTTPHandlerImpl {
	if maxMedications <= 0 {
		maxMedications = engine.DefaultMaxMedications
	}
	return &HTTPHandlerImpl{
		checker:        checker,
		classifier:     classifier,
		resolver:       resolver,
		health:         health,
		validator:      validator,
		maxMedications: maxMedications,
	}
}

type predictRequest struct {
	Drug1Structure string `json:"drug1_structure"`
	Drug2Structure string `json:"drug2_structure"`
	TopK           int    `json:"top_k"`
}

type predictBatchRequest struct {
	Pairs []predictRequest `json:"pairs"`
	TopK  int              `json:"top_k"`
}

// pairResult is one entry of a batch prediction, either a prediction or an error
type namedPair struct {
	Drug1 string `json:"drug1"`
	Drug2 string `json:"drug2"`
	TopK  int    `json:"top_k"`
}

type predictByNameRequest struct {
	Pairs []namedPair `json:"pairs"`
	TopK  int         `json:"top_k"`
}

type pairResult struct {
	Index      int                  `json:"index"`
	Drugs      []entities.DrugRef   `json:"drugs,omitempty"`
	Prediction *entities.Prediction `json:"prediction,omitempty"`
	Error      string               `json:"error,omitempty"`
	Code       string               `json:"code,omitempty"`
}

type checkBatchRequest struct {
	Checks []entities.CheckRequest `json:"checks"`
}

type checkResult struct {
	Index int `json:"index"`
	entities.CheckOutcome
}

type searchResponse struct {
	Query   string                  `json:"query"`
	Count   int                     `json:"count"`
	Results []entities.SearchResult `json:"results"`
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	h.RespondWithJSON(w, code, map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	})
}

// respondWithFailure maps an engine error to its status and adds the
// machine-readable error code to the body
func (h *HTTPHandlerImpl) respondWithFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error("Request failed", "error", err)
	}
	h.RespondWithJSON(w, status, map[string]any{
		"error":      http.StatusText(status),
		"message":    err.Error(),
		"code":       status,
		"error_code": entities.ErrorCode(err),
	})
}

func statusFor(err error) int {
	if errors.Is(err, engine.ErrSameDrug) {
		return http.StatusBadRequest
	}
	switch entities.ErrorCode(err) {
	case entities.CodeUnknownDrug, entities.CodeInvalidStructure:
		return http.StatusNotFound
	case entities.CodeBatchSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case entities.CodeModelUnavailable, entities.CodeCacheBackend, entities.CodeCanceled:
		return http.StatusServiceUnavailable
	case entities.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads exactly one JSON document into v
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func (h *HTTPHandlerImpl) classifierReady(w http.ResponseWriter) bool {
	if h.classifier == nil || !h.classifier.Ready() {
		h.RespondWithError(w, http.StatusServiceUnavailable, "Interaction model is not available")
		return false
	}
	return true
}

func (h *HTTPHandlerImpl) topK(w http.ResponseWriter, requested int) (int, bool) {
	topK, err := h.validator.ValidateTopK(requested, len(h.classifier.Labels()))
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return topK, true
}

func structurePair(a, b string, topK int) entities.PairInput {
	return entities.PairInput{
		A:    entities.Operand{Key: a, Structure: a},
		B:    entities.Operand{Key: b, Structure: b},
		TopK: topK,
	}
}

// Predict returns the ranked side-effect labels for two structures
func (h *HTTPHandlerImpl) Predict(w http.ResponseWriter, r *http.Request) {
	if !h.classifierReady(w) {
		return
	}

	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	topK, ok := h.topK(w, req.TopK)
	if !ok {
		return
	}

	for _, s := range []string{req.Drug1Structure, req.Drug2Structure} {
		if err := h.validator.ValidateStructure(s); err != nil {
			logging.Warn("Unusual structure input", "error", err)
			h.respondWithFailure(w, err)
			return
		}
	}

	prediction, err := h.classifier.Predict(r.Context(), structurePair(req.Drug1Structure, req.Drug2Structure, topK))
	if err != nil {
		h.respondWithFailure(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, prediction)
}

// PredictBatch returns one result or error per pair, in input order
func (h *HTTPHandlerImpl) PredictBatch(w http.ResponseWriter, r *http.Request) {
	if !h.classifierReady(w) {
		return
	}

	var req predictBatchRequest
	if err := decodeBody(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Pairs) == 0 {
		h.RespondWithError(w, http.StatusBadRequest, "pairs cannot be empty")
		return
	}
	if limit := h.classifier.MaxBatchPairs(); len(req.Pairs) > limit {
		h.respondWithFailure(w, &entities.BatchSizeExceededError{Requested: len(req.Pairs), Max: limit})
		return
	}
	topK, ok := h.topK(w, req.TopK)
	if !ok {
		return
	}

	results := make([]pairResult, len(req.Pairs))
	inputs := make([]entities.PairInput, 0, len(req.Pairs))
	positions := make([]int, 0, len(req.Pairs))
	for i, p := range req.Pairs {
		results[i].Index = i
		err := h.validator.ValidateStructure(p.Drug1Structure)
		if err == nil {
			err = h.validator.ValidateStructure(p.Drug2Structure)
		}
		if err != nil {
			results[i].Error, results[i].Code = err.Error(), entities.ErrorCode(err)
			continue
		}
		pairTopK := topK
		if p.TopK > 0 {
			pairTopK = min(p.TopK, len(h.classifier.Labels()))
		}
		inputs = append(inputs, structurePair(p.Drug1Structure, p.Drug2Structure, pairTopK))
		positions = append(positions, i)
	}

	h.runBatch(w, r, inputs, positions, results)
}

// PredictBatchByName resolves each pair of drug names through the catalog
// and predicts every resolved pair in one batch. A name that does not
// resolve fails only its own pair.
func (h *HTTPHandlerImpl) PredictBatchByName(w http.ResponseWriter, r *http.Request) {
	if !h.classifierReady(w) {
		return
	}

	var req predictByNameRequest
	if err := decodeBody(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Pairs) == 0 {
		h.RespondWithError(w, http.StatusBadRequest, "pairs cannot be empty")
		return
	}
	if limit := h.classifier.MaxBatchPairs(); len(req.Pairs) > limit {
		h.respondWithFailure(w, &entities.BatchSizeExceededError{Requested: len(req.Pairs), Max: limit})
		return
	}
	topK, ok := h.topK(w, req.TopK)
	if !ok {
		return
	}

	results := make([]pairResult, len(req.Pairs))
	inputs := make([]entities.PairInput, 0, len(req.Pairs))
	positions := make([]int, 0, len(req.Pairs))
	for i, p := range req.Pairs {
		results[i].Index = i
		a, b, err := h.resolvePair(p.Drug1, p.Drug2)
		if err != nil {
			results[i].Error, results[i].Code = err.Error(), pairErrorCode(err)
			continue
		}
		results[i].Drugs = []entities.DrugRef{a.Ref(), b.Ref()}
		pairTopK := topK
		if p.TopK > 0 {
			pairTopK = min(p.TopK, len(h.classifier.Labels()))
		}
		inputs = append(inputs, entities.PairInput{
			A:    entities.Operand{Key: a.ID, Structure: a.Structure, Fingerprint: a.Fingerprint},
			B:    entities.Operand{Key: b.ID, Structure: b.Structure, Fingerprint: b.Fingerprint},
			TopK: pairTopK,
		})
		positions = append(positions, i)
	}

	h.runBatch(w, r, inputs, positions, results)
}

func (h *HTTPHandlerImpl) resolvePair(name1, name2 string) (entities.Drug, entities.Drug, error) {
	var drugs [2]entities.Drug
	for i, name := range []string{name1, name2} {
		if err := h.validator.ValidateInput(name); err != nil {
			return entities.Drug{}, entities.Drug{}, fmt.Errorf("invalid name %q: %w", name, err)
		}
		d, err := h.resolver.Resolve(name)
		if err != nil {
			return entities.Drug{}, entities.Drug{}, err
		}
		drugs[i] = d
	}
	if drugs[0].ID == drugs[1].ID {
		return entities.Drug{}, entities.Drug{}, engine.ErrSameDrug
	}
	return drugs[0], drugs[1], nil
}

// pairErrorCode reports input problems as invalid_input instead of internal
func pairErrorCode(err error) string {
	code := entities.ErrorCode(err)
	if code == entities.CodeInternal {
		return "invalid_input"
	}
	return code
}

// runBatch predicts inputs in one classifier call and writes each outcome
// to results at the matching position
func (h *HTTPHandlerImpl) runBatch(w http.ResponseWriter, r *http.Request, inputs []entities.PairInput, positions []int, results []pairResult) {
	if len(inputs) > 0 {
		outcomes, err := h.classifier.PredictBatch(r.Context(), inputs)
		if err != nil {
			h.respondWithFailure(w, err)
			return
		}
		for j, outcome := range outcomes {
			i := positions[j]
			if outcome.Err != nil {
				results[i].Error, results[i].Code = outcome.Err.Error(), entities.ErrorCode(outcome.Err)
				continue
			}
			prediction := outcome.Prediction
			results[i].Prediction = &prediction
		}
	}

	h.RespondWithJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

// Check resolves a medication list and every pair of resolved drugs
func (h *HTTPHandlerImpl) Check(w http.ResponseWriter, r *http.Request) {
	var req entities.CheckRequest
	if err := decodeBody(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validateCheck(req); err != nil {
		if entities.ErrorCode(err) == entities.CodeBatchSizeExceeded {
			h.respondWithFailure(w, err)
			return
		}
		logging.Warn("Unusual user input", "error", err)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.checker.Check(r.Context(), req)
	if err != nil {
		h.respondWithFailure(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, report)
}

func (h *HTTPHandlerImpl) validateCheck(req entities.CheckRequest) error {
	if err := h.validator.ValidateMedications(req.Medications, h.maxMedications); err != nil {
		return err
	}
	if req.IncludeHistory && strings.TrimSpace(req.PatientID) == "" {
		return fmt.Errorf("patient_id is required when include_history is set")
	}
	return nil
}

// CheckBatch runs several independent checks. A list that fails validation
// becomes an error entry and never fails its siblings.
func (h *HTTPHandlerImpl) CheckBatch(w http.ResponseWriter, r *http.Request) {
	var req checkBatchRequest
	if err := decodeBody(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Checks) == 0 {
		h.RespondWithError(w, http.StatusBadRequest, "checks cannot be empty")
		return
	}
	if limit := h.checker.MaxBatchChecks(); len(req.Checks) > limit {
		h.respondWithFailure(w, &entities.BatchSizeExceededError{Requested: len(req.Checks), Max: limit})
		return
	}

	results := make([]checkResult, len(req.Checks))
	valid := make([]entities.CheckRequest, 0, len(req.Checks))
	positions := make([]int, 0, len(req.Checks))
	for i, c := range req.Checks {
		results[i].Index = i
		if err := h.validateCheck(c); err != nil {
			code := entities.ErrorCode(err)
			if code == entities.CodeInternal {
				code = "invalid_input"
			}
			results[i].Code, results[i].Message = code, err.Error()
			continue
		}
		valid = append(valid, c)
		positions = append(positions, i)
	}

	if len(valid) > 0 {
		outcomes, err := h.checker.CheckBatch(r.Context(), valid)
		if err != nil {
			h.respondWithFailure(w, err)
			return
		}
		for j, outcome := range outcomes {
			results[positions[j]].CheckOutcome = outcome
		}
	}

	h.RespondWithJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

// GetInteraction returns the interaction record of two named drugs
func (h *HTTPHandlerImpl) GetInteraction(w http.ResponseWriter, r *http.Request) {
	names := []string{chi.URLParam(r, "drug1"), chi.URLParam(r, "drug2")}
	for _, name := range names {
		if err := h.validator.ValidateInput(name); err != nil {
			logging.Warn("Unusual user input", "name", name, "error", err)
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	record, err := h.checker.Interaction(r.Context(), names[0], names[1])
	if err != nil {
		h.respondWithFailure(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, record)
}

// SearchDrugs returns ranked catalog matches for ?q=
func (h *HTTPHandlerImpl) SearchDrugs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.RespondWithError(w, http.StatusBadRequest, "Missing search term")
		return
	}
	if err := h.validator.ValidateInput(query); err != nil {
		logging.Warn("Unusual user input", "q", query, "error", err)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.RespondWithError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = min(n, maxSearchLimit)
	}

	results := h.resolver.Search(query, limit)
	if results == nil {
		results = []entities.SearchResult{}
	}
	h.RespondWithJSON(w, http.StatusOK, searchResponse{Query: query, Count: len(results), Results: results})
}

// HealthCheck reports the health of the classifier, data and cache tiers
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, details, httpStatus := h.health.HealthCheck(ctx)

	response := make(map[string]any, len(details)+1)
	maps.Copy(response, details)
	response["status"] = status
	h.RespondWithJSON(w, httpStatus, response)
}
