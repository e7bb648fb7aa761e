package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"fx-rate-cache/internal/domain/model"
	"fx-rate-cache/internal/domain/ports"
	"fx-rate-cache/pkg/logger"
)

const maxBodyBytes = 4 << 20

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type Handler struct {
	service ports.RateService
	log     *logger.Logger
}

func NewHandler(service ports.RateService, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log,
	}
}

func (h *Handler) GetRateHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fromStr, toStr, dateStr := q.Get("from_id"), q.Get("to_id"), q.Get("date")

	if fromStr == "" || toStr == "" || dateStr == "" {
		h.sendErrorResponse(w, http.StatusBadRequest, "missing required parameters: from_id, to_id and date")
		return
	}

	from, err := strconv.ParseInt(fromStr, 10, 64)
	if err != nil {
		h.sendErrorResponse(w, http.StatusBadRequest, "invalid from_id parameter")
		return
	}
	to, err := strconv.ParseInt(toStr, 10, 64)
	if err != nil {
		h.sendErrorResponse(w, http.StatusBadRequest, "invalid to_id parameter")
		return
	}
	date, err := model.ParseDate(dateStr)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	result, err := h.service.GetRate(r.Context(), model.CurrencyID(from), model.CurrencyID(to), date)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, result)
}

func (h *Handler) GetRateByXuidHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, dateStr := q.Get("from"), q.Get("to"), q.Get("date")

	if from == "" || to == "" || dateStr == "" {
		h.sendErrorResponse(w, http.StatusBadRequest, "missing required parameters: from, to and date")
		return
	}

	date, err := model.ParseDate(dateStr)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	result, err := h.service.GetRateByXuid(r.Context(), from, to, date)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, result)
}

func (h *Handler) GetValueAsOfHandler(w http.ResponseWriter, r *http.Request) {
	var request ports.AsOfRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&request); err != nil {
		if errors.Is(err, model.ErrInvalidDate) {
			h.handleServiceError(w, err)
			return
		}
		h.sendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	value, err := h.service.GetValueAsOf(r.Context(), request)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, map[string]float64{"value": value})
}

func (h *Handler) InvalidateCacheHandler(w http.ResponseWriter, r *http.Request) {
	reload := false
	if s := r.URL.Query().Get("reload"); s != "" {
		var err error
		reload, err = strconv.ParseBool(s)
		if err != nil {
			h.sendErrorResponse(w, http.StatusBadRequest, "invalid reload parameter")
			return
		}
	}

	if err := h.service.InvalidateCache(r.Context(), reload); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, map[string]string{"message": "Cache invalidated."})
}

func (h *Handler) DisplayCacheHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.DisplayCache(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, rows)
}

func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	h.sendSuccessResponse(w, h.service.Stats(r.Context()))
}

func (h *Handler) CheckCompatibilityHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CheckCompatibility(r.Context()); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, map[string]string{"message": "Database is compatible."})
}

func (h *Handler) sendSuccessResponse(w http.ResponseWriter, data interface{}) {
	response := Response{
		Success: true,
		Data:    data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) sendErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := Response{
		Success: false,
		Error:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode error response", "error", err)
	}
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorMessage := "internal server error"

	switch {
	case errors.Is(err, model.ErrInvalidDate):
		statusCode = http.StatusBadRequest
		errorMessage = model.ErrInvalidDate.Error()
	case errors.Is(err, model.ErrLengthMismatch):
		statusCode = http.StatusBadRequest
		errorMessage = model.ErrLengthMismatch.Error()
	case errors.Is(err, model.ErrUnknownCurrency):
		statusCode = http.StatusNotFound
		errorMessage = err.Error()
	case errors.Is(err, model.ErrSchemaIncompatible):
		statusCode = http.StatusServiceUnavailable
		errorMessage = model.ErrSchemaIncompatible.Error()
	case errors.Is(err, model.ErrSourceRead):
		statusCode = http.StatusServiceUnavailable
		errorMessage = model.ErrSourceRead.Error()
	case errors.Is(err, model.ErrCapacityExceeded):
		statusCode = http.StatusInsufficientStorage
		errorMessage = "rate cache capacity exceeded"
	case errors.Is(err, model.ErrWaitTimeout), errors.Is(err, context.DeadlineExceeded):
		statusCode = http.StatusGatewayTimeout
		errorMessage = "timed out waiting for the rate cache"
	}

	h.log.Error("Service error", "error", err, "status_code", statusCode)
	h.sendErrorResponse(w, statusCode, errorMessage)
}
