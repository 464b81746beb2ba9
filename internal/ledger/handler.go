package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mainstay-ops/mainstay/internal/platform/httpx"
	"github.com/mainstay-ops/mainstay/internal/shared"
)

// Handler wires HTTP endpoints for the stockroom ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the ledger HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stockroom routes. Mutating routes require the actor
// identity supplied by the upstream auth layer.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.handleListItems)
	r.Get("/usage", h.handleUsage)
	r.Get("/export", h.handleExport)
	r.Post("/items/{code}/adjust", h.handleAdjust)
	r.Post("/slips", h.handleConsume)
}

type itemResponse struct {
	ItemCode    string `json:"item_code"`
	Section     string `json:"section"`
	Description string `json:"description"`
	PartType    string `json:"part_type"`
	MinLevel    int    `json:"min_level"`
	ActualQty   int    `json:"actual_qty"`
	LowStock    bool   `json:"low_stock"`
}

type adjustRequest struct {
	QtyChange int    `json:"qty_change" validate:"required"`
	Note      string `json:"note" validate:"max=500"`
	TxType    string `json:"tx_type" validate:"omitempty,oneof=restock adjust"`
}

type consumeLineRequest struct {
	ItemCode string `json:"item_code" validate:"required"`
	QtyUsed  int    `json:"qty_used" validate:"required,gt=0"`
}

type consumeRequest struct {
	TaskID string               `json:"task_id" validate:"required,uuid"`
	Lines  []consumeLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type slipResponse struct {
	SlipNo    string             `json:"slip_no"`
	TaskID    string             `json:"task_id"`
	CreatedBy string             `json:"created_by"`
	Lines     []slipLineResponse `json:"lines"`
}

type slipLineResponse struct {
	ItemCode    string `json:"item_code"`
	Description string `json:"description"`
	QtyUsed     int    `json:"qty_used"`
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search:       q.Get("search"),
		LowStockOnly: q.Get("low_stock") == "true" || q.Get("low_stock") == "1",
	}
	items, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.logger.Error("list items", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrActorMissing.Error())
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	item, err := h.service.Adjust(r.Context(), AdjustInput{
		Code:      chi.URLParam(r, "code"),
		QtyChange: req.QtyChange,
		Note:      req.Note,
		Type:      TransactionType(req.TxType),
		ActorID:   actor,
	})
	if err != nil {
		h.logger.Error("adjust failed",
			slog.String("item_code", chi.URLParam(r, "code")),
			slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"item_code":  item.Code,
		"actual_qty": item.ActualQty,
	})
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrActorMissing.Error())
		return
	}
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	input := ConsumeInput{TaskID: req.TaskID, ActorID: actor}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, ConsumeLine{Code: line.ItemCode, Qty: line.QtyUsed})
	}
	slip, updated, err := h.service.Consume(r.Context(), input)
	if err != nil {
		h.logger.Error("consume failed",
			slog.String("task_id", req.TaskID),
			slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	out := slipResponse{SlipNo: slip.SlipNo, TaskID: slip.TaskID, CreatedBy: slip.CreatedBy}
	for _, line := range slip.Lines {
		out.Lines = append(out.Lines, slipLineResponse{ItemCode: line.ItemCode, Description: line.Description, QtyUsed: line.QtyUsed})
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"slip":          out,
		"updated_items": updated,
	})
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	filter, err := parseUsageFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period", err.Error())
		return
	}
	rows, err := h.service.Usage(r.Context(), filter)
	if err != nil {
		h.logger.Error("usage report", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.ExportSnapshot(r.Context())
	if err != nil {
		h.logger.Error("export snapshot", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	filename := fmt.Sprintf("stockroom-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// respondError maps ledger errors to RFC7807 problem responses so callers
// can distinguish insufficient stock from an unknown item.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Item Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrEmptyConsume), errors.Is(err, ErrInvalidTaskID):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseUsageFilter(r *http.Request) (UsageFilter, error) {
	var filter UsageFilter
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return UsageFilter{}, fmt.Errorf("invalid from date %q", from)
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return UsageFilter{}, fmt.Errorf("invalid to date %q", to)
		}
		// end of day
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	return filter, nil
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("field %s failed on %s", verrs[0].Field(), verrs[0].Tag())
	}
	return err.Error()
}

func toItemResponse(item Item) itemResponse {
	return itemResponse{
		ItemCode:    item.Code,
		Section:     item.Section,
		Description: item.Description,
		PartType:    item.PartType,
		MinLevel:    item.MinLevel,
		ActualQty:   item.ActualQty,
		LowStock:    item.ActualQty <= item.MinLevel,
	}
}
