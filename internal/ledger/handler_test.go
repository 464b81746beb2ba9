package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mainstay-ops/mainstay/internal/shared"
)

func newTestRouter(repo RepositoryPort) http.Handler {
	svc := newTestService(repo, nil, nil, nil)
	h := NewHandler(slog.New(slog.DiscardHandler), svc)
	r := chi.NewRouter()
	r.Route("/api/stockroom", h.MountRoutes)
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, target, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if actor != "" {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleListItems(t *testing.T) {
	repo := newMemoryRepo(
		Item{Code: "EW-001", Section: "Earthwire", Description: "Earthwire clamp", MinLevel: 5, ActualQty: 3},
		Item{Code: "HT-010", Section: "Hand Tools", Description: "Torque wrench", MinLevel: 1, ActualQty: 4},
	)
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet, "/api/stockroom/items", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var items []itemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	require.Equal(t, "EW-001", items[0].ItemCode)
	require.True(t, items[0].LowStock)
	require.False(t, items[1].LowStock)

	rec = doRequest(t, router, http.MethodGet, "/api/stockroom/items?low_stock=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
}

func TestHandleAdjust(t *testing.T) {
	repo := newMemoryRepo(Item{Code: "EW-001", ActualQty: 10})
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodPost, "/api/stockroom/items/EW-001/adjust", "storeman",
		`{"qty_change": 5, "tx_type": "restock"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, float64(15), out["actual_qty"])
	require.Equal(t, 15, repo.item(t, "EW-001").ActualQty)
}

func TestHandleAdjustRequiresActor(t *testing.T) {
	router := newTestRouter(newMemoryRepo())
	rec := doRequest(t, router, http.MethodPost, "/api/stockroom/items/EW-001/adjust", "",
		`{"qty_change": 5}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleAdjustErrorMapping(t *testing.T) {
	repo := newMemoryRepo(Item{Code: "EW-001", ActualQty: 2})
	router := newTestRouter(repo)

	cases := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"unknown item", "/api/stockroom/items/NOPE/adjust", `{"qty_change": 1}`, http.StatusNotFound},
		{"insufficient stock", "/api/stockroom/items/EW-001/adjust", `{"qty_change": -5}`, http.StatusConflict},
		{"zero change", "/api/stockroom/items/EW-001/adjust", `{"qty_change": 0}`, http.StatusBadRequest},
		{"bad tx type", "/api/stockroom/items/EW-001/adjust", `{"qty_change": 1, "tx_type": "use"}`, http.StatusBadRequest},
		{"malformed body", "/api/stockroom/items/EW-001/adjust", `{"qty_change": `, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, tc.target, "storeman", tc.body)
			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
		})
	}
	require.Equal(t, 2, repo.item(t, "EW-001").ActualQty)
}

func TestHandleConsume(t *testing.T) {
	repo := newMemoryRepo(
		Item{Code: "EW-001", Description: "Earthwire clamp", ActualQty: 12},
		Item{Code: "HT-010", Description: "Torque wrench", ActualQty: 3},
	)
	router := newTestRouter(repo)

	body := fmt.Sprintf(`{"task_id": %q, "lines": [{"item_code": "EW-001", "qty_used": 4}, {"item_code": "HT-010", "qty_used": 1}]}`, testTaskID)
	rec := doRequest(t, router, http.MethodPost, "/api/stockroom/slips", "tech-7", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var out struct {
		Slip         slipResponse   `json:"slip"`
		UpdatedItems map[string]int `json:"updated_items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "SLP-000001", out.Slip.SlipNo)
	require.Equal(t, "tech-7", out.Slip.CreatedBy)
	require.Len(t, out.Slip.Lines, 2)
	require.Equal(t, map[string]int{"EW-001": 8, "HT-010": 2}, out.UpdatedItems)
}

func TestHandleConsumeValidation(t *testing.T) {
	repo := newMemoryRepo(Item{Code: "EW-001", ActualQty: 12})
	router := newTestRouter(repo)

	cases := []struct {
		name string
		body string
	}{
		{"missing task id", `{"lines": [{"item_code": "EW-001", "qty_used": 1}]}`},
		{"task id not a uuid", `{"task_id": "WO-123", "lines": [{"item_code": "EW-001", "qty_used": 1}]}`},
		{"no lines", fmt.Sprintf(`{"task_id": %q, "lines": []}`, testTaskID)},
		{"non-positive quantity", fmt.Sprintf(`{"task_id": %q, "lines": [{"item_code": "EW-001", "qty_used": -1}]}`, testTaskID)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/api/stockroom/slips", "tech-7", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	require.Equal(t, 12, repo.item(t, "EW-001").ActualQty)
}

func TestHandleUsagePeriodParsing(t *testing.T) {
	router := newTestRouter(newMemoryRepo())

	rec := doRequest(t, router, http.MethodGet, "/api/stockroom/usage?from=2024-03-01&to=2024-03-31", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/stockroom/usage?from=march", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExportSetsSpreadsheetHeaders(t *testing.T) {
	repo := newMemoryRepo(Item{Code: "EW-001", ActualQty: 12})
	svc := NewService(slog.New(slog.DiscardHandler), repo, nil, nil, &capturingExporter{}, nil)
	h := NewHandler(slog.New(slog.DiscardHandler), svc)
	r := chi.NewRouter()
	r.Route("/api/stockroom", h.MountRoutes)

	rec := doRequest(t, r, http.MethodGet, "/api/stockroom/export", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename=stockroom-")
	require.Equal(t, "xlsx", rec.Body.String())
}
