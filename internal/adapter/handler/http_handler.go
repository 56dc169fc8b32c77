package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
)

type HTTPHandler struct {
	inventory  *service.InventoryService
	facilities *service.FacilityService
	catalog    *service.CatalogService
	logger     *zap.Logger
}

type FacilityJSON struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	MaxCapacity int    `json:"max_capacity"`
}

type ProductJSON struct {
	ID          int64  `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type StockLineJSON struct {
	ID              int64   `json:"id"`
	WarehouseID     int64   `json:"warehouse_id"`
	ProductID       int64   `json:"product_id,omitempty"`
	SKU             string  `json:"sku"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	StorageLocation *string `json:"storage_location"`
}

type AddStockHTTPRequest struct {
	SKU             string  `json:"sku"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Category        string  `json:"category"`
	Quantity        int     `json:"quantity"`
	StorageLocation *string `json:"storage_location"`
	Inline          bool    `json:"inline"`
}

type UpdateLineHTTPRequest struct {
	Quantity        *int    `json:"quantity"`
	StorageLocation *string `json:"storage_location"`
}

type ReplaceLineHTTPRequest struct {
	WarehouseID     int64   `json:"warehouse_id"`
	Name            string  `json:"name"`
	SKU             string  `json:"sku"`
	Quantity        *int    `json:"quantity"`
	StorageLocation *string `json:"storage_location"`
}

type PatchLineHTTPRequest struct {
	Name            *string `json:"name"`
	SKU             *string `json:"sku"`
	Quantity        *int    `json:"quantity"`
	StorageLocation *string `json:"storage_location"`
}

type TransferHTTPResponse struct {
	Source      StockLineJSON `json:"source"`
	Destination StockLineJSON `json:"destination"`
}

type CapacityReportJSON struct {
	WarehouseID int64  `json:"warehouse_id"`
	MaxCapacity int    `json:"max_capacity"`
	Load        int    `json:"load"`
	Remaining   int    `json:"remaining"`
	Utilization string `json:"utilization"`
}

func NewHTTPHandler(inventory *service.InventoryService, facilities *service.FacilityService,
	catalog *service.CatalogService, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{inventory: inventory, facilities: facilities, catalog: catalog, logger: logger}
}

// Routes registers every endpoint. metrics may be nil.
func (h *HTTPHandler) Routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(h.withRequestID)
	r.Use(h.withAccessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/warehouses", func(r chi.Router) {
		r.Get("/", h.ListWarehouses)
		r.Post("/", h.CreateWarehouse)
		r.Get("/{id}", h.GetWarehouse)
		r.Put("/{id}", h.UpdateWarehouse)
		r.Delete("/{id}", h.DeleteWarehouse)
		r.Get("/{id}/capacity", h.RemainingCapacity)
		r.Get("/{id}/current-load", h.CurrentLoad)
		r.Get("/{id}/report", h.CapacityReport)
	})

	r.Route("/inventory", func(r chi.Router) {
		r.Get("/{id}", h.GetLine)
		r.Put("/{id}", h.UpdateLine)
		r.Patch("/{id}", h.PatchLine)
		r.Delete("/{id}", h.DeleteLine)
		r.Post("/{id}/transfer", h.Transfer)
		r.Get("/warehouse/{id}", h.LinesByWarehouse)
		r.Post("/warehouse/{id}", h.AddStock)
		r.Get("/warehouse/{id}/search/name", h.SearchByName)
		r.Get("/warehouse/{id}/search/sku", h.SearchBySKU)
	})

	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.ListLines)
		r.Get("/total", h.TotalBySKU)
		r.Get("/sku/{sku}/total", h.TotalBySKU)
		r.Get("/search/name", h.SearchAllByName)
		r.Get("/search/sku", h.SearchAllBySKU)
		r.Get("/warehouse/{id}", h.LinesByWarehouse)
		r.Post("/warehouse/{id}", h.AddItem)
		r.Get("/{id}", h.GetLine)
		r.Put("/{id}", h.ReplaceLine)
		r.Patch("/{id}", h.PatchLine)
		r.Delete("/{id}", h.DeleteLine)
		r.Post("/{id}/transfer", h.Transfer)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{id}", h.GetProduct)
		r.Get("/sku/{sku}", h.GetProductBySKU)
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	facilities, err := h.facilities.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]FacilityJSON, 0, len(facilities))
	for _, f := range facilities {
		out = append(out, toFacilityJSON(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	f, err := h.facilities.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFacilityJSON(f))
}

func (h *HTTPHandler) CreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var req FacilityJSON
	if !h.decode(w, r, &req) {
		return
	}
	f, err := h.facilities.Create(r.Context(), fromFacilityJSON(req))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFacilityJSON(f))
}

func (h *HTTPHandler) UpdateWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req FacilityJSON
	if !h.decode(w, r, &req) {
		return
	}
	f, err := h.facilities.Update(r.Context(), id, fromFacilityJSON(req))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFacilityJSON(f))
}

func (h *HTTPHandler) DeleteWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.facilities.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) RemainingCapacity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	remaining, err := h.facilities.RemainingCapacity(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"warehouse_id": id, "remaining_capacity": remaining})
}

func (h *HTTPHandler) CurrentLoad(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	load, err := h.facilities.CurrentLoad(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"warehouse_id": id, "current_load": load})
}

func (h *HTTPHandler) CapacityReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	report, err := h.facilities.Report(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CapacityReportJSON{
		WarehouseID: report.FacilityID,
		MaxCapacity: report.MaxCapacity,
		Load:        report.Load,
		Remaining:   report.Remaining,
		Utilization: report.Utilization.StringFixed(2),
	})
}

func (h *HTTPHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	h.addStock(w, r, false)
}

// AddItem creates or merges an inline line; the item carries its own SKU and name.
func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	h.addStock(w, r, true)
}

func (h *HTTPHandler) addStock(w http.ResponseWriter, r *http.Request, inline bool) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req AddStockHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	line, err := h.inventory.AddStock(r.Context(), service.AddStockRequest{
		FacilityID:      id,
		SKU:             req.SKU,
		Name:            req.Name,
		Description:     req.Description,
		Category:        req.Category,
		Quantity:        req.Quantity,
		StorageLocation: req.StorageLocation,
		Inline:          req.Inline || inline,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLineJSON(line))
}

func (h *HTTPHandler) GetLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	line, err := h.inventory.GetLine(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLineJSON(line))
}

func (h *HTTPHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateLineHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		if _, err := h.inventory.GetLine(r.Context(), id); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: quantity is required", domain.ErrInvalidArgument))
		return
	}
	line, err := h.inventory.UpdateLine(r.Context(), id, *req.Quantity, req.StorageLocation)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLineJSON(line))
}

func (h *HTTPHandler) ReplaceLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req ReplaceLineHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	line, err := h.inventory.ReplaceLine(r.Context(), id, service.LineReplacement{
		FacilityID:      req.WarehouseID,
		Name:            req.Name,
		SKU:             req.SKU,
		Quantity:        req.Quantity,
		StorageLocation: req.StorageLocation,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLineJSON(line))
}

func (h *HTTPHandler) PatchLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req PatchLineHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	line, err := h.inventory.PatchLine(r.Context(), id, service.LinePatch{
		Name:            req.Name,
		SKU:             req.SKU,
		Quantity:        req.Quantity,
		StorageLocation: req.StorageLocation,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLineJSON(line))
}

func (h *HTTPHandler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.inventory.DeleteLine(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err1 := strconv.ParseInt(q.Get("fromWarehouse"), 10, 64)
	to, err2 := strconv.ParseInt(q.Get("toWarehouse"), 10, 64)
	qty, err3 := strconv.Atoi(q.Get("quantity"))
	if err1 != nil || err2 != nil || err3 != nil {
		h.writeError(w, r, fmt.Errorf("%w: fromWarehouse, toWarehouse and quantity must be integers",
			domain.ErrInvalidArgument))
		return
	}

	result, err := h.inventory.Transfer(r.Context(), service.TransferRequest{
		RequestID:      r.Header.Get("Idempotency-Key"),
		LineID:         id,
		FromFacilityID: from,
		ToFacilityID:   to,
		Quantity:       qty,
	})
	if err != nil {
		h.writeErrorResponse(w, r, err, ErrorResponse{FailedStep: string(result.FailedStep), Debited: result.Debited})
		return
	}
	writeJSON(w, http.StatusOK, TransferHTTPResponse{
		Source:      toLineJSON(result.Source),
		Destination: toLineJSON(result.Destination),
	})
}

func (h *HTTPHandler) LinesByWarehouse(w http.ResponseWriter, r *http.Request) {
	h.listLines(w, r, func(ctx context.Context, id int64) ([]domain.StockLine, error) {
		return h.inventory.LinesByFacility(ctx, id)
	})
}

func (h *HTTPHandler) SearchByName(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	h.listLines(w, r, func(ctx context.Context, id int64) ([]domain.StockLine, error) {
		return h.inventory.SearchByName(ctx, id, q)
	})
}

func (h *HTTPHandler) SearchBySKU(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	h.listLines(w, r, func(ctx context.Context, id int64) ([]domain.StockLine, error) {
		return h.inventory.SearchBySKU(ctx, id, q)
	})
}

func (h *HTTPHandler) listLines(w http.ResponseWriter, r *http.Request, list func(context.Context, int64) ([]domain.StockLine, error)) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	lines, err := list(r.Context(), id)
	h.writeLines(w, r, lines, err)
}

func (h *HTTPHandler) ListLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.inventory.ListLines(r.Context())
	h.writeLines(w, r, lines, err)
}

func (h *HTTPHandler) SearchAllByName(w http.ResponseWriter, r *http.Request) {
	lines, err := h.inventory.SearchAllByName(r.Context(), r.URL.Query().Get("q"))
	h.writeLines(w, r, lines, err)
}

func (h *HTTPHandler) SearchAllBySKU(w http.ResponseWriter, r *http.Request) {
	lines, err := h.inventory.SearchAllBySKU(r.Context(), r.URL.Query().Get("q"))
	h.writeLines(w, r, lines, err)
}

func (h *HTTPHandler) writeLines(w http.ResponseWriter, r *http.Request, lines []domain.StockLine, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]StockLineJSON, 0, len(lines))
	for _, l := range lines {
		out = append(out, toLineJSON(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) TotalBySKU(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	if sku == "" {
		sku = r.URL.Query().Get("sku")
	}
	total, err := h.inventory.TotalQuantityBySKU(r.Context(), sku)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sku": sku, "total_quantity": total})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]ProductJSON, 0, len(products))
	for _, p := range products {
		out = append(out, toProductJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductJSON(p))
}

func (h *HTTPHandler) GetProductBySKU(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.FindBySKU(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductJSON(p))
}

// CreateProduct resolves the SKU against the catalog, so posting an existing SKU
// returns the existing product.
func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductJSON
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.catalog.ResolveOrCreate(r.Context(), req.SKU, req.Name, req.Description, req.Category)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductJSON(p))
}

func (h *HTTPHandler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidArgument, name, raw))
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid request body", domain.ErrInvalidArgument))
		return false
	}
	return true
}

func toFacilityJSON(f domain.Facility) FacilityJSON {
	return FacilityJSON{ID: f.ID, Name: f.Name, Location: f.Location, MaxCapacity: f.MaxCapacity}
}

func fromFacilityJSON(f FacilityJSON) domain.Facility {
	return domain.Facility{Name: f.Name, Location: f.Location, MaxCapacity: f.MaxCapacity}
}

func toProductJSON(p domain.Product) ProductJSON {
	return ProductJSON{ID: p.ID, SKU: p.SKU, Name: p.Name, Description: p.Description, Category: p.Category}
}

func toLineJSON(l domain.StockLine) StockLineJSON {
	return StockLineJSON{
		ID:              l.ID,
		WarehouseID:     l.FacilityID,
		ProductID:       l.Key.ProductID,
		SKU:             l.Key.SKU,
		Name:            l.Name,
		Quantity:        l.Quantity,
		StorageLocation: l.StorageLocation,
	}
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (h *HTTPHandler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *HTTPHandler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.logger.Debug("http request",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
