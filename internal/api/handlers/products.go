package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/notes/backend/internal/calendar"
	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/evaluation"
	"github.com/wonny/notes/backend/internal/products"
	"github.com/wonny/notes/backend/internal/schedule"
	"github.com/wonny/notes/backend/pkg/logger"
)

// ProductHandler serves products, evaluations and their events
// ⭐ SSOT: 상품/평가 API 핸들러는 이 구조체에서만
type ProductHandler struct {
	repo       contracts.ProductRepository
	evaluator  *evaluation.Evaluator
	events     contracts.EventLog
	holidays   contracts.HolidayProvider
	paymentLag int
	logger     *logger.Logger
	now        func() time.Time
}

// NewProductHandler creates a new product handler
func NewProductHandler(
	repo contracts.ProductRepository,
	evaluator *evaluation.Evaluator,
	events contracts.EventLog,
	holidays contracts.HolidayProvider,
	paymentLag int,
	log *logger.Logger,
) *ProductHandler {
	return &ProductHandler{
		repo:       repo,
		evaluator:  evaluator,
		events:     events,
		holidays:   holidays,
		paymentLag: paymentLag,
		logger:     log,
		now:        time.Now,
	}
}

// ProductSummary is one row of the product list
type ProductSummary struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	ISIN         string                 `json:"isin,omitempty"`
	Currency     string                 `json:"currency"`
	Template     contracts.TemplateKind `json:"template"`
	Underlyings  []string               `json:"underlyings"`
	MaturityDate string                 `json:"maturity_date"`
}

// ListProducts returns the active products
// GET /api/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.ListActive(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list products")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}

	out := make([]ProductSummary, 0, len(list))
	for _, p := range list {
		s := ProductSummary{
			ID:           p.ID,
			Name:         p.Name,
			ISIN:         p.ISIN,
			Currency:     p.Currency,
			Template:     p.Structure.Kind,
			MaturityDate: p.MaturityDate.Format(contracts.DateLayout),
		}
		for _, u := range p.Underlyings {
			s.Underlyings = append(s.Underlyings, u.FullTicker())
		}
		out = append(out, s)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"products": out,
		"count":    len(out),
	})
}

// GetEvaluation evaluates a stored product
// GET /api/products/{id}/evaluation?date=YYYY-MM-DD
func (h *ProductHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	date, err := parseDateParam(r, "date", h.now)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'date' format (expected YYYY-MM-DD)")
		return
	}

	product, err := h.repo.Get(ctx, id)
	if err != nil {
		h.logger.WithProduct(id).WithError(err).Warn("Failed to load product")
		respondError(w, errorStatus(err), err.Error())
		return
	}

	report, err := h.evaluator.Evaluate(ctx, evaluation.Request{Product: *product, Date: date})
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// EvaluationRequest evaluates an inline product
type EvaluationRequest struct {
	Product products.Document `json:"product"`
	Date    string            `json:"date,omitempty"`
}

// PostEvaluation evaluates a product supplied in the body without touching
// the event log or the live feed
// POST /api/evaluations
func (h *ProductHandler) PostEvaluation(w http.ResponseWriter, r *http.Request) {
	var req EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	date := contracts.Day(h.now())
	if req.Date != "" {
		d, err := contracts.ParseDate(req.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'date' format (expected YYYY-MM-DD)")
			return
		}
		date = d
	}

	product, err := req.Product.ToProduct()
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}

	// inline products are hypothetical; their events are reported, not recorded
	report, err := h.evaluator.Isolated().Evaluate(r.Context(), evaluation.Request{Product: product, Date: date})
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GetEvents returns the recorded events of a product
// GET /api/products/{id}/events
func (h *ProductHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	list, err := h.events.ListByProduct(r.Context(), id)
	if err != nil {
		h.logger.WithProduct(id).WithError(err).Error("Failed to list events")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}
	if list == nil {
		list = []contracts.Event{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"product_id": id,
		"events":     list,
		"count":      len(list),
	})
}

// ScheduleRequest generates the observation schedule of an inline product
type ScheduleRequest struct {
	Product products.Document `json:"product"`
}

// PostSchedule generates an observation schedule
// POST /api/schedules
func (h *ProductHandler) PostSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := req.Product.ToProduct()
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}

	params, ok := schedule.ForProduct(product, h.paymentLag)
	if !ok {
		respondError(w, http.StatusUnprocessableEntity, "Product has no periodic observations")
		return
	}

	entries, err := schedule.Generate(params, calendar.Load(r.Context(), h.holidays))
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"product_id": product.ID,
		"schedule":   entries,
		"count":      len(entries),
	})
}
