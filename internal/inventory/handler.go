package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
)

// ActorHeader carries the staff user id set by the upstream gateway.
const ActorHeader = "X-Actor-ID"

// IdempotencyHeader carries the client's replay key for customer orders.
const IdempotencyHeader = "Idempotency-Key"

// ServicePort is the subset of Service used by Handler.
type ServicePort interface {
	Purchase(ctx context.Context, input PurchaseInput) (FulfillmentResult, error)
	Sell(ctx context.Context, input SellInput) (FulfillmentResult, error)
	PlaceCustomerOrder(ctx context.Context, input CustomerOrderInput) (FulfillmentResult, error)
	ReturnToSupplier(ctx context.Context, input ReturnInput) (FulfillmentResult, error)
	GetStock(ctx context.Context, productID int64) (int64, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	SearchProducts(ctx context.Context, term string) ([]Product, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) (TransactionPage, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	TransactionsByMonth(ctx context.Context, month, year int) ([]Transaction, error)
}

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger    *slog.Logger
	service   ServicePort
	validator *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers inventory routes under /api.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Post("/purchases", h.handlePurchase)
		r.Post("/sales", h.handleSell)
		r.Post("/returns", h.handleReturn)
	})
	r.Post("/orders", h.handleCustomerOrder)
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.getProduct)
		r.Get("/{id}/stock", h.getStock)
	})
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.listTransactions)
		r.Get("/monthly", h.transactionsByMonth)
		r.Get("/{id}", h.getTransaction)
	})
}

type movementRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	SupplierID  int64  `json:"supplier_id" validate:"omitempty,gt=0"`
	Quantity    int64  `json:"quantity" validate:"required,gte=1"`
	Description string `json:"description" validate:"max=500"`
	Note        string `json:"note" validate:"max=500"`
}

type orderRequest struct {
	CustomerID int64 `json:"customer_id" validate:"required,gt=0"`
	ProductID  int64 `json:"product_id" validate:"required,gt=0"`
	Quantity   int64 `json:"quantity" validate:"required,gte=1"`
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SupplierID == 0 {
		httpx.ValidationProblem(w, map[string]string{"supplier_id": "supplier_id is required"})
		return
	}
	res, err := h.service.Purchase(r.Context(), PurchaseInput{
		ProductID:   req.ProductID,
		SupplierID:  req.SupplierID,
		Quantity:    req.Quantity,
		Description: req.Description,
		Note:        req.Note,
		ActorID:     actorID(r),
	})
	h.respondFulfillment(w, r, "purchase", res, err)
}

func (h *Handler) handleSell(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.Sell(r.Context(), SellInput{
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		Description: req.Description,
		Note:        req.Note,
		ActorID:     actorID(r),
	})
	h.respondFulfillment(w, r, "sell", res, err)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SupplierID == 0 {
		httpx.ValidationProblem(w, map[string]string{"supplier_id": "supplier_id is required"})
		return
	}
	res, err := h.service.ReturnToSupplier(r.Context(), ReturnInput{
		ProductID:   req.ProductID,
		SupplierID:  req.SupplierID,
		Quantity:    req.Quantity,
		Description: req.Description,
		Note:        req.Note,
		ActorID:     actorID(r),
	})
	h.respondFulfillment(w, r, "return", res, err)
}

func (h *Handler) handleCustomerOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.PlaceCustomerOrder(r.Context(), CustomerOrderInput{
		CustomerID:     req.CustomerID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	h.respondFulfillment(w, r, "customer order", res, err)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.SearchProducts(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	qty, err := h.service.GetStock(r.Context(), id)
	if err != nil {
		h.fail(w, "get stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"product_id": id, "stock_quantity": qty})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := TransactionFilter{Search: q.Get("search")}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Size, _ = strconv.Atoi(q.Get("size"))
	page, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.fail(w, "list transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.fail(w, "get transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

func (h *Handler) transactionsByMonth(w http.ResponseWriter, r *http.Request) {
	month, year, ok := MonthYear(w, r)
	if !ok {
		return
	}
	txs, err := h.service.TransactionsByMonth(r.Context(), month, year)
	if err != nil {
		h.fail(w, "transactions by month", err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		fields := httpx.FieldErrors(err)
		if fields == nil {
			httpx.RespondError(w, err)
			return false
		}
		httpx.ValidationProblem(w, fields)
		return false
	}
	return true
}

func (h *Handler) respondFulfillment(w http.ResponseWriter, r *http.Request, op string, res FulfillmentResult, err error) {
	if err != nil {
		h.fail(w, op, err)
		return
	}
	h.logger.InfoContext(r.Context(), "inventory movement recorded",
		slog.String("kind", string(res.Transaction.Kind)),
		slog.Int64("product_id", res.Product.ID),
		slog.Int64("stock", res.Product.StockQuantity),
		slog.Bool("low_stock", res.LowStock))
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.ValidationProblem(w, map[string]string{"id": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// MonthYear parses the month and year query parameters, writing a problem
// response when either is malformed.
func MonthYear(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	month, mErr := strconv.Atoi(q.Get("month"))
	year, yErr := strconv.Atoi(q.Get("year"))
	fields := map[string]string{}
	if mErr != nil {
		fields["month"] = "month must be an integer"
	}
	if yErr != nil {
		fields["year"] = "year must be an integer"
	}
	if len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return 0, 0, false
	}
	return month, year, true
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get(ActorHeader), 10, 64)
	return id
}

var _ ServicePort = (*Service)(nil)
