/*
handlers.go - HTTP API handlers for the storefront transaction core

PURPOSE:
  Exposes the transaction core via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Catalog:
    GET    /api/products                 List all products
    GET    /api/products/best-sellers    List flagged best sellers
    GET    /api/products/{id}            Get product details
    POST   /api/products                 Create product (admin seeding)

  Transactions:
    POST   /api/purchase                 Buy one unit of a product
    POST   /api/deposits                 Start a balance top-up
    POST   /api/promo/apply              Preview a promo against a subtotal

  Payments:
    GET    /api/payments/{id}            Payment status (applies lazy expiry)
    POST   /api/payments/{id}/confirm    Manual confirm (simulated scan)

  Users:
    POST   /api/users                    Register an account
    GET    /api/users/{id}               Account with balance
    GET    /api/users/{id}/orders        Purchase history, newest first
    GET    /api/users/{id}/deposits      Deposit history, newest first

  Reporting:
    GET    /api/leaderboard              Top spenders (optional ?limit=)
    GET    /api/orders/{id}/credential   Delivered secret, completed orders only

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (orchestrator, journal)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing or unknown user
  - 404: Resource not found
  - 409: Conflict (insufficient funds, out of stock, exhausted promo)
  - 410: Payment window closed
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. The user id arrives in
  the request body or path. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/digistore/storefront-engine/commerce"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        commerce.Store
	Orchestrator *commerce.Orchestrator
	Journal      *commerce.Journal
	Log          zerolog.Logger
}

// NewHandler creates a new handler over the given store and orchestrator.
func NewHandler(store commerce.Store, orchestrator *commerce.Orchestrator, log zerolog.Logger) *Handler {
	return &Handler{
		Store:        store,
		Orchestrator: orchestrator,
		Journal:      commerce.NewJournal(store),
		Log:          log,
	}
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

// Purchase buys one unit of a product.
// POST /api/purchase
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required", nil)
		return
	}

	summary, err := h.Orchestrator.Purchase(r.Context(),
		commerce.UserID(req.UserID), commerce.ProductID(req.ProductID),
		req.UseBalance, req.PromoCode)
	if err != nil {
		writeDomainError(w, "Purchase failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, PurchaseResponse{
		Order:     toOrderDTO(&summary.Order),
		Payment:   toPaymentDTO(summary.Payment),
		Subtotal:  int64(summary.Subtotal),
		Discount:  int64(summary.Discount),
		PromoCode: summary.PromoCode,
	})
}

// CreateDeposit starts a balance top-up backed by a QR payment.
// POST /api/deposits
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	summary, err := h.Orchestrator.Deposit(r.Context(),
		commerce.UserID(req.UserID), commerce.Money(req.Amount))
	if err != nil {
		writeDomainError(w, "Deposit failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, DepositResponse{
		Deposit: toDepositDTO(&summary.Deposit),
		Payment: toPaymentDTO(summary.Payment),
	})
}

// ApplyPromo previews a promo code against a subtotal. Read-only: the
// usage counter is untouched.
// POST /api/promo/apply
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	var req ApplyPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Orchestrator.ApplyPromo(r.Context(), req.Code, commerce.Money(req.Subtotal))
	if err != nil {
		writeDomainError(w, "Promo not applicable", err)
		return
	}

	writeJSON(w, http.StatusOK, PromoResultDTO{
		Code:       result.Code,
		Discount:   int64(result.Discount),
		FinalPrice: int64(result.FinalPrice),
	})
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

// GetPayment reports a payment's current status. Reading a pending
// payment past its window expires it first.
// GET /api/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := commerce.PaymentID(chi.URLParam(r, "id"))

	status, err := h.Orchestrator.CheckPaymentStatus(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to check payment", err)
		return
	}

	payment, err := h.Store.GetPayment(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load payment", err)
		return
	}
	dto := toPaymentDTO(payment)
	dto.Status = string(status)
	writeJSON(w, http.StatusOK, dto)
}

// ConfirmPayment settles a payment as if the QR code had been scanned and
// paid. Safe to call repeatedly; a duplicate confirm is a no-op.
// POST /api/payments/{id}/confirm
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id := commerce.PaymentID(chi.URLParam(r, "id"))

	if err := h.Orchestrator.ConfirmPayment(r.Context(), id); err != nil {
		writeDomainError(w, "Confirmation failed", err)
		return
	}

	status, err := h.Orchestrator.CheckPaymentStatus(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to check payment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

// ListProducts returns the full catalog.
// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTOs(products))
}

// ListBestSellers returns products flagged as best sellers.
// GET /api/products/best-sellers
func (h *Handler) ListBestSellers(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListBestSellers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list best sellers", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTOs(products))
}

// GetProduct returns one product with its live stock count.
// GET /api/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := commerce.ProductID(chi.URLParam(r, "id"))

	product, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product))
}

// CreateProduct adds a catalog item. Intended for seeding and admin use.
// POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.Price <= 0 || req.Stock < 0 {
		writeError(w, http.StatusBadRequest, "name, positive price and non-negative stock are required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	product := &commerce.Product{
		ID:           commerce.ProductID(req.ID),
		Name:         req.Name,
		Description:  req.Description,
		Price:        commerce.Money(req.Price),
		Category:     req.Category,
		ImageURL:     req.ImageURL,
		Stock:        req.Stock,
		IsBestSeller: req.IsBestSeller,
		CreatedAt:    time.Now(),
	}
	if err := h.Store.CreateProduct(r.Context(), product); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(product))
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

// CreateAccount registers a user account with a zero balance.
// POST /api/users
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Email == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "email and name are required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	now := time.Now()
	account := &commerce.UserAccount{
		ID:        commerce.UserID(req.ID),
		Email:     req.Email,
		Name:      req.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Store.CreateAccount(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// GetAccount returns a user account including the stored balance.
// GET /api/users/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := commerce.UserID(chi.URLParam(r, "id"))

	account, err := h.Store.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// GetUserOrders returns the user's purchase history, newest first.
// GET /api/users/{id}/orders
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	id := commerce.UserID(chi.URLParam(r, "id"))

	orders, err := h.Journal.Orders(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list orders", err)
		return
	}

	dtos := make([]OrderDTO, 0, len(orders))
	for i := range orders {
		dtos = append(dtos, toOrderDTO(&orders[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUserDeposits returns the user's deposit history, newest first.
// GET /api/users/{id}/deposits
func (h *Handler) GetUserDeposits(w http.ResponseWriter, r *http.Request) {
	id := commerce.UserID(chi.URLParam(r, "id"))

	deposits, err := h.Journal.Deposits(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list deposits", err)
		return
	}

	dtos := make([]DepositDTO, 0, len(deposits))
	for i := range deposits {
		dtos = append(dtos, toDepositDTO(&deposits[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REPORTING ENDPOINTS
// =============================================================================

// Leaderboard ranks users by completed deposits plus completed purchases.
// The optional limit query parameter caps the number of entries; absent
// or invalid values fall back to the default size.
// GET /api/leaderboard?limit=N
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.Journal.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build leaderboard", err)
		return
	}

	dtos := make([]LeaderboardEntryDTO, 0, len(entries))
	for _, entry := range entries {
		dtos = append(dtos, toLeaderboardDTO(entry))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetOrderCredential returns the delivered secret for a completed order.
// 404 until the order completes and fulfillment delivers.
// GET /api/orders/{id}/credential
func (h *Handler) GetOrderCredential(w http.ResponseWriter, r *http.Request) {
	id := commerce.OrderID(chi.URLParam(r, "id"))

	credential, err := h.Journal.Credential(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Credential not available", err)
		return
	}

	writeJSON(w, http.StatusOK, CredentialDTO{
		OrderID: string(credential.OrderID),
		Login:   credential.Login,
		Secret:  credential.Secret,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func toProductDTOs(products []commerce.Product) []ProductDTO {
	dtos := make([]ProductDTO, 0, len(products))
	for i := range products {
		dtos = append(dtos, toProductDTO(&products[i]))
	}
	return dtos
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the core's error taxonomy to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, commerce.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, commerce.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, commerce.ErrPaymentExpired):
		return http.StatusGone
	case errors.Is(err, commerce.ErrInsufficientFunds),
		errors.Is(err, commerce.ErrOutOfStock),
		errors.Is(err, commerce.ErrPromoExhausted):
		return http.StatusConflict
	case commerce.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
