/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/digistore/storefront-engine/commerce"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PurchaseRequest is the request to buy one unit of a product.
type PurchaseRequest struct {
	UserID     string `json:"user_id"`
	ProductID  string `json:"product_id"`
	UseBalance bool   `json:"use_balance"`
	PromoCode  string `json:"promo_code,omitempty"`
}

// DepositRequest is the request to start a balance top-up.
type DepositRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// ApplyPromoRequest is the request to preview a promo against a subtotal.
type ApplyPromoRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
}

// CreateAccountRequest is the request to register a user account.
type CreateAccountRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CreateProductRequest is the request to add a catalog item.
type CreateProductRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Price        int64  `json:"price"`
	Category     string `json:"category"`
	ImageURL     string `json:"image_url"`
	Stock        int    `json:"stock"`
	IsBestSeller bool   `json:"is_best_seller"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the JSON shape of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AccountDTO represents a user account in API responses. The balance is
// included; admin-only fields are not.
type AccountDTO struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ProductDTO represents a catalog item in API responses.
type ProductDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Price        int64  `json:"price"`
	Category     string `json:"category,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Stock        int    `json:"stock"`
	IsBestSeller bool   `json:"is_best_seller"`
}

// OrderDTO represents one purchase record.
type OrderDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// DepositDTO represents one top-up record.
type DepositDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	PaymentID string `json:"payment_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

// PaymentDTO represents a QR payment in API responses.
type PaymentDTO struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	URL         string `json:"url"`
	Amount      int64  `json:"amount"`
	Type        string `json:"type"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	ExpiresAt   string `json:"expires_at"`
}

// PurchaseResponse wraps the outcome of a purchase attempt.
type PurchaseResponse struct {
	Order     OrderDTO    `json:"order"`
	Payment   *PaymentDTO `json:"payment,omitempty"`
	Subtotal  int64       `json:"subtotal"`
	Discount  int64       `json:"discount"`
	PromoCode string      `json:"promo_code,omitempty"`
}

// DepositResponse wraps the outcome of a deposit attempt.
type DepositResponse struct {
	Deposit DepositDTO  `json:"deposit"`
	Payment *PaymentDTO `json:"payment,omitempty"`
}

// PromoResultDTO is the preview of a validated promo.
type PromoResultDTO struct {
	Code       string `json:"code"`
	Discount   int64  `json:"discount"`
	FinalPrice int64  `json:"final_price"`
}

// LeaderboardEntryDTO is one ranked row of the top spenders view.
type LeaderboardEntryDTO struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	TotalDeposits int64  `json:"total_deposits"`
	TotalSpent    int64  `json:"total_spent"`
	Total         int64  `json:"total"`
}

// CredentialDTO is the delivered secret for a completed order.
type CredentialDTO struct {
	OrderID string `json:"order_id"`
	Login   string `json:"login"`
	Secret  string `json:"secret"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toAccountDTO(account *commerce.UserAccount) AccountDTO {
	return AccountDTO{
		ID:        string(account.ID),
		Email:     account.Email,
		Name:      account.Name,
		Balance:   int64(account.Balance),
		CreatedAt: account.CreatedAt.Format(time.RFC3339),
	}
}

func toProductDTO(product *commerce.Product) ProductDTO {
	return ProductDTO{
		ID:           string(product.ID),
		Name:         product.Name,
		Description:  product.Description,
		Price:        int64(product.Price),
		Category:     product.Category,
		ImageURL:     product.ImageURL,
		Stock:        product.Stock,
		IsBestSeller: product.IsBestSeller,
	}
}

func toOrderDTO(order *commerce.Order) OrderDTO {
	return OrderDTO{
		ID:        string(order.ID),
		UserID:    string(order.UserID),
		ProductID: string(order.ProductID),
		Amount:    int64(order.Amount),
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt.Format(time.RFC3339),
	}
}

func toDepositDTO(deposit *commerce.Deposit) DepositDTO {
	return DepositDTO{
		ID:        string(deposit.ID),
		UserID:    string(deposit.UserID),
		Amount:    int64(deposit.Amount),
		Status:    string(deposit.Status),
		PaymentID: string(deposit.PaymentID),
		CreatedAt: deposit.CreatedAt.Format(time.RFC3339),
	}
}

func toPaymentDTO(payment *commerce.QRPayment) *PaymentDTO {
	if payment == nil {
		return nil
	}
	return &PaymentDTO{
		ID:          string(payment.ID),
		Code:        payment.Code,
		URL:         payment.URL,
		Amount:      int64(payment.Amount),
		Type:        string(payment.Type),
		ReferenceID: payment.ReferenceID,
		Status:      string(payment.Status),
		ExpiresAt:   payment.ExpiresAt.Format(time.RFC3339),
	}
}

func toLeaderboardDTO(entry commerce.LeaderboardEntry) LeaderboardEntryDTO {
	return LeaderboardEntryDTO{
		Rank:          entry.Rank,
		UserID:        string(entry.UserID),
		Name:          entry.Name,
		Email:         entry.Email,
		TotalDeposits: int64(entry.TotalDeposits),
		TotalSpent:    int64(entry.TotalSpent),
		Total:         int64(entry.Total()),
	}
}
