package models

import "time"

// Warranty tracks the guarantee period of a purchased product.
type Warranty struct {
	ID                     int64     `json:"id"`
	UserID                 int64     `json:"user_id"`
	ReceiptID              *int64    `json:"receipt_id"`
	ProductName            string    `json:"product_name"`
	PurchaseDate           string    `json:"purchase_date"`
	WarrantyDurationMonths int       `json:"warranty_duration_months"`
	ExpirationDate         string    `json:"expiration_date"`
	Notes                  *string   `json:"notes"`
	MerchantName           *string   `json:"merchant_name"`
	TotalAmount            *float64  `json:"total_amount"`
	DaysRemaining          int       `json:"days_remaining"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// WarrantyStatus filters warranties by expiration.
type WarrantyStatus string

const (
	WarrantyStatusAll     WarrantyStatus = "all"
	WarrantyStatusActive  WarrantyStatus = "active"
	WarrantyStatusExpired WarrantyStatus = "expired"
)

// WarrantyUpdate carries the optional fields of PUT /api/warranties.
// ExpirationDate is recomputed by the handler when both purchase date and
// duration are given.
type WarrantyUpdate struct {
	ProductName            *string
	PurchaseDate           *string
	WarrantyDurationMonths *int
	ExpirationDate         *string
	Notes                  *string
}

// Empty reports whether the update changes nothing.
func (u WarrantyUpdate) Empty() bool {
	return u.ProductName == nil && u.PurchaseDate == nil && u.WarrantyDurationMonths == nil &&
		u.ExpirationDate == nil && u.Notes == nil
}

// WarrantyAlert asks to be reminded AlertDaysBefore days before expiration.
type WarrantyAlert struct {
	ID                     int64     `json:"id"`
	UserID                 int64     `json:"user_id"`
	WarrantyID             int64     `json:"warranty_id"`
	AlertDaysBefore        int       `json:"alert_days_before"`
	IsActive               bool      `json:"is_active"`
	ProductName            string    `json:"product_name,omitempty"`
	PurchaseDate           string    `json:"purchase_date,omitempty"`
	ExpirationDate         string    `json:"expiration_date,omitempty"`
	WarrantyDurationMonths int       `json:"warranty_duration_months,omitempty"`
	DaysRemaining          int       `json:"days_remaining"`
	MerchantName           *string   `json:"merchant_name,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

// AlertUpdate carries the optional fields of PUT /api/alerts.
type AlertUpdate struct {
	AlertDaysBefore *int
	IsActive        *bool
}

// Empty reports whether the update changes nothing.
func (u AlertUpdate) Empty() bool {
	return u.AlertDaysBefore == nil && u.IsActive == nil
}
