package models

import (
	"encoding/json"
	"time"
)

// Receipt is one scanned (or manually entered) purchase receipt.
type Receipt struct {
	ID                 int64         `json:"id"`
	UserID             int64         `json:"-"`
	MerchantName       *string       `json:"merchant_name"`
	TransactionDate    *string       `json:"transaction_date"` // YYYY-MM-DD
	TotalAmount        *float64      `json:"total_amount"`
	IsAuthentic        bool          `json:"is_authentic"`
	ConfidenceScore    int           `json:"confidence_score"`
	Items              []ReceiptItem `json:"items"`
	SuspiciousElements []string      `json:"suspicious_elements"`
	Analysis           string        `json:"analysis"`
	Provider           string        `json:"provider,omitempty"`
	ImageKey           string        `json:"-"`
	ImageData          string        `json:"-"`
	HasImage           bool          `json:"has_image"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// ReceiptItem is a normalized line of a receipt.
type ReceiptItem struct {
	ID         int64    `json:"id,omitempty"`
	ReceiptID  int64    `json:"-"`
	Name       string   `json:"name"`
	Quantity   *float64 `json:"quantity"`
	UnitPrice  *float64 `json:"unit_price"`
	TotalPrice *float64 `json:"total_price"`
}

// ReceiptFilter narrows GET /api/receipts.
type ReceiptFilter struct {
	Limit  int
	Offset int
	Query  string // matched against merchant, item names and the date
	From   string // inclusive YYYY-MM-DD
	To     string // inclusive YYYY-MM-DD
}

// ReceiptStats summarizes a user's receipts for the dashboard.
type ReceiptStats struct {
	TotalReceipts     int            `json:"total_receipts"`
	TotalAmount       float64        `json:"total_amount"`
	AuthenticCount    int            `json:"authentic_count"`
	SuspiciousCount   int            `json:"suspicious_count"`
	AverageConfidence float64        `json:"average_confidence"`
	Monthly           []MonthlyTotal `json:"monthly"`
}

// MonthlyTotal is the spend for one calendar month (YYYY-MM).
type MonthlyTotal struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// CreateReceiptRequest is the JSON body for POST /api/receipts.
type CreateReceiptRequest struct {
	MerchantName    string        `json:"merchant_name" validate:"required,max=255"`
	TransactionDate string        `json:"transaction_date" validate:"required,datetime=2006-01-02"`
	TotalAmount     *float64      `json:"total_amount" validate:"omitempty,gte=0,lt=100000000"`
	Items           []ReceiptItem `json:"items"`
}

// ScanRequest is the JSON body for POST /api/receipts/scan.
type ScanRequest struct {
	Image string `json:"image"`
}

// Extraction archives the raw analyzer output for a receipt.
type Extraction struct {
	ReceiptID int64           `json:"receipt_id" bson:"receipt_id"`
	UserID    int64           `json:"user_id"    bson:"user_id"`
	Provider  string          `json:"provider"   bson:"provider"`
	Raw       string          `json:"raw"        bson:"raw"`
	Result    json.RawMessage `json:"result"     bson:"result"`
	CreatedAt time.Time       `json:"created_at" bson:"created_at"`
}
