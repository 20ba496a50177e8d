// Package warranty serves the warranty and warranty-alert API. Both resources
// answer 501 unless the feature is enabled.
package warranty

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayush/receipt-tracker/backend/internal/auth"
	"github.com/ayush/receipt-tracker/backend/internal/models"
	"github.com/ayush/receipt-tracker/backend/internal/response"
	"github.com/ayush/receipt-tracker/backend/internal/store"
)

const (
	MsgWarrantiesDisabled = "Fonctionnalité garanties non disponible"
	MsgAlertsDisabled     = "Fonctionnalité alertes non disponible"

	msgWarrantyFields   = "Champs requis: product_name, purchase_date, warranty_duration_months"
	msgInvalidPurchase  = "Date d'achat invalide (format attendu : AAAA-MM-JJ)"
	msgInvalidDuration  = "warranty_duration_months doit être un entier positif"
	msgWarrantyID       = "ID de garantie requis"
	msgWarrantyNotFound = "Garantie non trouvée"
	msgReceiptNotFound  = "Ticket non trouvé"
	msgNoUpdate         = "Aucune mise à jour fournie"
	msgWarrantyDeleted  = "Garantie supprimée avec succès"

	msgListWarranties   = "Erreur lors de la récupération des garanties"
	msgListExpiring     = "Erreur lors de la récupération des garanties expirantes"
	msgCreateWarranty   = "Erreur lors de la création de la garantie"
	msgUpdateWarranty   = "Erreur lors de la mise à jour de la garantie"
	msgDeleteWarranty   = "Erreur lors de la suppression de la garantie"
	msgAlertWarrantyID  = "warranty_id requis"
	msgAlertExists      = "Une alerte existe déjà pour cette garantie"
	msgAlertDays        = "alert_days_before doit être un entier positif"
	msgAlertID          = "ID d'alerte requis"
	msgAlertNotFound    = "Alerte non trouvée"
	msgAlertDeleted     = "Alerte supprimée avec succès"
	msgListAlerts       = "Erreur lors de la récupération des alertes"
	msgCreateAlert      = "Erreur lors de la création de l'alerte"
	msgUpdateAlert      = "Erreur lors de la mise à jour de l'alerte"
	msgDeleteAlert      = "Erreur lors de la suppression de l'alerte"
	defaultLimit        = 50
	maxLimit            = 100
	defaultExpiringDays = 30
	defaultAlertDays    = 30
	dateLayout          = "2006-01-02"
)

// Store is the persistence used by the warranty and alert handlers.
type Store interface {
	ListWarranties(ctx context.Context, userID int64, status models.WarrantyStatus, limit, offset int) ([]models.Warranty, error)
	CountWarranties(ctx context.Context, userID int64, status models.WarrantyStatus) (int, error)
	ListExpiringWarranties(ctx context.Context, userID int64, days int) ([]models.Warranty, error)
	GetWarranty(ctx context.Context, userID, id int64) (*models.Warranty, error)
	CreateWarranty(ctx context.Context, w *models.Warranty) (*models.Warranty, error)
	UpdateWarranty(ctx context.Context, userID, id int64, upd models.WarrantyUpdate) (*models.Warranty, error)
	DeleteWarranty(ctx context.Context, userID, id int64) (bool, error)

	ListAlerts(ctx context.Context, userID int64) ([]models.WarrantyAlert, error)
	GetAlertByWarranty(ctx context.Context, userID, warrantyID int64) (*models.WarrantyAlert, error)
	CreateAlert(ctx context.Context, userID, warrantyID int64, daysBefore int) (*models.WarrantyAlert, error)
	UpdateAlert(ctx context.Context, userID, id int64, upd models.AlertUpdate) (*models.WarrantyAlert, error)
	DeleteAlert(ctx context.Context, userID, id int64) (bool, error)

	GetReceipt(ctx context.Context, userID, id int64) (*models.Receipt, error)
}

type Handler struct {
	store   Store
	enabled bool
	logger  *slog.Logger
}

func NewHandler(st Store, enabled bool, logger *slog.Logger) *Handler {
	return &Handler{store: st, enabled: enabled, logger: logger}
}

// WarrantyRoutes mounts /api/warranties. The feature gate runs before
// requireAuth so a disabled feature answers 501 to everyone.
func (h *Handler) WarrantyRoutes(requireAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(h.gate(MsgWarrantiesDisabled))
	r.Use(requireAuth)

	r.Get("/", h.ListWarranties)
	r.Post("/", h.CreateWarranty)
	r.Put("/", h.UpdateWarranty)
	r.Delete("/", h.DeleteWarranty)
	r.Get("/expiring", h.Expiring)
	r.Put("/{id}", h.UpdateWarranty)
	r.Delete("/{id}", h.DeleteWarranty)
	return r
}

// AlertRoutes mounts /api/alerts.
func (h *Handler) AlertRoutes(requireAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(h.gate(MsgAlertsDisabled))
	r.Use(requireAuth)

	r.Get("/", h.ListAlerts)
	r.Post("/", h.CreateAlert)
	r.Put("/", h.UpdateAlert)
	r.Delete("/", h.DeleteAlert)
	r.Put("/{id}", h.UpdateAlert)
	r.Delete("/{id}", h.DeleteAlert)
	return r
}

func (h *Handler) gate(msg string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !h.enabled {
				response.Error(w, http.StatusNotImplemented, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ── Warranties ───────────────────────────────────────────────────────────────

type createWarrantyRequest struct {
	ReceiptID              *int64  `json:"receipt_id"`
	ProductName            string  `json:"product_name"`
	PurchaseDate           string  `json:"purchase_date"`
	WarrantyDurationMonths int     `json:"warranty_duration_months"`
	Notes                  *string `json:"notes"`
}

type updateWarrantyRequest struct {
	ID                     *int64  `json:"id"`
	ProductName            *string `json:"product_name"`
	PurchaseDate           *string `json:"purchase_date"`
	WarrantyDurationMonths *int    `json:"warranty_duration_months"`
	Notes                  *string `json:"notes"`
}

func (h *Handler) ListWarranties(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	limit, offset := pagination(r)

	status := models.WarrantyStatus(r.URL.Query().Get("status"))
	switch status {
	case models.WarrantyStatusActive, models.WarrantyStatusExpired:
	default:
		status = models.WarrantyStatusAll
	}

	list, err := h.store.ListWarranties(r.Context(), userID, status, limit, offset)
	if err != nil {
		h.serverError(w, msgListWarranties, "list warranties", userID, err)
		return
	}
	total, err := h.store.CountWarranties(r.Context(), userID, status)
	if err != nil {
		h.serverError(w, msgListWarranties, "count warranties", userID, err)
		return
	}

	response.OK(w, map[string]any{
		"warranties": nonNil(list),
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func (h *Handler) CreateWarranty(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req createWarrantyRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgWarrantyFields)
		return
	}
	req.ProductName = strings.TrimSpace(req.ProductName)
	if req.ProductName == "" || req.PurchaseDate == "" || req.WarrantyDurationMonths == 0 {
		response.Error(w, http.StatusBadRequest, msgWarrantyFields)
		return
	}
	if req.WarrantyDurationMonths < 0 {
		response.Error(w, http.StatusBadRequest, msgInvalidDuration)
		return
	}
	expiration, err := ExpirationDate(req.PurchaseDate, req.WarrantyDurationMonths)
	if err != nil {
		response.Error(w, http.StatusBadRequest, msgInvalidPurchase)
		return
	}

	if req.ReceiptID != nil {
		rec, err := h.store.GetReceipt(r.Context(), userID, *req.ReceiptID)
		if err != nil {
			h.serverError(w, msgCreateWarranty, "check warranty receipt", userID, err)
			return
		}
		if rec == nil {
			response.Error(w, http.StatusNotFound, msgReceiptNotFound)
			return
		}
	}

	created, err := h.store.CreateWarranty(r.Context(), &models.Warranty{
		UserID:                 userID,
		ReceiptID:              req.ReceiptID,
		ProductName:            req.ProductName,
		PurchaseDate:           req.PurchaseDate,
		WarrantyDurationMonths: req.WarrantyDurationMonths,
		ExpirationDate:         expiration,
		Notes:                  req.Notes,
	})
	if err != nil {
		h.serverError(w, msgCreateWarranty, "create warranty", userID, err)
		return
	}
	response.OK(w, map[string]any{"success": true, "warranty": created})
}

func (h *Handler) UpdateWarranty(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req updateWarrantyRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgNoUpdate)
		return
	}
	id, ok := resourceID(r, req.ID)
	if !ok {
		response.Error(w, http.StatusBadRequest, msgWarrantyID)
		return
	}

	current, err := h.store.GetWarranty(r.Context(), userID, id)
	if err != nil {
		h.serverError(w, msgUpdateWarranty, "get warranty", userID, err)
		return
	}
	if current == nil {
		response.Error(w, http.StatusNotFound, msgWarrantyNotFound)
		return
	}

	upd := models.WarrantyUpdate{Notes: req.Notes}
	if req.ProductName != nil && strings.TrimSpace(*req.ProductName) != "" {
		name := strings.TrimSpace(*req.ProductName)
		upd.ProductName = &name
	}
	if req.PurchaseDate != nil && *req.PurchaseDate != "" {
		upd.PurchaseDate = req.PurchaseDate
	}
	if req.WarrantyDurationMonths != nil && *req.WarrantyDurationMonths != 0 {
		if *req.WarrantyDurationMonths < 0 {
			response.Error(w, http.StatusBadRequest, msgInvalidDuration)
			return
		}
		upd.WarrantyDurationMonths = req.WarrantyDurationMonths
	}
	if upd.Empty() {
		response.Error(w, http.StatusBadRequest, msgNoUpdate)
		return
	}

	// A new purchase date or duration moves the expiration date.
	if upd.PurchaseDate != nil || upd.WarrantyDurationMonths != nil {
		purchase, months := current.PurchaseDate, current.WarrantyDurationMonths
		if upd.PurchaseDate != nil {
			purchase = *upd.PurchaseDate
		}
		if upd.WarrantyDurationMonths != nil {
			months = *upd.WarrantyDurationMonths
		}
		expiration, err := ExpirationDate(purchase, months)
		if err != nil {
			response.Error(w, http.StatusBadRequest, msgInvalidPurchase)
			return
		}
		upd.ExpirationDate = &expiration
	}

	updated, err := h.store.UpdateWarranty(r.Context(), userID, id, upd)
	if err != nil {
		h.serverError(w, msgUpdateWarranty, "update warranty", userID, err)
		return
	}
	if updated == nil {
		response.Error(w, http.StatusNotFound, msgWarrantyNotFound)
		return
	}
	response.OK(w, map[string]any{"success": true, "warranty": updated})
}

func (h *Handler) DeleteWarranty(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id, ok := resourceID(r, nil)
	if !ok {
		response.Error(w, http.StatusBadRequest, msgWarrantyID)
		return
	}

	deleted, err := h.store.DeleteWarranty(r.Context(), userID, id)
	if err != nil {
		h.serverError(w, msgDeleteWarranty, "delete warranty", userID, err)
		return
	}
	if !deleted {
		response.Error(w, http.StatusNotFound, msgWarrantyNotFound)
		return
	}
	response.OK(w, map[string]any{"success": true, "message": msgWarrantyDeleted})
}

// Expiring lists active warranties that expire within ?days (default 30).
func (h *Handler) Expiring(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days < 0 {
		days = defaultExpiringDays
	}

	list, err := h.store.ListExpiringWarranties(r.Context(), userID, days)
	if err != nil {
		h.serverError(w, msgListExpiring, "list expiring warranties", userID, err)
		return
	}
	response.OK(w, map[string]any{
		"warranties": nonNil(list),
		"total":      len(list),
		"days":       days,
	})
}

// ExpirationDate adds months to a YYYY-MM-DD purchase date. Day overflow
// rolls into the following month, as time.AddDate does.
func ExpirationDate(purchase string, months int) (string, error) {
	t, err := time.Parse(dateLayout, purchase)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, months, 0).Format(dateLayout), nil
}

// ── Alerts ───────────────────────────────────────────────────────────────────

type createAlertRequest struct {
	WarrantyID      *int64 `json:"warranty_id"`
	AlertDaysBefore *int   `json:"alert_days_before"`
}

type updateAlertRequest struct {
	ID              *int64 `json:"id"`
	AlertDaysBefore *int   `json:"alert_days_before"`
	IsActive        *bool  `json:"is_active"`
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	alerts, err := h.store.ListAlerts(r.Context(), userID)
	if err != nil {
		h.serverError(w, msgListAlerts, "list alerts", userID, err)
		return
	}
	if alerts == nil {
		alerts = []models.WarrantyAlert{}
	}
	response.OK(w, map[string]any{"alerts": alerts, "total": len(alerts)})
}

func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req createAlertRequest
	if err := response.Decode(w, r, &req); err != nil || req.WarrantyID == nil || *req.WarrantyID <= 0 {
		response.Error(w, http.StatusBadRequest, msgAlertWarrantyID)
		return
	}
	days := defaultAlertDays
	if req.AlertDaysBefore != nil && *req.AlertDaysBefore != 0 {
		if *req.AlertDaysBefore < 0 {
			response.Error(w, http.StatusBadRequest, msgAlertDays)
			return
		}
		days = *req.AlertDaysBefore
	}

	wr, err := h.store.GetWarranty(r.Context(), userID, *req.WarrantyID)
	if err != nil {
		h.serverError(w, msgCreateAlert, "get warranty", userID, err)
		return
	}
	if wr == nil {
		response.Error(w, http.StatusNotFound, msgWarrantyNotFound)
		return
	}
	existing, err := h.store.GetAlertByWarranty(r.Context(), userID, wr.ID)
	if err != nil {
		h.serverError(w, msgCreateAlert, "get alert", userID, err)
		return
	}
	if existing != nil {
		response.Error(w, http.StatusConflict, msgAlertExists)
		return
	}

	alert, err := h.store.CreateAlert(r.Context(), userID, wr.ID, days)
	if errors.Is(err, store.ErrAlertExists) {
		response.Error(w, http.StatusConflict, msgAlertExists)
		return
	}
	if err != nil {
		h.serverError(w, msgCreateAlert, "create alert", userID, err)
		return
	}
	response.OK(w, map[string]any{"success": true, "alert": alert})
}

func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req updateAlertRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgNoUpdate)
		return
	}
	id, ok := resourceID(r, req.ID)
	if !ok {
		response.Error(w, http.StatusBadRequest, msgAlertID)
		return
	}
	upd := models.AlertUpdate{AlertDaysBefore: req.AlertDaysBefore, IsActive: req.IsActive}
	if upd.Empty() {
		response.Error(w, http.StatusBadRequest, msgNoUpdate)
		return
	}
	if upd.AlertDaysBefore != nil && *upd.AlertDaysBefore <= 0 {
		response.Error(w, http.StatusBadRequest, msgAlertDays)
		return
	}

	alert, err := h.store.UpdateAlert(r.Context(), userID, id, upd)
	if err != nil {
		h.serverError(w, msgUpdateAlert, "update alert", userID, err)
		return
	}
	if alert == nil {
		response.Error(w, http.StatusNotFound, msgAlertNotFound)
		return
	}
	response.OK(w, map[string]any{"success": true, "alert": alert})
}

func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id, ok := resourceID(r, nil)
	if !ok {
		response.Error(w, http.StatusBadRequest, msgAlertID)
		return
	}

	deleted, err := h.store.DeleteAlert(r.Context(), userID, id)
	if err != nil {
		h.serverError(w, msgDeleteAlert, "delete alert", userID, err)
		return
	}
	if !deleted {
		response.Error(w, http.StatusNotFound, msgAlertNotFound)
		return
	}
	response.OK(w, map[string]any{"success": true, "message": msgAlertDeleted})
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (h *Handler) serverError(w http.ResponseWriter, msg, op string, userID int64, err error) {
	h.logger.Error(op, "user_id", userID, "error", err)
	response.ErrorDetails(w, http.StatusInternalServerError, msg, err)
}

// resourceID takes the id from the path, then from the JSON body, then from
// the ?id= query parameter.
func resourceID(r *http.Request, bodyID *int64) (int64, bool) {
	raw := chi.URLParam(r, "id")
	if raw == "" && bodyID != nil {
		return *bodyID, *bodyID > 0
	}
	if raw == "" {
		raw = r.URL.Query().Get("id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func pagination(r *http.Request) (limit, offset int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err = strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nonNil(list []models.Warranty) []models.Warranty {
	if list == nil {
		return []models.Warranty{}
	}
	return list
}
