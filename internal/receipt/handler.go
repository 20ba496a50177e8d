package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ayush/receipt-tracker/backend/internal/analysis"
	"github.com/ayush/receipt-tracker/backend/internal/auth"
	"github.com/ayush/receipt-tracker/backend/internal/models"
	"github.com/ayush/receipt-tracker/backend/internal/response"
	"github.com/ayush/receipt-tracker/backend/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 100

	// maxScanBytes bounds a scan request body, base64 image included.
	maxScanBytes = 10 << 20

	// Bounds of the VARCHAR(255) and NUMERIC(10, 2) receipt columns.
	maxTextLen = 255
	maxAmount  = 1e8

	msgImageRequired   = "Image requise"
	msgImageTooLarge   = "Image trop volumineuse (10 Mo maximum)"
	msgInvalidImage    = "Format d'image invalide. Formats acceptés : JPEG, PNG, WEBP, HEIC"
	msgAnalysisFailed  = "Erreur lors de l'analyse du ticket"
	msgSaveFailed      = "Erreur lors de l'enregistrement du ticket"
	msgListFailed      = "Erreur lors de la récupération des tickets"
	msgNotFound        = "Ticket non trouvé"
	msgInvalidID       = "ID de ticket invalide"
	msgInvalidDate     = "Date invalide (format attendu : AAAA-MM-JJ)"
	msgManualRequired  = "Nom du commerçant et date requis"
	msgMerchantTooLong = "Nom du commerçant trop long (255 caractères maximum)"
	msgInvalidAmount   = "Montant invalide"
	msgImageMissing    = "Image non disponible"
	msgNoExtraction    = "Extraction non disponible"
	msgDeleteFailed    = "Erreur lors de la suppression du ticket"
	msgStatsFailed     = "Erreur lors du calcul des statistiques"
	msgDeleted         = "Ticket supprimé avec succès"
	manualProvider     = "manual"
	manualAnalysisText = "Ticket saisi manuellement."
)

// ReceiptStore is the receipt persistence used by the handlers.
type ReceiptStore interface {
	CreateReceipt(ctx context.Context, rec *models.Receipt) error
	ListReceipts(ctx context.Context, userID int64, f models.ReceiptFilter) ([]models.Receipt, error)
	CountReceipts(ctx context.Context, userID int64, f models.ReceiptFilter) (int, error)
	ListScanHistory(ctx context.Context, userID int64, limit, offset int) ([]models.Receipt, error)
	GetReceipt(ctx context.Context, userID, id int64) (*models.Receipt, error)
	GetReceiptImage(ctx context.Context, userID, id int64) (key, data string, found bool, err error)
	DeleteReceipt(ctx context.Context, userID, id int64) (imageKey string, found bool, err error)
	ReceiptStats(ctx context.Context, userID int64) (*models.ReceiptStats, error)
}

// ImageStore keeps receipt images outside the database.
type ImageStore interface {
	UploadImage(ctx context.Context, key string, data []byte, contentType string) error
	DownloadImage(ctx context.Context, key string) ([]byte, string, error)
	RemoveImage(ctx context.Context, key string) error
}

// ExtractionStore archives raw analyzer output.
type ExtractionStore interface {
	InsertExtraction(ctx context.Context, ext *models.Extraction) error
	GetExtraction(ctx context.Context, userID, receiptID int64) (*models.Extraction, error)
	DeleteExtractions(ctx context.Context, userID, receiptID int64) error
}

// Options carries the optional backends. Nil stores disable the matching feature.
type Options struct {
	Images          ImageStore
	Extractions     ExtractionStore
	AnalysisTimeout time.Duration
}

// Handler serves /api/receipts.
type Handler struct {
	receipts    ReceiptStore
	images      ImageStore
	extractions ExtractionStore
	analyzer    analysis.Analyzer
	timeout     time.Duration
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewHandler(receipts ReceiptStore, analyzer analysis.Analyzer, opts Options, logger *slog.Logger) *Handler {
	return &Handler{
		receipts:    receipts,
		images:      opts.Images,
		extractions: opts.Extractions,
		analyzer:    analyzer,
		timeout:     opts.AnalysisTimeout,
		validate:    validator.New(),
		logger:      logger,
	}
}

// Scan analyzes an uploaded receipt image and stores the result.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.ScanRequest
	if err := response.DecodeLimit(w, r, &req, maxScanBytes); err != nil || strings.TrimSpace(req.Image) == "" {
		if response.TooLarge(err) {
			response.Error(w, http.StatusBadRequest, msgImageTooLarge)
			return
		}
		response.Error(w, http.StatusBadRequest, msgImageRequired)
		return
	}
	if !analysis.ValidateBase64Image(req.Image) {
		response.Error(w, http.StatusBadRequest, msgInvalidImage)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.analyzer.Analyze(ctx, req.Image)
	if err != nil {
		h.logger.Error("analyze receipt", "user_id", userID, "provider", h.analyzer.Name(), "error", err)
		response.JSON(w, http.StatusInternalServerError, response.ErrorBody{
			Error:   msgAnalysisFailed,
			Details: analysisDetails(err),
		})
		return
	}

	rec := receiptFromResult(userID, h.analyzer.Name(), res)
	h.attachImage(r.Context(), rec, req.Image)

	if err := h.receipts.CreateReceipt(r.Context(), rec); err != nil {
		h.logger.Error("save scanned receipt", "user_id", userID, "error", err)
		if rec.ImageKey != "" {
			h.removeImage(r.Context(), rec.ImageKey)
		}
		response.ErrorDetails(w, http.StatusInternalServerError, msgSaveFailed, err)
		return
	}

	h.archive(r.Context(), rec, res)

	response.OK(w, map[string]any{
		"success":   true,
		"receiptId": rec.ID,
		"receipt":   rec,
		"analysis":  res,
	})
}

// analysisMessages are the French details shown for known analyzer failures.
var analysisMessages = []struct {
	err error
	msg string
}{
	{analysis.ErrNotConfigured, "GEMINI_API_KEY n'est pas configurée"},
	{analysis.ErrAzureNotConfigured, "AZURE_DOCUMENT_INTELLIGENCE_ENDPOINT et AZURE_DOCUMENT_INTELLIGENCE_KEY doivent être configurés"},
	{analysis.ErrAzureUnauthorized, "Clé API Azure invalide ou expirée"},
	{analysis.ErrAzureNotFound, "Endpoint Azure invalide ou ressource non trouvée"},
	{analysis.ErrAzureRateLimited, "Limite de requêtes Azure atteinte, veuillez réessayer plus tard"},
	{analysis.ErrMissingFields, "Données du ticket incomplètes : nom du commerçant et date requis"},
	{analysis.ErrNoDocument, "Aucun ticket détecté dans l'image"},
	{analysis.ErrInvalidImage, msgInvalidImage},
}

func analysisDetails(err error) string {
	for _, m := range analysisMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return err.Error()
}

// receiptFromResult maps an analysis onto a receipt, fitting model output
// into the column bounds.
func receiptFromResult(userID int64, provider string, res *analysis.Result) *models.Receipt {
	var merchant *string
	if res.MerchantName != nil {
		name := clampText(*res.MerchantName)
		merchant = &name
	}
	rec := &models.Receipt{
		UserID:             userID,
		MerchantName:       merchant,
		TransactionDate:    res.TransactionDate,
		TotalAmount:        clampAmount(res.TotalAmount),
		IsAuthentic:        res.IsAuthentic,
		ConfidenceScore:    res.ConfidenceScore,
		SuspiciousElements: res.SuspiciousElements,
		Analysis:           res.Analysis,
		Provider:           provider,
		Items:              make([]models.ReceiptItem, 0, len(res.Items)),
	}
	for _, it := range res.Items {
		rec.Items = append(rec.Items, models.ReceiptItem{
			Name:       clampText(it.Name),
			Quantity:   clampAmount(it.Quantity),
			UnitPrice:  clampAmount(it.UnitPrice),
			TotalPrice: clampAmount(it.TotalPrice),
		})
	}
	return rec
}

func clampText(s string) string {
	if utf8.RuneCountInString(s) <= maxTextLen {
		return s
	}
	return string([]rune(s)[:maxTextLen])
}

// clampAmount drops values a NUMERIC(10, 2) column cannot hold once rounded.
func clampAmount(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.Round(math.Abs(*v)*100) >= maxAmount*100 {
		return nil
	}
	return v
}

// attachImage uploads the image to the object store when one is configured
// and falls back to keeping the data URI inline.
func (h *Handler) attachImage(ctx context.Context, rec *models.Receipt, image string) {
	if h.images != nil {
		mimeType, data, err := analysis.DecodeDataURI(image)
		if err == nil {
			key := store.ImageKey(rec.UserID, mimeType)
			if err = h.images.UploadImage(ctx, key, data, mimeType); err == nil {
				rec.ImageKey = key
				return
			}
		}
		h.logger.Warn("store receipt image, keeping it inline", "user_id", rec.UserID, "error", err)
	}
	rec.ImageData = image
}

func (h *Handler) archive(ctx context.Context, rec *models.Receipt, res *analysis.Result) {
	if h.extractions == nil {
		return
	}
	result, err := json.Marshal(res)
	if err != nil {
		h.logger.Warn("encode extraction", "receipt_id", rec.ID, "error", err)
		return
	}
	ext := &models.Extraction{
		ReceiptID: rec.ID,
		UserID:    rec.UserID,
		Provider:  rec.Provider,
		Raw:       res.Raw,
		Result:    result,
	}
	if err := h.extractions.InsertExtraction(ctx, ext); err != nil {
		h.logger.Warn("archive extraction", "receipt_id", rec.ID, "error", err)
	}
}

func (h *Handler) removeImage(ctx context.Context, key string) {
	if h.images == nil || key == "" {
		return
	}
	if err := h.images.RemoveImage(ctx, key); err != nil {
		h.logger.Warn("remove receipt image", "key", key, "error", err)
	}
}

// History lists scanned receipts, most recent scan first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	limit, offset := pagination(r)

	receipts, err := h.receipts.ListScanHistory(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("scan history", "user_id", userID, "error", err)
		response.ErrorDetails(w, http.StatusInternalServerError, msgListFailed, err)
		return
	}
	total, err := h.receipts.CountReceipts(r.Context(), userID, models.ReceiptFilter{})
	if err != nil {
		h.logger.Error("count receipts", "user_id", userID, "error", err)
		response.ErrorDetails(w, http.StatusInternalServerError, msgListFailed, err)
		return
	}

	response.OK(w, map[string]any{
		"success":  true,
		"receipts": receipts,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// List returns the user's receipts filtered by q, from and to.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	limit, offset := pagination(r)

	q := r.URL.Query()
	f := models.ReceiptFilter{
		Limit:  limit,
		Offset: offset,
		Query:  strings.TrimSpace(q.Get("q")),
		From:   q.Get("from"),
		To:     q.Get("to"),
	}
	if !validDate(f.From) || !validDate(f.To) {
		response.Error(w, http.StatusBadRequest, msgInvalidDate)
		return
	}

	receipts, err := h.receipts.ListReceipts(r.Context(), userID, f)
	if err != nil {
		h.logger.Error("list receipts", "user_id", userID, "error", err)
		response.ErrorDetails(w, http.StatusInternalServerError, msgListFailed, err)
		return
	}
	total, err := h.receipts.CountReceipts(r.Context(), userID, f)
	if err != nil {
		h.logger.Error("count receipts", "user_id", userID, "error", err)
		response.ErrorDetails(w, http.StatusInternalServerError, msgListFailed, err)
		return
	}

	response.OK(w, map[string]any{
		"receipts": receipts,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// Create stores a manually entered receipt.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.CreateReceiptRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgManualRequired)
		return
	}
	req.MerchantName = strings.TrimSpace(req.MerchantName)
	if msg := createError(h.validate.Struct(req)); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return
	}

	rec := &models.Receipt{
		UserID:             userID,
		MerchantName:       &req.MerchantName,
		TransactionDate:    &req.TransactionDate,
		TotalAmount:        req.TotalAmount,
		IsAuthentic:        true,
		ConfidenceScore:    100,
		SuspiciousElements: []string{},
		Analysis:           manualAnalysisText,
		Provider:           manualProvider,
		Items:              []models.ReceiptItem{},
	}
	for _, it := range req.Items {
		if name := strings.TrimSpace(it.Name); name != "" {
			it.Name = clampText(name)
			it.Quantity = clampAmount(it.Quantity)
			it.UnitPrice = clampAmount(it.UnitPrice)
			it.TotalPrice = clampAmount(it.TotalPrice)
			rec.Items = append(rec.Items, it)
		}
	}

	if err := h.receipts.CreateReceipt(r.Context(), rec); err != nil {
		h.logger.Error("create receipt", "user_id", userID, "error", err)
		response.ErrorDetails(w, http.StatusInternalServerError, msgSaveFailed, err)
		return
	}
	response.OK(w, map[string]any{"success": true, "receipt": rec})
}

func createError(err error) string {
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return msgManualRequired
	}
	for _, fe := range verrs {
		switch {
		case fe.Tag() == "required":
			return msgManualRequired
		case fe.Field() == "MerchantName":
			return msgMerchantTooLong
		case fe.Field() == "TransactionDate":
			return msgInvalidDate
		case fe.Field() == "TotalAmount":
			return msgInvalidAmount
		}
	}
	return msgManualRequired
}

// Get returns one receipt with its items.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id, ok := receiptID(w, r)
	if !ok {
		return
	}

	rec, err := h.receipts.GetReceipt(r.Context(), userID, id)
	if err != nil {
		h.logger.Error("get receipt", "user_id", userID, "receipt_id", id, "error", err)
		response.ErrorDetails(w, http.StatusInternalServerError, msgListFailed, err)
		return
	}
	if rec == nil {
		response.Error(w, http.StatusNotFound, msgNotFound)
		return
	}
	response.OK(w, map[string]any{"receipt": rec})
}

// Delete removes a receipt, its stored image and its archived extraction.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id, ok := receiptID(w, r)
	if !ok {
		return
	}

	key, found, err := h.receipts.DeleteReceipt(r.Context(), userID, id)
	if err != nil {
		h.logger.Error("delete receipt", "user_id", userID, "receipt_id", id, "error", err)
		response.ErrorDetails(w, http.StatusInternalServerError, msgDeleteFailed, err)
		return
	}
	if !found {
		response.Error(w, http.StatusNotFound, msgNotFound)
		return
	}

	h.removeImage(r.Context(), key)
	if h.extractions != nil {
		if err := h.extractions.DeleteExtractions(r.Context(), userID, id); err != nil {
			h.logger.Warn("delete extractions", "receipt_id", id, "error", err)
		}
	}
	response.OK(w, map[string]any{"success": true, "message": msgDeleted})
}

// Image streams the receipt photo from the object store or the inline copy.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id, ok := receiptID(w, r)
	if !ok {
		return
	}

	key, inline, found, err := h.receipts.GetReceiptImage(r.Context(), userID, id)
	if err != nil {
		h.logger.Error("get receipt image", "user_id", userID, "receipt_id", id, "error", err)
		response.ErrorDetails(w, http.StatusInternalServerError, msgListFailed, err)
		return
	}
	if !found {
		response.Error(w, http.StatusNotFound, msgNotFound)
		return
	}

	var (
		data        []byte
		contentType string
	)
	switch {
	case key != "" && h.images != nil:
		data, contentType, err = h.images.DownloadImage(r.Context(), key)
		if err != nil {
			h.logger.Error("download receipt image", "key", key, "error", err)
			response.ErrorDetails(w, http.StatusInternalServerError, msgImageMissing, err)
			return
		}
	case inline != "":
		contentType, data, err = analysis.DecodeDataURI(inline)
		if err != nil {
			response.Error(w, http.StatusNotFound, msgImageMissing)
			return
		}
	default:
		response.Error(w, http.StatusNotFound, msgImageMissing)
		return
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Extraction returns the archived raw analyzer output of a receipt.
func (h *Handler) Extraction(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id, ok := receiptID(w, r)
	if !ok {
		return
	}
	if h.extractions == nil {
		response.Error(w, http.StatusNotFound, msgNoExtraction)
		return
	}

	ext, err := h.extractions.GetExtraction(r.Context(), userID, id)
	if err != nil {
		h.logger.Error("get extraction", "user_id", userID, "receipt_id", id, "error", err)
		response.ErrorDetails(w, http.StatusInternalServerError, msgNoExtraction, err)
		return
	}
	if ext == nil {
		response.Error(w, http.StatusNotFound, msgNoExtraction)
		return
	}
	response.OK(w, map[string]any{"extraction": ext})
}

// Stats summarizes the user's receipts for the dashboard.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	st, err := h.receipts.ReceiptStats(r.Context(), userID)
	if err != nil {
		h.logger.Error("receipt stats", "user_id", userID, "error", err)
		response.ErrorDetails(w, http.StatusInternalServerError, msgStatsFailed, err)
		return
	}
	response.OK(w, st)
}

func receiptID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, http.StatusBadRequest, msgInvalidID)
		return 0, false
	}
	return id, true
}

// pagination reads limit and offset, falling back to 50 and 0.
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

func validDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
