package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ayush/receipt-tracker/backend/internal/models"
)

// image_data is never selected here; GetReceiptImage reads it on demand.
const receiptCols = `r.id, r.user_id, r.merchant_name, to_char(r.transaction_date, 'YYYY-MM-DD'),
	r.total_amount::float8, r.is_authentic, r.confidence_score, r.suspicious_elements,
	r.analysis, r.provider, r.image_key, (r.image_key <> '' OR r.image_data <> ''),
	r.created_at, r.updated_at`

func scanReceipt(row pgx.Row) (*models.Receipt, error) {
	var (
		rec        models.Receipt
		suspicious []byte
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.MerchantName, &rec.TransactionDate,
		&rec.TotalAmount, &rec.IsAuthentic, &rec.ConfidenceScore, &suspicious,
		&rec.Analysis, &rec.Provider, &rec.ImageKey, &rec.HasImage,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.SuspiciousElements = []string{}
	if len(suspicious) > 0 {
		if err := json.Unmarshal(suspicious, &rec.SuspiciousElements); err != nil {
			return nil, fmt.Errorf("decode suspicious_elements: %w", err)
		}
	}
	rec.Items = []models.ReceiptItem{}
	return &rec, nil
}

// CreateReceipt inserts the receipt and its items in a single transaction and
// fills in ID, CreatedAt and UpdatedAt.
func (s *PostgresStore) CreateReceipt(ctx context.Context, rec *models.Receipt) error {
	suspicious := rec.SuspiciousElements
	if suspicious == nil {
		suspicious = []string{}
	}
	suspiciousJSON, err := json.Marshal(suspicious)
	if err != nil {
		return fmt.Errorf("encode suspicious_elements: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO receipts
		   (user_id, merchant_name, transaction_date, total_amount, is_authentic,
		    confidence_score, suspicious_elements, analysis, provider, image_key, image_data)
		 VALUES ($1, $2, $3::text::date, $4, $5, $6, $7::text::jsonb, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		rec.UserID, rec.MerchantName, rec.TransactionDate, rec.TotalAmount, rec.IsAuthentic,
		rec.ConfidenceScore, string(suspiciousJSON), rec.Analysis, rec.Provider, rec.ImageKey, rec.ImageData,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}

	if len(rec.Items) > 0 {
		batch := &pgx.Batch{}
		for _, item := range rec.Items {
			batch.Queue(
				`INSERT INTO receipt_items (receipt_id, name, quantity, unit_price, total_price)
				 VALUES ($1, $2, $3, $4, $5)`,
				rec.ID, item.Name, item.Quantity, item.UnitPrice, item.TotalPrice,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert receipt items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit receipt: %w", err)
	}

	rec.HasImage = rec.ImageKey != "" || rec.ImageData != ""
	for i := range rec.Items {
		rec.Items[i].ReceiptID = rec.ID
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// receiptWhere builds the WHERE clause shared by ListReceipts and CountReceipts.
func receiptWhere(userID int64, f models.ReceiptFilter) (string, []any) {
	clauses := []string{"r.user_id = $1"}
	args := []any{userID}

	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			`(r.merchant_name ILIKE $%[1]d
			  OR to_char(r.transaction_date, 'YYYY-MM-DD') LIKE $%[1]d
			  OR EXISTS (SELECT 1 FROM receipt_items i WHERE i.receipt_id = r.id AND i.name ILIKE $%[1]d))`, n))
	}
	if f.From != "" {
		args = append(args, f.From)
		clauses = append(clauses, fmt.Sprintf("r.transaction_date >= $%d::text::date", len(args)))
	}
	if f.To != "" {
		args = append(args, f.To)
		clauses = append(clauses, fmt.Sprintf("r.transaction_date <= $%d::text::date", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

// ListReceipts returns the user's receipts, newest transaction first.
func (s *PostgresStore) ListReceipts(ctx context.Context, userID int64, f models.ReceiptFilter) ([]models.Receipt, error) {
	where, args := receiptWhere(userID, f)
	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(
		`SELECT %s FROM receipts r WHERE %s
		 ORDER BY r.transaction_date DESC NULLS LAST, r.created_at DESC
		 LIMIT $%d OFFSET $%d`,
		receiptCols, where, len(args)-1, len(args))
	return s.queryReceipts(ctx, query, args...)
}

// CountReceipts counts the receipts ListReceipts would return without paging.
func (s *PostgresStore) CountReceipts(ctx context.Context, userID int64, f models.ReceiptFilter) (int, error) {
	where, args := receiptWhere(userID, f)
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM receipts r WHERE `+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count receipts: %w", err)
	}
	return total, nil
}

// ListScanHistory returns the user's receipts in scan order, newest first.
func (s *PostgresStore) ListScanHistory(ctx context.Context, userID int64, limit, offset int) ([]models.Receipt, error) {
	return s.queryReceipts(ctx,
		`SELECT `+receiptCols+` FROM receipts r
		 WHERE r.user_id = $1
		 ORDER BY r.created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset)
}

// GetReceipt returns nil, nil when the receipt does not exist or belongs to another user.
func (s *PostgresStore) GetReceipt(ctx context.Context, userID, id int64) (*models.Receipt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+receiptCols+` FROM receipts r WHERE r.id = $1 AND r.user_id = $2`, id, userID)
	rec, err := scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	items, err := s.loadItems(ctx, []int64{rec.ID})
	if err != nil {
		return nil, err
	}
	if its, ok := items[rec.ID]; ok {
		rec.Items = its
	}
	return rec, nil
}

// GetReceiptImage returns the object key or inline data URI of a receipt image.
// found is false when the receipt does not exist for this user.
func (s *PostgresStore) GetReceiptImage(ctx context.Context, userID, id int64) (key, data string, found bool, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT image_key, image_data FROM receipts WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&key, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("get receipt image: %w", err)
	}
	return key, data, true, nil
}

// DeleteReceipt removes the receipt (items cascade) and returns its image key.
func (s *PostgresStore) DeleteReceipt(ctx context.Context, userID, id int64) (imageKey string, found bool, err error) {
	err = s.pool.QueryRow(ctx,
		`DELETE FROM receipts WHERE id = $1 AND user_id = $2 RETURNING image_key`, id, userID,
	).Scan(&imageKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("delete receipt: %w", err)
	}
	return imageKey, true, nil
}

// ReceiptStats aggregates totals and the last twelve months of spend.
func (s *PostgresStore) ReceiptStats(ctx context.Context, userID int64) (*models.ReceiptStats, error) {
	var st models.ReceiptStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(total_amount), 0)::float8,
		        COUNT(*) FILTER (WHERE is_authentic),
		        COUNT(*) FILTER (WHERE NOT is_authentic),
		        COALESCE(AVG(confidence_score), 0)::float8
		 FROM receipts WHERE user_id = $1`,
		userID,
	).Scan(&st.TotalReceipts, &st.TotalAmount, &st.AuthenticCount, &st.SuspiciousCount, &st.AverageConfidence)
	if err != nil {
		return nil, fmt.Errorf("receipt totals: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT to_char(date_trunc('month', COALESCE(transaction_date, created_at::date)), 'YYYY-MM') AS month,
		        COALESCE(SUM(total_amount), 0)::float8,
		        COUNT(*)
		 FROM receipts WHERE user_id = $1
		 GROUP BY month
		 ORDER BY month DESC
		 LIMIT 12`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("receipt monthly totals: %w", err)
	}
	defer rows.Close()

	st.Monthly = []models.MonthlyTotal{}
	for rows.Next() {
		var m models.MonthlyTotal
		if err := rows.Scan(&m.Month, &m.Total, &m.Count); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		st.Monthly = append(st.Monthly, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("receipt monthly totals: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) queryReceipts(ctx context.Context, query string, args ...any) ([]models.Receipt, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	receipts := []models.Receipt{}
	var ids []int64
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, *rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	if len(ids) == 0 {
		return receipts, nil
	}

	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range receipts {
		if its, ok := items[receipts[i].ID]; ok {
			receipts[i].Items = its
		}
	}
	return receipts, nil
}

func (s *PostgresStore) loadItems(ctx context.Context, receiptIDs []int64) (map[int64][]models.ReceiptItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, receipt_id, name, quantity::float8, unit_price::float8, total_price::float8
		 FROM receipt_items
		 WHERE receipt_id = ANY($1)
		 ORDER BY id`,
		receiptIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list receipt items: %w", err)
	}
	defer rows.Close()

	byReceipt := make(map[int64][]models.ReceiptItem, len(receiptIDs))
	for rows.Next() {
		var it models.ReceiptItem
		if err := rows.Scan(&it.ID, &it.ReceiptID, &it.Name, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan receipt item: %w", err)
		}
		byReceipt[it.ReceiptID] = append(byReceipt[it.ReceiptID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list receipt items: %w", err)
	}
	return byReceipt, nil
}
