package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ayush/receipt-tracker/backend/internal/models"
)

// ErrAlertExists is returned by CreateAlert when the warranty already has an alert.
var ErrAlertExists = errors.New("alert already exists for warranty")

const warrantyCols = `w.id, w.user_id, w.receipt_id, w.product_name,
	to_char(w.purchase_date, 'YYYY-MM-DD'), w.warranty_duration_months,
	to_char(w.expiration_date, 'YYYY-MM-DD'), w.notes,
	r.merchant_name, r.total_amount::float8, (w.expiration_date - CURRENT_DATE),
	w.created_at, w.updated_at`

const warrantyFrom = ` FROM warranties w LEFT JOIN receipts r ON w.receipt_id = r.id`

func scanWarranty(row pgx.Row) (*models.Warranty, error) {
	var w models.Warranty
	err := row.Scan(
		&w.ID, &w.UserID, &w.ReceiptID, &w.ProductName,
		&w.PurchaseDate, &w.WarrantyDurationMonths,
		&w.ExpirationDate, &w.Notes,
		&w.MerchantName, &w.TotalAmount, &w.DaysRemaining,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func warrantyStatusClause(status models.WarrantyStatus) string {
	switch status {
	case models.WarrantyStatusActive:
		return " AND w.expiration_date >= CURRENT_DATE"
	case models.WarrantyStatusExpired:
		return " AND w.expiration_date < CURRENT_DATE"
	}
	return ""
}

// ListWarranties returns the user's warranties ordered by expiration date.
func (s *PostgresStore) ListWarranties(ctx context.Context, userID int64, status models.WarrantyStatus, limit, offset int) ([]models.Warranty, error) {
	query := `SELECT ` + warrantyCols + warrantyFrom +
		` WHERE w.user_id = $1` + warrantyStatusClause(status) +
		` ORDER BY w.expiration_date ASC LIMIT $2 OFFSET $3`
	return s.queryWarranties(ctx, query, userID, limit, offset)
}

func (s *PostgresStore) CountWarranties(ctx context.Context, userID int64, status models.WarrantyStatus) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM warranties w WHERE w.user_id = $1`+warrantyStatusClause(status), userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count warranties: %w", err)
	}
	return total, nil
}

// ListExpiringWarranties returns active warranties expiring within days.
func (s *PostgresStore) ListExpiringWarranties(ctx context.Context, userID int64, days int) ([]models.Warranty, error) {
	return s.queryWarranties(ctx,
		`SELECT `+warrantyCols+warrantyFrom+`
		 WHERE w.user_id = $1
		   AND w.expiration_date >= CURRENT_DATE
		   AND w.expiration_date <= CURRENT_DATE + $2::int
		 ORDER BY w.expiration_date ASC`,
		userID, days)
}

// GetWarranty returns nil, nil when the warranty does not exist for this user.
func (s *PostgresStore) GetWarranty(ctx context.Context, userID, id int64) (*models.Warranty, error) {
	w, err := scanWarranty(s.pool.QueryRow(ctx,
		`SELECT `+warrantyCols+warrantyFrom+` WHERE w.id = $1 AND w.user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get warranty: %w", err)
	}
	return w, nil
}

// CreateWarranty inserts w and returns the stored row. ExpirationDate must be set.
func (s *PostgresStore) CreateWarranty(ctx context.Context, w *models.Warranty) (*models.Warranty, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO warranties
		   (user_id, receipt_id, product_name, purchase_date, warranty_duration_months, expiration_date, notes)
		 VALUES ($1, $2, $3, $4::text::date, $5, $6::text::date, $7)
		 RETURNING id`,
		w.UserID, w.ReceiptID, w.ProductName, w.PurchaseDate, w.WarrantyDurationMonths, w.ExpirationDate, w.Notes,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create warranty: %w", err)
	}
	return s.GetWarranty(ctx, w.UserID, id)
}

// UpdateWarranty applies the non-nil fields of upd. It returns nil, nil when
// the warranty does not exist for this user.
func (s *PostgresStore) UpdateWarranty(ctx context.Context, userID, id int64, upd models.WarrantyUpdate) (*models.Warranty, error) {
	var (
		sets []string
		args []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if upd.ProductName != nil {
		add("product_name = $%d", *upd.ProductName)
	}
	if upd.PurchaseDate != nil {
		add("purchase_date = $%d::text::date", *upd.PurchaseDate)
	}
	if upd.WarrantyDurationMonths != nil {
		add("warranty_duration_months = $%d", *upd.WarrantyDurationMonths)
	}
	if upd.ExpirationDate != nil {
		add("expiration_date = $%d::text::date", *upd.ExpirationDate)
	}
	if upd.Notes != nil {
		add("notes = $%d", *upd.Notes)
	}
	if len(sets) == 0 {
		return s.GetWarranty(ctx, userID, id)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id, userID)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE warranties SET %s WHERE id = $%d AND user_id = $%d`,
			strings.Join(sets, ", "), len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("update warranty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return s.GetWarranty(ctx, userID, id)
}

// DeleteWarranty reports whether a warranty was removed.
func (s *PostgresStore) DeleteWarranty(ctx context.Context, userID, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM warranties WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete warranty: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) queryWarranties(ctx context.Context, query string, args ...any) ([]models.Warranty, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list warranties: %w", err)
	}
	defer rows.Close()

	warranties := []models.Warranty{}
	for rows.Next() {
		w, err := scanWarranty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan warranty: %w", err)
		}
		warranties = append(warranties, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list warranties: %w", err)
	}
	return warranties, nil
}

const alertCols = `a.id, a.user_id, a.warranty_id, a.alert_days_before, a.is_active,
	w.product_name, to_char(w.purchase_date, 'YYYY-MM-DD'), to_char(w.expiration_date, 'YYYY-MM-DD'),
	w.warranty_duration_months, (w.expiration_date - CURRENT_DATE), r.merchant_name, a.created_at`

const alertFrom = ` FROM warranty_alerts a
	JOIN warranties w ON a.warranty_id = w.id
	LEFT JOIN receipts r ON w.receipt_id = r.id`

func scanAlert(row pgx.Row) (*models.WarrantyAlert, error) {
	var a models.WarrantyAlert
	err := row.Scan(
		&a.ID, &a.UserID, &a.WarrantyID, &a.AlertDaysBefore, &a.IsActive,
		&a.ProductName, &a.PurchaseDate, &a.ExpirationDate,
		&a.WarrantyDurationMonths, &a.DaysRemaining, &a.MerchantName, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAlerts returns the user's alerts ordered by warranty expiration.
func (s *PostgresStore) ListAlerts(ctx context.Context, userID int64) ([]models.WarrantyAlert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertCols+alertFrom+` WHERE a.user_id = $1 ORDER BY w.expiration_date ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.WarrantyAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

// GetAlertByWarranty returns nil, nil when the warranty has no alert.
func (s *PostgresStore) GetAlertByWarranty(ctx context.Context, userID, warrantyID int64) (*models.WarrantyAlert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertCols+alertFrom+` WHERE a.warranty_id = $1 AND a.user_id = $2`, warrantyID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert by warranty: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) getAlert(ctx context.Context, userID, id int64) (*models.WarrantyAlert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertCols+alertFrom+` WHERE a.id = $1 AND a.user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// CreateAlert returns ErrAlertExists when the warranty already has an alert.
func (s *PostgresStore) CreateAlert(ctx context.Context, userID, warrantyID int64, daysBefore int) (*models.WarrantyAlert, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO warranty_alerts (user_id, warranty_id, alert_days_before, is_active)
		 VALUES ($1, $2, $3, TRUE)
		 RETURNING id`,
		userID, warrantyID, daysBefore,
	).Scan(&id)
	if isUniqueViolation(err) {
		return nil, ErrAlertExists
	}
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return s.getAlert(ctx, userID, id)
}

// UpdateAlert applies the non-nil fields of upd. It returns nil, nil when the
// alert does not exist for this user.
func (s *PostgresStore) UpdateAlert(ctx context.Context, userID, id int64, upd models.AlertUpdate) (*models.WarrantyAlert, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE warranty_alerts
		 SET alert_days_before = COALESCE($1, alert_days_before),
		     is_active = COALESCE($2, is_active)
		 WHERE id = $3 AND user_id = $4`,
		upd.AlertDaysBefore, upd.IsActive, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return s.getAlert(ctx, userID, id)
}

// DeleteAlert reports whether an alert was removed.
func (s *PostgresStore) DeleteAlert(ctx context.Context, userID, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM warranty_alerts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
