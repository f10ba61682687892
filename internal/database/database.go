package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"budget-cart-api/internal/models"
)

var (
	// ErrSessionNotFound is returned when no active session matches the key.
	ErrSessionNotFound = errors.New("database: active session not found")
	// ErrRecommendationNotFound is returned when a recommendation id does not exist.
	ErrRecommendationNotFound = errors.New("database: recommendation not found")
	// ErrDuplicateCode is returned when a discount code collides with an
	// existing one. Callers regenerate the code and retry.
	ErrDuplicateCode = errors.New("database: discount code already exists")
)

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist. The unique
// index on (store_id, customer_id, session_id, is_active) is what makes the
// session upsert atomic: two racing writers cannot both insert.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cart_sessions (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			items TEXT NOT NULL,
			item_count INTEGER NOT NULL,
			subtotal_cents INTEGER NOT NULL,
			breakdown TEXT NOT NULL,
			remaining TEXT NOT NULL,
			applied_discounts TEXT NOT NULL DEFAULT '[]',
			recommended_products TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_session
			ON cart_sessions(store_id, customer_id, session_id, is_active)`,
		`CREATE TABLE IF NOT EXISTS recommendations (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			title TEXT NOT NULL,
			price_cents INTEGER NOT NULL,
			budget_category TEXT NOT NULL,
			reason TEXT NOT NULL,
			remaining_after_cents INTEGER NOT NULL,
			priority INTEGER NOT NULL,
			is_clicked INTEGER NOT NULL DEFAULT 0,
			is_purchased INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rec_customer
			ON recommendations(store_id, customer_id)`,
		`CREATE TABLE IF NOT EXISTS discounts (
			code TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			cart_session_id TEXT NOT NULL,
			type TEXT NOT NULL,
			value INTEGER NOT NULL,
			minimum_amount_cents INTEGER NOT NULL,
			applied_amount_cents INTEGER NOT NULL,
			is_applied INTEGER NOT NULL DEFAULT 0,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_discount_session
			ON discounts(cart_session_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// UpsertSession writes the session snapshot atomically: an insert that, on
// hitting the active-session unique index, overwrites the existing row's
// snapshot in place. The stored id and created_at survive updates. The
// resulting row is read back and returned.
func (db *DB) UpsertSession(ctx context.Context, session models.CartSession) (models.CartSession, error) {
	itemsJSON, err := json.Marshal(session.Items)
	if err != nil {
		return models.CartSession{}, fmt.Errorf("failed to serialize items: %w", err)
	}
	breakdownJSON, err := json.Marshal(session.Breakdown)
	if err != nil {
		return models.CartSession{}, fmt.Errorf("failed to serialize breakdown: %w", err)
	}
	remainingJSON, err := json.Marshal(session.Remaining)
	if err != nil {
		return models.CartSession{}, fmt.Errorf("failed to serialize remaining budget: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	query := `INSERT INTO cart_sessions (
		id, store_id, customer_id, session_id, is_active,
		items, item_count, subtotal_cents, breakdown, remaining,
		applied_discounts, recommended_products, created_at, updated_at
	) VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?, '[]', '[]', ?, ?)
	ON CONFLICT(store_id, customer_id, session_id, is_active) DO UPDATE SET
		items = excluded.items,
		item_count = excluded.item_count,
		subtotal_cents = excluded.subtotal_cents,
		breakdown = excluded.breakdown,
		remaining = excluded.remaining,
		updated_at = excluded.updated_at`

	_, err = db.conn.ExecContext(
		ctx,
		query,
		session.ID,
		session.StoreID,
		session.CustomerID,
		session.SessionID,
		string(itemsJSON),
		session.ItemCount,
		session.SubtotalCents,
		string(breakdownJSON),
		string(remainingJSON),
		now,
		now,
	)
	if err != nil {
		return models.CartSession{}, fmt.Errorf("failed to upsert session: %w", err)
	}

	return db.GetActiveSession(ctx, session.StoreID, session.CustomerID, session.SessionID)
}

// GetActiveSession returns the unique active session for the key triple,
// or ErrSessionNotFound.
func (db *DB) GetActiveSession(ctx context.Context, storeID, customerID, sessionID string) (models.CartSession, error) {
	query := `SELECT id, store_id, customer_id, session_id, is_active,
		items, item_count, subtotal_cents, breakdown, remaining,
		applied_discounts, recommended_products, created_at, updated_at
		FROM cart_sessions
		WHERE store_id = ? AND customer_id = ? AND session_id = ? AND is_active = 1
		LIMIT 1`

	var (
		session       models.CartSession
		isActive      int
		itemsJSON     string
		breakdownJSON string
		remainingJSON string
		discountsJSON string
		productsJSON  string
		createdAtStr  string
		updatedAtStr  string
	)

	err := db.conn.QueryRowContext(ctx, query, storeID, customerID, sessionID).Scan(
		&session.ID,
		&session.StoreID,
		&session.CustomerID,
		&session.SessionID,
		&isActive,
		&itemsJSON,
		&session.ItemCount,
		&session.SubtotalCents,
		&breakdownJSON,
		&remainingJSON,
		&discountsJSON,
		&productsJSON,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return models.CartSession{}, ErrSessionNotFound
	}
	if err != nil {
		return models.CartSession{}, fmt.Errorf("failed to query session: %w", err)
	}

	session.IsActive = isActive == 1

	if err := json.Unmarshal([]byte(itemsJSON), &session.Items); err != nil {
		return models.CartSession{}, fmt.Errorf("failed to parse stored items: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdownJSON), &session.Breakdown); err != nil {
		return models.CartSession{}, fmt.Errorf("failed to parse stored breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(remainingJSON), &session.Remaining); err != nil {
		return models.CartSession{}, fmt.Errorf("failed to parse stored remaining budget: %w", err)
	}
	session.AppliedDiscounts = deserializeStringList(discountsJSON)
	session.RecommendedProducts = deserializeStringList(productsJSON)

	session.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return models.CartSession{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	session.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return models.CartSession{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return session, nil
}

// InsertRecommendations writes a batch of recommendations inside a single
// SQL transaction so a mid-sequence failure leaves no partial rows.
func (db *DB) InsertRecommendations(ctx context.Context, recs []models.ProductRecommendation) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO recommendations (
		id, store_id, customer_id, product_id, title, price_cents,
		budget_category, reason, remaining_after_cents, priority,
		is_clicked, is_purchased, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		_, err := stmt.ExecContext(
			ctx,
			rec.ID,
			rec.StoreID,
			rec.CustomerID,
			rec.ProductID,
			rec.Title,
			rec.PriceCents,
			string(rec.BudgetCategory),
			rec.Reason,
			rec.RemainingAfterCents,
			rec.Priority,
			rec.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert recommendation %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListRecommendations returns up to limit stored recommendations for the
// customer, highest priority first, newest first within a priority.
func (db *DB) ListRecommendations(ctx context.Context, storeID, customerID string, limit int) ([]models.ProductRecommendation, error) {
	query := `SELECT id, store_id, customer_id, product_id, title, price_cents,
		budget_category, reason, remaining_after_cents, priority,
		is_clicked, is_purchased, created_at
		FROM recommendations
		WHERE store_id = ? AND customer_id = ?
		ORDER BY priority DESC, created_at DESC
		LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, storeID, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []models.ProductRecommendation
	for rows.Next() {
		var (
			rec          models.ProductRecommendation
			category     string
			isClicked    int
			isPurchased  int
			createdAtStr string
		)

		err := rows.Scan(
			&rec.ID,
			&rec.StoreID,
			&rec.CustomerID,
			&rec.ProductID,
			&rec.Title,
			&rec.PriceCents,
			&category,
			&rec.Reason,
			&rec.RemainingAfterCents,
			&rec.Priority,
			&isClicked,
			&isPurchased,
			&createdAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}

		rec.BudgetCategory = models.BudgetCategory(category)
		rec.IsClicked = isClicked == 1
		rec.IsPurchased = isPurchased == 1

		rec.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recommendations: %w", err)
	}

	return recs, nil
}

// MarkRecommendationClicked sets the one-way clicked flag. Re-marking an
// already-clicked row succeeds without change.
func (db *DB) MarkRecommendationClicked(ctx context.Context, id string) error {
	return db.setRecommendationFlag(ctx, id, "is_clicked")
}

// MarkRecommendationPurchased sets the one-way purchased flag.
func (db *DB) MarkRecommendationPurchased(ctx context.Context, id string) error {
	return db.setRecommendationFlag(ctx, id, "is_purchased")
}

func (db *DB) setRecommendationFlag(ctx context.Context, id, column string) error {
	// column is one of two fixed names, never caller input.
	query := fmt.Sprintf(`UPDATE recommendations SET %s = 1 WHERE id = ?`, column)

	res, err := db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to update recommendation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrRecommendationNotFound
	}

	return nil
}

// InsertDiscounts writes the discounts created by one apply call inside a
// single SQL transaction. A code collision surfaces as ErrDuplicateCode so
// the caller can regenerate codes and retry the whole batch.
func (db *DB) InsertDiscounts(ctx context.Context, discounts []models.AutoDiscount) error {
	if len(discounts) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO discounts (
		code, store_id, customer_id, cart_session_id, type, value,
		minimum_amount_cents, applied_amount_cents, is_applied,
		expires_at, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range discounts {
		isApplied := 0
		if d.IsApplied {
			isApplied = 1
		}

		_, err := stmt.ExecContext(
			ctx,
			d.Code,
			d.StoreID,
			d.CustomerID,
			d.CartSessionID,
			string(d.Type),
			d.Value,
			d.MinimumAmountCents,
			d.AppliedAmountCents,
			isApplied,
			d.ExpiresAt.UTC().Format(time.RFC3339),
			d.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateCode
			}
			return fmt.Errorf("failed to insert discount %s: %w", d.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListDiscountsForSession returns every discount granted against a session,
// newest first.
func (db *DB) ListDiscountsForSession(ctx context.Context, cartSessionID string) ([]models.AutoDiscount, error) {
	query := `SELECT code, store_id, customer_id, cart_session_id, type, value,
		minimum_amount_cents, applied_amount_cents, is_applied, expires_at, created_at
		FROM discounts
		WHERE cart_session_id = ?
		ORDER BY created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, cartSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query discounts: %w", err)
	}
	defer rows.Close()

	var discounts []models.AutoDiscount
	for rows.Next() {
		var (
			d            models.AutoDiscount
			dtype        string
			isApplied    int
			expiresAtStr string
			createdAtStr string
		)

		err := rows.Scan(
			&d.Code,
			&d.StoreID,
			&d.CustomerID,
			&d.CartSessionID,
			&dtype,
			&d.Value,
			&d.MinimumAmountCents,
			&d.AppliedAmountCents,
			&isApplied,
			&expiresAtStr,
			&createdAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discount: %w", err)
		}

		d.Type = models.DiscountType(dtype)
		d.IsApplied = isApplied == 1

		d.ExpiresAt, err = time.Parse(time.RFC3339, expiresAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expires_at: %w", err)
		}
		d.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		discounts = append(discounts, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating discounts: %w", err)
	}

	return discounts, nil
}

// isUniqueViolation reports whether err is a sqlite unique or primary key
// constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// deserializeStringList parses a stored JSON string array, tolerating the
// empty-list defaults written by older rows.
func deserializeStringList(serialized string) []string {
	if serialized == "" || serialized == "[]" {
		return []string{}
	}

	var result []string
	if err := json.Unmarshal([]byte(serialized), &result); err != nil {
		return []string{}
	}
	return result
}
