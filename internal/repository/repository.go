package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sms-number-bot/internal/domain"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

const queryTimeout = 5 * time.Second

type dialect string

const (
	dialectPostgres dialect = "postgres"
	dialectSQLite   dialect = "sqlite"
)

// Repository persists users, sessions, orders, settings, prices and
// conversation states. Queries are written with ? placeholders and rebound
// for Postgres.
type Repository struct {
	db      *sql.DB
	dialect dialect
	url     string
}

// Open connects to a postgres:// or sqlite:// database URL.
func Open(databaseURL string) (*Repository, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return &Repository{db: db, dialect: dialectPostgres, url: databaseURL}, nil

	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// A single connection serializes writers and keeps the pragmas below
		// in effect for every query.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
		return &Repository{db: db, dialect: dialectSQLite, url: databaseURL}, nil
	}
	return nil, fmt.Errorf("unsupported database url %q", databaseURL)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// q rewrites ? placeholders as $1, $2, ... for Postgres.
func (r *Repository) q(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Seed inserts default prices and settings without overwriting existing rows.
func (r *Repository) Seed(ctx context.Context, prices map[string]float64, settings map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed: %w", err)
	}
	defer tx.Rollback()

	for country, price := range prices {
		if _, err := tx.ExecContext(ctx, r.q(`INSERT INTO prices (country, price) VALUES (?, ?) ON CONFLICT (country) DO NOTHING`), country, price); err != nil {
			return fmt.Errorf("failed to seed price %s: %w", country, err)
		}
	}
	for key, value := range settings {
		if _, err := tx.ExecContext(ctx, r.q(`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO NOTHING`), key, value); err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	log.WithFields(log.Fields{"prices": len(prices), "settings": len(settings)}).Debug("Default prices and settings seeded")
	return nil
}

// GetSetting returns def when the key is not set.
func (r *Repository) GetSetting(ctx context.Context, key, def string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var value string
	err := r.db.QueryRowContext(ctx, r.q(`SELECT value FROM settings WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        INSERT INTO settings (key, value) VALUES (?, ?)
        ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := r.db.ExecContext(ctx, r.q(query), key, value); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// ToggleSetting flips a "1"/"0" flag in one statement and returns the new
// value. An unset flag counts as "1", so its first toggle stores "0".
func (r *Repository) ToggleSetting(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        INSERT INTO settings (key, value) VALUES (?, '0')
        ON CONFLICT (key) DO UPDATE SET value = CASE WHEN settings.value = '1' THEN '0' ELSE '1' END
        RETURNING value`
	var value string
	if err := r.db.QueryRowContext(ctx, r.q(query), key).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to toggle setting %s: %w", key, err)
	}
	return value, nil
}

// GetPrice returns def when the country has no price row.
func (r *Repository) GetPrice(ctx context.Context, country string, def float64) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var price float64
	err := r.db.QueryRowContext(ctx, r.q(`SELECT price FROM prices WHERE country = ?`), country).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get price for %s: %w", country, err)
	}
	return price, nil
}

func (r *Repository) SetPrice(ctx context.Context, country string, price float64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        INSERT INTO prices (country, price) VALUES (?, ?)
        ON CONFLICT (country) DO UPDATE SET price = excluded.price`
	if _, err := r.db.ExecContext(ctx, r.q(query), country, price); err != nil {
		return fmt.Errorf("failed to set price for %s: %w", country, err)
	}
	log.WithFields(log.Fields{"country": country, "price": price}).Info("Price updated")
	return nil
}

func (r *Repository) ListPrices(ctx context.Context) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT country, price FROM prices`)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]float64)
	for rows.Next() {
		var country string
		var price float64
		if err := rows.Scan(&country, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices[country] = price
	}
	return prices, rows.Err()
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        SELECT user_id, email, balance, created_at, last_locale, last_seen
        FROM users WHERE user_id = ?`
	var (
		u        domain.User
		email    sql.NullString
		locale   sql.NullString
		lastSeen sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, r.q(query), id).Scan(&u.ID, &email, &u.Balance, &u.CreatedAt, &locale, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	u.Email = email.String
	u.LastLocale = locale.String
	u.LastSeen = lastSeen.Time
	return &u, nil
}

// UpsertUser inserts a new user with zero balance or updates email and
// last-seen in place, and marks the session logged in, in one transaction.
// It reports whether the user was created.
func (r *Repository) UpsertUser(ctx context.Context, in domain.UserUpsert) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin user upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var one int
	err = tx.QueryRowContext(ctx, r.q(`SELECT 1 FROM users WHERE user_id = ?`), in.ID).Scan(&one)
	created := errors.Is(err, sql.ErrNoRows)
	switch {
	case created:
		const insert = `
            INSERT INTO users (user_id, email, balance, created_at, last_locale, last_seen)
            VALUES (?, ?, 0, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, r.q(insert), in.ID, nullString(in.Email), now, nullString(in.Locale), now); err != nil {
			return false, fmt.Errorf("failed to insert user %d: %w", in.ID, err)
		}
	case err != nil:
		return false, fmt.Errorf("failed to look up user %d: %w", in.ID, err)
	default:
		if in.Email != "" {
			if _, err := tx.ExecContext(ctx, r.q(`UPDATE users SET email = ? WHERE user_id = ?`), in.Email, in.ID); err != nil {
				return false, fmt.Errorf("failed to update email for user %d: %w", in.ID, err)
			}
		}
		const touch = `UPDATE users SET last_locale = COALESCE(?, last_locale), last_seen = ? WHERE user_id = ?`
		if _, err := tx.ExecContext(ctx, r.q(touch), nullString(in.Locale), now, in.ID); err != nil {
			return false, fmt.Errorf("failed to update last seen for user %d: %w", in.ID, err)
		}
	}

	const session = `
        INSERT INTO sessions (user_id, logged_in) VALUES (?, ?)
        ON CONFLICT (user_id) DO UPDATE SET logged_in = excluded.logged_in`
	if _, err := tx.ExecContext(ctx, r.q(session), in.ID, true); err != nil {
		return false, fmt.Errorf("failed to upsert session for user %d: %w", in.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit user upsert: %w", err)
	}
	return created, nil
}

func (r *Repository) IsLoggedIn(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var loggedIn bool
	err := r.db.QueryRowContext(ctx, r.q(`SELECT logged_in FROM sessions WHERE user_id = ?`), id).Scan(&loggedIn)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get session for user %d: %w", id, err)
	}
	return loggedIn, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) CreateOrder(ctx context.Context, o *domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return r.insertOrder(ctx, r.db, o)
}

// CreateOrderAndAdvance inserts the order and stores the conversation in one
// transaction, so a failed state write leaves no order behind.
func (r *Repository) CreateOrderAndAdvance(ctx context.Context, o *domain.Order, conv *domain.Conversation) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order: %w", err)
	}
	defer tx.Rollback()

	if err := r.insertOrder(ctx, tx, o); err != nil {
		return err
	}
	if conv.State == domain.StateIdle {
		err = r.deleteConversation(ctx, tx, conv.UserID)
	} else {
		err = r.upsertConversation(ctx, tx, conv)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func (r *Repository) insertOrder(ctx context.Context, db execer, o *domain.Order) error {
	log.WithFields(log.Fields{
		"user_id":  o.UserID,
		"provider": o.Provider,
		"country":  o.Country,
		"service":  o.Service,
		"price":    o.Price,
	}).Info("Saving order to database")

	const query = `
        INSERT INTO orders (user_id, provider, country, service, phone, price, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, r.q(query), o.UserID, o.Provider, o.Country, o.Service, o.Phone, o.Price, string(o.Status), o.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// ListOrdersByUser returns the user's orders, newest first.
func (r *Repository) ListOrdersByUser(ctx context.Context, userID int64, limit int) ([]*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        SELECT id, user_id, provider, country, service, phone, price, status, created_at
        FROM orders WHERE user_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, r.q(query), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for user %d: %w", userID, err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.Provider, &o.Country, &o.Service, &o.Phone, &o.Price, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (r *Repository) CountOrders(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM orders`)
}

func (r *Repository) CountOrdersByUser(ctx context.Context, userID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = ?`, userID)
}

func (r *Repository) count(ctx context.Context, query string, args ...any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int
	if err := r.db.QueryRowContext(ctx, r.q(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

// GetConversation returns an idle conversation when none is stored.
func (r *Repository) GetConversation(ctx context.Context, userID int64) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var state, data string
	err := r.db.QueryRowContext(ctx, r.q(`SELECT state, data FROM conversation_states WHERE user_id = ?`), userID).Scan(&state, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.Conversation{UserID: userID, State: domain.StateIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation for user %d: %w", userID, err)
	}

	conv := &domain.Conversation{UserID: userID, State: domain.State(state)}
	if err := json.Unmarshal([]byte(data), &conv.Data); err != nil {
		return nil, fmt.Errorf("failed to decode conversation data for user %d: %w", userID, err)
	}
	return conv, nil
}

// SaveConversation stores the conversation. An idle conversation is deleted
// instead, since the flow it belonged to has finished.
func (r *Repository) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if conv.State == domain.StateIdle {
		return r.deleteConversation(ctx, r.db, conv.UserID)
	}
	return r.upsertConversation(ctx, r.db, conv)
}

func (r *Repository) ClearConversation(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return r.deleteConversation(ctx, r.db, userID)
}

func (r *Repository) upsertConversation(ctx context.Context, db execer, conv *domain.Conversation) error {
	data, err := json.Marshal(conv.Data)
	if err != nil {
		return fmt.Errorf("failed to encode conversation data: %w", err)
	}
	const query = `
        INSERT INTO conversation_states (user_id, state, data, updated_at) VALUES (?, ?, ?, ?)
        ON CONFLICT (user_id) DO UPDATE SET state = excluded.state, data = excluded.data, updated_at = excluded.updated_at`
	if _, err := db.ExecContext(ctx, r.q(query), conv.UserID, string(conv.State), string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save conversation for user %d: %w", conv.UserID, err)
	}
	return nil
}

func (r *Repository) deleteConversation(ctx context.Context, db execer, userID int64) error {
	if _, err := db.ExecContext(ctx, r.q(`DELETE FROM conversation_states WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("failed to clear conversation for user %d: %w", userID, err)
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
