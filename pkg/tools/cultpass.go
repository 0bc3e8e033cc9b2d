package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// CultPass tool names.
const (
	ToolLookupCustomer       = "lookup_customer"
	ToolGetUserSubscription  = "get_user_subscription"
	ToolCancelSubscription   = "cancel_subscription"
	ToolAvailableExperiences = "get_available_experiences"
	ToolUserReservations     = "get_user_reservations"
	ToolCreateReservation    = "create_reservation"
	ToolSearchKnowledgeBase  = "search_knowledge_base"
)

const cultpassSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	is_blocked INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS subscriptions (
	subscription_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(user_id),
	status TEXT NOT NULL,
	tier TEXT NOT NULL,
	monthly_quota INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS experiences (
	experience_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	slots_available INTEGER NOT NULL,
	is_premium INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS reservations (
	reservation_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(user_id),
	experience_id TEXT NOT NULL REFERENCES experiences(experience_id),
	status TEXT NOT NULL
);
`

// CultPass is the customer database behind the account, subscription and
// reservation tools.
type CultPass struct {
	db *sql.DB
}

// OpenCultPass opens (creating if needed) the SQLite database at path.
// Use ":memory:" for tests.
func OpenCultPass(path string) (*CultPass, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(cultpassSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &CultPass{db: db}, nil
}

// Close closes the database.
func (c *CultPass) Close() error {
	return c.db.Close()
}

// LookupCustomer finds a customer by email.
func (c *CultPass) LookupCustomer(ctx context.Context, email string) (string, error) {
	var id, name string
	var blocked bool
	err := c.db.QueryRowContext(ctx,
		`SELECT user_id, full_name, is_blocked FROM users WHERE email = ?`,
		strings.TrimSpace(email),
	).Scan(&id, &name, &blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return "User not found.", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup customer: %w", err)
	}
	return fmt.Sprintf("User ID: %s, Name: %s, Blocked: %t", id, name, blocked), nil
}

// GetUserSubscription describes the customer's subscription.
func (c *CultPass) GetUserSubscription(ctx context.Context, userID string) (string, error) {
	var id, status, tier string
	var quota int
	err := c.db.QueryRowContext(ctx,
		`SELECT subscription_id, status, tier, monthly_quota FROM subscriptions WHERE user_id = ?`,
		userID,
	).Scan(&id, &status, &tier, &quota)
	if errors.Is(err, sql.ErrNoRows) {
		return "No subscription found.", nil
	}
	if err != nil {
		return "", fmt.Errorf("get subscription: %w", err)
	}
	return fmt.Sprintf("Sub ID: %s, Status: %s, Tier: %s, Quota: %d", id, status, tier, quota), nil
}

// CancelSubscription marks the customer's subscription cancelled.
func (c *CultPass) CancelSubscription(ctx context.Context, userID string) (string, error) {
	var id string
	err := c.db.QueryRowContext(ctx,
		`UPDATE subscriptions SET status = 'cancelled' WHERE user_id = ? RETURNING subscription_id`,
		userID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "Subscription not found.", nil
	}
	if err != nil {
		return "", fmt.Errorf("cancel subscription: %w", err)
	}
	return fmt.Sprintf("Success: Subscription %s cancelled.", id), nil
}

// AvailableExperiences lists up to five experiences with open slots.
func (c *CultPass) AvailableExperiences(ctx context.Context) (string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT experience_id, title, slots_available FROM experiences
		 WHERE slots_available > 0 ORDER BY experience_id LIMIT 5`)
	if err != nil {
		return "", fmt.Errorf("list experiences: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var id, title string
		var slots int
		if err := rows.Scan(&id, &title, &slots); err != nil {
			return "", fmt.Errorf("scan experience: %w", err)
		}
		lines = append(lines, fmt.Sprintf("- ID: %s | %s | Slots: %d", id, title, slots))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("list experiences: %w", err)
	}
	if len(lines) == 0 {
		return "No experiences found.", nil
	}
	return strings.Join(lines, "\n"), nil
}

// UserReservations lists the customer's reservations.
func (c *CultPass) UserReservations(ctx context.Context, userID string) (string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT reservation_id, experience_id, status FROM reservations
		 WHERE user_id = ? ORDER BY reservation_id`, userID)
	if err != nil {
		return "", fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var id, expID, status string
		if err := rows.Scan(&id, &expID, &status); err != nil {
			return "", fmt.Errorf("scan reservation: %w", err)
		}
		lines = append(lines, fmt.Sprintf("- ResID: %s | ExpID: %s | Status: %s", id, expID, status))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("list reservations: %w", err)
	}
	if len(lines) == 0 {
		return "No reservations found.", nil
	}
	return strings.Join(lines, "\n"), nil
}

// CreateReservation books an experience and takes one slot.
func (c *CultPass) CreateReservation(ctx context.Context, userID, experienceID string) (string, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin reservation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var slots int
	err = tx.QueryRowContext(ctx,
		`SELECT slots_available FROM experiences WHERE experience_id = ?`, experienceID,
	).Scan(&slots)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && slots < 1) {
		return "Experience not found or fully booked.", nil
	}
	if err != nil {
		return "", fmt.Errorf("read experience: %w", err)
	}

	id := uuid.NewString()[:8]
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (reservation_id, user_id, experience_id, status) VALUES (?, ?, ?, 'confirmed')`,
		id, userID, experienceID,
	); err != nil {
		return "", fmt.Errorf("insert reservation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE experiences SET slots_available = slots_available - 1 WHERE experience_id = ?`, experienceID,
	); err != nil {
		return "", fmt.Errorf("take slot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit reservation: %w", err)
	}
	return fmt.Sprintf("Success: Reservation %s confirmed.", id), nil
}

var (
	emailParams = json.RawMessage(`{
		"type": "object",
		"properties": {"email": {"type": "string", "minLength": 3, "description": "Customer email address"}},
		"required": ["email"],
		"additionalProperties": false
	}`)
	userParams = json.RawMessage(`{
		"type": "object",
		"properties": {"user_id": {"type": "string", "minLength": 1, "description": "CultPass user ID from lookup_customer"}},
		"required": ["user_id"],
		"additionalProperties": false
	}`)
	reservationParams = json.RawMessage(`{
		"type": "object",
		"properties": {
			"user_id": {"type": "string", "minLength": 1},
			"experience_id": {"type": "string", "minLength": 1}
		},
		"required": ["user_id", "experience_id"],
		"additionalProperties": false
	}`)
)

// Tools returns the CultPass tool set.
func (c *CultPass) Tools() []Tool {
	return []Tool{
		{
			Name:        ToolLookupCustomer,
			Description: "Retrieves a customer profile by email (ID, name, block status).",
			Parameters:  emailParams,
			Handler: func(ctx context.Context, args Args) (string, error) {
				return c.LookupCustomer(ctx, args.String("email"))
			},
		},
		{
			Name:        ToolGetUserSubscription,
			Description: "Fetches subscription details (tier, status, quota) for a user ID.",
			Parameters:  userParams,
			Handler: func(ctx context.Context, args Args) (string, error) {
				return c.GetUserSubscription(ctx, args.String("user_id"))
			},
		},
		{
			Name:        ToolCancelSubscription,
			Description: "Cancels a user's subscription immediately.",
			Parameters:  userParams,
			Handler: func(ctx context.Context, args Args) (string, error) {
				return c.CancelSubscription(ctx, args.String("user_id"))
			},
		},
		{
			Name:        ToolAvailableExperiences,
			Description: "Lists upcoming experiences that have available slots.",
			Handler: func(ctx context.Context, _ Args) (string, error) {
				return c.AvailableExperiences(ctx)
			},
		},
		{
			Name:        ToolUserReservations,
			Description: "Lists existing reservations for a user.",
			Parameters:  userParams,
			Handler: func(ctx context.Context, args Args) (string, error) {
				return c.UserReservations(ctx, args.String("user_id"))
			},
		},
		{
			Name:        ToolCreateReservation,
			Description: "Books an experience for a user if slots are available.",
			Parameters:  reservationParams,
			Handler: func(ctx context.Context, args Args) (string, error) {
				return c.CreateReservation(ctx, args.String("user_id"), args.String("experience_id"))
			},
		},
	}
}
