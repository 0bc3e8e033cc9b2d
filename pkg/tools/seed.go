package tools

import (
	"context"
	"fmt"
)

// User is a CultPass customer row.
type User struct {
	ID       string
	FullName string
	Email    string
	Blocked  bool
}

// Subscription is a CultPass subscription row.
type Subscription struct {
	ID           string
	UserID       string
	Status       string
	Tier         string
	MonthlyQuota int
}

// Experience is a bookable event.
type Experience struct {
	ID             string
	Title          string
	Location       string
	SlotsAvailable int
	Premium        bool
}

// Reservation is a booking of an experience.
type Reservation struct {
	ID           string
	UserID       string
	ExperienceID string
	Status       string
}

// SeedData is a full set of rows to load.
type SeedData struct {
	Users         []User
	Subscriptions []Subscription
	Experiences   []Experience
	Reservations  []Reservation
}

// Seed upserts data in one transaction.
func (c *CultPass) Seed(ctx context.Context, data SeedData) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, u := range data.Users {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO users (user_id, full_name, email, is_blocked) VALUES (?, ?, ?, ?)`,
			u.ID, u.FullName, u.Email, u.Blocked,
		); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for _, s := range data.Subscriptions {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO subscriptions (subscription_id, user_id, status, tier, monthly_quota) VALUES (?, ?, ?, ?, ?)`,
			s.ID, s.UserID, s.Status, s.Tier, s.MonthlyQuota,
		); err != nil {
			return fmt.Errorf("seed subscription %s: %w", s.ID, err)
		}
	}
	for _, e := range data.Experiences {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO experiences (experience_id, title, location, slots_available, is_premium) VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.Title, e.Location, e.SlotsAvailable, e.Premium,
		); err != nil {
			return fmt.Errorf("seed experience %s: %w", e.ID, err)
		}
	}
	for _, r := range data.Reservations {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO reservations (reservation_id, user_id, experience_id, status) VALUES (?, ?, ?, ?)`,
			r.ID, r.UserID, r.ExperienceID, r.Status,
		); err != nil {
			return fmt.Errorf("seed reservation %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// DemoData is a small customer base for local runs and tests.
func DemoData() SeedData {
	return SeedData{
		Users: []User{
			{ID: "a4ab87", FullName: "Alice Kingsley", Email: "alice.kingsley@wonderland.com"},
			{ID: "f556c0", FullName: "Bob Stone", Email: "bob.stone@granite.com", Blocked: true},
			{ID: "88382b", FullName: "Cathy Ray", Email: "cathy.ray@sunshine.org"},
		},
		Subscriptions: []Subscription{
			{ID: "S1", UserID: "a4ab87", Status: "active", Tier: "premium", MonthlyQuota: 8},
			{ID: "S2", UserID: "f556c0", Status: "paused", Tier: "basic", MonthlyQuota: 4},
		},
		Experiences: []Experience{
			{ID: "E01", Title: "Rooftop Jazz Night", Location: "São Paulo", SlotsAvailable: 12},
			{ID: "E02", Title: "Pottery Workshop", Location: "Rio de Janeiro", SlotsAvailable: 1},
			{ID: "E03", Title: "Chef's Table Dinner", Location: "São Paulo", SlotsAvailable: 0, Premium: true},
			{ID: "E04", Title: "Sunset Kayak Tour", Location: "Florianópolis", SlotsAvailable: 6},
		},
		Reservations: []Reservation{
			{ID: "R100", UserID: "a4ab87", ExperienceID: "E01", Status: "confirmed"},
		},
	}
}
