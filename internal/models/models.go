package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trip is a planned journey owned by a single user.
type Trip struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Stops       []Stop          `json:"stops"`
	TotalBudget decimal.Decimal `json:"totalBudget"`
}

// Stop is one leg of a Trip. Stops are owned by their trip and replaced as a set.
type Stop struct {
	Country   string    `json:"country"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Position  int       `json:"position"`
}

// Clone returns a deep copy so snapshots never share the stop slice.
func (t Trip) Clone() Trip {
	cp := t
	if t.Stops != nil {
		cp.Stops = append([]Stop(nil), t.Stops...)
	}
	return cp
}

// Budget groups planned spending, optionally attached to a trip.
type Budget struct {
	ID      string        `json:"id"`
	TripID  *string       `json:"tripId,omitempty"`
	Payload BudgetPayload `json:"payload"`
}

// BudgetPayload is the normalized budget document stored in the data column.
type BudgetPayload struct {
	Name       string           `json:"name"`
	Currency   string           `json:"currency"`
	Total      decimal.Decimal  `json:"total"`
	Spent      decimal.Decimal  `json:"spent"`
	Categories []BudgetCategory `json:"categories,omitempty"`
}

// BudgetCategory is a named allocation inside a budget.
type BudgetCategory struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Clone returns a deep copy of the budget.
func (b Budget) Clone() Budget {
	cp := b
	if b.TripID != nil {
		id := *b.TripID
		cp.TripID = &id
	}
	if b.Payload.Categories != nil {
		cp.Payload.Categories = append([]BudgetCategory(nil), b.Payload.Categories...)
	}
	return cp
}

// VisitedCity records a city the user has been to.
type VisitedCity struct {
	ID        string    `json:"id"`
	City      string    `json:"city"`
	Country   string    `json:"country"`
	VisitedOn time.Time `json:"visitedOn"`
}

// CompletedCountry records a country the user has finished exploring.
type CompletedCountry struct {
	ID          string    `json:"id"`
	Country     string    `json:"country"`
	CompletedOn time.Time `json:"completedOn"`
}

// BuddyStatus is the lifecycle state of a buddy edge.
type BuddyStatus string

const (
	BuddyStatusPending  BuddyStatus = "pending"
	BuddyStatusAccepted BuddyStatus = "accepted"
)

// BuddyEdge is a directed relationship row. UserID initiated the request.
type BuddyEdge struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	BuddyID     string      `json:"buddyId"`
	Status      BuddyStatus `json:"status"`
	Highlighted bool        `json:"highlighted"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Profile is the public summary of a user.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	HomeCountry string `json:"homeCountry,omitempty"`
}

// Country is one entry of the reference country catalog.
type Country struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Region    string  `json:"region"`
	Capital   string  `json:"capital"`
	Currency  string  `json:"currency"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
