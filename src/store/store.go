package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors the API layer maps to HTTP statuses.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("user with this email already exists")
)

// User is an account row. Password holds the bcrypt hash.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"-"`
	Role     string `json:"role"`
}

// Country is a reference data row.
type Country struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// State is a reference data row joined with its country name.
type State struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	CountryID   int    `json:"country_id"`
	CountryName string `json:"countryName"`
}

// HistoryEntry is one tracking event for a shipment, newest first in
// every listing.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
}

// Endpoint is the public-facing rendering of one side of a shipment.
type Endpoint struct {
	Country string `json:"country"`
	State   string `json:"state"`
	Address string `json:"address"`
}

// ShipmentView is the tracking-page rendering of a shipment. It is
// also the payload broadcast over the WebSocket after a status change.
type ShipmentView struct {
	ID                string         `json:"id"`
	TrackingNumber    string         `json:"trackingNumber"`
	Status            string         `json:"status"`
	Origin            Endpoint       `json:"origin"`
	Destination       Endpoint       `json:"destination"`
	Service           string         `json:"service,omitempty"`
	Weight            float64        `json:"weight,omitempty"`
	Dimensions        string         `json:"dimensions,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	EstimatedDelivery *time.Time     `json:"estimatedDelivery,omitempty"`
	History           []HistoryEntry `json:"history"`
}

// Party is the admin-facing rendering of a sender or recipient.
type Party struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	StateID   int    `json:"stateId"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	CountryID int    `json:"countryId"`
}

// ShipmentDetail is the admin rendering of a shipment with full
// sender/recipient contact data.
type ShipmentDetail struct {
	ID                string         `json:"id"`
	TrackingNumber    string         `json:"trackingNumber"`
	Status            string         `json:"status"`
	Sender            Party          `json:"sender"`
	Recipient         Party          `json:"recipient"`
	Service           string         `json:"service,omitempty"`
	Weight            float64        `json:"weight,omitempty"`
	Dimensions        string         `json:"dimensions,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	EstimatedDelivery *time.Time     `json:"estimatedDelivery,omitempty"`
	History           []HistoryEntry `json:"history"`
}

// ShipmentInput carries the writable fields for create and update.
type ShipmentInput struct {
	SenderName         string     `json:"senderName"`
	SenderEmail        string     `json:"senderEmail"`
	SenderPhone        string     `json:"senderPhone"`
	SenderAddress      string     `json:"senderAddress"`
	SenderCity         string     `json:"senderCity"`
	SenderStateID      int        `json:"senderStateId"`
	SenderZip          string     `json:"senderZip"`
	SenderCountryID    int        `json:"senderCountryId"`
	RecipientName      string     `json:"recipientName"`
	RecipientEmail     string     `json:"recipientEmail"`
	RecipientPhone     string     `json:"recipientPhone"`
	RecipientAddress   string     `json:"recipientAddress"`
	RecipientCity      string     `json:"recipientCity"`
	RecipientStateID   int        `json:"recipientStateId"`
	RecipientZip       string     `json:"recipientZip"`
	RecipientCountryID int        `json:"recipientCountryId"`
	Weight             float64    `json:"weight"`
	Dimensions         string     `json:"dimensions"`
	Service            string     `json:"service"`
	EstimatedDelivery  *time.Time `json:"estimatedDelivery"`
}

// Store is the persistence interface the API layer depends on.
// Transactional boundaries are per-call; multi-statement writes commit
// or roll back inside the implementation.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, email, passwordHash, role string) (User, error)

	ListShipments(ctx context.Context) ([]ShipmentView, error)
	GetShipmentByID(ctx context.Context, id string) (ShipmentDetail, error)
	GetShipmentByTracking(ctx context.Context, trackingNumber string) (ShipmentView, error)
	CreateShipment(ctx context.Context, trackingNumber string, in ShipmentInput) (string, error)
	UpdateShipment(ctx context.Context, id string, in ShipmentInput) error
	DeleteShipment(ctx context.Context, id string) error
	UpdateShipmentStatus(ctx context.Context, id, status, location, description string) (ShipmentView, error)

	ListCountries(ctx context.Context) ([]Country, error)
	ListStates(ctx context.Context) ([]State, error)
	ListStatesByCountry(ctx context.Context, countryID int) ([]State, error)
}
