package model

import (
	"time"

	"github.com/google/uuid"
)

// Table is a seating position on the floor plan.
type Table struct {
	ID              uuid.UUID `json:"id" db:"id"`
	TableNumber     string    `json:"table_number" db:"table_number"`
	Seats           int32     `json:"seats" db:"seats"`
	Location        string    `json:"location" db:"location"`
	Status          string    `json:"status" db:"status"`
	CurrentCustomer string    `json:"current_customer" db:"current_customer"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
