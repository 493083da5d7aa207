/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  domain model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags; handlers run the
  validator before touching the engine.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/mess-engine/mess"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ReserveRequest books meal slots. Date is optional and defaults to
// tomorrow; when present it must be a future YYYY-MM-DD date.
type ReserveRequest struct {
	Date  string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Slots []string `json:"slots" validate:"required,min=1,dive,oneof=breakfast lunch snacks dinner"`
}

// VerifyRequest marks a booked slot as collected.
type VerifyRequest struct {
	BookingID string `json:"booking_id" validate:"required"`
	Slot      string `json:"slot" validate:"required,oneof=breakfast lunch snacks dinner"`
}

// CreateStudentRequest registers a ledger owner.
type CreateStudentRequest struct {
	RollNo   string `json:"roll_no" validate:"required"`
	Name     string `json:"name" validate:"required"`
	MessName string `json:"mess_name" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=student admin"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// BookingDTO represents a booking in API responses.
type BookingDTO struct {
	ID        string       `json:"id"`
	StudentID string       `json:"student_id"`
	Date      string       `json:"date"`
	Booked    mess.SlotSet `json:"booked"`
	Verified  mess.SlotSet `json:"verified"`
}

func toBookingDTO(b *mess.Booking) BookingDTO {
	return BookingDTO{
		ID:        b.ID,
		StudentID: b.StudentID,
		Date:      b.Date.Format("2006-01-02"),
		Booked:    b.Booked,
		Verified:  b.Verified,
	}
}

// ReserveResponse returns the created booking and the post-debit ledger.
type ReserveResponse struct {
	Booking         BookingDTO  `json:"booking"`
	RemainingTokens mess.Ledger `json:"remaining_tokens"`
}

// LedgerResponse wraps a student's remaining tokens.
type LedgerResponse struct {
	Tokens mess.Ledger `json:"tokens"`
}

// MealListEntryDTO is one row of the admin meal list.
type MealListEntryDTO struct {
	BookingID string `json:"booking_id"`
	RollNo    string `json:"roll_no"`
	Name      string `json:"name"`
	MessName  string `json:"mess_name"`
}

// MealListResponse is the unverified-bookings projection for one
// (date, slot).
type MealListResponse struct {
	Slot     string             `json:"slot"`
	Date     string             `json:"date"`
	Count    int                `json:"count"`
	Students []MealListEntryDTO `json:"students"`
}

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID        string      `json:"id"`
	RollNo    string      `json:"roll_no"`
	Name      string      `json:"name"`
	MessName  string      `json:"mess_name"`
	Role      string      `json:"role"`
	Tokens    mess.Ledger `json:"tokens"`
	CreatedAt string      `json:"created_at,omitempty"`
}

func toStudentDTO(s *mess.Student) StudentDTO {
	dto := StudentDTO{
		ID:       s.ID,
		RollNo:   s.RollNo,
		Name:     s.Name,
		MessName: s.MessName,
		Role:     string(s.Role),
		Tokens:   s.Ledger,
	}
	if !s.CreatedAt.IsZero() {
		dto.CreatedAt = s.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// ResetResponse reports a completed ledger reset pass.
type ResetResponse struct {
	StudentsUpdated int `json:"students_updated"`
}

// ErrorResponse is the uniform error body. InsufficientSlots is populated
// only for token-shortage failures, listing every offending slot.
type ErrorResponse struct {
	Error             string   `json:"error"`
	Details           string   `json:"details,omitempty"`
	InsufficientSlots []string `json:"insufficient_slots,omitempty"`
	Retryable         bool     `json:"retryable,omitempty"`
}
