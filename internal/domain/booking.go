package domain

import "time"

type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is one athlete's claim on one timeslot. At most one active row
// exists per (athlete, timeslot) pair.
type Booking struct {
	ID         int64
	CustomerID int64
	AthleteID  int64
	TimeslotID int64
	PackageID  int64
	OrderID    *int64
	Status     BookingStatus
	CreatedAt  time.Time
}

// Timeslot is a coach-owned bookable window. Capacity is derived from the
// count of active bookings, never stored as a mutable counter.
type Timeslot struct {
	ID          int64
	CoachID     int64
	Date        time.Time
	StartTime   string
	EndTime     string
	MaxCapacity int
	PackageID   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TimeslotAvailability is the read model for the availability listing:
// a future timeslot with its booked count and remaining seats.
type TimeslotAvailability struct {
	Timeslot
	CoachFirstName    string `json:"coach_first_name"`
	CoachLastName     string `json:"coach_last_name"`
	BookedCount       int    `json:"booked_count"`
	RemainingCapacity int    `json:"remaining_capacity"`
}
