package venue

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Collection names, also used as store namespaces and backend paths
const (
	CollectionAttractions = "attractions"
	CollectionPackages    = "packages"
	CollectionAddOns      = "addons"
	CollectionRooms       = "rooms"
	CollectionCustomers   = "customers"
	CollectionBookings    = "bookings"
)

// Collections lists every cached collection in warmup order
var Collections = []string{
	CollectionAttractions,
	CollectionPackages,
	CollectionAddOns,
	CollectionRooms,
	CollectionCustomers,
	CollectionBookings,
}

// Attraction is a bookable activity at a location
type Attraction struct {
	ID              int64           `json:"id" expr:"id"`
	LocationID      int64           `json:"location_id" expr:"location_id"`
	Name            string          `json:"name" expr:"name"`
	Description     string          `json:"description,omitempty" expr:"description"`
	Category        string          `json:"category,omitempty" expr:"category"`
	Price           decimal.Decimal `json:"price" expr:"price"`
	DurationMinutes int             `json:"duration_minutes,omitempty" expr:"duration_minutes"`
	MaxCapacity     int             `json:"max_capacity,omitempty" expr:"max_capacity"`
	Active          bool            `json:"is_active" expr:"active"`
}

func (a Attraction) EntityID() int64        { return a.ID }
func (a Attraction) ScopeLocationID() int64 { return a.LocationID }
func (a Attraction) ScopeUserID() int64     { return 0 }
func (a Attraction) IsActive() bool         { return a.Active }
func (a Attraction) SearchFields() []string { return []string{a.Name, a.Description, a.Category} }

// Package bundles attractions at a single price
type Package struct {
	ID            int64           `json:"id" expr:"id"`
	LocationID    int64           `json:"location_id" expr:"location_id"`
	Name          string          `json:"name" expr:"name"`
	Description   string          `json:"description,omitempty" expr:"description"`
	Price         decimal.Decimal `json:"price" expr:"price"`
	AttractionIDs []int64         `json:"attraction_ids,omitempty" expr:"attraction_ids"`
	MinGuests     int             `json:"min_guests,omitempty" expr:"min_guests"`
	Active        bool            `json:"is_active" expr:"active"`
}

func (p Package) EntityID() int64        { return p.ID }
func (p Package) ScopeLocationID() int64 { return p.LocationID }
func (p Package) ScopeUserID() int64     { return 0 }
func (p Package) IsActive() bool         { return p.Active }
func (p Package) SearchFields() []string { return []string{p.Name, p.Description} }

// Includes reports whether the package contains attraction id
func (p Package) Includes(attractionID int64) bool {
	return slices.Contains(p.AttractionIDs, attractionID)
}

// AddOn is an extra sold with a booking
type AddOn struct {
	ID         int64           `json:"id" expr:"id"`
	LocationID int64           `json:"location_id" expr:"location_id"`
	Name       string          `json:"name" expr:"name"`
	Price      decimal.Decimal `json:"price" expr:"price"`
	Active     bool            `json:"is_active" expr:"active"`
}

func (a AddOn) EntityID() int64        { return a.ID }
func (a AddOn) ScopeLocationID() int64 { return a.LocationID }
func (a AddOn) ScopeUserID() int64     { return 0 }
func (a AddOn) IsActive() bool         { return a.Active }
func (a AddOn) SearchFields() []string { return []string{a.Name} }

// Room is a party or event room
type Room struct {
	ID         int64           `json:"id" expr:"id"`
	LocationID int64           `json:"location_id" expr:"location_id"`
	Name       string          `json:"name" expr:"name"`
	Capacity   int             `json:"capacity" expr:"capacity"`
	HourlyRate decimal.Decimal `json:"hourly_rate" expr:"hourly_rate"`
	Active     bool            `json:"is_active" expr:"active"`
}

func (r Room) EntityID() int64        { return r.ID }
func (r Room) ScopeLocationID() int64 { return r.LocationID }
func (r Room) ScopeUserID() int64     { return 0 }
func (r Room) IsActive() bool         { return r.Active }
func (r Room) SearchFields() []string { return []string{r.Name} }

// Customer is a guest account
type Customer struct {
	ID         int64           `json:"id" expr:"id"`
	FirstName  string          `json:"first_name" expr:"first_name"`
	LastName   string          `json:"last_name" expr:"last_name"`
	Email      string          `json:"email" expr:"email"`
	Phone      string          `json:"phone,omitempty" expr:"phone"`
	TotalSpent decimal.Decimal `json:"total_spent" expr:"total_spent"`
	CreatedAt  time.Time       `json:"created_at" expr:"created_at"`
}

func (c Customer) EntityID() int64 { return c.ID }
func (c Customer) SearchFields() []string {
	return []string{c.FirstName, c.LastName, c.FullName(), c.Email, c.Phone}
}

// FullName joins first and last name
func (c Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCheckedIn BookingStatus = "checked_in"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is a reservation made by or for a customer.
// UserID is the staff account that created it.
type Booking struct {
	ID              int64           `json:"id" expr:"id"`
	ReferenceNumber string          `json:"reference_number" expr:"reference_number"`
	LocationID      int64           `json:"location_id" expr:"location_id"`
	UserID          int64           `json:"user_id,omitempty" expr:"user_id"`
	CustomerID      int64           `json:"customer_id,omitempty" expr:"customer_id"`
	CustomerName    string          `json:"customer_name,omitempty" expr:"customer_name"`
	PackageID       int64           `json:"package_id,omitempty" expr:"package_id"`
	RoomID          int64           `json:"room_id,omitempty" expr:"room_id"`
	Status          BookingStatus   `json:"status" expr:"status"`
	BookingDate     time.Time       `json:"booking_date" expr:"booking_date"`
	Guests          int             `json:"guests" expr:"guests"`
	TotalAmount     decimal.Decimal `json:"total_amount" expr:"total_amount"`
	AmountPaid      decimal.Decimal `json:"amount_paid" expr:"amount_paid"`
}

func (b Booking) EntityID() int64        { return b.ID }
func (b Booking) ScopeLocationID() int64 { return b.LocationID }
func (b Booking) ScopeUserID() int64     { return b.UserID }
func (b Booking) SearchFields() []string { return []string{b.ReferenceNumber, b.CustomerName} }

// IsActive reports whether the booking still needs attention
func (b Booking) IsActive() bool {
	return b.Status != BookingCancelled && b.Status != BookingCompleted
}

// Balance is the amount still due
func (b Booking) Balance() decimal.Decimal {
	return b.TotalAmount.Sub(b.AmountPaid)
}

// PaidInFull reports whether nothing is due
func (b Booking) PaidInFull() bool {
	return !b.Balance().IsPositive()
}
