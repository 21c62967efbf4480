package glowbook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/glowbook/glowbook-go/cache"
)

const bookingsPath = "/bookings"

// Booking statuses as the API reports them.
const (
	BookingConfirmed = "confirmed"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

// Booking is one service appointment.
type Booking struct {
	ID        string    `json:"id"`
	SalonID   string    `json:"salon_id"`
	ServiceID string    `json:"service_id"`
	SalonName string    `json:"salon_name,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	Status    string    `json:"status"`
	Price     int       `json:"price"`
}

var bookingTags = []cache.Tag{TagCustomerBookings}

// ListBookings returns the customer's bookings, newest first.
func (c *Client) ListBookings(ctx context.Context) ([]Booking, error) {
	var bookings []Booking
	err := c.getJSON(ctx, bookingsPath, nil, bookingTags, bookingsPolicy, &bookings)
	return bookings, err
}

// WatchBookings runs fn with the decoded booking list on every change.
func (c *Client) WatchBookings(fn func([]Booking)) *cache.Subscription {
	return c.cache.Subscribe(cache.KeyFor(bookingsPath, nil), bookingTags, bookingsPolicy, func(raw json.RawMessage) {
		var bookings []Booking
		if err := json.Unmarshal(raw, &bookings); err == nil {
			fn(bookings)
		}
	})
}

// CreateBooking books a service slot.
func (c *Client) CreateBooking(ctx context.Context, salonID, serviceID string, startsAt time.Time) (*Booking, error) {
	var b Booking
	err := c.mutate(ctx, http.MethodPost, bookingsPath, map[string]any{
		"salon_id":   salonID,
		"service_id": serviceID,
		"starts_at":  startsAt.Format(time.RFC3339),
	}, &b, TagCustomerBookings)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelBooking cancels an appointment. The cached list flips the
// booking to cancelled immediately and flips it back if the server
// refuses.
func (c *Client) CancelBooking(ctx context.Context, bookingID string) error {
	patch := func(raw json.RawMessage) json.RawMessage {
		var bookings []Booking
		if len(raw) == 0 || json.Unmarshal(raw, &bookings) != nil {
			return raw
		}
		for i := range bookings {
			if bookings[i].ID == bookingID {
				bookings[i].Status = BookingCancelled
			}
		}
		out, err := json.Marshal(bookings)
		if err != nil {
			return raw
		}
		return out
	}
	return c.mutateOptimistic(ctx, cache.KeyFor(bookingsPath, nil), bookingTags, bookingsPolicy,
		patch, http.MethodPost, "/bookings/"+bookingID+"/cancel", nil, nil)
}
