package glowbook

import (
	"context"
	"fmt"

	"github.com/glowbook/glowbook-go/cache"
)

// Salon is one marketplace listing.
type Salon struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	City        string    `json:"city"`
	Address     string    `json:"address"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	CoverImage  string    `json:"cover_image,omitempty"`
	Services    []Service `json:"services,omitempty"`
}

// Service is a bookable service offered by a salon.
type Service struct {
	ID          string `json:"id"`
	SalonID     string `json:"salon_id"`
	Name        string `json:"name"`
	Category    string `json:"category"` // hair, nails, spa, ...
	DurationMin int    `json:"duration_min"`
	Price       int    `json:"price"` // minor currency units
}

// SalonFilter narrows ListSalons results. Zero fields are omitted.
type SalonFilter struct {
	City     string
	Category string
	Page     int
}

func (f SalonFilter) params() map[string]string {
	p := map[string]string{}
	if f.City != "" {
		p["city"] = f.City
	}
	if f.Category != "" {
		p["category"] = f.Category
	}
	if f.Page > 1 {
		p["page"] = fmt.Sprint(f.Page)
	}
	return p
}

// ListSalons returns a page of salons matching the filter.
func (c *Client) ListSalons(ctx context.Context, filter SalonFilter) ([]Salon, error) {
	var salons []Salon
	err := c.getJSON(ctx, "/salons", filter.params(), []cache.Tag{TagSalons}, salonsPolicy, &salons)
	return salons, err
}

// GetSalon returns one salon with its full service list.
func (c *Client) GetSalon(ctx context.Context, salonID string) (*Salon, error) {
	var s Salon
	err := c.getJSON(ctx, "/salons/"+salonID, nil, []cache.Tag{TagSalons}, salonsPolicy, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SearchSalons performs a free-text search over the catalog.
func (c *Client) SearchSalons(ctx context.Context, query string) ([]Salon, error) {
	var salons []Salon
	err := c.getJSON(ctx, "/salons/search", map[string]string{"q": query},
		[]cache.Tag{TagSalons}, salonsPolicy, &salons)
	return salons, err
}
