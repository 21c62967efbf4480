package glowbook

import (
	"context"
	"net/http"
	"time"

	"github.com/glowbook/glowbook-go/cache"
)

// Review is customer feedback on a salon.
type Review struct {
	ID        string    `json:"id"`
	SalonID   string    `json:"salon_id"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"` // 1..5
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// ListSalonReviews returns a salon's reviews, newest first.
func (c *Client) ListSalonReviews(ctx context.Context, salonID string) ([]Review, error) {
	var reviews []Review
	err := c.getJSON(ctx, "/salons/"+salonID+"/reviews", nil,
		[]cache.Tag{TagReviews}, reviewsPolicy, &reviews)
	return reviews, err
}

// CreateReview posts a review. The salon's aggregate rating changes
// with it, so the salon catalog is invalidated too.
func (c *Client) CreateReview(ctx context.Context, salonID string, rating int, comment string) (*Review, error) {
	var r Review
	err := c.mutate(ctx, http.MethodPost, "/salons/"+salonID+"/reviews", map[string]any{
		"rating":  rating,
		"comment": comment,
	}, &r, TagReviews, TagSalons)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
