package glowbook

import (
	"context"
	"fmt"
	"net/http"

	"github.com/glowbook/glowbook-go/cache"
)

// Salon submission wizard steps, in order.
const (
	StepBasics   = "basics"   // name, city, address
	StepServices = "services" // offered services and prices
	StepStaff    = "staff"    // at least one staff member
	StepMedia    = "media"    // cover image
)

var draftSteps = []string{StepBasics, StepServices, StepStaff, StepMedia}

// SalonDraft is a vendor's in-progress salon submission. The draft is
// saved per step so the wizard can resume where the vendor left off.
type SalonDraft struct {
	ID             string        `json:"id,omitempty"`
	Name           string        `json:"name"`
	City           string        `json:"city"`
	Address        string        `json:"address"`
	Services       []Service     `json:"services,omitempty"`
	Staff          []StaffMember `json:"staff,omitempty"`
	CoverImagePath string        `json:"cover_image_path,omitempty"`
	CompletedStep  string        `json:"completed_step,omitempty"`
}

// StaffMember is one person working at a salon.
type StaffMember struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Phone string `json:"phone,omitempty"`
}

// LeaderboardEntry is one row of the vendor/RM performance board.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Bookings int    `json:"bookings"`
	Revenue  int    `json:"revenue"`
}

var vendorTags = []cache.Tag{TagVendorSalons}

// ValidateStep checks one wizard step client-side before it is saved,
// mirroring the server's rules so field errors surface without a round
// trip.
func (d *SalonDraft) ValidateStep(step string) error {
	switch step {
	case StepBasics:
		if d.Name == "" {
			return fmt.Errorf("%s: salon name is required", step)
		}
		if d.City == "" || d.Address == "" {
			return fmt.Errorf("%s: city and address are required", step)
		}
	case StepServices:
		if len(d.Services) == 0 {
			return fmt.Errorf("%s: at least one service is required", step)
		}
		for _, svc := range d.Services {
			if svc.Name == "" || svc.Price <= 0 {
				return fmt.Errorf("%s: every service needs a name and a positive price", step)
			}
		}
	case StepStaff:
		if len(d.Staff) == 0 {
			return fmt.Errorf("%s: at least one staff member is required", step)
		}
	case StepMedia:
		if d.CoverImagePath == "" {
			return fmt.Errorf("%s: a cover image is required", step)
		}
	default:
		return fmt.Errorf("unknown step %q", step)
	}
	return nil
}

// Complete reports whether every step validates.
func (d *SalonDraft) Complete() bool {
	for _, step := range draftSteps {
		if d.ValidateStep(step) != nil {
			return false
		}
	}
	return true
}

// GetSalonDraft returns the vendor's saved draft for resuming the
// wizard, or an API 404 when none exists.
func (c *Client) GetSalonDraft(ctx context.Context) (*SalonDraft, error) {
	var d SalonDraft
	if err := c.getJSON(ctx, "/vendor/salon-draft", nil, vendorTags, vendorPolicy, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SaveSalonDraft validates one step and persists the draft. The step
// name is recorded so a resumed wizard opens on the next one.
func (c *Client) SaveSalonDraft(ctx context.Context, draft *SalonDraft, step string) error {
	if err := draft.ValidateStep(step); err != nil {
		return err
	}
	draft.CompletedStep = step
	return c.mutate(ctx, http.MethodPut, "/vendor/salon-draft", draft, draft, TagVendorSalons)
}

// SubmitSalon turns a complete draft into a pending salon listing.
func (c *Client) SubmitSalon(ctx context.Context, draft *SalonDraft) (*Salon, error) {
	for _, step := range draftSteps {
		if err := draft.ValidateStep(step); err != nil {
			return nil, err
		}
	}
	var s Salon
	err := c.mutate(ctx, http.MethodPost, "/vendor/salons", draft, &s, TagVendorSalons, TagSalons)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListVendorSalons returns the salons owned by the current vendor.
func (c *Client) ListVendorSalons(ctx context.Context) ([]Salon, error) {
	var salons []Salon
	err := c.getJSON(ctx, "/vendor/salons", nil, vendorTags, vendorPolicy, &salons)
	return salons, err
}

// AddStaffMember onboards a staff member to a salon.
func (c *Client) AddStaffMember(ctx context.Context, salonID string, m StaffMember) (*StaffMember, error) {
	if m.Name == "" || m.Role == "" {
		return nil, fmt.Errorf("staff member needs a name and a role")
	}
	var out StaffMember
	err := c.mutate(ctx, http.MethodPost, "/vendor/salons/"+salonID+"/staff", m, &out, TagVendorSalons)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Leaderboard returns the performance board for a role over a period
// ("week", "month", "all"). One endpoint serves every role; the board
// differs only by parameters.
func (c *Client) Leaderboard(ctx context.Context, role, period string) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := c.getJSON(ctx, "/leaderboard", map[string]string{
		"role":   role,
		"period": period,
	}, []cache.Tag{TagLeaderboard}, leaderboardPolicy, &entries)
	return entries, err
}
