package glowbook

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glowbook/glowbook-go/internal/apitest"
	"github.com/glowbook/glowbook-go/transport"
)

func TestDraftStepValidation(t *testing.T) {
	tests := []struct {
		name    string
		draft   SalonDraft
		step    string
		wantErr bool
	}{
		{"basics complete", SalonDraft{Name: "Shear Genius", City: "Melbourne", Address: "12 Chapel St"}, StepBasics, false},
		{"basics missing name", SalonDraft{City: "Melbourne", Address: "12 Chapel St"}, StepBasics, true},
		{"basics missing address", SalonDraft{Name: "Shear Genius", City: "Melbourne"}, StepBasics, true},
		{"services empty", SalonDraft{}, StepServices, true},
		{"services zero price", SalonDraft{Services: []Service{{Name: "Cut", Price: 0}}}, StepServices, true},
		{"services ok", SalonDraft{Services: []Service{{Name: "Cut", Price: 500}}}, StepServices, false},
		{"staff empty", SalonDraft{}, StepStaff, true},
		{"staff ok", SalonDraft{Staff: []StaffMember{{Name: "Mia", Role: "stylist"}}}, StepStaff, false},
		{"media missing", SalonDraft{}, StepMedia, true},
		{"media ok", SalonDraft{CoverImagePath: "uploads/cover.jpg"}, StepMedia, false},
		{"unknown step", SalonDraft{}, "pricing", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.ValidateStep(tt.step)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDraftSaveAndResume(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	c := newTestClient(t, srv)
	login(t, c)

	// No draft yet.
	_, err := c.GetSalonDraft(context.Background())
	apiErr, ok := transport.AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, apiErr.Status)

	draft := &SalonDraft{Name: "Shear Genius", City: "Melbourne", Address: "12 Chapel St"}
	require.NoError(t, c.SaveSalonDraft(context.Background(), draft, StepBasics))
	require.Equal(t, StepBasics, draft.CompletedStep)

	// A validation failure never reaches the server.
	before := srv.Hits("PUT", "/vendor/salon-draft")
	require.Error(t, c.SaveSalonDraft(context.Background(), &SalonDraft{}, StepBasics))
	require.Equal(t, before, srv.Hits("PUT", "/vendor/salon-draft"))

	// A fresh client resumes the wizard from the saved step.
	c2 := newTestClient(t, srv)
	login(t, c2)
	resumed, err := c2.GetSalonDraft(context.Background())
	require.NoError(t, err)
	require.Equal(t, StepBasics, resumed.CompletedStep)
	require.Equal(t, "Shear Genius", resumed.Name)
	require.False(t, resumed.Complete())
}

func TestSubmitSalonRequiresCompleteDraft(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	c := newTestClient(t, srv)
	login(t, c)

	draft := &SalonDraft{Name: "Shear Genius", City: "Melbourne", Address: "12 Chapel St"}
	_, err := c.SubmitSalon(context.Background(), draft)
	require.Error(t, err)
	require.Zero(t, srv.Hits("POST", "/vendor/salons"))

	draft.Services = []Service{{Name: "Cut & Finish", Price: 500}}
	draft.Staff = []StaffMember{{Name: "Mia", Role: "stylist"}}
	draft.CoverImagePath = "uploads/cover.jpg"
	require.True(t, draft.Complete())

	salon, err := c.SubmitSalon(context.Background(), draft)
	require.NoError(t, err)
	require.Equal(t, apitest.SalonID, salon.ID)

	salons, err := c.ListVendorSalons(context.Background())
	require.NoError(t, err)
	require.Len(t, salons, 1)
}

func TestAddStaffMember(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	c := newTestClient(t, srv)
	login(t, c)

	_, err := c.AddStaffMember(context.Background(), apitest.SalonID, StaffMember{Name: "Mia"})
	require.Error(t, err, "role is required client-side")

	m, err := c.AddStaffMember(context.Background(), apitest.SalonID, StaffMember{Name: "Mia", Role: "stylist"})
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	require.Equal(t, "stylist", m.Role)
}
