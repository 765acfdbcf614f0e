package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/edudashpro/sessionctl"
)

type stateView struct {
	SignedIn       bool         `json:"signed_in"`
	IdentityID     string       `json:"identity_id,omitempty"`
	Email          string       `json:"email,omitempty"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	Profile        *profileView `json:"profile,omitempty"`
	ProfileMissing bool         `json:"profile_missing"`
}

type profileView struct {
	ID               string `json:"id"`
	DisplayName      string `json:"display_name"`
	Role             string `json:"role"`
	PreschoolID      string `json:"preschool_id,omitempty"`
	Active           bool   `json:"active"`
	CompletionStatus string `json:"completion_status"`
}

func viewOf(s sessionctl.State) stateView {
	v := stateView{
		SignedIn:       s.SignedIn(),
		ProfileMissing: s.ProfileMissing(),
	}
	if s.User != nil {
		v.IdentityID = s.User.ID
		v.Email = s.User.Email
	}
	if s.Session != nil && !s.Session.ExpiresAt.IsZero() {
		exp := s.Session.ExpiresAt.UTC()
		v.ExpiresAt = &exp
	}
	if p := s.Profile; p != nil {
		v.Profile = &profileView{
			ID:               p.ID,
			DisplayName:      p.DisplayName(),
			Role:             string(p.Role),
			PreschoolID:      p.PreschoolID,
			Active:           p.IsActive,
			CompletionStatus: string(p.CompletionStatus),
		}
	}
	return v
}

func printState(w io.Writer, s sessionctl.State, asJSON bool) error {
	v := viewOf(s)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	if !v.SignedIn {
		_, err := fmt.Fprintln(w, "Not signed in.")
		return err
	}

	fmt.Fprintf(w, "Signed in as: %s (%s)\n", v.Email, v.IdentityID)
	if v.ExpiresAt != nil {
		fmt.Fprintf(w, "Session expires: %s\n", v.ExpiresAt.Format(time.RFC3339))
	}
	if v.Profile == nil {
		_, err := fmt.Fprintln(w, "Profile: setup incomplete (no profile found for this account)")
		return err
	}
	fmt.Fprintf(w, "Name: %s\n", v.Profile.DisplayName)
	fmt.Fprintf(w, "Role: %s\n", v.Profile.Role)
	if v.Profile.PreschoolID != "" {
		fmt.Fprintf(w, "Preschool: %s\n", v.Profile.PreschoolID)
	}
	if !v.Profile.Active {
		fmt.Fprintln(w, "Status: inactive")
	}
	_, err := fmt.Fprintf(w, "Onboarding: %s\n", v.Profile.CompletionStatus)
	return err
}
