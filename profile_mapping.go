package sessionctl

import "strings"

// mapProfileRow converts a store row into a [Profile]. Absent optional
// columns take their defaults: empty strings, IsActive true, and an
// incomplete onboarding status.
func mapProfileRow(row *ProfileRow) *Profile {
	if row == nil {
		return nil
	}

	p := &Profile{
		ID:        row.ID,
		Email:     row.Email,
		FirstName: deref(row.FirstName),
		LastName:  deref(row.LastName),
		Role:      ParseRole(row.Role),

		PreschoolID: deref(row.PreschoolID),
		IsActive:    true,
		AvatarURL:   deref(row.AvatarURL),

		Phone:          deref(row.Phone),
		HomeAddress:    deref(row.HomeAddress),
		HomeCity:       deref(row.HomeCity),
		HomePostalCode: deref(row.HomePostalCode),

		EmergencyContactName:         deref(row.EmergencyName),
		EmergencyContactPhone:        deref(row.EmergencyPhone),
		EmergencyContactRelationship: deref(row.EmergencyRelType),

		WorkCompany:  deref(row.WorkCompany),
		WorkPosition: deref(row.WorkPosition),
		WorkPhone:    deref(row.WorkPhone),

		CompletionStatus: CompletionIncomplete,

		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.IsActive != nil {
		p.IsActive = *row.IsActive
	}
	if row.CompletionStatus != nil {
		switch s := CompletionStatus(strings.TrimSpace(*row.CompletionStatus)); s {
		case CompletionIncomplete, CompletionInProgress, CompletionComplete:
			p.CompletionStatus = s
		}
	}
	return p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
