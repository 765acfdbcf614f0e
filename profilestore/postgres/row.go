package postgres

import (
	"database/sql"
	"time"

	"github.com/edudashpro/sessionctl"
)

// row mirrors the profiles table.
type row struct {
	ID               string         `db:"id"`
	AuthUserID       sql.NullString `db:"auth_user_id"`
	Email            string         `db:"email"`
	FirstName        sql.NullString `db:"first_name"`
	LastName         sql.NullString `db:"last_name"`
	Role             string         `db:"role"`
	PreschoolID      sql.NullString `db:"preschool_id"`
	IsActive         sql.NullBool   `db:"is_active"`
	AvatarURL        sql.NullString `db:"avatar_url"`
	Phone            sql.NullString `db:"phone"`
	HomeAddress      sql.NullString `db:"home_address"`
	HomeCity         sql.NullString `db:"home_city"`
	HomePostalCode   sql.NullString `db:"home_postal_code"`
	EmergencyName    sql.NullString `db:"emergency_contact_name"`
	EmergencyPhone   sql.NullString `db:"emergency_contact_phone"`
	EmergencyRelType sql.NullString `db:"emergency_contact_relationship"`
	WorkCompany      sql.NullString `db:"work_company"`
	WorkPosition     sql.NullString `db:"work_position"`
	WorkPhone        sql.NullString `db:"work_phone"`
	CompletionStatus sql.NullString `db:"profile_completion_status"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *row) toProfileRow() *sessionctl.ProfileRow {
	out := &sessionctl.ProfileRow{
		ID:               r.ID,
		AuthUserID:       r.AuthUserID.String,
		Email:            r.Email,
		FirstName:        nullString(r.FirstName),
		LastName:         nullString(r.LastName),
		Role:             r.Role,
		PreschoolID:      nullString(r.PreschoolID),
		AvatarURL:        nullString(r.AvatarURL),
		Phone:            nullString(r.Phone),
		HomeAddress:      nullString(r.HomeAddress),
		HomeCity:         nullString(r.HomeCity),
		HomePostalCode:   nullString(r.HomePostalCode),
		EmergencyName:    nullString(r.EmergencyName),
		EmergencyPhone:   nullString(r.EmergencyPhone),
		EmergencyRelType: nullString(r.EmergencyRelType),
		WorkCompany:      nullString(r.WorkCompany),
		WorkPosition:     nullString(r.WorkPosition),
		WorkPhone:        nullString(r.WorkPhone),
		CompletionStatus: nullString(r.CompletionStatus),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.IsActive.Valid {
		active := r.IsActive.Bool
		out.IsActive = &active
	}
	return out
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
