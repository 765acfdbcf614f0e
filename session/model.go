package session

import "time"

// Session is the persisted form of a provider grant, keyed by the device
// slot it was issued to.
type Session struct {
	SchemaVersion uint8

	DeviceID   string
	IdentityID string
	Email      string

	AccessToken  string
	RefreshToken string
	TokenType    string

	IssuedAt  int64
	ExpiresAt int64
}

// Expired reports whether the access token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt == 0 {
		return false
	}
	return now.Unix() >= s.ExpiresAt
}
