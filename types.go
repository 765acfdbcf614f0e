package sessionctl

import (
	"context"
	"strings"
	"time"
)

// Role is the business role carried by a [Profile].
type Role string

const (
	// RoleSuperAdmin operates across every preschool and has no organization binding.
	RoleSuperAdmin Role = "superadmin"
	// RolePrincipalAdmin administers a single preschool.
	RolePrincipalAdmin Role = "principal_admin"
	// RoleTeacher is staff attached to a preschool.
	RoleTeacher Role = "teacher"
	// RoleParent is a guardian of one or more enrolled children.
	RoleParent Role = "parent"
)

// ParseRole maps a stored role string onto a known [Role]. Unknown values are
// returned unchanged so role checks simply fail to match.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "superadmin", "super_admin":
		return RoleSuperAdmin
	case "principal_admin", "principal":
		return RolePrincipalAdmin
	case "teacher":
		return RoleTeacher
	case "parent":
		return RoleParent
	default:
		return Role(strings.TrimSpace(raw))
	}
}

// CompletionStatus tracks how far a user got through onboarding.
type CompletionStatus string

const (
	CompletionIncomplete CompletionStatus = "incomplete"
	CompletionInProgress CompletionStatus = "in_progress"
	CompletionComplete   CompletionStatus = "complete"
)

// Session is the live credential grant handed out by the [AuthProvider].
// Its token fields are opaque to the controller.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	IdentityID   string
	Email        string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the session is past its expiry at now. A zero
// ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Identity derives the authentication principal from the session.
func (s *Session) Identity() *Identity {
	if s == nil || s.IdentityID == "" {
		return nil
	}
	return &Identity{ID: s.IdentityID, Email: s.Email}
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// Identity is the minimal authentication-level principal.
type Identity struct {
	ID    string
	Email string
}

// Profile is the business-domain user record keyed by identity id.
//
// PreschoolID is the organization membership and is empty for super
// administrators. Access scoping by PreschoolID is enforced by the store.
type Profile struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      Role

	PreschoolID string
	IsActive    bool
	AvatarURL   string

	Phone          string
	HomeAddress    string
	HomeCity       string
	HomePostalCode string

	EmergencyContactName         string
	EmergencyContactPhone        string
	EmergencyContactRelationship string

	WorkCompany  string
	WorkPosition string
	WorkPhone    string

	CompletionStatus CompletionStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName joins first and last name, falling back to the email.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name != "" {
		return name
	}
	return p.Email
}

func (p *Profile) clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

// ProfileRow is the raw row returned by a [ProfileStore]. Optional columns are
// pointers so that absent values can be replaced with defaults during mapping.
type ProfileRow struct {
	ID               string
	AuthUserID       string
	Email            string
	FirstName        *string
	LastName         *string
	Role             string
	PreschoolID      *string
	IsActive         *bool
	AvatarURL        *string
	Phone            *string
	HomeAddress      *string
	HomeCity         *string
	HomePostalCode   *string
	EmergencyName    *string
	EmergencyPhone   *string
	EmergencyRelType *string
	WorkCompany      *string
	WorkPosition     *string
	WorkPhone        *string
	CompletionStatus *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// State is the aggregate exposed to consumers. Fields are copies; mutating a
// State never changes the controller.
type State struct {
	Session *Session
	User    *Identity
	Profile *Profile
	Loading bool
}

// SignedIn reports whether an identity is currently held.
func (s State) SignedIn() bool {
	return s.User != nil
}

// ProfileMissing reports the "setup incomplete" condition: an identity is
// present, nothing is loading, and no profile resolved.
func (s State) ProfileMissing() bool {
	return s.User != nil && s.Profile == nil && !s.Loading
}

// SignUpData is the seed metadata forwarded to the provider on registration.
type SignUpData struct {
	FirstName   string `validate:"required,max=100"`
	LastName    string `validate:"required,max=100"`
	Role        Role   `validate:"required,oneof=superadmin principal_admin teacher parent"`
	PreschoolID string `validate:"omitempty,uuid"`
	Phone       string `validate:"omitempty,e164"`
}

func (d SignUpData) metadata() map[string]string {
	meta := map[string]string{
		"first_name": strings.TrimSpace(d.FirstName),
		"last_name":  strings.TrimSpace(d.LastName),
		"role":       string(d.Role),
	}
	if d.PreschoolID != "" {
		meta["preschool_id"] = d.PreschoolID
	}
	if d.Phone != "" {
		meta["phone"] = d.Phone
	}
	return meta
}

// AuthEventKind classifies provider state changes.
type AuthEventKind uint8

const (
	// EventOther covers token refreshes, initial-session and user-updated notices.
	EventOther AuthEventKind = iota
	EventSignedIn
	EventSignedOut
)

func (k AuthEventKind) String() string {
	switch k {
	case EventSignedIn:
		return "SIGNED_IN"
	case EventSignedOut:
		return "SIGNED_OUT"
	default:
		return "OTHER"
	}
}

// AuthEvent is a closed variant: construct it with [SignedIn], [SignedOut] or
// [OtherEvent]. Adapters translate provider payloads into one of these at the
// boundary.
type AuthEvent struct {
	kind    AuthEventKind
	detail  string
	session *Session
}

// SignedIn builds a SIGNED_IN event for sess.
func SignedIn(sess *Session) AuthEvent {
	return AuthEvent{kind: EventSignedIn, session: sess.clone()}
}

// SignedOut builds a SIGNED_OUT event.
func SignedOut() AuthEvent {
	return AuthEvent{kind: EventSignedOut}
}

// OtherEvent builds a passive event such as "TOKEN_REFRESHED".
func OtherEvent(detail string, sess *Session) AuthEvent {
	return AuthEvent{kind: EventOther, detail: detail, session: sess.clone()}
}

func (e AuthEvent) Kind() AuthEventKind { return e.kind }

// Detail is the provider's original event name for EventOther.
func (e AuthEvent) Detail() string { return e.detail }

func (e AuthEvent) Session() *Session { return e.session.clone() }

// AuthProvider is the external authentication collaborator.
type AuthProvider interface {
	// CurrentSession returns the persisted session or nil when none exists.
	CurrentSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]string) error
	// SignOut must be idempotent and clear any cached tokens.
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, newPassword string) error
	// OnAuthStateChange registers fn for every state change and returns a
	// handle that removes it.
	OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func())
}

// ProfileStore is the tenant-scoped profile table. Implementations return
// [ErrProfileNotFound] for zero rows and [ErrProfileAccessDenied] for access
// policy rejections.
type ProfileStore interface {
	FindProfileByIdentityID(ctx context.Context, identityID string) (*ProfileRow, error)
}

// Navigator moves the UI between routes.
type Navigator interface {
	Replace(route string) error
	Push(route string) error
}
