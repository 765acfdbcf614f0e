// Package gotrue implements sessionctl.AuthProvider over the GoTrue REST API
// used by Supabase Auth.
//
// The client persists its session through session.Store, restores and
// refreshes it on CurrentSession, and emits SIGNED_IN, SIGNED_OUT,
// TOKEN_REFRESHED and USER_UPDATED to listeners registered with
// OnAuthStateChange. A sign-out is broadcast to other devices; call
// WatchRevocations to react to theirs.
package gotrue
