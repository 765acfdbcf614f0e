// Package postgres implements sessionctl.ProfileStore over the profiles
// table using sqlx and lib/pq.
//
// Zero rows map to sessionctl.ErrProfileNotFound. SQLSTATE 42501, and
// row-level security exceptions raised from policies, map to
// sessionctl.ErrProfileAccessDenied. Every other failure wraps
// sessionctl.ErrProfileStoreUnavailable.
package postgres
