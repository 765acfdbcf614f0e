// Package sessionctl keeps a client application's view of "who is signed in"
// consistent with an external identity provider and a tenant-scoped profile
// table.
//
// A [Controller] owns one [State]: the provider [Session], the derived
// [Identity], the business [Profile] and a Loading flag. It is driven by
// provider events rather than by its own operations: [Controller.SignIn]
// only verifies credentials, and the SIGNED_IN event that follows performs
// the identity transition and loads the profile. SIGNED_OUT clears the state
// in one step and schedules navigation to the unauthenticated landing route.
//
// Methods are safe for concurrent use once [Builder.Build] returns. Consumers
// read with [Controller.State], observe with [Controller.Subscribe] or
// [Controller.Watch], and reach a scoped controller with [FromContext].
//
// # Collaborators
//
// The controller never talks to the network itself. It is given an
// [AuthProvider] (see provider/gotrue), a [ProfileStore] (see
// profilestore/postgres and profilestore/memory) and an optional [Navigator].
// Collaborator panics are recovered at the boundary and reported as errors.
//
// # What this package must NOT do
//
//   - Create or modify profile rows. Profiles are provisioned downstream of
//     the provider.
//   - Refresh tokens. The provider owns token lifetime.
//   - Decide authorization beyond exposing the profile's role.
package sessionctl
