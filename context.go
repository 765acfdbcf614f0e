package sessionctl

import "context"

type controllerContextKey struct{}

// NewContext returns a copy of ctx carrying c, so request handlers and
// background jobs deep in a call tree can reach the controller without a
// global.
func NewContext(ctx context.Context, c *Controller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, controllerContextKey{}, c)
}

// FromContext returns the controller stored by [NewContext]. Reading state
// outside of a controller scope is a wiring error, reported here as
// ErrControllerNotReady.
func FromContext(ctx context.Context) (*Controller, error) {
	if ctx == nil {
		return nil, ErrControllerNotReady
	}
	c, _ := ctx.Value(controllerContextKey{}).(*Controller)
	if c == nil {
		return nil, ErrControllerNotReady
	}
	return c, nil
}
