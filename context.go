package secheaders

import "context"

type emitterKey struct{}

// WithEmitter returns a context carrying the emitter.
// A context may only carry one emitter, so that every caller handling a request shares the same nonces.
func WithEmitter(ctx context.Context, e *Emitter) (context.Context, error) {
	if _, ok := FromContext(ctx); ok {
		return ctx, ErrEmitterInContext
	}
	return context.WithValue(ctx, emitterKey{}, e), nil
}

// FromContext returns the emitter stored with [WithEmitter].
func FromContext(ctx context.Context) (*Emitter, bool) {
	if ctx == nil {
		return nil, false
	}
	e, ok := ctx.Value(emitterKey{}).(*Emitter)
	return e, ok && e != nil
}
