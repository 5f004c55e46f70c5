package stream

import "context"

// Emitter accepts stream messages.
type Emitter interface {
	Emit(t MessageType, data any) error
}

type emitterKey struct{}

// WithEmitter attaches a run's emitter to ctx so tools can report progress.
func WithEmitter(ctx context.Context, e Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// EmitterFrom returns the emitter in ctx, or one that discards everything.
func EmitterFrom(ctx context.Context) Emitter {
	if e, ok := ctx.Value(emitterKey{}).(Emitter); ok && e != nil {
		return e
	}
	return discard{}
}

type discard struct{}

func (discard) Emit(MessageType, any) error { return nil }
