package eventbus

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RegisterDebugLogger registers bus hooks that log all event activity at debug
// level. Dropped events and subscriber panics are logged at warn and error.
func RegisterDebugLogger(bus *EventBus, logger zerolog.Logger) {
	bus.OnPublish(func(event Event, payload any) {
		e := logger.Debug().Str("event", string(event))
		if p, ok := payload.(CommitFailedPayload); ok {
			e = e.Err(p.Err).Bool("requeued", p.Requeued)
		}
		e.Msg("event fired")
	})
	bus.OnDrop(func(event Event, _ any) {
		logger.Warn().Str("event", string(event)).Msg("event dropped: buffer full")
	})
	bus.OnPanic(func(event Event, _ any, recovered any) {
		logger.Error().
			Str("event", string(event)).
			Str("panic", fmt.Sprint(recovered)).
			Msg("subscriber panicked")
	})
}
