package eventbus_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/vgloss/internal/core/eventbus"
	"github.com/hay-kot/vgloss/internal/core/eventbus/testbus"
	"github.com/hay-kot/vgloss/internal/core/state"
)

func TestRegisterDebugLogger(t *testing.T) {
	tb := testbus.New(t)
	var buf bytes.Buffer
	eventbus.RegisterDebugLogger(tb.EventBus, zerolog.New(&buf).Level(zerolog.DebugLevel))

	tb.PublishStateChanged(eventbus.StateChangedPayload{Slices: []state.Slice{state.SliceTags}})
	tb.PublishCommitFailed(eventbus.CommitFailedPayload{BatchID: "b1", Err: errors.New("boom"), Requeued: true})

	tb.AssertPublished(t, eventbus.EventCommitFailed)
	assert.Contains(t, buf.String(), `"event":"state.changed"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}
