package bridge_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/worldgen-panel/internal/bridge"
	"github.com/joeycumines/worldgen-panel/internal/testutil"
)

type fakeReceiver struct {
	sets int
	hook func([]byte)
}

func (r *fakeReceiver) SetReceiver(hook func([]byte)) {
	r.sets++
	r.hook = hook
}

func fixedNow() time.Time { return time.UnixMilli(1700000000000) }

func TestSend_PrefersPrimary(t *testing.T) {
	primary := &testutil.RecordingChannel{}
	secondary := &testutil.RecordingChannel{}
	b := bridge.New(bridge.Options{Primary: primary, Secondary: secondary, Now: fixedNow})

	require.NoError(t, b.Send(bridge.KindStepChanged, map[string]int{"step": 2}))

	sent := primary.Sent()
	require.Len(t, sent, 1)
	assert.Empty(t, secondary.Sent())
	assert.Equal(t, "step-changed", sent[0].Type)
	assert.Equal(t, int64(1700000000000), sent[0].Timestamp)
	assert.JSONEq(t, `{"step":2}`, string(sent[0].Data))
}

func TestSend_FallsBackToSecondary(t *testing.T) {
	primary := &testutil.RecordingChannel{Unavailable: true}
	secondary := &testutil.RecordingChannel{}
	b := bridge.New(bridge.Options{Primary: primary, Secondary: secondary})

	require.NoError(t, b.Send(bridge.KindReady, nil))

	assert.Empty(t, primary.Sent())
	sent := secondary.Sent()
	require.Len(t, sent, 1)
	assert.JSONEq(t, `{}`, string(sent[0].Data))
}

func TestSend_NoChannelIsNoop(t *testing.T) {
	b := bridge.New(bridge.Options{})
	assert.NoError(t, b.Send(bridge.KindGenerate, map[string]any{"parameters": map[string]any{}}))
}

func TestSend_ChannelErrorReturned(t *testing.T) {
	boom := errors.New("pipe closed")
	b := bridge.New(bridge.Options{Primary: &testutil.RecordingChannel{Err: boom}})

	err := b.Send(bridge.KindGenerate, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestDeliver_PublishesInSubscriptionOrder(t *testing.T) {
	b := bridge.New(bridge.Options{})

	var order []string
	b.Subscribe(bridge.KindGenerationComplete, func(bridge.Envelope) { order = append(order, "first") })
	b.SubscribeAll(func(env bridge.Envelope) { order = append(order, "all:"+string(env.Kind)) })
	b.Subscribe(bridge.KindGenerationComplete, func(bridge.Envelope) { order = append(order, "third") })
	b.Subscribe(bridge.KindPreviewReady, func(bridge.Envelope) { order = append(order, "other") })

	b.Deliver([]byte(`{"type":"generation_complete","data":{},"timestamp":1}`))

	assert.Equal(t, []string{"first", "all:generation_complete", "third"}, order)
}

func TestDeliver_AcceptsPayloadField(t *testing.T) {
	b := bridge.New(bridge.Options{})

	var got bridge.Envelope
	b.Subscribe(bridge.KindHostStepChanged, func(env bridge.Envelope) { got = env })
	b.Deliver([]byte(`{"type":"step_changed","payload":{"step":4},"timestamp":9}`))

	type stepPayload struct {
		Step int `json:"step"`
	}
	p, err := bridge.Decode[stepPayload](got)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Step)
	assert.Equal(t, int64(9), got.Timestamp)
}

func TestDeliver_DropsMalformedAndUnknown(t *testing.T) {
	b := bridge.New(bridge.Options{})

	calls := 0
	b.SubscribeAll(func(bridge.Envelope) { calls++ })

	b.Deliver([]byte(`not json`))
	b.Deliver([]byte(`{"data":{}}`))
	b.Deliver([]byte(`{"type":"telemetry","data":{}}`))
	b.Deliver([]byte(`{"type":"generate","data":{}}`)) // outbound kind, not pushed by the host

	assert.Zero(t, calls)
}

func TestPublish_HandlerPanicDoesNotStopOthers(t *testing.T) {
	b := bridge.New(bridge.Options{})

	reached := false
	b.SubscribeAll(func(bridge.Envelope) { panic("bad handler") })
	b.SubscribeAll(func(bridge.Envelope) { reached = true })

	b.Deliver([]byte(`{"type":"generation_complete"}`))
	assert.True(t, reached)
}

func TestUnsubscribe(t *testing.T) {
	b := bridge.New(bridge.Options{})

	calls := 0
	unsubscribe := b.Subscribe(bridge.KindArchetypes, func(bridge.Envelope) { calls++ })
	b.Deliver([]byte(`{"type":"archetypes","data":{"archetype_names":["pangea"]}}`))
	unsubscribe()
	unsubscribe()
	b.Deliver([]byte(`{"type":"archetypes","data":{"archetype_names":["pangea"]}}`))

	assert.Equal(t, 1, calls)
}

func TestAttach_Idempotent(t *testing.T) {
	b := bridge.New(bridge.Options{})
	r := &fakeReceiver{}

	b.Attach(r)
	b.Attach(r)
	assert.Equal(t, 1, r.sets)

	calls := 0
	b.SubscribeAll(func(bridge.Envelope) { calls++ })
	r.hook([]byte(`{"type":"generation_complete"}`))
	assert.Equal(t, 1, calls)
}

func TestAttach_PostsOntoLoop(t *testing.T) {
	var queued []func()
	b := bridge.New(bridge.Options{Post: func(fn func()) bool {
		queued = append(queued, fn)
		return true
	}})
	r := &fakeReceiver{}
	b.Attach(r)

	calls := 0
	b.SubscribeAll(func(bridge.Envelope) { calls++ })

	buf := []byte(`{"type":"generation_complete"}`)
	r.hook(buf)
	copy(buf, "xxxxxxxxxxxxxxxxxxx")
	assert.Zero(t, calls, "delivery must wait for the loop")

	require.Len(t, queued, 1)
	queued[0]()
	assert.Equal(t, 1, calls, "hook must copy the receiver's buffer")
}
