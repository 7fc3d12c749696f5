package generation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/worldgen-panel/internal/bridge"
	"github.com/joeycumines/worldgen-panel/internal/testutil"
)

func newController(t *testing.T, ch *testutil.RecordingChannel) (*Controller, *bridge.Bridge) {
	t.Helper()
	b := bridge.New(bridge.Options{Primary: ch})
	c := NewController(b, nil)
	t.Cleanup(c.Bind())
	return c, b
}

func TestStart_SendsParameters(t *testing.T) {
	ch := &testutil.RecordingChannel{}
	c, _ := newController(t, ch)

	require.NoError(t, c.Start(map[string]any{"size": 50.0}))

	s := c.State()
	assert.True(t, s.IsActive)
	assert.Zero(t, s.Progress)
	sent := ch.OfType(string(bridge.KindGenerate))
	require.Len(t, sent, 1)
	assert.JSONEq(t, `{"parameters":{"size":50}}`, string(sent[0].Data))
}

func TestStart_SendFailureIsVisible(t *testing.T) {
	ch := &testutil.RecordingChannel{Err: errors.New("host gone")}
	c, _ := newController(t, ch)

	err := c.Start(map[string]any{})
	require.Error(t, err)

	s := c.State()
	assert.False(t, s.IsActive)
	require.NotNil(t, s.ErrorMessage)
	assert.Equal(t, StartFailedMessage, *s.ErrorMessage)
	require.NotNil(t, s.ErrorDetail)
	assert.Contains(t, *s.ErrorDetail, "host gone")
}

func TestStart_ResetsPreviousResult(t *testing.T) {
	ch := &testutil.RecordingChannel{Err: errors.New("x")}
	c, b := newController(t, ch)
	_ = c.Start(nil)
	b.Deliver([]byte(`{"type":"preview_ready","data":{"preview_url":"file:///tmp/p.png"}}`))
	require.NotNil(t, c.State().PreviewURL)

	ch.Err = nil
	require.NoError(t, c.Start(nil))
	s := c.State()
	assert.Nil(t, s.ErrorMessage)
	assert.Nil(t, s.ErrorDetail)
	assert.Nil(t, s.PreviewURL)
}

func TestProgressUpdate_ExactFields(t *testing.T) {
	ch := &testutil.RecordingChannel{Err: errors.New("x")}
	c, b := newController(t, ch)
	_ = c.Start(nil)
	before := c.State()

	b.Deliver([]byte(`{"type":"progress_update","data":{"progress":42,"status":"rendering","is_generating":true}}`))

	want := before
	want.Progress = 42
	want.StatusText = "rendering"
	want.IsActive = true
	assert.Equal(t, want, c.State())
}

func TestGenerationProgress_Fallbacks(t *testing.T) {
	c, b := newController(t, &testutil.RecordingChannel{})
	require.NoError(t, c.Start(nil))
	b.Deliver([]byte(`{"type":"progress_update","data":{"progress":10,"status":"x","is_generating":true}}`))

	b.Deliver([]byte(`{"type":"generation_progress","data":{}}`))
	s := c.State()
	assert.Zero(t, s.Progress)
	assert.Empty(t, s.StatusText)
	assert.False(t, s.IsActive)
}

func TestTerminalStates(t *testing.T) {
	c, b := newController(t, &testutil.RecordingChannel{})

	require.NoError(t, c.Start(nil))
	b.Deliver([]byte(`{"type":"generation_complete","data":{}}`))
	s := c.State()
	assert.False(t, s.IsActive)
	assert.Equal(t, 100.0, s.Progress)

	require.NoError(t, c.Start(nil))
	b.Deliver([]byte(`{"type":"generation_failed","data":{"reason":"out of memory"}}`))
	s = c.State()
	assert.False(t, s.IsActive)
	assert.Equal(t, "out of memory", s.StatusText)

	b.Deliver([]byte(`{"type":"generation_failed"}`))
	assert.Equal(t, DefaultFailedStatus, c.State().StatusText)
}

func TestObserve(t *testing.T) {
	c, b := newController(t, &testutil.RecordingChannel{})
	var seen []float64
	c.Observe(func(s State) { seen = append(seen, s.Progress) })

	require.NoError(t, c.Start(nil))
	b.Deliver([]byte(`{"type":"progress_update","data":{"progress":150,"is_generating":true}}`))
	b.Deliver([]byte(`{"type":"generation_complete"}`))

	assert.Equal(t, []float64{0, 100, 100}, seen)
}
