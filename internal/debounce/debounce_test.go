package debounce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/joeycumines/worldgen-panel/internal/testutil"
)

type recorder struct {
	values map[string]any
	sent   []string
}

func (r *recorder) emit(key string) {
	r.sent = append(r.sent, key+"="+r.values[key].(string))
}

func TestSameKeyCollapsesToFinalValue(t *testing.T) {
	sched := testutil.NewManualScheduler()
	r := &recorder{values: map[string]any{}}
	d := New(sched, 100*time.Millisecond, r.emit)

	r.values["size"] = "v1"
	d.Schedule("size")
	sched.Advance(60 * time.Millisecond)
	r.values["size"] = "v2"
	d.Schedule("size")

	sched.Advance(99 * time.Millisecond)
	assert.Empty(t, r.sent, "quiet period restarts on every schedule")

	sched.Advance(time.Millisecond)
	assert.Equal(t, []string{"size=v2"}, r.sent)
	assert.Zero(t, sched.Pending())
}

func TestDifferentKeysAllDelivered(t *testing.T) {
	sched := testutil.NewManualScheduler()
	r := &recorder{values: map[string]any{}}
	d := New(sched, 0, r.emit)

	r.values["b"] = "1"
	d.Schedule("b")
	r.values["a"] = "1"
	d.Schedule("a")
	r.values["b"] = "2"
	d.Schedule("b")
	assert.Equal(t, []string{"b", "a"}, d.Pending())

	sched.Advance(DefaultQuietPeriod)
	assert.Equal(t, []string{"b=2", "a=1"}, r.sent)
}

func TestValueReadAtFireTime(t *testing.T) {
	sched := testutil.NewManualScheduler()
	r := &recorder{values: map[string]any{"k": "scheduled"}}
	d := New(sched, 100*time.Millisecond, r.emit)

	d.Schedule("k")
	r.values["k"] = "later"
	sched.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"k=later"}, r.sent)
}

func TestFlushAndStop(t *testing.T) {
	sched := testutil.NewManualScheduler()
	r := &recorder{values: map[string]any{"k": "x"}}
	d := New(sched, 100*time.Millisecond, r.emit)

	d.Schedule("k")
	d.Flush()
	assert.Equal(t, []string{"k=x"}, r.sent)
	sched.Advance(time.Second)
	assert.Len(t, r.sent, 1, "flush cancels the timer")

	d.Schedule("k")
	d.Stop()
	sched.Advance(time.Second)
	assert.Len(t, r.sent, 1)
	assert.Empty(t, d.Pending())
}

func TestSeparateBatches(t *testing.T) {
	sched := testutil.NewManualScheduler()
	r := &recorder{values: map[string]any{"k": "1"}}
	d := New(sched, 100*time.Millisecond, r.emit)

	d.Schedule("k")
	sched.Advance(100 * time.Millisecond)
	r.values["k"] = "2"
	d.Schedule("k")
	sched.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"k=1", "k=2"}, r.sent)
}
