package panel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/joeycumines/worldgen-panel/internal/catalog"
	"github.com/joeycumines/worldgen-panel/internal/config"
	"github.com/joeycumines/worldgen-panel/internal/integrator"
	"github.com/joeycumines/worldgen-panel/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func f(v float64) *float64 { return &v }

func testCatalog() catalog.Catalog {
	return catalog.Catalog{
		{Title: "Shape", Parameters: []catalog.Parameter{
			{Key: "size", UIKind: catalog.KindSlider, Min: f(10), Max: f(100), Step: f(5), Default: 50.0, Curated: true, AzgaarKey: "mapSize"},
			{Key: "rivers", UIKind: catalog.KindCheckbox, Curated: true},
		}},
		{Title: "Climate", Parameters: []catalog.Parameter{
			{Key: "climate", UIKind: catalog.KindSelect, Options: []string{"arid", "temperate", "polar"}, Default: "temperate", Curated: true},
		}},
	}
}

func testSettings() config.Settings {
	return config.Settings{
		HostOrigin:            "null",
		SurfaceOrigin:         "https://maps.example",
		SurfaceReadyHandle:    "applyParameters",
		SurfaceAllowedOrigins: []string{"*"},
		MaxRetries:            2,
		BaseDelay:             10 * time.Millisecond,
		MaxDelay:              50 * time.Millisecond,
		PollInterval:          5 * time.Millisecond,
		PollTimeout:           time.Second,
		AckTimeout:            time.Second,
		QuietPeriod:           10 * time.Millisecond,
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeHost talks to the panel over its stdio channel.
type fakeHost struct {
	in  *io.PipeWriter
	out *lockedBuffer
}

func (h *fakeHost) push(t *testing.T, kind string, data any) {
	t.Helper()
	b, err := json.Marshal(map[string]any{"type": kind, "data": data})
	require.NoError(t, err)
	_, err = h.in.Write(append(b, '\n'))
	require.NoError(t, err)
}

type sentMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func (h *fakeHost) sent() []sentMessage {
	var out []sentMessage
	sc := bufio.NewScanner(strings.NewReader(h.out.String()))
	for sc.Scan() {
		var m sentMessage
		if json.Unmarshal(sc.Bytes(), &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func (h *fakeHost) find(typ string, match func(map[string]any) bool) bool {
	for _, m := range h.sent() {
		if m.Type == typ && (match == nil || match(m.Data)) {
			return true
		}
	}
	return false
}

func startPanel(t *testing.T, s config.Settings) (*Panel, *fakeHost, func()) {
	t.Helper()
	pr, pw := io.Pipe()
	h := &fakeHost{in: pw, out: &lockedBuffer{}}
	s.Stdio = true

	p, err := New(context.Background(), Options{Settings: s, Stdin: pr, Stdout: h.out})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	return p, h, func() {
		cancel()
		assert.NoError(t, <-done)
		_ = pw.Close()
		assert.NoError(t, p.Close())
	}
}

func TestPanel_HostRoundTrip(t *testing.T) {
	p, host, stop := startPanel(t, testSettings())
	defer stop()

	require.Eventually(t, func() bool {
		msgs := host.sent()
		return len(msgs) >= 2 && msgs[0].Type == "ready" && msgs[1].Type == "request-step-definitions"
	}, 2*time.Second, 5*time.Millisecond)

	host.push(t, "step_definitions", map[string]any{"steps": testCatalog()})
	require.Eventually(t, func() bool { return len(p.Wizard().Steps()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Shape", p.Wizard().Title())

	require.Eventually(t, func() bool {
		res := p.Result()
		return res != nil && res.OK
	}, 3*time.Second, 5*time.Millisecond)

	p.Post(func() {
		_, err := p.Wizard().UpdateParameter("size", 97)
		assert.NoError(t, err)
	})
	require.Eventually(t, func() bool {
		return host.find("parameter-changed", func(d map[string]any) bool {
			return d["key"] == "size" && d["value"] == 95.0
		}) && host.find("update-param", func(d map[string]any) bool {
			return d["azgaar_key"] == "mapSize" && d["value"] == 95.0
		})
	}, 2*time.Second, 5*time.Millisecond)

	host.push(t, "params_update", map[string]any{"params": map[string]any{"size": 40, "seed": 7}})
	require.Eventually(t, func() bool {
		v, err := p.Surface().Evaluate(`mapState().seed`)
		n, ok := catalog.AsFloat(v)
		return err == nil && ok && n == 7
	}, 2*time.Second, 5*time.Millisecond)
	v, _ := p.Wizard().Store().Get("size")
	assert.Equal(t, 40.0, v)

	p.Post(func() { assert.NoError(t, p.Generate()) })
	require.Eventually(t, func() bool {
		return host.find("generate", func(d map[string]any) bool {
			params, _ := d["parameters"].(map[string]any)
			return params["size"] == 40.0
		})
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		v, err := p.Surface().Evaluate(`mapState().generations`)
		n, ok := catalog.AsFloat(v)
		return err == nil && ok && n == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, p.Generation().State().IsActive)

	host.push(t, "progress_update", map[string]any{"progress": 42, "status": "rendering", "is_generating": true})
	require.Eventually(t, func() bool { return p.Generation().State().Progress == 42 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "rendering", p.Generation().State().StatusText)
}

func TestPanel_ParamsHeldUntilSurfaceVerified(t *testing.T) {
	s := testSettings()
	s.SurfaceReadyHandle = "neverDefined"
	s.MaxRetries = 0
	s.PollTimeout = 50 * time.Millisecond

	p, host, stop := startPanel(t, s)
	defer stop()

	host.push(t, "archetype_params", map[string]any{"params": map[string]any{"size": 60, "seed": 3}})
	require.Eventually(t, func() bool {
		v, ok := p.Wizard().Store().Get("size")
		return ok && v == 60.0
	}, 2*time.Second, 5*time.Millisecond)

	res, err := testutil.WaitForState(context.Background(), p.Result,
		func(r *integrator.Result) bool { return r != nil }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, p.Integrator().State().ListenerVerified)

	v, err := p.Surface().Evaluate(`mapState().seed`)
	require.NoError(t, err)
	assert.Nil(t, v, "parameters must not reach an unverified surface")
}

func TestNew_StdioNeedsStreams(t *testing.T) {
	s := testSettings()
	s.Stdio = true
	_, err := New(context.Background(), Options{Settings: s})
	require.Error(t, err)
}

func TestPanel_ObserveAndClose(t *testing.T) {
	p, err := New(context.Background(), Options{Settings: testSettings(), Catalog: testCatalog()})
	require.NoError(t, err)

	changes := make(chan struct{}, 8)
	p.Observe(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	p.Post(func() { p.Wizard().Next() })
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
	require.Eventually(t, func() bool { return p.Wizard().CurrentStep() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, p.Result())
	require.NoError(t, p.Close())
}
