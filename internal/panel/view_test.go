package panel

import (
	"context"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/worldgen-panel/internal/catalog"
	"github.com/joeycumines/worldgen-panel/internal/logging"
)

func TestNudge(t *testing.T) {
	slider := catalog.Parameter{Key: "size", UIKind: catalog.KindSlider, Step: f(5)}
	number := catalog.Parameter{Key: "n", UIKind: catalog.KindNumber}
	check := catalog.Parameter{Key: "rivers", UIKind: catalog.KindCheckbox}
	sel := catalog.Parameter{Key: "climate", UIKind: catalog.KindSelect, Options: []string{"arid", "temperate", "polar"}}
	text := catalog.Parameter{Key: "name", UIKind: catalog.KindText}

	for _, tc := range []struct {
		name    string
		def     catalog.Parameter
		current any
		dir     int
		want    any
		ok      bool
	}{
		{"slider up", slider, 50.0, 1, 55.0, true},
		{"slider down", slider, 50.0, -1, 45.0, true},
		{"number default step", number, 3, 1, 4.0, true},
		{"missing numeric starts at zero", number, nil, 1, 1.0, true},
		{"checkbox toggles", check, false, 1, true, true},
		{"checkbox toggles either way", check, true, -1, false, true},
		{"select forward", sel, "temperate", 1, "polar", true},
		{"select wraps forward", sel, "polar", 1, "arid", true},
		{"select wraps backward", sel, "arid", -1, "polar", true},
		{"select unknown value", sel, "swamp", 1, "arid", true},
		{"select without options", catalog.Parameter{UIKind: catalog.KindSelect}, "x", 1, nil, false},
		{"text has no increment", text, "abc", 1, nil, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Nudge(tc.def, tc.current, tc.dir)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newViewPanel(t *testing.T) (*Panel, *logging.History) {
	t.Helper()
	setup, err := logging.New(logging.Options{Level: slog.LevelInfo, BufferSize: 50})
	require.NoError(t, err)
	p, err := New(context.Background(), Options{Settings: testSettings(), Catalog: testCatalog(), Logger: setup.Logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, setup.History
}

func TestModel_KeysDriveWizard(t *testing.T) {
	p, history := newViewPanel(t)
	var m tea.Model = NewModel(p, history)

	m, _ = m.Update(runes("+"))
	require.Eventually(t, func() bool {
		v, _ := p.Wizard().Store().Get("size")
		return v == 55.0
	}, 2*time.Second, 5*time.Millisecond)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(runes(" "))
	require.Eventually(t, func() bool {
		v, _ := p.Wizard().Store().Get("rivers")
		return v == true
	}, 2*time.Second, 5*time.Millisecond)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRight})
	require.Eventually(t, func() bool { return p.Wizard().CurrentStep() == 1 }, 2*time.Second, 5*time.Millisecond)

	m, _ = m.Update(changedMsg{})
	view := m.View()
	assert.Contains(t, view, "Climate")
	assert.Contains(t, view, "temperate")
	assert.Contains(t, view, "(2/2)")

	m, _ = m.Update(runes("-"))
	require.Eventually(t, func() bool {
		v, _ := p.Wizard().Store().Get("climate")
		return v == "arid"
	}, 2*time.Second, 5*time.Millisecond)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	require.Eventually(t, func() bool { return p.Wizard().CurrentStep() == 0 }, 2*time.Second, 5*time.Millisecond)

	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_ViewShowsGenerationAndSurface(t *testing.T) {
	p, history := newViewPanel(t)
	m := NewModel(p, history)

	done := make(chan struct{})
	p.Post(func() {
		defer close(done)
		// no channel is configured, so the send is a silent no-op
		assert.NoError(t, p.Generate())
	})
	<-done

	view := m.View()
	assert.Contains(t, view, "Shape")
	assert.Contains(t, view, "Generation")
	assert.Contains(t, view, "Surface")
	assert.Contains(t, view, "generation started")
}

func TestModel_CursorClampedOnChange(t *testing.T) {
	p, history := newViewPanel(t)
	var m tea.Model = NewModel(p, history)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.(Model).cursor)

	p.Post(func() { p.Wizard().Next() })
	require.Eventually(t, func() bool { return p.Wizard().CurrentStep() == 1 }, 2*time.Second, 5*time.Millisecond)
	m, _ = m.Update(changedMsg{})
	assert.Equal(t, 0, m.(Model).cursor)
}
