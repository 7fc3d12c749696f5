package integrator

import (
	"github.com/joeycumines/worldgen-panel/internal/surface"
)

// Target is the embedded surface as seen by the integrator.
type Target interface {
	// Ready reports whether the surface's readiness handle exists.
	Ready() bool
	// Origin is the surface's origin; "null" when opaque.
	Origin() string
	// Probe performs a benign read of the surface document. It fails with
	// surface.ErrCrossOrigin when the document is not accessible.
	Probe() error
	// InsertScript adds an inline script to the surface document.
	InsertScript(code string) error
	// Evaluate runs code inside the surface without touching its document.
	Evaluate(code string) (any, error)
	// PostMessage sends msg to the surface's message listeners.
	PostMessage(msg map[string]any, targetOrigin string) error
}

type surfaceTarget struct {
	*surface.Surface
}

// SurfaceTarget adapts a surface.Surface.
func SurfaceTarget(s *surface.Surface) Target {
	return surfaceTarget{s}
}

func (t surfaceTarget) Probe() error {
	doc, err := t.Document()
	if err != nil {
		return err
	}
	_, err = doc.ReadyState()
	return err
}

func (t surfaceTarget) InsertScript(code string) error {
	doc, err := t.Document()
	if err != nil {
		return err
	}
	return doc.InsertScript(code)
}
