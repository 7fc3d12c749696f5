package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
steps:
  - title: Landmass
    info_text: Shape the continents.
    parameters:
      - key: size
        ui_kind: slider
        default: 50
        min: 10
        max: 100
        step: 5
        curated: true
        azgaar_key: mapSize
      - key: islands
        ui_kind: checkbox
        curated: true
  - title: Climate
    parameters:
      - key: temperature
        ui_kind: number
        min: -30
        max: 40
        clamped_min: -10
        curated: true
      - key: size
        ui_kind: slider
        min: 0
        max: 10
`

func float(v float64) *float64 { return &v }

func TestLoad_YAML(t *testing.T) {
	c, err := Load(strings.NewReader(sampleYAML))
	require.NoError(t, err)
	require.Len(t, c, 2)

	assert.Equal(t, "Landmass", c[0].Title)
	require.NotNil(t, c[0].InfoText)
	assert.Equal(t, "Shape the continents.", *c[0].InfoText)
	assert.Nil(t, c[1].InfoText)

	size := c[0].Parameters[0]
	assert.Equal(t, KindSlider, size.UIKind)
	assert.Equal(t, 50, size.Default)
	require.NotNil(t, size.Min)
	assert.Equal(t, 10.0, *size.Min)
	assert.Equal(t, "mapSize", size.AzgaarKey)
	assert.True(t, size.Curated)
}

func TestLoad_JSONIsAccepted(t *testing.T) {
	doc := `{"steps":[{"title":"Only","parameters":[{"key":"seed","ui_kind":"seed","curated":true}]}]}`
	c, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, c, 1)
	assert.Equal(t, KindSeed, c[0].Parameters[0].UIKind)
}

func TestLoad_Empty(t *testing.T) {
	_, err := Load(strings.NewReader(""))
	assert.ErrorIs(t, err, errNoSteps)

	_, err = Load(strings.NewReader("steps: []"))
	assert.ErrorIs(t, err, errNoSteps)

	_, err = Load(strings.NewReader("steps: [[["))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, c, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLookup_FirstMatchWins(t *testing.T) {
	c, err := Load(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	p, ok := c.Lookup("size")
	require.True(t, ok)
	assert.Equal(t, 100.0, *p.Max)

	_, ok = c.Lookup("nope")
	assert.False(t, ok)
}

func TestBounds_ClampedOverrides(t *testing.T) {
	p := Parameter{Min: float(-30), Max: float(40), ClampedMin: float(-10)}
	lo, hi := p.Bounds()
	assert.Equal(t, -10.0, *lo)
	assert.Equal(t, 40.0, *hi)

	lo, hi = Parameter{}.Bounds()
	assert.Nil(t, lo)
	assert.Nil(t, hi)
}

func TestValidate(t *testing.T) {
	c, err := Load(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	c = append(c, Step{Title: "Broken", Parameters: []Parameter{
		{Key: ""},
		{Key: "height", UIKind: KindNumber, Min: float(5), Max: float(1)},
		{Key: "rivers", UIKind: KindSlider, Min: float(0), Max: float(10), Default: 11.0},
		{Key: "erosion", UIKind: KindSlider, Step: float(0)},
	}})

	issues := Validate(c)
	joined := strings.Join(issues, "\n")
	assert.Contains(t, joined, `parameter "size": redefined with a different range`)
	assert.Contains(t, joined, "parameter without key")
	assert.Contains(t, joined, `"height": min 5 > max 1`)
	assert.Contains(t, joined, `"rivers": default 11 outside range`)
	assert.Contains(t, joined, `"erosion": step must be positive`)
	assert.Len(t, issues, 5)
}

func TestValidate_SharedKeySameRangeIsFine(t *testing.T) {
	p := Parameter{Key: "seed", UIKind: KindSeed, Min: float(0), Max: float(999)}
	c := Catalog{{Parameters: []Parameter{p}}, {Parameters: []Parameter{p}}}
	assert.Empty(t, Validate(c))
}

func TestStep_JSONRoundTripFromHost(t *testing.T) {
	payload := `{"title":"Culture","info_text":null,"parameters":[{"key":"states","ui_kind":"slider","min":1,"max":99,"default":12,"curated":true}]}`
	var s Step
	require.NoError(t, json.Unmarshal([]byte(payload), &s))
	assert.Nil(t, s.InfoText)
	d, ok := AsFloat(s.Parameters[0].Default)
	require.True(t, ok)
	assert.Equal(t, 12.0, d)

	camel := `{"title":"Land","infoText":"Overall size","parameters":[{"key":"size","uiKind":"slider","clampedMin":20,"clampedMax":80,"azgaarKey":"mapSize","curated":true}]}`
	var c Step
	require.NoError(t, json.Unmarshal([]byte(camel), &c))
	require.NotNil(t, c.InfoText)
	assert.Equal(t, "Overall size", *c.InfoText)
	p := c.Parameters[0]
	assert.Equal(t, KindSlider, p.UIKind)
	lo, hi := p.Bounds()
	require.NotNil(t, lo)
	require.NotNil(t, hi)
	assert.Equal(t, 20.0, *lo)
	assert.Equal(t, 80.0, *hi)
	assert.Equal(t, "mapSize", p.AzgaarKey)

	mixed := `{"key":"size","ui_kind":"number","uiKind":"slider"}`
	var m Parameter
	require.NoError(t, json.Unmarshal([]byte(mixed), &m))
	assert.Equal(t, KindNumber, m.UIKind, "snake_case wins when both are present")
}

func TestLoad_CamelCaseYAML(t *testing.T) {
	c, err := Load(strings.NewReader("steps:\n  - title: Land\n    infoText: hello\n    parameters:\n      - key: size\n        uiKind: slider\n        clampedMax: 80\n"))
	require.NoError(t, err)
	require.Len(t, c, 1)
	require.NotNil(t, c[0].InfoText)
	assert.Equal(t, "hello", *c[0].InfoText)
	p := c[0].Parameters[0]
	assert.Equal(t, KindSlider, p.UIKind)
	require.NotNil(t, p.ClampedMax)
	assert.Equal(t, 80.0, *p.ClampedMax)
	assert.True(t, p.Ranged())
}

func TestUIKind(t *testing.T) {
	assert.True(t, KindCheckbox.Boolean())
	assert.False(t, KindSlider.Boolean())
	assert.True(t, KindSlider.Numeric())
	assert.True(t, KindSeed.Numeric())
	assert.False(t, KindSelect.Numeric())
}
