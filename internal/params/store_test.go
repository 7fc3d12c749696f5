package params

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/worldgen-panel/internal/catalog"
)

func f(v float64) *float64 { return &v }

func sizeCatalog() catalog.Catalog {
	return catalog.Catalog{{
		Title: "Landmass",
		Parameters: []catalog.Parameter{
			{Key: "size", UIKind: catalog.KindSlider, Min: f(10), Max: f(100), Step: f(5), Default: 50, Curated: true},
		},
	}}
}

func TestUpdate_SizeScenario(t *testing.T) {
	s := NewStore()
	s.SetCatalog(sizeCatalog())

	v, err := s.Update("size", 97)
	require.NoError(t, err)
	assert.Equal(t, 95.0, v)
	got, _ := s.Get("size")
	assert.Equal(t, 95.0, got)

	v, err = s.Update("size", 3)
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)
}

func TestUpdate_CoercesStrings(t *testing.T) {
	s := NewStore()
	s.SetCatalog(catalog.Catalog{{Parameters: []catalog.Parameter{
		{Key: "size", UIKind: catalog.KindSlider, Min: f(10), Max: f(100), Step: f(5)},
		{Key: "rivers", UIKind: catalog.KindCheckbox},
		{Key: "name", UIKind: catalog.KindText},
	}}})

	v, err := s.Update("size", " 42 ")
	require.NoError(t, err)
	assert.Equal(t, 40.0, v)

	v, err = s.Update("rivers", "true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = s.Update("rivers", 0.0)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = s.Update("name", "Arda")
	require.NoError(t, err)
	assert.Equal(t, "Arda", v)

	_, err = s.Update("size", "lots")
	assert.Error(t, err)
	got, _ := s.Get("size")
	assert.Equal(t, 40.0, got, "a rejected update must not change the store")
}

func TestUpdate_UnknownKeyStoredVerbatim(t *testing.T) {
	s := NewStore()
	v, err := s.Update("mystery", "x")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestUpdate_ClampedRangePreferred(t *testing.T) {
	s := NewStore()
	s.SetCatalog(catalog.Catalog{{Parameters: []catalog.Parameter{
		{Key: "temp", UIKind: catalog.KindNumber, Min: f(-30), Max: f(40), ClampedMin: f(-10), ClampedMax: f(30)},
	}}})

	v, _ := s.Update("temp", -25)
	assert.Equal(t, -10.0, v)
	v, _ = s.Update("temp", 35)
	assert.Equal(t, 30.0, v)
}

func TestUpdate_FirstDefinitionWins(t *testing.T) {
	s := NewStore()
	s.SetCatalog(catalog.Catalog{
		{Parameters: []catalog.Parameter{{Key: "k", UIKind: catalog.KindSlider, Min: f(0), Max: f(10)}}},
		{Parameters: []catalog.Parameter{{Key: "k", UIKind: catalog.KindSlider, Min: f(0), Max: f(1000)}}},
	})
	v, _ := s.Update("k", 500)
	assert.Equal(t, 10.0, v)
}

func TestQuantize_OffGridUpperBound(t *testing.T) {
	// 0..10 step 4: 10 rounds to 12 which is outside, so step back to 8.
	def := catalog.Parameter{Key: "k", UIKind: catalog.KindSlider, Min: f(0), Max: f(10), Step: f(4)}
	v, err := Normalize(def, 10)
	require.NoError(t, err)
	assert.Equal(t, 8.0, v)
}

func TestQuantize_NoMinUsesZeroOffset(t *testing.T) {
	def := catalog.Parameter{Key: "k", UIKind: catalog.KindNumber, Step: f(0.5)}
	v, _ := Normalize(def, 1.26)
	assert.Equal(t, 1.5, v)
	v, _ = Normalize(def, -1.25)
	assert.Equal(t, -1.5, v, "ties round away from zero")
}

func TestNormalize_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		lo := math.Round(rng.Float64()*200 - 100)
		hi := lo + math.Round(rng.Float64()*200)
		step := []float64{0.1, 0.25, 1, 3, 5, 7.5}[rng.Intn(6)]
		def := catalog.Parameter{Key: "k", UIKind: catalog.KindSlider, Min: f(lo), Max: f(hi), Step: f(step)}

		raw := rng.Float64()*600 - 300
		got, err := Normalize(def, raw)
		require.NoError(t, err)
		v := got.(float64)

		const eps = 1e-9
		if hi-lo >= step {
			require.GreaterOrEqualf(t, v, lo-eps, "lo=%v hi=%v step=%v raw=%v", lo, hi, step, raw)
			require.LessOrEqualf(t, v, hi+eps, "lo=%v hi=%v step=%v raw=%v", lo, hi, step, raw)
		}
		n := (v - lo) / step
		require.InDeltaf(t, math.Round(n), n, 1e-6, "lo=%v step=%v v=%v", lo, step, v)
	}
}

func TestNormalize_ClampWithoutStep(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		lo := rng.Float64()*100 - 50
		hi := lo + rng.Float64()*100
		def := catalog.Parameter{Key: "k", UIKind: catalog.KindNumber, Min: f(lo), Max: f(hi)}
		got, _ := Normalize(def, rng.Float64()*400-200)
		v := got.(float64)
		require.GreaterOrEqual(t, v, lo)
		require.LessOrEqual(t, v, hi)
	}
}

func TestInitializeDefaults(t *testing.T) {
	c := catalog.Catalog{
		{Parameters: []catalog.Parameter{
			{Key: "size", UIKind: catalog.KindSlider, Min: f(10), Max: f(100), Default: 50, Curated: true},
			{Key: "islands", UIKind: catalog.KindCheckbox, Curated: true},
			{Key: "seed", UIKind: catalog.KindSeed, Curated: true},
			{Key: "temp", UIKind: catalog.KindNumber, Min: f(-30), Curated: true},
			{Key: "culture", UIKind: catalog.KindSelect, Curated: true},
			{Key: "hidden", UIKind: catalog.KindSlider, Default: 3},
		}},
		{Parameters: []catalog.Parameter{
			{Key: "name", UIKind: catalog.KindText, Default: "Arda", Curated: true},
		}},
	}
	s := NewStore()
	s.InitializeDefaults(c)

	want := map[string]any{
		"size":    50.0,
		"islands": false,
		"seed":    0.0,
		"temp":    -30.0,
		"culture": "",
		"name":    "Arda",
	}
	assert.Equal(t, want, s.Snapshot())

	s.Set("hidden", 9)
	got, ok := s.Get("hidden")
	assert.True(t, ok)
	assert.Equal(t, 9, got)
}

func TestEnsureInitialized_KeepsExisting(t *testing.T) {
	c := sizeCatalog()
	s := NewStore()
	s.SetCatalog(c)
	_, err := s.Update("size", 80)
	require.NoError(t, err)

	s.EnsureInitialized(c[0])
	got, _ := s.Get("size")
	assert.Equal(t, 80.0, got)
	assert.Equal(t, 1, s.Len())
}

func TestSnapshot_IsCopy(t *testing.T) {
	s := NewStore()
	s.Set("a", 1)
	snap := s.Snapshot()
	snap["a"] = 2
	got, _ := s.Get("a")
	assert.Equal(t, 1, got)
}

func TestUpdate_RangeWithoutKind(t *testing.T) {
	s := NewStore()
	s.SetCatalog(catalog.Catalog{{Parameters: []catalog.Parameter{
		{Key: "size", Min: f(10), Max: f(100), Step: f(5), Default: 50, Curated: true},
		{Key: "biome", UIKind: "palette", ClampedMax: f(3)},
		{Key: "label", Min: f(0)},
	}}})

	v, err := s.Update("size", 97)
	require.NoError(t, err)
	assert.Equal(t, 95.0, v)

	v, err = s.Update("size", 3)
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)

	v, err = s.Update("biome", "7")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = s.Update("label", "north")
	require.NoError(t, err)
	assert.Equal(t, "north", v, "non-numeric values pass through")
}
