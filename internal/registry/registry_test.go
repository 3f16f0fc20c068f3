package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shape interface{ Name() string }

type circle struct{ Radius int }

func (c circle) Name() string { return fmt.Sprintf("circle(%d)", c.Radius) }

type square struct{ Side int }

func (s square) Name() string { return fmt.Sprintf("square(%d)", s.Side) }

func newCircle(attrs json.RawMessage) (shape, error) {
	var c circle
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func TestCreateDispatchesByKind(t *testing.T) {
	r := New[shape]("shape")
	require.NoError(t, r.Register(Variant[shape]{Kind: "circle", New: newCircle}))

	got, err := r.Create("circle", json.RawMessage(`{"Radius":3}`))
	require.NoError(t, err)
	assert.Equal(t, "circle(3)", got.Name())

	got, err = r.Create("circle", nil)
	require.NoError(t, err)
	assert.Equal(t, "circle(0)", got.Name())
}

func TestCreateUnknownKind(t *testing.T) {
	r := New[shape]("shape")
	_, err := r.Create("hexagon", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownVariant))
	var uv *UnknownVariantError
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, "hexagon", uv.Kind)
	assert.Equal(t, `unknown shape type "hexagon"`, err.Error())
}

func TestRegisterLastWriteWins(t *testing.T) {
	r := New[shape]("shape")
	require.NoError(t, r.Register(Variant[shape]{Kind: "x", New: newCircle}))
	require.NoError(t, r.Register(Variant[shape]{
		Kind:        "x",
		DisplayName: "Square plugin",
		Source:      Plugin,
		Fields:      []Field{{Key: "side", Required: true}},
		New:         func(json.RawMessage) (shape, error) { return square{Side: 2}, nil },
	}))
	got, err := r.Create("x", nil)
	require.NoError(t, err)
	assert.Equal(t, "square(2)", got.Name())

	v, ok := r.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, Plugin, v.Source)
	assert.Equal(t, "Square plugin", v.DisplayName)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterRejectsBadVariants(t *testing.T) {
	r := New[shape]("shape")
	assert.ErrorIs(t, r.Register(Variant[shape]{New: newCircle}), ErrEmptyKind)
	assert.ErrorIs(t, r.Register(Variant[shape]{Kind: "a"}), ErrNilConstructor)
	assert.Panics(t, func() { r.MustRegister(Variant[shape]{}) })
}

func TestKindsSortedAndUnregister(t *testing.T) {
	r := New[shape]("shape")
	for _, k := range []string{"svn", "git", "hg"} {
		r.MustRegister(Variant[shape]{Kind: k, New: newCircle})
	}
	assert.Equal(t, []string{"git", "hg", "svn"}, r.Kinds())
	v, _ := r.Lookup("git")
	assert.Equal(t, Builtin, v.Source)
	assert.Equal(t, "git", v.DisplayName)

	assert.True(t, r.Unregister("hg"))
	assert.False(t, r.Unregister("hg"))
	assert.Len(t, r.Variants(), 2)
}

func TestConcurrentRegisterAndCreate(t *testing.T) {
	r := New[shape]("shape")
	r.MustRegister(Variant[shape]{Kind: "circle", New: newCircle})
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.MustRegister(Variant[shape]{Kind: fmt.Sprintf("k%d", i%4), New: newCircle})
		}(i)
		go func() {
			defer wg.Done()
			_, err := r.Create("circle", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, r.Len())
}
