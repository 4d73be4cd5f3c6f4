package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.bbrapi.dev/runner/pkg/compile"
	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/source"
	"go.bbrapi.dev/runner/pkg/util/errs"
)

type fakeEvaluator map[string]error

func (f fakeEvaluator) Evaluate(_ context.Context, img *compile.Image) (Factory, error) {
	if err := f[img.Name]; err != nil {
		return nil, err
	}
	if img.Name == "Panics" {
		panic("evaluate exploded")
	}
	if img.Name == "Nil" {
		return nil, nil
	}
	name := img.Name
	return func(inst *module.Instance) {
		inst.Export("built-by", name)
	}, nil
}

func images(names ...string) []*compile.Image {
	out := make([]*compile.Image, len(names))
	for i, n := range names {
		out[i] = &compile.Image{Name: n}
	}
	return out
}

func TestLoad_IsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	c := New(Options{Evaluator: fakeEvaluator{"Bad": boom}})

	mods, failed := c.Load(context.Background(), images("A", "Bad", "Panics", "Nil", "B"))
	require.Len(t, mods, 2)
	assert.Equal(t, "A", mods[0].Name())
	assert.Equal(t, "B", mods[1].Name())
	assert.ErrorIs(t, failed["Bad"], boom)
	assert.True(t, errs.HasCode(failed["Panics"], errs.ErrCodeEvaluate))
	assert.True(t, errs.HasCode(failed["Nil"], errs.ErrCodeNoFactory))

	inst := module.NewInstance(module.InstanceOptions{Name: "A"})
	require.NoError(t, mods[0].New(inst))
	v, ok := inst.Lookup("built-by")
	require.True(t, ok)
	assert.Equal(t, "A", v)
}

func TestUnloadAll_InvalidatesGeneration(t *testing.T) {
	c := New(Options{Evaluator: fakeEvaluator{}})
	old, failed := c.Load(context.Background(), images("A"))
	require.Empty(t, failed)
	assert.Equal(t, []uint64{old[0].ID().Generation}, c.Generations())

	c.UnloadAll()
	assert.Empty(t, c.Generations())
	assert.True(t, old[0].Generation().Unloaded())

	err := old[0].New(module.NewInstance(module.InstanceOptions{Name: "A"}))
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.ErrCodeGenerationUnloaded))

	fresh, failed := c.Load(context.Background(), images("A"))
	require.Empty(t, failed)
	assert.Equal(t, old[0].Name(), fresh[0].Name())
	assert.NotEqual(t, old[0].ID(), fresh[0].ID())
	assert.NoError(t, fresh[0].New(module.NewInstance(module.InstanceOptions{Name: "A"})))
}

func TestNew_RecoversFactoryPanic(t *testing.T) {
	gen := &Generation{id: 1}
	m := &Module{id: TypeID{Name: "P", Generation: 1}, gen: gen, factory: func(*module.Instance) { panic("ctor") }}
	err := m.New(module.NewInstance(module.InstanceOptions{Name: "P"}))
	assert.True(t, errs.HasCode(err, errs.ErrCodeInstantiate))
	assert.Equal(t, "P#1", m.ID().String())
}

func TestLoad_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mods, failed := New(Options{Evaluator: fakeEvaluator{}}).Load(ctx, images("A"))
	assert.Empty(t, mods)
	assert.ErrorIs(t, failed["A"], context.Canceled)
}

const counter = `package main

import "go.bbrapi.dev/runner/pkg/module"

//module:info description="Counts ticks" version="1.0.0"
type Counter struct {
	module.Base
	ticks int
}

func (c *Counter) OnTick() {
	c.ticks++
	c.Instance.Export("ticks", c.ticks)
}
`

func TestInterpreter_LoadsCompiledImage(t *testing.T) {
	u, err := source.Parse("Counter.go", []byte(counter))
	require.NoError(t, err)
	img, _, err := compile.New(compile.Options{}).Compile(context.Background(), u, nil)
	require.NoError(t, err)

	c := New(Options{})
	mods, failed := c.Load(context.Background(), []*compile.Image{img})
	require.Empty(t, failed)
	require.Len(t, mods, 1)

	inst := module.NewInstance(module.InstanceOptions{Name: "Counter"})
	require.NoError(t, mods[0].New(inst))
	h := inst.Handlers()
	require.NotNil(t, h.Tick)
	h.Tick()
	h.Tick()
	v, ok := inst.Lookup("ticks")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	c.UnloadAll()
	assert.True(t, errs.HasCode(mods[0].New(inst), errs.ErrCodeGenerationUnloaded))
}
