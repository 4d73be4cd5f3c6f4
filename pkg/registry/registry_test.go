package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/robinbraemer/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.bbrapi.dev/runner/pkg/compile"
	"go.bbrapi.dev/runner/pkg/internal/hashutil"
	"go.bbrapi.dev/runner/pkg/loader"
	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/source"
	"go.bbrapi.dev/runner/pkg/util/errs"
)

// fakeCompiler builds images without an interpreter. Units whose source
// contains "BROKEN" fail to compile.
type fakeCompiler struct {
	mu       sync.Mutex
	images   map[uint64]*compile.Image
	compiled []string
	forgot   []string
}

func newFakeCompiler() *fakeCompiler {
	return &fakeCompiler{images: map[uint64]*compile.Image{}}
}

func (f *fakeCompiler) Compile(_ context.Context, u *source.Unit, refs []*compile.Image) (*compile.Image, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(string(u.Source), "BROKEN") {
		return nil, false, errs.NewCompileError(u.Name, errors.New("undefined: BROKEN"))
	}
	references := compile.ReferencesOf(refs)
	parts := [][]byte{u.Source}
	for _, r := range references {
		parts = append(parts, []byte(fmt.Sprint(r.Name, r.Hash)))
	}
	h := hashutil.Combine(parts...)
	if img, ok := f.images[h]; ok {
		return img, true, nil
	}
	img := &compile.Image{Name: u.Name, Hash: h, References: references, Unit: u, Source: string(u.Source)}
	f.images[h] = img
	f.compiled = append(f.compiled, u.Name)
	return img, false, nil
}

func (f *fakeCompiler) Forget(img *compile.Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, img.Hash)
	f.forgot = append(f.forgot, img.Name)
}

func (f *fakeCompiler) takeCompiled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.compiled
	f.compiled = nil
	return c
}

type nopEvaluator struct{}

func (nopEvaluator) Evaluate(context.Context, *compile.Image) (loader.Factory, error) {
	return func(*module.Instance) {}, nil
}

func moduleSource(name string, requires []string, optional []string, extra string) string {
	var b strings.Builder
	b.WriteString("package main\n\nimport \"go.bbrapi.dev/runner/pkg/module\"\n\n")
	b.WriteString("//module:info description=\"test\" version=\"1.0.0\"\n")
	if len(requires) != 0 {
		b.WriteString("//module:require " + strings.Join(requires, " ") + "\n")
	}
	b.WriteString("type " + name + " struct {\n\tmodule.Base\n")
	for _, r := range append(append([]string(nil), requires...), optional...) {
		b.WriteString("\t" + r + " *module.Ref\n")
	}
	b.WriteString("}\n")
	b.WriteString(extra)
	return b.String()
}

type fixture struct {
	dir      string
	compiler *fakeCompiler
	loader   *loader.Context
	reg      *Registry
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	f := &fixture{dir: t.TempDir(), compiler: newFakeCompiler()}
	f.loader = loader.New(loader.Options{Evaluator: nopEvaluator{}})
	o := Options{Dir: f.dir, Compiler: f.compiler, Loader: f.loader}
	for _, fn := range opts {
		fn(&o)
	}
	f.reg = New(o)
	return f
}

func (f *fixture) write(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(f.dir, name+".go")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoad_OrdersByDependency(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Alpha", moduleSource("Alpha", []string{"Core"}, []string{"Extra"}, ""))
	f.write(t, "Core", moduleSource("Core", nil, nil, ""))
	f.write(t, "Extra", moduleSource("Extra", []string{"Core"}, nil, ""))

	rep, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Core", "Extra", "Alpha"}, rep.Order)
	assert.Equal(t, 3, rep.Changed)
	assert.Equal(t, 3, rep.Compiled)
	assert.Empty(t, rep.Failures)
	assert.Equal(t, "3 modules loaded", rep.String())
	assert.Len(t, f.reg.Modules(), 3)
	assert.Len(t, f.reg.Units(), 3)

	m, ok := f.reg.Module("alpha")
	require.True(t, ok)
	assert.Equal(t, "Alpha", m.Name())
}

func TestLoad_MissingRequiredIsTransitive(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Needy", moduleSource("Needy", []string{"Absent"}, nil, ""))
	f.write(t, "Top", moduleSource("Top", []string{"Needy"}, nil, ""))
	f.write(t, "Relaxed", moduleSource("Relaxed", nil, []string{"Absent", "Needy"}, ""))

	rep, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Relaxed"}, rep.Order, "optional absence is not fatal")
	assert.True(t, errs.HasCode(rep.Failures["Needy"], errs.ErrCodeMissingDependency))
	assert.True(t, errs.HasCode(rep.Failures["Top"], errs.ErrCodeMissingDependency))
}

func TestLoad_RejectsCycles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Ping", moduleSource("Ping", []string{"Pong"}, nil, ""))
	f.write(t, "Pong", moduleSource("Pong", nil, []string{"Ping"}, ""))
	f.write(t, "Solo", moduleSource("Solo", nil, nil, ""))

	rep, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Solo"}, rep.Order)
	assert.True(t, errs.HasCode(rep.Failures["Ping"], errs.ErrCodeDependencyCycle))
	assert.True(t, errs.HasCode(rep.Failures["Pong"], errs.ErrCodeDependencyCycle))
}

func TestLoad_DuplicateNameAbortsBatch(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Same", moduleSource("Same", nil, nil, ""))
	extra := filepath.Join(t.TempDir(), "Same.go")
	require.NoError(t, os.WriteFile(extra, []byte(moduleSource("Same", nil, nil, "")), 0o644))
	f.write(t, "Other", moduleSource("Other", nil, nil, ""))
	f.reg.files = []string{extra}

	_, err := f.reg.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.ErrCodeDuplicateModule))
	assert.Empty(t, f.reg.Modules(), "nothing is loaded")
}

func TestLoad_ParseFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	bad := f.write(t, "Mismatch", moduleSource("SomethingElse", nil, nil, ""))
	f.write(t, "Fine", moduleSource("Fine", nil, nil, ""))

	rep, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Fine"}, rep.Order)
	assert.True(t, errs.HasCode(rep.Failures[bad], errs.ErrCodeNameMismatch))
}

func TestLoad_ReusesUnchangedImages(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Core", moduleSource("Core", nil, nil, ""))
	f.write(t, "Leaf", moduleSource("Leaf", []string{"Core"}, nil, ""))
	f.write(t, "Lone", moduleSource("Lone", nil, nil, ""))

	_, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	first := f.reg.Modules()
	f.compiler.takeCompiled()

	rep, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.compiler.takeCompiled())
	assert.Equal(t, 0, rep.Changed)
	assert.Equal(t, 3, rep.Reused)

	second := f.reg.Modules()
	require.Len(t, second, 3)
	for i := range first {
		assert.Equal(t, first[i].Name(), second[i].Name())
		assert.NotEqual(t, first[i].ID(), second[i].ID(), "each batch is a new generation")
		assert.Same(t, first[i].Image, second[i].Image)
		assert.True(t, errs.HasCode(first[i].New(module.NewInstance(module.InstanceOptions{})), errs.ErrCodeGenerationUnloaded))
	}

	// Editing Core recompiles Core and, through its changed hash, Leaf.
	core := f.write(t, "Core", moduleSource("Core", nil, nil, "\n// edited\n"))
	f.reg.MarkChanged(core)
	rep, err = f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Core", "Leaf"}, f.compiler.takeCompiled())
	assert.Equal(t, 1, rep.Changed)
	assert.Equal(t, "1 changed, 3 total modules loaded", rep.String())
}

func TestLoad_FailedReloadKeepsPreviousImage(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "Keeper", moduleSource("Keeper", nil, nil, ""))
	_, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	prev := f.reg.Modules()[0].Image

	f.write(t, "Keeper", moduleSource("Keeper", nil, nil, "var _ = BROKEN\n"))
	f.reg.MarkChanged(path)
	rep, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, errs.HasCode(rep.Failures["Keeper"], errs.ErrCodeCompile))
	require.Len(t, f.reg.Modules(), 1)
	assert.Same(t, prev, f.reg.Modules()[0].Image)
}

func TestInvalidate_BrokenModuleKeepsPreviousVersion(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Keeper", moduleSource("Keeper", nil, nil, ""))
	f.write(t, "Dep", moduleSource("Dep", []string{"Keeper"}, nil, ""))
	_, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	prev := f.reg.Modules()[0].Image
	require.Equal(t, "Keeper", prev.Name)

	f.write(t, "Keeper", moduleSource("Keeper", nil, nil, "var _ = BROKEN\n"))
	names, err := f.reg.Invalidate("Keeper")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Keeper", "Dep"}, names)

	rep, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Keeper", "Dep"}, rep.Order)
	assert.True(t, errs.HasCode(rep.Failures["Keeper"], errs.ErrCodeCompile))
	assert.NotContains(t, rep.Failures, "Dep")
	mods := f.reg.Modules()
	require.Len(t, mods, 2)
	assert.Same(t, prev, mods[0].Image)
}

func TestLoad_ParseFailureOnReloadDropsUnit(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "Foo", moduleSource("Foo", nil, nil, ""))
	f.write(t, "User", moduleSource("User", []string{"Foo"}, nil, ""))
	_, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, f.reg.Modules(), 2)

	f.write(t, "Foo", moduleSource("Bar", nil, nil, ""))
	f.reg.MarkChanged(path)
	rep, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Order)
	assert.True(t, errs.HasCode(rep.Failures[path], errs.ErrCodeNameMismatch))
	assert.True(t, errs.HasCode(rep.Failures["User"], errs.ErrCodeMissingDependency))
	assert.Empty(t, f.reg.Modules())
	assert.Contains(t, f.compiler.forgot, "Foo")

	// Fixing the file brings both back.
	f.write(t, "Foo", moduleSource("Foo", nil, nil, ""))
	f.reg.MarkChanged(path)
	rep, err = f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo", "User"}, rep.Order)
}

func TestLoad_RemovedFilesAreForgotten(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "Gone", moduleSource("Gone", nil, nil, ""))
	f.write(t, "Stays", moduleSource("Stays", nil, nil, ""))
	_, err := f.reg.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	rep, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Stays"}, rep.Order)
	assert.Contains(t, f.compiler.forgot, "Gone")
}

func TestInvalidate_CascadesToDependents(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Base", moduleSource("Base", nil, nil, ""))
	f.write(t, "Mid", moduleSource("Mid", []string{"Base"}, nil, ""))
	f.write(t, "Top", moduleSource("Top", nil, []string{"Mid"}, ""))
	f.write(t, "Unrelated", moduleSource("Unrelated", nil, nil, ""))
	_, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	f.compiler.takeCompiled()

	names, err := f.reg.Invalidate("base")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Base", "Mid", "Top"}, names)

	rep, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Changed)
	assert.Equal(t, []string{"Base", "Mid", "Top"}, f.compiler.takeCompiled())
	assert.Equal(t, 1, rep.Reused)

	_, err = f.reg.Invalidate("Nope")
	assert.True(t, errs.HasCode(err, errs.ErrCodeUnknownModule))
}

func TestLoad_FiresLoadedEvent(t *testing.T) {
	mgr := event.New()
	var got []Report
	event.Subscribe(mgr, 0, func(e *LoadedEvent) { got = append(got, e.Report) })
	f := newFixture(t, func(o *Options) { o.Event = mgr })
	f.write(t, "One", moduleSource("One", nil, nil, ""))

	_, err := f.reg.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1 module loaded", got[0].String())

	f.reg.UnloadAll()
	assert.Empty(t, f.reg.Modules())
	assert.Empty(t, f.loader.Generations())
}
