package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.bbrapi.dev/runner/pkg/util/errs"
)

type fakeServer struct{ addr string }

func (f *fakeServer) Name() string                   { return "fake" }
func (f *fakeServer) Addr() string                   { return f.addr }
func (f *fakeServer) Say(string) error               { return nil }
func (f *fakeServer) MessageTo(uint64, string) error { return nil }
func (f *fakeServer) Kick(uint64, string) error      { return nil }
func (f *fakeServer) Players() []Player              { return nil }

type memStore struct {
	loads, saves []string
}

func (m *memStore) Load(s *Section) error {
	m.loads = append(m.loads, s.Server+"/"+s.Name)
	return nil
}
func (m *memStore) Save(s *Section) error {
	m.saves = append(m.saves, s.Server+"/"+s.Name)
	return nil
}

func TestInstance_Sections(t *testing.T) {
	store := &memStore{}
	inst := NewInstance(InstanceOptions{
		Name:   "Greeter",
		Server: &fakeServer{addr: "10.0.0.1:30000"},
		Store:  store,
	})
	var perServer, shared struct{ Enabled bool }
	inst.Section("Settings", &perServer, false)
	inst.Section("Words", &shared, true)

	sections := inst.Sections()
	require.Len(t, sections, 2)
	assert.Equal(t, "10.0.0.1_30000", sections[0].Server)
	assert.Empty(t, sections[1].Server)
	assert.True(t, sections[1].Shared)

	require.NoError(t, inst.LoadSections())
	require.NoError(t, inst.SaveSection("Settings"))
	assert.Equal(t, []string{"10.0.0.1_30000/Settings", "/Words"}, store.loads)
	assert.Equal(t, []string{"10.0.0.1_30000/Settings"}, store.saves)

	err := inst.LoadSection("Missing")
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.ErrCodeUnknownSection))
}

func TestInstance_RefsAndDetach(t *testing.T) {
	a := NewInstance(InstanceOptions{Name: "A", Server: &fakeServer{addr: "1.2.3.4:1"}})
	b := NewInstance(InstanceOptions{Name: "B"})
	b.Export("answer", 42)

	ref := a.Ref("B")
	assert.Same(t, ref, a.Ref("B"))
	assert.False(t, ref.Loaded())
	_, ok := ref.Lookup("answer")
	assert.False(t, ok)

	ref.Resolve(b)
	b.SetLoaded(true)
	assert.True(t, ref.Loaded())
	v, ok := ref.Lookup("answer")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	a.SetLoaded(true)
	a.Detach()
	assert.False(t, a.Loaded())
	assert.Nil(t, a.Server())
	assert.Nil(t, ref.Instance())
}

func TestInstance_Handlers(t *testing.T) {
	inst := NewInstance(InstanceOptions{Name: "A"})
	inst.OnTick(func() {})
	inst.OnPlayerTypedMessage(func(*Player, ChatChannel, string) bool { return true })

	h := inst.Handlers()
	assert.True(t, h.Has(Tick))
	assert.True(t, h.Has(PlayerTypedMessage))
	assert.False(t, h.Has(PlayerSpawning))
}

func TestCallbackCatalogue(t *testing.T) {
	for _, c := range Callbacks() {
		got, ok := CallbackByMethod(c.String())
		require.True(t, ok, c.String())
		assert.Equal(t, c, got)
	}
	assert.Equal(t, Veto, PlayerRequestingToChangeTeam.Kind())
	assert.Equal(t, Chain, PlayerSpawning.Kind())
	assert.Equal(t, Notify, RoundEnded.Kind())
	_, ok := CallbackByMethod("OnSomethingElse")
	assert.False(t, ok)
}

func TestServerKeyAndConfigTag(t *testing.T) {
	assert.Equal(t, "127.0.0.1_29294", ServerKey("127.0.0.1:29294"))
	assert.Equal(t, "::1_29294", ServerKey("[::1]:29294"))

	cfg, shared := ParseConfigTag("config,shared")
	assert.True(t, cfg)
	assert.True(t, shared)
	cfg, shared = ParseConfigTag("config")
	assert.True(t, cfg)
	assert.False(t, shared)
	cfg, _ = ParseConfigTag("json")
	assert.False(t, cfg)
}
