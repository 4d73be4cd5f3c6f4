package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robinbraemer/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.bbrapi.dev/runner/pkg/module"
)

func loaded(name string, setup func(inst *module.Instance)) *module.Instance {
	inst := module.NewInstance(module.InstanceOptions{Name: name})
	setup(inst)
	inst.SetLoaded(true)
	return inst
}

func attach(d *Dispatcher, insts ...*module.Instance) {
	d.Exclusive(func(tx *Tx) { tx.Attach(insts...) })
}

var player = &module.Player{SteamID: 76561198000000000, Name: "tester"}

func TestNotify_RegistrationOrderAndIsolation(t *testing.T) {
	mgr := event.New()
	var failed []*CallbackFailedEvent
	event.Subscribe(mgr, 0, func(e *CallbackFailedEvent) { failed = append(failed, e) })

	d := New(Options{Server: "test", Event: mgr})
	var calls []string
	attach(d,
		loaded("A", func(i *module.Instance) { i.OnTick(func() { calls = append(calls, "A") }) }),
		loaded("B", func(i *module.Instance) { i.OnTick(func() { calls = append(calls, "B"); panic("boom") }) }),
		loaded("NoTick", func(*module.Instance) {}),
		loaded("C", func(i *module.Instance) { i.OnTick(func() { calls = append(calls, "C") }) }),
	)

	d.Tick(context.Background())
	assert.Equal(t, []string{"A", "B", "C"}, calls)
	require.Len(t, failed, 1)
	assert.Equal(t, "B", failed[0].Module)
	assert.Equal(t, module.Tick, failed[0].Callback)
	assert.Equal(t, "boom", failed[0].Panic)
	assert.NotEmpty(t, failed[0].Stack)
}

func TestNotify_SkipsUnloadedInstances(t *testing.T) {
	d := New(Options{})
	called := false
	inst := loaded("A", func(i *module.Instance) { i.OnPlayerConnected(func(*module.Player) { called = true }) })
	inst.SetLoaded(false)
	attach(d, inst)
	d.PlayerConnected(context.Background(), player)
	assert.False(t, called)
}

func TestVeto(t *testing.T) {
	votes := func(answers ...bool) (*Dispatcher, *[]int) {
		d := New(Options{})
		var called []int
		for n, answer := range answers {
			attach(d, loaded("M", func(i *module.Instance) {
				i.OnPlayerTypedMessage(func(*module.Player, module.ChatChannel, string) bool {
					called = append(called, n)
					return answer
				})
			}))
		}
		return d, &called
	}

	tests := []struct {
		name    string
		answers []bool
		want    bool
	}{
		{"none", nil, true},
		{"all allow", []bool{true, true, true}, true},
		{"first denies", []bool{false, true, true}, false},
		{"last denies", []bool{true, true, false}, false},
		{"all deny", []bool{false, false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, called := votes(tt.answers...)
			got := d.PlayerTypedMessage(context.Background(), player, module.AllChat, "hi")
			assert.Equal(t, tt.want, got)
			assert.Len(t, *called, len(tt.answers), "every module is asked")
		})
	}
}

func TestVeto_PanicCastsNoVote(t *testing.T) {
	d := New(Options{})
	attach(d,
		loaded("Panics", func(i *module.Instance) {
			i.OnPlayerRequestingToChangeRole(func(*module.Player, module.GameRole) bool { panic("x") })
		}),
		loaded("Allows", func(i *module.Instance) {
			i.OnPlayerRequestingToChangeRole(func(*module.Player, module.GameRole) bool { return true })
		}),
	)
	assert.True(t, d.PlayerRequestingToChangeRole(context.Background(), player, module.Medic))
}

func spawner(name string, fn func(module.SpawnRequest) (module.SpawnRequest, bool), seen *[]string) *module.Instance {
	return loaded(name, func(i *module.Instance) {
		i.OnPlayerSpawning(func(_ *module.Player, req module.SpawnRequest) (module.SpawnRequest, bool) {
			*seen = append(*seen, name)
			return fn(req)
		})
	})
}

func TestPlayerSpawning_Chain(t *testing.T) {
	var seen []string
	d := New(Options{})
	attach(d,
		spawner("P1", func(r module.SpawnRequest) (module.SpawnRequest, bool) { r.Point++; return r, true }, &seen),
		spawner("P2", func(r module.SpawnRequest) (module.SpawnRequest, bool) { r.Protection = 0.5; return r, true }, &seen),
	)
	got, ok := d.PlayerSpawning(context.Background(), player, module.SpawnRequest{Point: 1})
	require.True(t, ok)
	assert.Equal(t, module.SpawnRequest{Point: 2, Protection: 0.5}, got)
	assert.Equal(t, []string{"P1", "P2"}, seen)
}

func TestPlayerSpawning_RejectionWins(t *testing.T) {
	var (
		seen   []string
		p2In   module.SpawnRequest
		p3In   module.SpawnRequest
		inputs = func(dst *module.SpawnRequest, out module.SpawnRequest, ok bool) func(module.SpawnRequest) (module.SpawnRequest, bool) {
			return func(r module.SpawnRequest) (module.SpawnRequest, bool) { *dst = r; return out, ok }
		}
	)
	d := New(Options{})
	attach(d,
		spawner("P1", func(r module.SpawnRequest) (module.SpawnRequest, bool) { r.Point = 7; return r, true }, &seen),
		spawner("P2", inputs(&p2In, module.SpawnRequest{}, false), &seen),
		spawner("P3", inputs(&p3In, module.SpawnRequest{Point: 99}, true), &seen),
	)
	got, ok := d.PlayerSpawning(context.Background(), player, module.SpawnRequest{Point: 1})
	assert.False(t, ok)
	assert.Equal(t, module.SpawnRequest{}, got)
	assert.Equal(t, []string{"P1", "P2", "P3"}, seen, "downstream modules still run")
	assert.Equal(t, 7, p2In.Point, "P2 receives P1's request")
	assert.Equal(t, 7, p3In.Point, "P3 receives the last accepted request")
}

func TestPlayerSpawning_PanicPassesThrough(t *testing.T) {
	var seen []string
	d := New(Options{})
	attach(d,
		spawner("Panics", func(module.SpawnRequest) (module.SpawnRequest, bool) { panic("bad") }, &seen),
		spawner("Ok", func(r module.SpawnRequest) (module.SpawnRequest, bool) { r.Stance = module.Proning; return r, true }, &seen),
	)
	got, ok := d.PlayerSpawning(context.Background(), player, module.SpawnRequest{Point: 3})
	require.True(t, ok)
	assert.Equal(t, module.SpawnRequest{Point: 3, Stance: module.Proning}, got)
}

func TestSlowCallback(t *testing.T) {
	mgr := event.New()
	var slow []*SlowCallbackEvent
	event.Subscribe(mgr, 0, func(e *SlowCallbackEvent) { slow = append(slow, e) })

	d := New(Options{Event: mgr, WarningThreshold: 5 * time.Millisecond})
	attach(d,
		loaded("Fast", func(i *module.Instance) { i.OnRoundEnded(func() {}) }),
		loaded("Slow", func(i *module.Instance) { i.OnRoundEnded(func() { time.Sleep(60 * time.Millisecond) }) }),
	)
	d.RoundEnded(context.Background())
	require.Len(t, slow, 1)
	assert.Equal(t, "Slow", slow[0].Module)
	assert.Equal(t, module.RoundEnded, slow[0].Callback)
	assert.Greater(t, slow[0].Elapsed, 5*time.Millisecond)

	d.SetWarningThreshold(time.Second)
	assert.Equal(t, time.Second, d.WarningThreshold())
	d.SetWarningThreshold(0)
	assert.Equal(t, time.Second, d.WarningThreshold())
}

func TestExclusive_BlocksDispatch(t *testing.T) {
	d := New(Options{})
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(s string) { mu.Lock(); events = append(events, s); mu.Unlock() }
	attach(d, loaded("A", func(i *module.Instance) { i.OnTick(func() { record("tick") }) }))

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go d.Exclusive(func(tx *Tx) {
		close(entered)
		<-release
		record("reconfigured")
		tx.Detach("A")
	})
	<-entered
	go func() { d.Tick(context.Background()); close(done) }()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done

	assert.Equal(t, []string{"reconfigured"}, events, "tick waited and found nothing attached")
	assert.Empty(t, d.Instances())
}

func TestTx_Detach(t *testing.T) {
	d := New(Options{})
	a := loaded("A", func(*module.Instance) {})
	b := loaded("B", func(*module.Instance) {})
	c := loaded("C", func(*module.Instance) {})
	attach(d, a, b, c)

	d.Exclusive(func(tx *Tx) {
		assert.Same(t, b, tx.Detach("B"))
		assert.Nil(t, tx.Detach("B"))
		assert.Equal(t, []*module.Instance{a, c}, tx.Instances())
		assert.Equal(t, []*module.Instance{a, c}, tx.DetachAll())
	})
	assert.Empty(t, d.Instances())
}

func TestTx_NotifyOne(t *testing.T) {
	d := New(Options{})
	var got []string
	a := loaded("A", func(i *module.Instance) { i.OnModulesLoaded(func() { got = append(got, "A") }) })
	b := loaded("B", func(i *module.Instance) { i.OnModulesLoaded(func() { got = append(got, "B") }) })
	d.Exclusive(func(tx *Tx) {
		tx.Attach(a, b)
		tx.NotifyOne(context.Background(), b, module.ModulesLoaded)
		tx.Notify(context.Background(), module.ModulesLoaded)
	})
	assert.Equal(t, []string{"B", "A", "B"}, got)
}
