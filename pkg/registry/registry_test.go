package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/config"
	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
)

// fakeBackend is a simulator that only accepts the ports it lists.
type fakeBackend struct {
	*onewire.Simulator
	name     string
	port     string
	ports    []string
	detected bool
	freed    int
	freeErr  error
}

func (f *fakeBackend) Name() string                 { return f.name }
func (f *fakeBackend) PortName() string             { return f.port }
func (f *fakeBackend) PortNames() ([]string, error) { return f.ports, nil }
func (f *fakeBackend) Detect() (bool, error)        { return f.detected, nil }

func (f *fakeBackend) SelectPort(name string) error {
	for _, p := range f.ports {
		if p == name {
			f.port = name
			return nil
		}
	}
	return onewire.ErrPortNotSelectable
}

func (f *fakeBackend) FreePort() error {
	f.freed++
	return f.freeErr
}

func fakeKind(name string, ports []string, detected bool, made *[]*fakeBackend) Kind {
	return Kind{Name: name, New: func() (onewire.Backend, error) {
		b := &fakeBackend{Simulator: onewire.NewSimulator(), name: name, ports: ports, detected: detected}
		if made != nil {
			*made = append(*made, b)
		}
		return b, nil
	}}
}

func panicKind(name string) Kind {
	return Kind{Name: name, New: func() (onewire.Backend, error) { panic("native library missing") }}
}

func TestAdapterUnknownName(t *testing.T) {
	r := New(nil, WithKinds(fakeKind("Y", []string{"PORT1"}, true, nil)))
	_, err := r.Adapter("X", "PORT1")
	require.Error(t, err)
	assert.ErrorIs(t, err, onewire.ErrUnknownAdapter)
	assert.Contains(t, err.Error(), "adapter name not known")
}

func TestAdapterPortNotSelectable(t *testing.T) {
	var made []*fakeBackend
	r := New(nil, WithKinds(fakeKind("X", []string{"PORT2"}, true, &made)))
	_, err := r.Adapter("X", "PORT1")
	require.Error(t, err)
	assert.ErrorIs(t, err, onewire.ErrPortNotSelectable)
	assert.NotErrorIs(t, err, onewire.ErrUnknownAdapter)
	assert.Contains(t, err.Error(), "port could not be selected")
	require.Len(t, made, 1)
	assert.Equal(t, 1, made[0].freed)
}

func TestAdapterNotDetected(t *testing.T) {
	r := New(nil, WithKinds(fakeKind("X", []string{"PORT1"}, false, nil)))
	_, err := r.Adapter("X", "PORT1")
	assert.ErrorIs(t, err, onewire.ErrNotDetected)
	assert.Contains(t, err.Error(), "adapter not detected on port")
}

func TestAdapterBinds(t *testing.T) {
	r := New(nil, WithKinds(
		fakeKind("A", []string{"PORT1"}, true, nil),
		fakeKind("X", []string{"PORT1"}, true, nil),
	))
	a, err := r.Adapter("x", "PORT1")
	require.NoError(t, err)
	assert.Equal(t, "X", a.Name())
}

func TestPanickingKindIsOmitted(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := New(nil, WithLogger(zap.New(core)), WithKinds(
		panicKind("DS9490"),
		fakeKind("X", []string{"PORT1"}, true, nil),
	))

	cands := r.Enumerate()
	require.Len(t, cands, 1)
	assert.Equal(t, "X", cands[0].Name)
	assert.Equal(t, []string{"PORT1"}, cands[0].Ports)
	assert.Equal(t, 1, logs.FilterMessage("backend unavailable").Len())

	_, err := r.Adapter("DS9490", "USB1")
	assert.ErrorIs(t, err, onewire.ErrUnknownAdapter)
	assert.Equal(t, []string{"DS9490", "X"}, r.Kinds())
}

func TestOverrideMasksLookups(t *testing.T) {
	r := New(nil, WithKinds(fakeKind("X", []string{"PORT1"}, true, nil)))
	sim := onewire.NewAdapter(onewire.NewSimulator())
	r.SetOverride(sim)
	assert.Same(t, sim, r.Override())

	a, err := r.Adapter("nonexistent", "nowhere")
	require.NoError(t, err)
	assert.Same(t, sim, a)
	d, err := r.DefaultAdapter()
	require.NoError(t, err)
	assert.Same(t, sim, d)

	r.ClearOverride()
	assert.Nil(t, r.Override())
	_, err = r.Adapter("nonexistent", "nowhere")
	assert.ErrorIs(t, err, onewire.ErrUnknownAdapter)
}

func TestDefaultAdapterFromConfig(t *testing.T) {
	cfg, err := config.New(config.WithSearchPaths(t.TempDir()))
	require.NoError(t, err)
	r := New(cfg, WithKinds(
		fakeKind("Empty", nil, true, nil),
		fakeKind("X", []string{"PORT7", "PORT8"}, true, nil),
		Kind{Name: "Simulator", New: func() (onewire.Backend, error) { return onewire.NewSimulator(), nil }, Simulated: true},
	))

	// smart default skips kinds without ports
	a, err := r.DefaultAdapter()
	require.NoError(t, err)
	assert.Equal(t, "X", a.Name())
	assert.Equal(t, "PORT7", a.PortName())

	cfg.Set(config.KeyAdapter, "Simulator")
	a, err = r.DefaultAdapter()
	require.NoError(t, err)
	assert.Equal(t, "Simulator", a.Name())
	assert.Equal(t, onewire.SimPort, a.PortName())

	cfg.Set(config.KeyPort, "PORT8")
	cfg.Set(config.KeyAdapter, "X")
	a, err = r.DefaultAdapter()
	require.NoError(t, err)
	assert.Equal(t, "PORT8", a.PortName())
}

func TestDefaultAdapterUnresolved(t *testing.T) {
	cfg, err := config.New(config.WithSearchPaths(t.TempDir()))
	require.NoError(t, err)
	r := New(cfg, WithKinds(Kind{Name: "Simulator", New: func() (onewire.Backend, error) { return onewire.NewSimulator(), nil }, Simulated: true}))
	_, err = r.DefaultAdapter()
	assert.ErrorIs(t, err, onewire.ErrSetup)

	_, err = New(nil).DefaultAdapter()
	assert.ErrorIs(t, err, onewire.ErrSetup)
}

func TestCloseAggregatesErrors(t *testing.T) {
	var made []*fakeBackend
	r := New(nil, WithKinds(fakeKind("X", []string{"P1", "P2"}, true, &made)))
	_, err := r.Adapter("X", "P1")
	require.NoError(t, err)
	_, err = r.Adapter("X", "P2")
	require.NoError(t, err)
	made[0].freeErr = errors.New("stuck")
	made[1].freeErr = errors.New("gone")

	err = r.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, onewire.ErrTransport)
	assert.Contains(t, err.Error(), "stuck")
	assert.Contains(t, err.Error(), "gone")
	assert.NoError(t, r.Close())
}

func TestIssuedAdaptersArePrunedWhenFreed(t *testing.T) {
	var made []*fakeBackend
	r := New(nil, WithKinds(fakeKind("X", []string{"P1"}, true, &made)))
	for i := 0; i < 3; i++ {
		a, err := r.Adapter("X", "P1")
		require.NoError(t, err)
		require.NoError(t, a.Free())
	}
	last, err := r.Adapter("X", "P1")
	require.NoError(t, err)
	assert.Equal(t, []*onewire.Adapter{last}, r.issued)

	require.NoError(t, r.Close())
	for i, b := range made {
		assert.Equal(t, 1, b.freed, "backend %d freed", i)
	}
}

func TestFreePortFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := New(nil, WithLogger(zap.New(core)), WithKinds(Kind{Name: "X", New: func() (onewire.Backend, error) {
		return &fakeBackend{Simulator: onewire.NewSimulator(), name: "X", ports: []string{"P1"}, freeErr: errors.New("stuck")}, nil
	}}))

	_, err := r.Adapter("X", "P2")
	assert.ErrorIs(t, err, onewire.ErrPortNotSelectable)
	require.Equal(t, 1, logs.FilterMessage("free port failed").Len())
	assert.Equal(t, "X", logs.FilterMessage("free port failed").All()[0].ContextMap()["kind"])

	r.Enumerate()
	assert.Equal(t, 2, logs.FilterMessage("free port failed").Len())
}
