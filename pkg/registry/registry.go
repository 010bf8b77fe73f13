// Package registry finds adapter backends on the host and hands out bound
// adapters by name and port.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/config"
	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
)

// Factory constructs an unbound backend. It may fail or panic when the
// driver underneath is missing.
type Factory func() (onewire.Backend, error)

// Kind is one known backend family.
type Kind struct {
	Name string
	New  Factory
	// Simulated kinds are never offered as the platform default.
	Simulated bool
}

// DefaultKinds lists the built-in backends in probing order.
func DefaultKinds() []Kind {
	return []Kind{
		{Name: "DS9097U", New: func() (onewire.Backend, error) { return onewire.NewDS2480(), nil }},
		{Name: "DS9490", New: func() (onewire.Backend, error) { return onewire.NewDS2490(), nil }},
		{Name: "Simulator", New: func() (onewire.Backend, error) { return onewire.NewSimulator(), nil }, Simulated: true},
	}
}

// Candidate is a backend kind that constructed and listed its ports.
type Candidate struct {
	Name         string
	PortType     string
	Ports        []string
	Capabilities onewire.Capabilities
}

// Registry selects adapters. While an override is set, every lookup returns
// it regardless of the name and port asked for.
type Registry struct {
	kinds []Kind
	cfg   *config.Config
	log   *zap.Logger

	mu       sync.Mutex
	override *onewire.Adapter
	issued   []*onewire.Adapter
}

// Option configures New.
type Option func(*Registry)

// WithKinds replaces the built-in backend kinds.
func WithKinds(kinds ...Kind) Option {
	return func(r *Registry) { r.kinds = append([]Kind(nil), kinds...) }
}

// WithLogger sets the logger for probe diagnostics. The default discards
// everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// New returns a registry resolving defaults through cfg. A nil cfg leaves
// the defaults unresolved. The registry installs itself as cfg's smart
// default.
func New(cfg *config.Config, opts ...Option) *Registry {
	r := &Registry{kinds: DefaultKinds(), cfg: cfg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if cfg != nil {
		cfg.SetSmartDefault(r.smartDefault)
	}
	return r
}

// Kinds returns the known backend names in probing order.
func (r *Registry) Kinds() []string {
	names := make([]string, len(r.kinds))
	for i, k := range r.kinds {
		names[i] = k.Name
	}
	return names
}

// construct runs k's factory and turns a panic into an error.
func (r *Registry) construct(k Kind) (b onewire.Backend, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("constructing %s panicked: %v", k.Name, p)
		}
	}()
	b, err = k.New()
	if err == nil && b == nil {
		err = fmt.Errorf("constructing %s returned no backend", k.Name)
	}
	return b, err
}

// probe constructs k and lists its ports. Failures are logged and reported
// as ok=false.
func (r *Registry) probe(k Kind) (onewire.Backend, []string, bool) {
	b, err := r.construct(k)
	if err != nil {
		r.log.Debug("backend unavailable", zap.String("kind", k.Name), zap.Error(err))
		return nil, nil, false
	}
	ports, err := b.PortNames()
	if err != nil {
		r.log.Debug("port listing failed", zap.String("kind", k.Name), zap.Error(err))
		return nil, nil, false
	}
	return b, ports, true
}

// Enumerate probes every kind and returns those that constructed. Kinds that
// fail are omitted.
func (r *Registry) Enumerate() []Candidate {
	var out []Candidate
	for _, k := range r.kinds {
		b, ports, ok := r.probe(k)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Name:         b.Name(),
			PortType:     b.PortType(),
			Ports:        ports,
			Capabilities: b.Capabilities(),
		})
		r.free(b)
	}
	return out
}

// Adapter returns the adapter called name bound to port. The caller owns
// the result and must Free it. Names match without regard to case.
func (r *Registry) Adapter(name, port string) (*onewire.Adapter, error) {
	r.mu.Lock()
	if r.override != nil {
		a := r.override
		r.mu.Unlock()
		return a, nil
	}
	r.mu.Unlock()

	for _, k := range r.kinds {
		if !strings.EqualFold(k.Name, name) {
			continue
		}
		b, err := r.construct(k)
		if err != nil {
			r.log.Debug("backend unavailable", zap.String("kind", k.Name), zap.Error(err))
			continue
		}
		a, err := r.bind(b, port)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.issued = append(slices.DeleteFunc(r.issued, (*onewire.Adapter).Freed), a)
		r.mu.Unlock()
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q", onewire.ErrUnknownAdapter, name)
}

// free releases a probed or rejected backend. A failure only matters to
// diagnostics.
func (r *Registry) free(b onewire.Backend) {
	if err := b.FreePort(); err != nil {
		r.log.Debug("free port failed", zap.String("kind", b.Name()), zap.Error(err))
	}
}

func (r *Registry) bind(b onewire.Backend, port string) (*onewire.Adapter, error) {
	if err := b.SelectPort(port); err != nil {
		r.free(b)
		if errors.Is(err, onewire.ErrPortNotSelectable) || errors.Is(err, onewire.ErrPortInUse) {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return nil, fmt.Errorf("%w: %s %s: %w", onewire.ErrPortNotSelectable, b.Name(), port, err)
	}
	ok, err := b.Detect()
	if err != nil || !ok {
		r.free(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %s on %s: %w", onewire.ErrNotDetected, b.Name(), port, err)
		}
		return nil, fmt.Errorf("%w: %s on %s", onewire.ErrNotDetected, b.Name(), port)
	}
	return onewire.NewAdapter(b), nil
}

// DefaultAdapter returns the override, or the adapter named by the
// configured defaults.
func (r *Registry) DefaultAdapter() (*onewire.Adapter, error) {
	if a := r.Override(); a != nil {
		return a, nil
	}
	if r.cfg == nil {
		return nil, fmt.Errorf("%w: no configuration for the default adapter", onewire.ErrSetup)
	}
	name, ok := r.cfg.DefaultAdapter()
	if !ok {
		return nil, fmt.Errorf("%w: default adapter name unresolved", onewire.ErrSetup)
	}
	port, ok := r.cfg.DefaultPort()
	if !ok {
		return nil, fmt.Errorf("%w: default port for %s unresolved", onewire.ErrSetup, name)
	}
	return r.Adapter(name, port)
}

// smartDefault offers the first hardware kind that reports a port. For the
// port key it prefers the kind already chosen as default adapter, so the
// pair stays consistent.
func (r *Registry) smartDefault(key string) (string, bool) {
	switch key {
	case config.KeyAdapter:
		for _, k := range r.kinds {
			if k.Simulated {
				continue
			}
			if b, ports, ok := r.probe(k); ok && len(ports) > 0 {
				r.free(b)
				return k.Name, true
			}
		}
	case config.KeyPort:
		name, ok := r.cfg.DefaultAdapter()
		if !ok {
			return "", false
		}
		for _, k := range r.kinds {
			if !strings.EqualFold(k.Name, name) {
				continue
			}
			if k.Simulated {
				if s := r.cfg.Scenario(); s != "" {
					return s, true
				}
			}
			if b, ports, ok := r.probe(k); ok && len(ports) > 0 {
				r.free(b)
				return ports[0], true
			}
		}
	}
	return "", false
}

// SetOverride makes every lookup return a until ClearOverride.
func (r *Registry) SetOverride(a *onewire.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = a
}

// ClearOverride restores name based lookups. The previous override is not
// freed.
func (r *Registry) ClearOverride() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = nil
}

// Override returns the active override, or nil.
func (r *Registry) Override() *onewire.Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.override
}

// Close frees the override and every adapter the registry handed out that
// the caller has not freed yet.
func (r *Registry) Close() error {
	r.mu.Lock()
	adapters := r.issued
	if r.override != nil {
		adapters = append(adapters, r.override)
	}
	r.issued = nil
	r.override = nil
	r.mu.Unlock()

	var result *multierror.Error
	for _, a := range adapters {
		if a.Freed() {
			continue
		}
		if err := a.Free(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s %s: %w", a.Name(), a.PortName(), err))
		}
	}
	return result.ErrorOrNil()
}
