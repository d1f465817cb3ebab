package drone

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samaelod/dronecmd/types"
)

// Unit is what the interpreter needs from a drone.
type Unit interface {
	ID() string
	AddCommand(cmd types.Command) error
	AwaitBlocks(ctx context.Context) error
}

// Registry is the ordered set of drones a script runs against. Indices are
// dense and never reordered; the lock is only held for slice access.
type Registry struct {
	mu    sync.Mutex
	units []Unit
}

func NewRegistry(units ...Unit) *Registry {
	return &Registry{units: append([]Unit(nil), units...)}
}

// Dial connects every drone in the fleet. If any bind fails the drones
// already connected are closed.
func Dial(ctx context.Context, fleet *types.Fleet, opts Options) (*Registry, error) {
	r := NewRegistry()
	for _, spec := range fleet.Drones {
		d, err := Connect(ctx, spec.ID, spec.Bind, spec.Remote, opts)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.Add(d)
	}
	return r, nil
}

// Add appends u and returns its index.
func (r *Registry) Add(u Unit) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = append(r.units, u)
	return len(r.units) - 1
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.units)
}

func (r *Registry) Get(i int) (Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.units) {
		return nil, false
	}
	return r.units[i], true
}

func (r *Registry) Lookup(id string) (Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.units {
		if u.ID() == id {
			return u, true
		}
	}
	return nil, false
}

// Snapshot returns a copy of the current drones in registry order.
func (r *Registry) Snapshot() []Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Unit(nil), r.units...)
}

// Drones returns the registry members that are live transports.
func (r *Registry) Drones() []*Drone {
	var out []*Drone
	for _, u := range r.Snapshot() {
		if d, ok := u.(*Drone); ok {
			out = append(out, d)
		}
	}
	return out
}

// Close closes every transport in the registry.
func (r *Registry) Close() {
	for _, d := range r.Drones() {
		d.Close()
	}
}

// LogValue lets a registry be logged as its list of ids.
func (r *Registry) LogValue() slog.Value {
	units := r.Snapshot()
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID()
	}
	return slog.AnyValue(ids)
}
