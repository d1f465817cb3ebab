package drone

import (
	"context"
	"errors"
	"testing"

	"github.com/samaelod/dronecmd/types"
)

type stubUnit struct{ id string }

func (s stubUnit) ID() string                        { return s.id }
func (s stubUnit) AddCommand(types.Command) error    { return nil }
func (s stubUnit) AwaitBlocks(context.Context) error { return nil }

func TestRegistryOrder(t *testing.T) {
	r := NewRegistry(stubUnit{"a"}, stubUnit{"b"})
	if i := r.Add(stubUnit{"c"}); i != 2 {
		t.Fatalf("Add() index = %d, want 2", i)
	}

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	for i, id := range []string{"a", "b", "c"} {
		u, ok := r.Get(i)
		if !ok || u.ID() != id {
			t.Errorf("Get(%d) = %v, %v; want %s", i, u, ok, id)
		}
	}
	for _, i := range []int{-1, 3, 100} {
		if _, ok := r.Get(i); ok {
			t.Errorf("Get(%d) ok, want out of range", i)
		}
	}

	if u, ok := r.Lookup("b"); !ok || u.ID() != "b" {
		t.Errorf("Lookup(b) = %v, %v", u, ok)
	}
	if _, ok := r.Lookup("zz"); ok {
		t.Error("Lookup(zz) found a drone")
	}
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	r := NewRegistry(stubUnit{"a"})
	snap := r.Snapshot()
	r.Add(stubUnit{"b"})

	if len(snap) != 1 {
		t.Errorf("snapshot grew to %d after Add", len(snap))
	}
}

func TestDialClosesOnBindFailure(t *testing.T) {
	p := newPeer(t)
	held := connect(t, p, fastOptions())

	fleet := &types.Fleet{Drones: []types.DroneSpec{
		{ID: "ok", Bind: "127.0.0.1:0", Remote: p.addr()},
		{ID: "clash", Bind: held.LocalAddr().String(), Remote: p.addr()},
	}}

	reg, err := Dial(context.Background(), fleet, fastOptions())
	if !errors.Is(err, ErrBind) {
		t.Fatalf("Dial() error = %v, want ErrBind", err)
	}
	if reg != nil {
		t.Error("Dial() returned a registry alongside an error")
	}
}

func TestDialFleet(t *testing.T) {
	p := newPeer(t)
	fleet := &types.Fleet{Drones: []types.DroneSpec{
		{ID: "d0", Bind: "127.0.0.1:0", Remote: p.addr()},
		{ID: "d1", Bind: "127.0.0.1:0", Remote: p.addr()},
	}}

	reg, err := Dial(context.Background(), fleet, fastOptions())
	if err != nil {
		t.Fatalf("Dial(): %v", err)
	}
	defer reg.Close()

	drones := reg.Drones()
	if len(drones) != 2 || drones[0].ID() != "d0" || drones[1].ID() != "d1" {
		t.Fatalf("Drones() = %v", drones)
	}

	for _, d := range drones {
		d.AddCommand(types.Command{Text: "command"})
	}
	waitFor(t, "both drones to send", func() bool { return len(p.received()) == 2 })
}
