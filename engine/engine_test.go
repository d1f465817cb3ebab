package engine

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/samaelod/dronecmd/config"
	"github.com/samaelod/dronecmd/drone"
	"github.com/samaelod/dronecmd/types"
)

// sdkPeer answers every datagram with "ok" after a fixed lag.
type sdkPeer struct {
	conn *net.UDPConn
	lag  time.Duration

	mu  sync.Mutex
	got []string
}

func newSDKPeer(t *testing.T, lag time.Duration) *sdkPeer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	p := &sdkPeer{conn: conn, lag: lag}
	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			p.mu.Lock()
			p.got = append(p.got, string(buf[:n]))
			p.mu.Unlock()
			go func() {
				time.Sleep(p.lag)
				conn.WriteToUDP([]byte("ok"), addr)
			}()
		}
	}()
	return p
}

func (p *sdkPeer) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.got...)
}

type transitionLog struct {
	mu  sync.Mutex
	seq []string
}

func (l *transitionLog) observe(id string, cmd types.Command, st types.CommandState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq = append(l.seq, id+":"+cmd.Text+":"+st.String())
}

func (l *transitionLog) index(s string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, v := range l.seq {
		if v == s {
			return i
		}
	}
	return -1
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.SendIntervalMs = 5
	cfg.PollIntervalMs = 5
	return cfg
}

// newTestEngine connects one drone per peer and wraps them in an engine.
func newTestEngine(t *testing.T, cfg *config.Config, obs drone.Observer, peers ...*sdkPeer) *Engine {
	t.Helper()
	lg := NewLogger("", 200)
	opts := DroneOptions(cfg, lg.Slog(nil))
	opts.Observer = obs

	reg := drone.NewRegistry()
	for i, p := range peers {
		d, err := drone.Connect(context.Background(), string(rune('a'+i)), "127.0.0.1:0", p.conn.LocalAddr().String(), opts)
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}
		reg.Add(d)
	}

	e := NewEngineWithRegistry(reg, cfg, lg)
	t.Cleanup(e.Close)
	return e
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunBroadcastSmoke(t *testing.T) {
	p0 := newSDKPeer(t, 0)
	p1 := newSDKPeer(t, 0)
	e := newTestEngine(t, testConfig(), nil, p0, p1)

	rep, err := e.Run(context.Background(), "command\ntakeoff\nland", AllDrones)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Commands != 6 {
		t.Errorf("report commands = %d, want 6", rep.Commands)
	}

	want := []string{"command", "takeoff", "land"}
	for i, p := range []*sdkPeer{p0, p1} {
		waitUntil(t, "all datagrams", func() bool { return len(p.received()) == 3 })
		for j, got := range p.received() {
			if got != want[j] {
				t.Errorf("drone %d datagram %d = %q, want %q", i, j, got, want[j])
			}
		}
	}
}

func TestRunBarrierWaitsForEveryDrone(t *testing.T) {
	fast := newSDKPeer(t, 0)
	slow := newSDKPeer(t, 300*time.Millisecond)
	tl := &transitionLog{}
	e := newTestEngine(t, testConfig(), tl.observe, fast, slow)

	start := time.Now()
	if _, err := e.Run(context.Background(), "takeoff@\nawait\nland", AllDrones); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("run returned after %v, before the slow drone answered", elapsed)
	}

	waitUntil(t, "land to go out", func() bool { return tl.index("b:land:in-flight") >= 0 })

	slowAcked := tl.index("b:takeoff:acked")
	for _, id := range []string{"a", "b"} {
		queued := tl.index(id + ":land:queued")
		if queued < 0 || queued < slowAcked {
			t.Errorf("drone %s: land queued at %d, slow takeoff acked at %d", id, queued, slowAcked)
		}
	}
}

func TestRunTargetOutOfRange(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil, newSDKPeer(t, 0))

	if _, err := e.Run(context.Background(), "land", 3); err == nil {
		t.Error("Run against drone 3 of 1 succeeded")
	}
	if err := e.Start("land", 3); err == nil {
		t.Error("Start against drone 3 of 1 succeeded")
	}
}

func TestStartSelected(t *testing.T) {
	p0 := newSDKPeer(t, 0)
	p1 := newSDKPeer(t, 0)
	e := newTestEngine(t, testConfig(), nil, p0, p1)

	if e.Selected() != AllDrones {
		t.Fatalf("Selected() = %d, want AllDrones", e.Selected())
	}
	e.Select(1)

	if err := e.StartSelected("takeoff"); err != nil {
		t.Fatalf("StartSelected: %v", err)
	}
	e.Wait()

	waitUntil(t, "drone 1 to send", func() bool { return len(p1.received()) == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := p0.received(); len(got) != 0 {
		t.Errorf("unselected drone received %q", got)
	}
}

func TestStartSelectedKeepsFleetIndices(t *testing.T) {
	p0 := newSDKPeer(t, 0)
	p1 := newSDKPeer(t, 0)
	e := newTestEngine(t, testConfig(), nil, p0, p1)

	e.Select(1)
	if err := e.StartSelected("1 > land\n0 > flip"); err != nil {
		t.Fatalf("StartSelected: %v", err)
	}
	e.Wait()

	waitUntil(t, "drone 1 to send", func() bool { return len(p1.received()) == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := p1.received(); len(got) != 1 || got[0] != "land" {
		t.Errorf("selected drone received %q, want [land]", got)
	}
	if got := p0.received(); len(got) != 0 {
		t.Errorf("unselected drone received %q", got)
	}
}

func TestStartBusyAndStop(t *testing.T) {
	p := newSDKPeer(t, 0)
	e := newTestEngine(t, testConfig(), nil, p)

	if err := e.Start("command\ndelay 30\nland", AllDrones); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !e.IsRunning() {
		t.Fatal("IsRunning() = false right after Start")
	}
	if err := e.Start("land", AllDrones); !errors.Is(err, ErrBusy) {
		t.Errorf("second Start = %v, want ErrBusy", err)
	}

	waitUntil(t, "first command", func() bool { return len(p.received()) == 1 })
	e.Stop()
	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}

	if e.IsRunning() {
		t.Error("IsRunning() = true after Wait")
	}
	rep, err := e.LastReport()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("LastReport() error = %v, want context.Canceled", err)
	}
	if rep.Commands != 1 {
		t.Errorf("LastReport() commands = %d, want 1", rep.Commands)
	}
}

func TestDronesView(t *testing.T) {
	p := newSDKPeer(t, 0)
	e := newTestEngine(t, testConfig(), nil, p)

	if _, err := e.Run(context.Background(), "battery@\nawait", AllDrones); err != nil {
		t.Fatalf("Run: %v", err)
	}

	views := e.Drones()
	if len(views) != 1 {
		t.Fatalf("Drones() = %d views, want 1", len(views))
	}
	v := views[0]
	if v.ID != "a" || v.Remote != p.conn.LocalAddr().String() {
		t.Errorf("view = %+v", v)
	}
	if v.Status != types.StatusAcked || v.Response != "ok" || v.Blocks != 0 {
		t.Errorf("view status = %v, response = %q, blocks = %d", v.Status, v.Response, v.Blocks)
	}
}

func TestEngineCrashMode(t *testing.T) {
	cfg := testConfig()
	cfg.ErrorMode = config.ErrorModeCrash
	p := newSDKPeer(t, 0)
	e := newTestEngine(t, cfg, nil, p)

	if _, err := e.Run(context.Background(), "command\nq > land\ntakeoff", AllDrones); err == nil {
		t.Fatal("Run in crash mode ignored a bad line")
	}
	time.Sleep(50 * time.Millisecond)
	if got := p.received(); len(got) != 1 {
		t.Errorf("peer received %q, want only the first command", got)
	}
}
