package drone

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/samaelod/dronecmd/types"
)

const (
	DefaultQueueCap     = 1024
	DefaultSendInterval = 20 * time.Millisecond
	DefaultPollInterval = 20 * time.Millisecond

	recvBufSize = 1500
)

// Observer is told about every command state transition. Queued is reported
// from the enqueuing goroutine, the rest from the sender. It must not block.
type Observer func(droneID string, cmd types.Command, state types.CommandState)

type Options struct {
	QueueCap     int
	SendInterval time.Duration
	PollInterval time.Duration
	AckTimeout   time.Duration // 0 waits forever for a blocking command's response
	Logger       *slog.Logger
	Observer     Observer
}

func (o Options) withDefaults() Options {
	if o.QueueCap <= 0 {
		o.QueueCap = DefaultQueueCap
	}
	if o.SendInterval <= 0 {
		o.SendInterval = DefaultSendInterval
	}
	if o.PollInterval <= 0 || o.PollInterval > 50*time.Millisecond {
		o.PollInterval = DefaultPollInterval
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

type Stats struct {
	Sent     uint64
	Received uint64
	Dropped  uint64
}

// Drone is a live connection to one drone: a UDP socket, an outbound FIFO
// and the sender/receiver goroutines that serve them.
type Drone struct {
	id     string
	conn   *net.UDPConn
	remote *net.UDPAddr
	opts   Options
	log    *slog.Logger

	qmu   sync.Mutex
	queue []types.Command

	rmu      sync.Mutex
	response string

	acked   atomic.Bool
	respSeq atomic.Uint64
	blocks  atomic.Int64
	sendErr atomic.Bool

	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Connect binds a UDP socket on bind, pairs it with remote and starts the
// sender and receiver. The workers stop when ctx is cancelled or Close is
// called.
func Connect(ctx context.Context, id, bind, remote string, opts Options) (*Drone, error) {
	opts = opts.withDefaults()

	raddr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, fmt.Errorf("drone %s: resolve %s: %w", id, remote, err)
	}
	laddr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return nil, fmt.Errorf("drone %s: %w: %s: %v", id, ErrBind, bind, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("drone %s: %w: %s: %v", id, ErrBind, bind, err)
	}

	if id == "" {
		id = conn.LocalAddr().String()
	}

	ctx, cancel := context.WithCancel(ctx)
	d := &Drone{
		id:     id,
		conn:   conn,
		remote: raddr,
		opts:   opts,
		log:    opts.Logger.With("drone", id),
		cancel: cancel,
	}

	d.wg.Add(2)
	go d.sendLoop(ctx)
	go d.recvLoop(ctx)

	// A cancelled parent must also unblock the pending read.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	d.log.Info("connected", "bind", conn.LocalAddr().String(), "remote", raddr.String())
	return d, nil
}

func (d *Drone) ID() string { return d.id }

func (d *Drone) LocalAddr() net.Addr { return d.conn.LocalAddr() }

func (d *Drone) RemoteAddr() net.Addr { return d.remote }

// AddCommand enqueues cmd. A blocking command is counted before the sender
// can see it.
func (d *Drone) AddCommand(cmd types.Command) error {
	if d.closed.Load() {
		return fmt.Errorf("drone %s: %w", d.id, ErrClosed)
	}
	if len(cmd.Text) > types.MaxPayload || strings.ContainsAny(cmd.Text, "\r\n") {
		return fmt.Errorf("drone %s: %w: %q", d.id, ErrPayload, cmd.Text)
	}

	if cmd.Blocking {
		d.blocks.Add(1)
	}

	d.qmu.Lock()
	if len(d.queue) >= d.opts.QueueCap {
		d.qmu.Unlock()
		if cmd.Blocking {
			d.blocks.Add(-1)
		}
		return fmt.Errorf("drone %s: %w (%d pending)", d.id, ErrOverflow, d.opts.QueueCap)
	}
	d.queue = append(d.queue, cmd)
	d.qmu.Unlock()

	d.observe(cmd, types.StateQueued)
	return nil
}

// AwaitBlocks returns once the blocking counter has been observed at zero.
func (d *Drone) AwaitBlocks(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for d.blocks.Load() != 0 {
		if d.closed.Load() {
			return fmt.Errorf("drone %s: %w with %d blocking commands pending", d.id, ErrClosed, d.blocks.Load())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (d *Drone) LastResponse() string {
	d.rmu.Lock()
	defer d.rmu.Unlock()
	return d.response
}

func (d *Drone) Acked() bool { return d.acked.Load() }

func (d *Drone) Blocks() int64 { return d.blocks.Load() }

func (d *Drone) Pending() int {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	return len(d.queue)
}

func (d *Drone) Status() types.DroneStatus {
	switch {
	case d.sendErr.Load():
		return types.StatusError
	case d.blocks.Load() > 0:
		return types.StatusBusy
	case d.acked.Load():
		return types.StatusAcked
	}
	return types.StatusIdle
}

func (d *Drone) Stats() Stats {
	return Stats{
		Sent:     d.sent.Load(),
		Received: d.received.Load(),
		Dropped:  d.dropped.Load(),
	}
}

// Close stops both workers and releases the socket.
func (d *Drone) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.cancel()
	d.conn.Close()
	d.wg.Wait()
	d.log.Info("closed")
}

func (d *Drone) pop() (types.Command, bool) {
	d.qmu.Lock()
	defer d.qmu.Unlock()

	if len(d.queue) == 0 {
		return types.Command{}, false
	}
	cmd := d.queue[0]
	d.queue[0] = types.Command{}
	d.queue = d.queue[1:]
	return cmd, true
}

func (d *Drone) sendLoop(ctx context.Context) {
	defer d.wg.Done()

	for {
		if cmd, ok := d.pop(); ok {
			d.transmit(ctx, cmd)
		}

		if !sleep(ctx, d.opts.SendInterval) {
			return
		}
	}
}

// transmit sends one command with the queue lock released. A blocking
// command is held here until a response arrives after the send.
func (d *Drone) transmit(ctx context.Context, cmd types.Command) {
	d.observe(cmd, types.StateInFlight)

	// Frames recorded before this point belong to earlier commands.
	seq := d.respSeq.Load()
	if _, err := d.conn.WriteToUDP([]byte(cmd.Text), d.remote); err != nil {
		d.sendErr.Store(true)
		d.dropped.Add(1)
		if ctx.Err() == nil {
			d.log.Warn("send failed, command dropped", "cmd", cmd.Text, "err", fmt.Errorf("%w: %v", ErrSend, err))
		}
		d.settle(cmd, types.StateForgotten)
		return
	}
	d.sendErr.Store(false)
	d.sent.Add(1)
	d.log.Debug("sent", "cmd", cmd.Text, "blocking", cmd.Blocking)

	if !cmd.Blocking {
		d.observe(cmd, types.StateForgotten)
		return
	}

	if d.waitResponse(ctx, seq) {
		d.log.Debug("acknowledged", "cmd", cmd.Text, "response", d.LastResponse())
		d.settle(cmd, types.StateAcked)
		return
	}
	if ctx.Err() == nil {
		d.log.Warn("no response before ack timeout", "cmd", cmd.Text, "timeout", d.opts.AckTimeout)
	}
	d.settle(cmd, types.StateForgotten)
}

// waitResponse polls until the receiver has recorded a frame newer than seq.
func (d *Drone) waitResponse(ctx context.Context, seq uint64) bool {
	var deadline <-chan time.Time
	if d.opts.AckTimeout > 0 {
		t := time.NewTimer(d.opts.AckTimeout)
		defer t.Stop()
		deadline = t.C
	}

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for d.respSeq.Load() == seq {
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return false
		case <-ticker.C:
		}
	}
	return true
}

func (d *Drone) settle(cmd types.Command, state types.CommandState) {
	if cmd.Blocking {
		d.blocks.Add(-1)
	}
	d.observe(cmd, state)
}

func (d *Drone) recvLoop(ctx context.Context) {
	defer d.wg.Done()

	buf := make([]byte, recvBufSize)
	for {
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || d.closed.Load() {
				return
			}
			d.log.Warn("receive failed", "err", err)
		} else if err := d.record(buf[:n]); err != nil {
			d.log.Debug("response dropped", "err", err)
		}

		if !sleep(ctx, d.opts.SendInterval) {
			return
		}
	}
}

func (d *Drone) record(frame []byte) error {
	if !utf8.Valid(frame) {
		return ErrDecode
	}
	text := strings.Trim(string(frame), " \t\r\n\v\f")

	d.rmu.Lock()
	d.response = text
	d.rmu.Unlock()

	d.acked.Store(true)
	d.received.Add(1)
	d.respSeq.Add(1)
	return nil
}

func (d *Drone) observe(cmd types.Command, state types.CommandState) {
	if d.opts.Observer != nil {
		d.opts.Observer(d.id, cmd, state)
	}
}

func sleep(ctx context.Context, dur time.Duration) bool {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
