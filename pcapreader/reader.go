package pcapreader

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"github.com/samaelod/dronecmd/script"
	"github.com/samaelod/dronecmd/types"
)

const pcapngMagic = 0x0A0D0D0A

// source is an open capture of either flavour.
type source interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
	Close() error
}

type pcapSource struct{ *pcap.Handle }

func (s pcapSource) Close() error {
	s.Handle.Close()
	return nil
}

type ngSource struct {
	*pcapgo.NgReader
	f *os.File
}

func (s ngSource) Close() error { return s.f.Close() }

// isPcapng sniffs the section header block magic. Anything else is handed
// to libpcap, which knows the classic formats and their byte orders.
func isPcapng(f *os.File) bool {
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return binary.LittleEndian.Uint32(magic[:]) == pcapngMagic
}

func openCapture(path string) (source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if !isPcapng(f) {
		f.Close()
		h, err := pcap.OpenOffline(path)
		if err != nil {
			return nil, err
		}
		return pcapSource{h}, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	r, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		f.Close()
		return nil, err
	}
	return ngSource{NgReader: r, f: f}, nil
}

// DefaultPort is the Tello SDK command port.
const DefaultPort = 8889

// Capture is a script recovered from recorded SDK traffic.
type Capture struct {
	Script   string
	Fleet    types.Fleet
	Commands int
	Skipped  int // datagrams that were not printable commands
}

// ReadScript extracts the UDP commands sent to port in a pcap/pcapng file
// and renders them as a drone script. Each destination address becomes one
// drone, indexed in order of first appearance.
func ReadScript(path string, port int) (*Capture, error) {
	if port <= 0 {
		port = DefaultPort
	}

	src, err := openCapture(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	b := newScriptBuilder()
	packets := gopacket.NewPacketSource(src, src.LinkType())

	for packet := range packets.Packets() {
		nl := packet.NetworkLayer()
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if nl == nil || udpLayer == nil {
			continue
		}

		udp := udpLayer.(*layers.UDP)
		if int(udp.DstPort) != port || len(udp.Payload) == 0 {
			continue
		}

		var dstIP string
		if ipv4, ok := nl.(*layers.IPv4); ok {
			dstIP = ipv4.DstIP.String()
		} else if ipv6, ok := nl.(*layers.IPv6); ok {
			dstIP = ipv6.DstIP.String()
		} else {
			dstIP = nl.NetworkFlow().Dst().String()
		}

		b.add(net.JoinHostPort(dstIP, strconv.Itoa(port)), udp.Payload, packet.Metadata().Timestamp)
	}

	return b.capture(), nil
}

type capturedCmd struct {
	drone int
	text  string
	gap   time.Duration
}

type scriptBuilder struct {
	index   map[string]int
	fleet   types.Fleet
	cmds    []capturedCmd
	prev    time.Time
	skipped int
}

func newScriptBuilder() *scriptBuilder {
	return &scriptBuilder{index: make(map[string]int)}
}

func (b *scriptBuilder) add(remote string, payload []byte, ts time.Time) {
	if !utf8.Valid(payload) {
		b.skipped++
		return
	}
	text := strings.TrimSpace(script.Normalize(string(payload), true))
	if text == "" {
		b.skipped++
		return
	}

	id, ok := b.index[remote]
	if !ok {
		id = len(b.fleet.Drones)
		b.index[remote] = id
		b.fleet.Drones = append(b.fleet.Drones, types.DroneSpec{
			ID:     fmt.Sprintf("drone%d", id),
			Bind:   fmt.Sprintf(":%d", 8890+id),
			Remote: remote,
		})
	}

	var gap time.Duration
	if !b.prev.IsZero() {
		gap = ts.Sub(b.prev)
	}
	b.prev = ts

	b.cmds = append(b.cmds, capturedCmd{drone: id, text: text, gap: gap})
}

func (b *scriptBuilder) capture() *Capture {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# recovered from capture: %d commands, %d drones\n", len(b.cmds), len(b.fleet.Drones))

	multi := len(b.fleet.Drones) > 1
	for _, c := range b.cmds {
		// Whole seconds only; shorter gaps are covered by the send cadence.
		if secs := int(c.gap / time.Second); secs >= 1 {
			fmt.Fprintf(&sb, "delay %d\n", secs)
		}
		if multi {
			fmt.Fprintf(&sb, "%d > %s\n", c.drone, c.text)
		} else {
			sb.WriteString(c.text + "\n")
		}
	}

	return &Capture{
		Script:   sb.String(),
		Fleet:    b.fleet,
		Commands: len(b.cmds),
		Skipped:  b.skipped,
	}
}
