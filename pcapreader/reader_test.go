package pcapreader

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

type datagram struct {
	dst     string
	dstPort int
	payload string
	at      time.Duration
}

// writeCapture synthesises an Ethernet/IPv4/UDP pcapng file.
func writeCapture(t *testing.T, grams []datagram) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flight.pcapng")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	if err != nil {
		t.Fatalf("NewNgWriter: %v", err)
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, g := range grams {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(192, 168, 10, 2),
			DstIP:    net.ParseIP(g.dst),
		}
		udp := &layers.UDP{SrcPort: 8890, DstPort: layers.UDPPort(g.dstPort)}
		udp.SetNetworkLayerForChecksum(ip)

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(g.payload)); err != nil {
			t.Fatalf("serialize: %v", err)
		}

		data := buf.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:      base.Add(g.at),
			CaptureLength:  len(data),
			Length:         len(data),
			InterfaceIndex: 0,
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	return path
}

func TestReadScriptSingleDrone(t *testing.T) {
	path := writeCapture(t, []datagram{
		{"192.168.10.1", 8889, "command", 0},
		{"192.168.10.1", 8889, "takeoff", 100 * time.Millisecond},
		{"192.168.10.1", 8890, "ignored state port", 200 * time.Millisecond},
		{"192.168.10.1", 8889, "cw 90!", 2500 * time.Millisecond},
		{"192.168.10.1", 8889, "land\r\n", 2600 * time.Millisecond},
	})

	c, err := ReadScript(path, 0)
	if err != nil {
		t.Fatalf("ReadScript: %v", err)
	}

	if c.Commands != 4 {
		t.Errorf("Commands = %d, want 4", c.Commands)
	}
	if len(c.Fleet.Drones) != 1 || c.Fleet.Drones[0].Remote != "192.168.10.1:8889" {
		t.Errorf("Fleet = %+v", c.Fleet)
	}

	lines := strings.Split(strings.TrimSpace(c.Script), "\n")
	want := []string{"command", "takeoff", "delay 2", "cw 90", "land"}
	if len(lines) != len(want)+1 || !strings.HasPrefix(lines[0], "#") {
		t.Fatalf("Script = %q", c.Script)
	}
	for i, w := range want {
		if lines[i+1] != w {
			t.Errorf("line %d = %q, want %q", i+2, lines[i+1], w)
		}
	}
}

func TestReadScriptMultiDrone(t *testing.T) {
	path := writeCapture(t, []datagram{
		{"192.168.10.11", 8889, "command", 0},
		{"192.168.10.12", 8889, "command", 10 * time.Millisecond},
		{"192.168.10.12", 8889, "takeoff", 20 * time.Millisecond},
	})

	c, err := ReadScript(path, DefaultPort)
	if err != nil {
		t.Fatalf("ReadScript: %v", err)
	}

	if len(c.Fleet.Drones) != 2 {
		t.Fatalf("Fleet has %d drones, want 2", len(c.Fleet.Drones))
	}
	if c.Fleet.Drones[1].ID != "drone1" || c.Fleet.Drones[1].Bind != ":8891" {
		t.Errorf("second drone = %+v", c.Fleet.Drones[1])
	}
	if !strings.Contains(c.Script, "0 > command\n1 > command\n1 > takeoff\n") {
		t.Errorf("Script = %q", c.Script)
	}
}

func TestReadScriptMissingFile(t *testing.T) {
	if _, err := ReadScript(filepath.Join(t.TempDir(), "nope.pcapng"), 0); err == nil {
		t.Error("ReadScript on a missing file succeeded")
	}
}

func TestScriptBuilderSkipsJunk(t *testing.T) {
	b := newScriptBuilder()
	now := time.Now()
	b.add("10.0.0.1:8889", []byte{0xff, 0xfe}, now)
	b.add("10.0.0.1:8889", []byte("@@@"), now)
	b.add("10.0.0.1:8889", []byte("battery?"), now)

	c := b.capture()
	if c.Skipped != 2 || c.Commands != 1 {
		t.Errorf("Skipped = %d, Commands = %d; want 2, 1", c.Skipped, c.Commands)
	}
	if !strings.HasSuffix(c.Script, "battery\n") {
		t.Errorf("Script = %q", c.Script)
	}
}
