package cli

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func executeCommand(args ...string) (string, error) {
	cfgFile, fleetFile, droneArgs, errorMode = "", "", nil, ""
	convertPort, convertFleetOut = 0, ""

	buf := new(bytes.Buffer)
	root := RootCmd()
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// tempConfig keeps logs and recent scripts out of the package directory.
func tempConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dronecmd.yaml")
	body := "logs_dir: " + filepath.Join(dir, "logs") + "\nrecent_dir: " + filepath.Join(dir, "recent") + "\nsend_interval_ms: 5\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "dronecmd version") {
		t.Errorf("expected output to contain 'dronecmd version', got: %s", out)
	}
}

func TestBadErrorMode(t *testing.T) {
	if _, err := executeCommand("version", "--error-mode", "explode"); err == nil {
		t.Fatal("expected error for unknown --error-mode, got nil")
	}
}

func TestParseDroneArg(t *testing.T) {
	tests := []struct {
		arg     string
		id      string
		bind    string
		remote  string
		wantErr bool
	}{
		{"192.168.10.1:8889", "drone2", ":0", "192.168.10.1:8889", false},
		{":8890,192.168.10.1:8889", "drone2", ":8890", "192.168.10.1:8889", false},
		{"alpha=:8890, 10.0.0.5:8889", "alpha", ":8890", "10.0.0.5:8889", false},
		{"a,b,c", "", "", "", true},
		{"alpha=:8890,", "", "", "", true},
	}

	for _, tt := range tests {
		spec, err := parseDroneArg(tt.arg, 2)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDroneArg(%q) expected error", tt.arg)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDroneArg(%q) unexpected error: %v", tt.arg, err)
			continue
		}
		if spec.ID != tt.id || spec.Bind != tt.bind || spec.Remote != tt.remote {
			t.Errorf("parseDroneArg(%q) = %+v", tt.arg, spec)
		}
	}
}

func TestSessionLogPath(t *testing.T) {
	if got := sessionLogPath("", ""); got != filepath.Join("logs", "session.log") {
		t.Errorf("sessionLogPath() = %q", got)
	}
	if got := sessionLogPath("out", "/tmp/flight.ds"); got != filepath.Join("out", "flight.log") {
		t.Errorf("sessionLogPath() = %q", got)
	}
}

func TestConvertMissingCapture(t *testing.T) {
	_, err := executeCommand("convert", "--config", tempConfig(t), filepath.Join(t.TempDir(), "nope.pcapng"))
	if err == nil {
		t.Fatal("expected error for missing capture, got nil")
	}
}

func TestRunCommand(t *testing.T) {
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer peer.Close()
	go func() {
		buf := make([]byte, 1500)
		for {
			_, addr, err := peer.ReadFromUDP(buf)
			if err != nil {
				return
			}
			peer.WriteToUDP([]byte("ok"), addr)
		}
	}()

	scriptPath := filepath.Join(t.TempDir(), "hop.ds")
	if err := os.WriteFile(scriptPath, []byte("command@\nawait\ntakeoff\n"), 0600); err != nil {
		t.Fatalf("write script: %v", err)
	}

	out, err := executeCommand("run", "--config", tempConfig(t),
		"--drone", "solo=127.0.0.1:0,"+peer.LocalAddr().String(), scriptPath)
	if err != nil {
		t.Fatalf("run command failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "commands 2") {
		t.Errorf("expected output to contain 'commands 2', got: %s", out)
	}
	if !strings.Contains(out, "[0] solo") || !strings.Contains(out, `last="ok"`) {
		t.Errorf("expected per-drone summary for solo, got: %s", out)
	}
}
