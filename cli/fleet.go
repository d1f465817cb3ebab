package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samaelod/dronecmd/lua"
	"github.com/samaelod/dronecmd/pcapreader"
	"github.com/samaelod/dronecmd/types"
)

// defaultDrone is the address pair of a single Tello on its own access point.
var defaultDrone = types.DroneSpec{ID: "tello", Bind: "0.0.0.0:8889", Remote: "192.168.10.1:8889"}

// resolveFleet picks the drones from --drone, then --fleet, then the config
// file, falling back to a single default Tello.
func resolveFleet() (*types.Fleet, error) {
	if len(droneArgs) > 0 {
		fleet := &types.Fleet{}
		for i, arg := range droneArgs {
			spec, err := parseDroneArg(arg, i)
			if err != nil {
				return nil, err
			}
			fleet.Drones = append(fleet.Drones, spec)
		}
		if err := lua.ValidateFleet(fleet); err != nil {
			return nil, fmt.Errorf("invalid --drone: %w", err)
		}
		return fleet, nil
	}

	path := fleetFile
	if path == "" && cfg != nil {
		path = cfg.Fleet
	}
	if path != "" {
		fleet, err := lua.ReadFleet(path)
		if err != nil {
			return nil, fmt.Errorf("fleet %s: %w", path, err)
		}
		return fleet, nil
	}

	return &types.Fleet{Drones: []types.DroneSpec{defaultDrone}}, nil
}

// parseDroneArg accepts "remote", "bind,remote" and "id=bind,remote".
func parseDroneArg(arg string, idx int) (types.DroneSpec, error) {
	spec := types.DroneSpec{ID: fmt.Sprintf("drone%d", idx), Bind: ":0"}

	rest := arg
	if id, addrs, ok := strings.Cut(arg, "="); ok {
		spec.ID = strings.TrimSpace(id)
		rest = addrs
	}

	parts := strings.Split(rest, ",")
	switch len(parts) {
	case 1:
		spec.Remote = strings.TrimSpace(parts[0])
	case 2:
		spec.Bind = strings.TrimSpace(parts[0])
		spec.Remote = strings.TrimSpace(parts[1])
	default:
		return spec, fmt.Errorf("--drone %q: want [id=][bind,]remote", arg)
	}
	if spec.Remote == "" {
		return spec, fmt.Errorf("--drone %q: missing remote address", arg)
	}
	return spec, nil
}

// readScript loads a script file; captures are converted on the fly.
func readScript(path string, port int) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng", ".cap":
		c, err := pcapreader.ReadScript(path, port)
		if err != nil {
			return "", fmt.Errorf("capture %s: %w", path, err)
		}
		return c.Script, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sessionLogPath(logsDir, scriptPath string) string {
	if logsDir == "" {
		logsDir = "logs"
	}
	name := "session"
	if scriptPath != "" {
		base := filepath.Base(scriptPath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return filepath.Join(logsDir, name+".log")
}
