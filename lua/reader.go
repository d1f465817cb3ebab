package lua

import (
	"fmt"

	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"

	"github.com/samaelod/dronecmd/types"
)

// ReadFleet executes a Lua fleet file. The file must return a table of the
// form { drones = { { id = "a", bind = ":8890", remote = "192.168.10.1:8889" } } }.
func ReadFleet(path string) (*types.Fleet, error) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoFile(path); err != nil {
		return nil, err
	}

	return mapFleet(L)
}

// ReadFleetString is ReadFleet for in-memory sources.
func ReadFleetString(src string) (*types.Fleet, error) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(src); err != nil {
		return nil, err
	}

	return mapFleet(L)
}

func mapFleet(L *lua.LState) (*types.Fleet, error) {
	lv := L.Get(-1)
	table, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("lua file did not return a table")
	}

	var fleet types.Fleet
	if err := gluamapper.Map(table, &fleet); err != nil {
		return nil, err
	}

	if err := ValidateFleet(&fleet); err != nil {
		return nil, fmt.Errorf("invalid fleet: %w", err)
	}

	return &fleet, nil
}

func ValidateFleet(fleet *types.Fleet) error {
	if len(fleet.Drones) == 0 {
		return fmt.Errorf("no drones defined")
	}

	seen := make(map[string]bool)
	for i, d := range fleet.Drones {
		if d.ID == "" {
			return fmt.Errorf("drone %d: missing id", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("drone %d: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
		if d.Bind == "" {
			return fmt.Errorf("drone %q: missing bind address", d.ID)
		}
		if d.Remote == "" {
			return fmt.Errorf("drone %q: missing remote address", d.ID)
		}
	}

	return nil
}
