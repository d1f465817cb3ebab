package lua

import (
	"fmt"
	"io"

	"github.com/samaelod/dronecmd/types"
)

func WriteFleet(w io.Writer, fleet *types.Fleet) error {
	fmt.Fprintln(w, "local fleet = {}")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "-- DRONES -----------------------------------------")
	fmt.Fprintln(w, "-- index order is the order used by '<n> > cmd' lines")
	fmt.Fprintln(w, "fleet.drones = {")
	for _, d := range fleet.Drones {
		fmt.Fprintln(w, "\t{")
		fmt.Fprintf(w, "\t\tid = %q,\n", d.ID)
		fmt.Fprintf(w, "\t\tbind = %q,\n", d.Bind)
		fmt.Fprintf(w, "\t\tremote = %q,\n", d.Remote)
		fmt.Fprintln(w, "\t},")
	}
	fmt.Fprintln(w, "}")
	fmt.Fprintln(w)

	_, err := fmt.Fprintln(w, "return fleet")
	return err
}
