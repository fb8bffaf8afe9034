package testutil

import (
	"fmt"

	"github.com/roach88/anchorage/internal/anchorid"
)

// AnchorID returns a stable identifier for n.
func AnchorID(n int) anchorid.ID {
	return anchorid.Derive("testutil", fmt.Sprint(n))
}
