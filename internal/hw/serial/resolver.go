package serial

import (
	"fmt"
	"strings"

	"github.com/pushrod/servoctl/internal/debug"
)

// Resolver picks the device path to open. It never opens a port.
type Resolver struct {
	lister Lister
}

func NewResolver(l Lister) *Resolver {
	return &Resolver{lister: l}
}

// Resolve returns the first enumerated port whose description contains
// preferred (case-sensitive). When none matches, or enumeration fails, it
// returns a descriptor for fallback together with an error wrapping
// ErrPortNotFound. The descriptor is usable in both cases.
func (r *Resolver) Resolve(preferred, fallback string) (PortDescriptor, error) {
	fb := PortDescriptor{Path: fallback}

	ports, err := r.lister.ListPorts()
	if err != nil {
		debug.Warn("Could not enumerate ports (%v). Using %s as default.", err, fallback)
		return fb, fmt.Errorf("%w: %s: %w", ErrPortNotFound, fallback, err)
	}

	for _, p := range ports {
		if strings.Contains(p.Description, preferred) {
			debug.Info("Detected port: %s", p)
			return p, nil
		}
	}

	debug.Warn("Could not auto-detect %q port. Using %s as default.", preferred, fallback)
	for _, p := range ports {
		debug.Warn("  available: %s", p)
	}
	return fb, fmt.Errorf("%w: no port matching %q, using %s", ErrPortNotFound, preferred, fallback)
}
