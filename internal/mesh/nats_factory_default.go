//go:build !nats

package mesh

import "errors"

// NewNatsBus is unavailable unless the binary is built with -tags nats;
// callers fall back to NewLocalBus.
func NewNatsBus(string) (Bus, error) {
	return nil, errors.New("mesh: nats support not compiled in (build with -tags nats)")
}
