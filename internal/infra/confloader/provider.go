package confloader

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

var errReadBytes = errors.New("confloader: map provider has no byte form")

// mapProvider feeds a map of dotted keys to koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytes
}

// Read expands dotted keys ("server.workers") into nested maps.
func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
