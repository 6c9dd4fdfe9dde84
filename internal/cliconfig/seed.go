package cliconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bft-labs/beacons/pkg/beacons"
)

// SeedFile is the YAML document read by `beacond import`:
//
//	beacons:
//	  - kind: eddystone-url
//	    name: lobby
//	    payload: {url: "https://example.com"}
//	    tx_power: high
//	    start: true
type SeedFile struct {
	Beacons []beacons.Spec `yaml:"beacons"`
}

// LoadSeed reads the beacon specs in path. Every spec is marked for saving.
func LoadSeed(path string) ([]beacons.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i := range seed.Beacons {
		if seed.Beacons[i].Kind == 0 {
			return nil, fmt.Errorf("beacon %d in %s: kind is required", i+1, path)
		}
		seed.Beacons[i].Save = true
	}
	return seed.Beacons, nil
}
