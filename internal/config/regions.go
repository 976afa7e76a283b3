package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Region is one named bounding box to populate at boot.
type Region struct {
	Name   string  `yaml:"name"`
	MinLng float64 `yaml:"min_lng"`
	MinLat float64 `yaml:"min_lat"`
	MaxLng float64 `yaml:"max_lng"`
	MaxLat float64 `yaml:"max_lat"`
}

type regionsFile struct {
	Regions []Region `yaml:"regions"`
}

// LoadRegions reads the region list from a YAML file.
func LoadRegions(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read regions file %s", path)
	}

	var f regionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse regions file %s", path)
	}

	for _, r := range f.Regions {
		if r.Name == "" {
			return nil, eris.Errorf("config: region without a name in %s", path)
		}
		if r.MinLng > r.MaxLng || r.MinLat > r.MaxLat {
			return nil, eris.Errorf("config: region %s has an inverted bounding box", r.Name)
		}
	}
	return f.Regions, nil
}
