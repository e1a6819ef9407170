package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-camlat/pkg/camera"
)

// SuiteFile is the YAML layout of a custom suite:
//
//	name: bench-360p
//	tuning: low-latency        # preset for every case: default | low-latency
//	exposure: {time_us: 1000, iso: 1600}
//	cases:
//	  - {name: 360p24 RGB888i, width: 640, height: 360, fps: 24, type: RGB888i}
//	  - {width: 640, height: 360, fps: 24, type: RAW8, isp_3a_fps: 12}
//
// Fields set on a case override the file-level values.
type SuiteFile struct {
	Name     string           `yaml:"name"`
	Tuning   string           `yaml:"tuning"`
	Exposure *camera.Exposure `yaml:"exposure"`
	Cases    []yaml.Node      `yaml:"cases"`
}

// LoadSuite reads and validates a suite file.
func LoadSuite(path string) (string, []camera.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	name, cases, err := ParseSuite(data)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	return name, cases, nil
}

// ParseSuite decodes a suite from YAML.
func ParseSuite(data []byte) (string, []camera.Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f SuiteFile
	if err := dec.Decode(&f); err != nil {
		return "", nil, fmt.Errorf("invalid suite file: %w", err)
	}
	if len(f.Cases) == 0 {
		return "", nil, fmt.Errorf("suite has no cases")
	}
	if f.Name == "" {
		f.Name = "custom"
	}

	base := camera.Config{Socket: camera.DefaultSocket, Tuning: camera.DefaultTuning()}
	switch f.Tuning {
	case "", "default":
	case "low-latency":
		base.Tuning = camera.LowLatencyTuning()
	default:
		return "", nil, fmt.Errorf("unknown tuning preset: %s", f.Tuning)
	}
	if f.Exposure != nil {
		base.Exposure = *f.Exposure
	} else {
		base.Exposure = camera.DefaultExposure()
	}

	seen := make(map[string]bool, len(f.Cases))
	cases := make([]camera.Config, 0, len(f.Cases))
	for i := range f.Cases {
		cfg := base
		if err := f.Cases[i].Decode(&cfg); err != nil {
			return "", nil, fmt.Errorf("case %d: %w", i+1, err)
		}
		cfg.ApplyDefaults()
		if errs := cfg.Validate(); len(errs) > 0 {
			return "", nil, fmt.Errorf("case %q: validation failed: %v", cfg.Name, errs)
		}
		if seen[cfg.Name] {
			return "", nil, fmt.Errorf("duplicate case name %q", cfg.Name)
		}
		seen[cfg.Name] = true
		cases = append(cases, cfg)
	}
	return f.Name, cases, nil
}

// MarshalSuite renders cases in the suite file layout.
func MarshalSuite(name string, cases []camera.Config) ([]byte, error) {
	out := struct {
		Name  string          `yaml:"name"`
		Cases []camera.Config `yaml:"cases"`
	}{name, cases}
	return yaml.Marshal(out)
}
