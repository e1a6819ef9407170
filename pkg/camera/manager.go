package camera

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Manager holds the active suite and handles updates from the dashboard API.
type Manager struct {
	name  string
	cases []Config
	mu    sync.RWMutex

	// Callback when the suite changes
	OnChange func(name string, cases []Config)
}

// NewManager creates a new manager with the standard suite active.
func NewManager() *Manager {
	return &Manager{
		name:  SuiteStandard,
		cases: StandardSuite(),
	}
}

// Suite returns the active suite name and a copy of its cases.
func (m *Manager) Suite() (string, []Config) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Config, len(m.cases))
	copy(out, m.cases)
	return m.name, out
}

// Case returns the named case from the active suite.
func (m *Manager) Case(name string) (Config, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cases {
		if c.Name == name {
			return c, true
		}
	}
	return Config{}, false
}

// SetSuite replaces the active suite. Every case is validated first.
func (m *Manager) SetSuite(name string, cases []Config) error {
	if len(cases) == 0 {
		return fmt.Errorf("suite %q has no test cases", name)
	}
	seen := make(map[string]bool, len(cases))
	for i := range cases {
		cases[i].ApplyDefaults()
		if errs := cases[i].Validate(); len(errs) > 0 {
			return fmt.Errorf("case %q: validation failed: %v", cases[i].Name, errs)
		}
		if seen[cases[i].Name] {
			return fmt.Errorf("duplicate case name %q", cases[i].Name)
		}
		seen[cases[i].Name] = true
	}

	m.mu.Lock()
	m.name = name
	m.cases = cases
	callback := m.OnChange
	m.mu.Unlock()

	if callback != nil {
		out := make([]Config, len(cases))
		copy(out, cases)
		callback(name, out)
	}
	return nil
}

// SelectSuite activates a built-in suite.
func (m *Manager) SelectSuite(name string) error {
	cases := GetSuite(name)
	if cases == nil {
		return fmt.Errorf("unknown suite: %s", name)
	}
	return m.SetSuite(name, cases)
}

// Filter keeps only the named cases, in suite order.
func (m *Manager) Filter(names []string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}

	name, cases := m.Suite()
	var kept []Config
	for _, c := range cases {
		if want[c.Name] {
			kept = append(kept, c)
			delete(want, c.Name)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for n := range want {
			missing = append(missing, n)
		}
		return fmt.Errorf("unknown test cases: %s", strings.Join(missing, ", "))
	}
	return m.SetSuite(name, kept)
}

// UpdateCase updates specific fields of one case in the active suite.
// Accepts a map of field names to values.
func (m *Manager) UpdateCase(caseName string, params map[string]interface{}) error {
	name, cases := m.Suite()

	idx := -1
	for i, c := range cases {
		if c.Name == caseName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("unknown test case: %s", caseName)
	}
	cfg := cases[idx]

	// Tuning preset first so individual overrides still apply
	if preset, ok := params["tuning"].(string); ok {
		switch preset {
		case "low-latency":
			cfg.Tuning = LowLatencyTuning()
		case "default":
			cfg.Tuning = DefaultTuning()
		default:
			return fmt.Errorf("unknown tuning preset: %s", preset)
		}
		delete(params, "tuning")
	}

	for key, value := range params {
		switch key {
		case "name":
			if v, ok := value.(string); ok {
				cfg.Name = v
			}
		case "width":
			if v, ok := toInt(value); ok {
				cfg.Width = v
			}
		case "height":
			if v, ok := toInt(value); ok {
				cfg.Height = v
			}
		case "fps":
			if v, ok := toFloat(value); ok {
				cfg.FPS = v
			}
		case "type":
			if v, ok := value.(string); ok {
				t, err := ParseFrameType(v)
				if err != nil {
					return err
				}
				cfg.Type = t
			}
		case "isp_3a_fps":
			if v, ok := toInt(value); ok {
				cfg.ISP3AFps = v
			}
		case "exposure_us":
			if v, ok := toInt(value); ok {
				cfg.Exposure.TimeUs = v
			}
		case "iso":
			if v, ok := toInt(value); ok {
				cfg.Exposure.ISO = v
			}
		case "queue_size":
			if v, ok := toInt(value); ok {
				cfg.Tuning.QueueSize = v
			}
		case "blocking":
			if v, ok := value.(bool); ok {
				cfg.Tuning.Blocking = v
			}
		case "xlink_chunk_size":
			if v, ok := toInt(value); ok {
				cfg.Tuning.XLinkChunkSize = v
			}
		}
	}

	cases[idx] = cfg
	return m.SetSuite(name, cases)
}

// SuiteJSON returns the active suite as a map for JSON serialization.
func (m *Manager) SuiteJSON() map[string]interface{} {
	name, cases := m.Suite()
	return map[string]interface{}{
		"suite":  name,
		"cases":  cases,
		"suites": SuiteNames(),
	}
}

// Helper functions for type conversion

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err == nil {
			return f, true
		}
	}
	return 0, false
}
