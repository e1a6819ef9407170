package camera

import "testing"

func TestManager_DefaultSuite(t *testing.T) {
	m := NewManager()
	name, cases := m.Suite()

	if name != SuiteStandard {
		t.Errorf("Expected standard suite, got %q", name)
	}
	if len(cases) != len(StandardSuite()) {
		t.Errorf("Expected %d cases, got %d", len(StandardSuite()), len(cases))
	}
}

func TestManager_SelectSuite(t *testing.T) {
	m := NewManager()

	var notified string
	m.OnChange = func(name string, cases []Config) { notified = name }

	if err := m.SelectSuite(SuiteLowLatency); err != nil {
		t.Fatalf("SelectSuite: %v", err)
	}
	if notified != SuiteLowLatency {
		t.Errorf("Expected OnChange with %q, got %q", SuiteLowLatency, notified)
	}
	if err := m.SelectSuite("nope"); err == nil {
		t.Error("Expected error for unknown suite")
	}
}

func TestManager_SetSuiteRejectsInvalid(t *testing.T) {
	m := NewManager()

	bad := NewConfig("bad", 640, 480, 0, FrameNV12)
	if err := m.SetSuite("custom", []Config{bad}); err == nil {
		t.Error("Expected validation error")
	}

	dup := NewConfig("dup", 640, 480, 30, FrameNV12)
	if err := m.SetSuite("custom", []Config{dup, dup}); err == nil {
		t.Error("Expected duplicate name error")
	}

	if err := m.SetSuite("custom", nil); err == nil {
		t.Error("Expected error for empty suite")
	}

	// Active suite unchanged after failures
	if name, _ := m.Suite(); name != SuiteStandard {
		t.Errorf("Expected standard suite to remain, got %q", name)
	}
}

func TestManager_Filter(t *testing.T) {
	m := NewManager()
	if err := m.Filter([]string{"VGA@60 NV12", " 1080p60 RAW8"}); err != nil {
		t.Fatalf("Filter: %v", err)
	}
	_, cases := m.Suite()
	if len(cases) != 2 {
		t.Fatalf("Expected 2 cases, got %d", len(cases))
	}
	// suite order preserved
	if cases[0].Name != "1080p60 RAW8" || cases[1].Name != "VGA@60 NV12" {
		t.Errorf("Unexpected order: %s, %s", cases[0].Name, cases[1].Name)
	}

	if err := m.Filter([]string{"missing"}); err == nil {
		t.Error("Expected error for unknown case")
	}
}

func TestManager_UpdateCase(t *testing.T) {
	m := NewManager()

	err := m.UpdateCase("VGA@60 NV12", map[string]interface{}{
		"fps":         float64(30),
		"type":        "RAW8",
		"exposure_us": float64(2000),
		"tuning":      "low-latency",
		"queue_size":  float64(2),
	})
	if err != nil {
		t.Fatalf("UpdateCase: %v", err)
	}

	cfg, ok := m.Case("VGA@60 NV12")
	if !ok {
		t.Fatal("case missing after update")
	}
	if cfg.FPS != 30 || cfg.Type != FrameRAW8 || cfg.Exposure.TimeUs != 2000 {
		t.Errorf("Fields not applied: %+v", cfg)
	}
	if cfg.Tuning.XLinkChunkSize != 32*1024 {
		t.Errorf("Expected low-latency tuning preset, got %+v", cfg.Tuning)
	}
	// override applied after the preset
	if cfg.Tuning.QueueSize != 2 {
		t.Errorf("Expected QueueSize=2, got %d", cfg.Tuning.QueueSize)
	}

	if err := m.UpdateCase("VGA@60 NV12", map[string]interface{}{"fps": float64(0)}); err == nil {
		t.Error("Expected validation error for fps=0")
	}
	if err := m.UpdateCase("nope", map[string]interface{}{}); err == nil {
		t.Error("Expected error for unknown case")
	}
}
