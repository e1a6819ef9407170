package camera

import (
	"strings"
	"testing"
)

func TestSuites_AllValid(t *testing.T) {
	for _, name := range SuiteNames() {
		cases := GetSuite(name)
		if len(cases) == 0 {
			t.Errorf("%s: suite is empty", name)
			continue
		}
		for _, c := range cases {
			if errs := c.Validate(); len(errs) > 0 {
				t.Errorf("%s/%s: %v", name, c.Name, errs)
			}
		}
	}
}

func TestStandardSuite_Contents(t *testing.T) {
	cases := StandardSuite()
	if len(cases) != 5 {
		t.Fatalf("Expected 5 cases, got %d", len(cases))
	}

	first := cases[0]
	if first.Name != "1080p60 NV12" || first.Width != 1920 || first.Height != 1080 || first.FPS != 60 {
		t.Errorf("Unexpected first case: %+v", first)
	}

	raw := 0
	for _, c := range cases {
		if c.Type == FrameRAW8 {
			raw++
		}
		if c.Tuning != DefaultTuning() {
			t.Errorf("%s: expected default tuning, got %+v", c.Name, c.Tuning)
		}
	}
	if raw != 2 {
		t.Errorf("Expected 2 RAW8 cases, got %d", raw)
	}
}

func TestLowLatencySuite_Contents(t *testing.T) {
	cases := LowLatencySuite()
	if len(cases) != 6 {
		t.Fatalf("Expected 6 cases, got %d", len(cases))
	}

	for _, c := range cases {
		if c.Tuning != LowLatencyTuning() {
			t.Errorf("%s: expected low-latency tuning", c.Name)
		}
	}

	if cases[1].ISP3AFps != 12 {
		t.Errorf("Expected 3A limit of 12fps on second case, got %d", cases[1].ISP3AFps)
	}
	if cases[0].ISP3AFps != 0 {
		t.Errorf("Expected no 3A limit on primary case, got %d", cases[0].ISP3AFps)
	}
	if last := cases[len(cases)-1]; last.Width != 320 || last.Height != 240 {
		t.Errorf("Expected lowest resolution last, got %dx%d", last.Width, last.Height)
	}
}

func TestLowLatencyTuning(t *testing.T) {
	tun := LowLatencyTuning()

	if tun.XLinkChunkSize != 32*1024 {
		t.Errorf("Expected 32KB chunks, got %d", tun.XLinkChunkSize)
	}
	if tun.LeonCSSFreqHz != 800_000_000 || tun.LeonMSSFreqHz != 800_000_000 {
		t.Errorf("Expected 800MHz Leon clocks, got %d/%d", tun.LeonCSSFreqHz, tun.LeonMSSFreqHz)
	}
	if tun.RawPoolSize != 2 || tun.ISPPoolSize != 2 || tun.OutputsPoolSize != 2 {
		t.Errorf("Expected pools of 2, got %+v", tun)
	}
}

func TestTuningNotes(t *testing.T) {
	notes := TuningNotes(LowLatencyTuning())
	if len(notes) != 4 {
		t.Fatalf("Expected 4 notes, got %d: %v", len(notes), notes)
	}
	joined := strings.Join(notes, "\n")
	for _, want := range []string{"32KB", "800MHz", "raw=2", "non-blocking"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected notes to mention %q, got:\n%s", want, joined)
		}
	}

	// Default tuning only reports the queue
	if got := TuningNotes(DefaultTuning()); len(got) != 1 {
		t.Errorf("Expected 1 note for default tuning, got %v", got)
	}
}

func TestGetSuite_Unknown(t *testing.T) {
	if GetSuite("nope") != nil {
		t.Error("Expected nil for unknown suite")
	}
}
