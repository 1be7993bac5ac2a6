package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	for _, test := range []struct {
		level    string
		expected []string
	}{
		{"debug", []string{"debug", "info", "warn", "error"}},
		{"info", []string{"info", "warn", "error"}},
		{"", []string{"info", "warn", "error"}},
		{"warn", []string{"warn", "error"}},
		{"error", []string{"error"}},
	} {
		var buf bytes.Buffer
		lg := NewWithWriter(test.level, &buf)
		lg.Debug("debug")
		lg.Infof("%s", "info")
		lg.Warn("warn")
		lg.Errorf("error")

		var msgs []string
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			var rec map[string]any
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				t.Fatalf("%s: %v", line, err)
			}
			msgs = append(msgs, rec["msg"].(string))
		}
		if strings.Join(msgs, ",") != strings.Join(test.expected, ",") {
			t.Errorf("level %q: got %v, expected %v", test.level, msgs, test.expected)
		}
	}
}

func TestCallstack(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWithWriter("info", &buf)
	lg.Info("hello", "answer", 42)

	var rec struct {
		Msg       string       `json:"msg"`
		Answer    int          `json:"answer"`
		Callstack []StackFrame `json:"callstack"`
	}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Msg != "hello" || rec.Answer != 42 {
		t.Errorf("unexpected record %+v", rec)
	}
	if len(rec.Callstack) == 0 || rec.Callstack[0].File != "log_test.go" ||
		!strings.HasSuffix(rec.Callstack[0].Function, "TestCallstack") {
		t.Errorf("unexpected callstack %+v", rec.Callstack)
	}
}

func TestNilLogger(t *testing.T) {
	var lg *Logger
	lg.Debug("ignored")
	lg.Debugf("ignored %d", 1)
	lg.Info("ignored")
	lg.Infof("ignored %d", 2)
	if lg.With("a", 1) != nil {
		t.Errorf("With on a nil logger should return nil")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWithWriter("info", &buf).With("layer", 3)
	lg.Info("prepared")
	if !strings.Contains(buf.String(), `"layer":3`) {
		t.Errorf("%s: missing attribute", buf.String())
	}
}
