package util

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmp/sweep/log"
)

func TestErrorLogger(t *testing.T) {
	var e ErrorLogger
	if e.HaveErrors() || e.CurrentDepth() != 0 {
		t.Errorf("new ErrorLogger isn't empty")
	}

	e.ErrorString("top-level %d", 1)
	e.Push("KLOT")
	e.Push("ray 3")
	if e.CurrentDepth() != 2 {
		t.Errorf("depth %d, expected 2", e.CurrentDepth())
	}
	e.ErrorString("%d values but %d gates", 4, 5)
	e.Pop()
	e.Error(errors.New("gates not increasing"))
	e.Pop()

	expected := []string{
		"top-level 1",
		"KLOT / ray 3: 4 values but 5 gates",
		"KLOT: gates not increasing",
	}
	if !e.HaveErrors() || strings.Join(e.Errors(), "|") != strings.Join(expected, "|") {
		t.Errorf("got %q, expected %q", e.Errors(), expected)
	}
	if e.String() != strings.Join(expected, "\n") {
		t.Errorf("String() = %q", e.String())
	}

	var nilLogger *ErrorLogger
	if nilLogger.CurrentDepth() != 0 {
		t.Errorf("nil ErrorLogger has nonzero depth")
	}
}

func TestUnmarshalJSON(t *testing.T) {
	type point struct {
		X, Y int
	}

	var p point
	if err := UnmarshalJSON(strings.NewReader(`{"X": 1, "Y": 2}`), &p); err != nil || p != (point{1, 2}) {
		t.Errorf("got %+v, %v", p, err)
	}

	for _, test := range []struct {
		json string
		err  string
	}{
		{"{\n  \"X\": 1,\n  \"Y\": 2,\n}", "Error at line 4, character 2"},
		{"{\n  \"X\": \"one\"\n}", "Error at line 2"},
		{"{\"X\": 1", "unexpected end of JSON input"},
	} {
		err := UnmarshalJSONBytes([]byte(test.json), &p)
		if err == nil || !strings.Contains(err.Error(), test.err) {
			t.Errorf("%q: got error %v, expected %q", test.json, err, test.err)
		}
	}
}

func TestLoggingMutex(t *testing.T) {
	var mu LoggingMutex
	var wg sync.WaitGroup
	n := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				mu.Lock(nil)
				n++
				mu.Unlock(nil)
			}
		}()
	}
	wg.Wait()
	if n != 800 {
		t.Errorf("n = %d, expected 800", n)
	}
}

func TestLoggingMutexDebugLog(t *testing.T) {
	// With debug logging, the mutex's state is formatted while other
	// goroutines acquire and release it.
	lg := log.NewWithWriter("debug", io.Discard)
	var mu LoggingMutex
	var wg sync.WaitGroup
	n := 0
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				mu.Lock(lg)
				n++
				mu.Unlock(lg)
			}
		}()
	}
	for range 200 {
		lg.Debug("mutex state", slog.Any("mutex", &mu))
	}
	wg.Wait()
	if n != 800 {
		t.Errorf("n = %d, expected 800", n)
	}

	var buf bytes.Buffer
	lg = log.NewWithWriter("debug", &buf)
	mu.Lock(lg)
	mu.Unlock(lg)
	if !strings.Contains(buf.String(), "acq_stack") {
		t.Errorf("acquisition record missing the callstack: %s", buf.String())
	}

	buf.Reset()
	lg.Debug("idle", slog.Any("mutex", &mu))
	if !strings.Contains(buf.String(), `"held":false`) {
		t.Errorf("idle mutex reported as held: %s", buf.String())
	}
}

func TestTimeIt(t *testing.T) {
	called := false
	d := TimeIt(nil, "sleep", func() {
		called = true
		time.Sleep(5 * time.Millisecond)
	})
	if !called || d < 5*time.Millisecond {
		t.Errorf("called %v, elapsed %s", called, d)
	}

	errTest := errors.New("failed")
	if _, err := TimeItErr(nil, "fail", func() error { return errTest }); err != errTest {
		t.Errorf("got %v, expected %v", err, errTest)
	}
}
