package command

import (
	"errors"
	"testing"
	"time"
)

func testRouter(opened *[]string, notes *int) *Router {
	return New(
		WithOpenURL(func(url string) error {
			*opened = append(*opened, url)
			return nil
		}),
		WithOpenNotes(func() error {
			*notes++
			return nil
		}),
		WithClock(func() time.Time {
			return time.Date(2025, 6, 1, 15, 4, 0, 0, time.UTC)
		}),
	)
}

func TestRouteOpenCommands(t *testing.T) {
	var opened []string
	var notes int
	r := testRouter(&opened, &notes)

	tests := []struct {
		text         string
		wantResponse string
		wantURL      string
	}{
		{"open youtube", "Opening YouTube.", "https://youtube.com"},
		{"please open YouTube now", "Opening YouTube.", "https://youtube.com"},
		{"open google", "Opening Google.", "https://google.com"},
	}
	for _, tt := range tests {
		opened = nil
		res := r.Route(tt.text)
		if !res.Executed {
			t.Errorf("Route(%q) not executed", tt.text)
			continue
		}
		if res.Response != tt.wantResponse {
			t.Errorf("Route(%q) response = %q, want %q", tt.text, res.Response, tt.wantResponse)
		}
		if len(opened) != 1 || opened[0] != tt.wantURL {
			t.Errorf("Route(%q) opened %v, want [%s]", tt.text, opened, tt.wantURL)
		}
		if res.ShouldExit {
			t.Errorf("Route(%q) requested exit", tt.text)
		}
	}
}

func TestRouteNotepad(t *testing.T) {
	var opened []string
	var notes int
	r := testRouter(&opened, &notes)

	res := r.Route("Open Notepad")
	if !res.Executed || res.Response != "Opening notepad." {
		t.Fatalf("Route = %+v", res)
	}
	if notes != 1 {
		t.Fatalf("editor launched %d times, want 1", notes)
	}
}

func TestRouteTime(t *testing.T) {
	var opened []string
	var notes int
	r := testRouter(&opened, &notes)

	for _, text := range []string{"what time is it", "time"} {
		res := r.Route(text)
		if !res.Executed {
			t.Fatalf("Route(%q) not executed", text)
		}
		if res.Response != "It is 03:04 PM." {
			t.Fatalf("Route(%q) response = %q", text, res.Response)
		}
	}

	// "time" must match exactly, not as a substring.
	if res := r.Route("sometimes I wonder"); res.Executed {
		t.Fatalf("Route matched substring: %+v", res)
	}
}

func TestRouteExit(t *testing.T) {
	var opened []string
	var notes int
	r := testRouter(&opened, &notes)

	for _, text := range []string{"exit", "quit", "stop assistant", "  QUIT  "} {
		res := r.Route(text)
		if !res.Executed || !res.ShouldExit {
			t.Errorf("Route(%q) = %+v, want executed exit", text, res)
		}
		if res.Response != "Stopping voice assistant." {
			t.Errorf("Route(%q) response = %q", text, res.Response)
		}
	}

	// Exit phrases must match exactly.
	for _, text := range []string{"please quit now", "exit the building"} {
		if res := r.Route(text); res.ShouldExit {
			t.Errorf("Route(%q) = %+v, want no exit", text, res)
		}
	}
}

func TestRouteUnmatched(t *testing.T) {
	var opened []string
	var notes int
	r := testRouter(&opened, &notes)

	for _, text := range []string{"what is the capital of France", "", "tell me a joke"} {
		res := r.Route(text)
		if res.Executed || res.ShouldExit {
			t.Errorf("Route(%q) = %+v, want unmatched", text, res)
		}
	}
	if len(opened) != 0 || notes != 0 {
		t.Fatalf("side effects fired: opened=%v notes=%d", opened, notes)
	}
}

func TestRouteBrowserFailureStillResponds(t *testing.T) {
	r := New(WithOpenURL(func(string) error {
		return errors.New("no display")
	}))
	res := r.Route("open google")
	if !res.Executed || res.Response != "Opening Google." {
		t.Fatalf("Route = %+v", res)
	}
}
