package api

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/dop251/goja"

	"calendar-countdown/countdown"
)

// scriptHarness stubs the browser globals countdown.js touches.
const scriptHarness = `
var nodes = [];
var fetched = [];
var responses = [];
var timeouts = [];

function makeNode(attrs) {
	var node = {
		attrs: attrs,
		heading: { textContent: "" },
		timer: { textContent: "" },
		getAttribute: function (name) { return name in this.attrs ? this.attrs[name] : null; },
		setAttribute: function (name, value) { this.attrs[name] = String(value); },
		querySelector: function (sel) {
			if (sel === "h3") { return this.heading; }
			if (sel === ".countdown-timer") { return this.timer; }
			return null;
		}
	};
	nodes.push(node);
	return node;
}

var window = {
	setInterval: function () { return 1; },
	clearInterval: function () {},
	setTimeout: function (fn, ms) { timeouts.push({ fn: fn, ms: ms }); return timeouts.length; }
};

var document = {
	readyState: "complete",
	addEventListener: function () {},
	querySelectorAll: function () { return nodes; },
	createElement: function () {
		return {
			value: "",
			set innerHTML(text) {
				this.value = text.replace(/&lt;/g, "<").replace(/&gt;/g, ">").replace(/&quot;/g, "\"").replace(/&#39;/g, "'").replace(/&amp;/g, "&");
			}
		};
	}
};

function fetch(url) {
	fetched.push(url);
	var next = responses.shift();
	if (!next || next.fail) {
		return Promise.reject(new Error("network down"));
	}
	return Promise.resolve({ ok: true, status: 200, json: function () { return next.body; } });
}
`

var countdownText = regexp.MustCompile(`^\d+d \d+h \d+m \d+s$`)

func runCountdownScript(t *testing.T, setup string) *goja.Runtime {
	t.Helper()
	vm := goja.New()
	if _, err := vm.RunString(scriptHarness); err != nil {
		t.Fatalf("harness: %v", err)
	}
	if _, err := vm.RunString(setup); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := vm.RunString(string(countdownScript)); err != nil {
		t.Fatalf("countdown.js: %v", err)
	}
	return vm
}

func evalJS(t *testing.T, vm *goja.Runtime, expr string) goja.Value {
	t.Helper()
	v, err := vm.RunString(expr)
	if err != nil {
		t.Fatalf("eval %s: %v", expr, err)
	}
	return v
}

func TestCountdownScriptFormatMatchesGo(t *testing.T) {
	vm := runCountdownScript(t, "")
	for _, d := range []time.Duration{
		0,
		45 * time.Second,
		59*time.Second + 999*time.Millisecond,
		time.Minute,
		90061 * time.Second,
		3*24*time.Hour + 59*time.Minute,
	} {
		got := evalJS(t, vm, fmt.Sprintf("window.calendarCountdown.formatRemaining(%d)", d.Milliseconds())).String()
		if want := countdown.FormatRemaining(d); got != want {
			t.Fatalf("%v: script renders %q, Go renders %q", d, got, want)
		}
	}
}

func TestCountdownScriptAdvancesThenExhausts(t *testing.T) {
	vm := runCountdownScript(t, `
		makeNode({"data-datetime": "2001-01-01T00:00:00", "data-event-id": "1", "data-nonce": "n1", "data-lookup-url": "/api/next-event"});
		responses.push({ body: { success: true, datetime: "2002-01-01T00:00:00", title: "Tom &amp; Jerry", id: 2, nonce: "n2" } });
		responses.push({ body: { success: false } });
	`)

	if got := evalJS(t, vm, "fetched.length").ToInteger(); got != 2 {
		t.Fatalf("expected two lookups, got %d", got)
	}
	if got := evalJS(t, vm, "fetched[0]").String(); got != "/api/next-event?exclude=1&nonce=n1" {
		t.Fatalf("unexpected first lookup %q", got)
	}
	if got := evalJS(t, vm, "fetched[1]").String(); got != "/api/next-event?exclude=2&nonce=n2" {
		t.Fatalf("second lookup must exclude the new event and carry the rotated nonce, got %q", got)
	}
	if got := evalJS(t, vm, "nodes[0].heading.textContent").String(); got != "Tom & Jerry" {
		t.Fatalf("title must be decoded, got %q", got)
	}
	if got := evalJS(t, vm, `nodes[0].getAttribute("data-event-id")`).String(); got != "2" {
		t.Fatalf("event id attribute not updated, got %q", got)
	}
	if got := evalJS(t, vm, "nodes[0].timer.textContent").String(); got != countdown.NoUpcomingMessage {
		t.Fatalf("expected %q, got %q", countdown.NoUpcomingMessage, got)
	}
}

func TestCountdownScriptRetriesWithSameNonce(t *testing.T) {
	vm := runCountdownScript(t, `
		makeNode({"data-datetime": "2001-01-01T00:00:00", "data-event-id": "4", "data-nonce": "n1"});
		responses.push({ fail: true });
		responses.push({ body: { success: true, datetime: "2999-01-01T00:00:00", title: "Later", id: 5, nonce: "n2" } });
	`)

	if got := evalJS(t, vm, "nodes[0].timer.textContent").String(); got != countdown.LoadErrorMessage {
		t.Fatalf("expected %q after a transport failure, got %q", countdown.LoadErrorMessage, got)
	}
	if got := evalJS(t, vm, "timeouts.length").ToInteger(); got != 1 {
		t.Fatalf("expected exactly one scheduled retry, got %d", got)
	}
	if got := evalJS(t, vm, "timeouts[0].ms").ToInteger(); got != countdown.RetryDelay.Milliseconds() {
		t.Fatalf("retry delay %dms", got)
	}

	evalJS(t, vm, "timeouts[0].fn()")
	if got := evalJS(t, vm, "fetched[1]").String(); got != evalJS(t, vm, "fetched[0]").String() {
		t.Fatalf("retry must repeat the lookup with the same nonce, got %q", got)
	}
	if got := evalJS(t, vm, "nodes[0].heading.textContent").String(); got != "Later" {
		t.Fatalf("retry result not applied, heading %q", got)
	}
	if got := evalJS(t, vm, "nodes[0].timer.textContent").String(); !countdownText.MatchString(got) {
		t.Fatalf("expected a running countdown, got %q", got)
	}
}
