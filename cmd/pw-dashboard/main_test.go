package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/pw-dashboard/internal/circle"
	"github.com/sweeney/pw-dashboard/internal/gpio"
	"github.com/sweeney/pw-dashboard/internal/logic"
	"github.com/sweeney/pw-dashboard/internal/metrics"
	"github.com/sweeney/pw-dashboard/internal/mqtt"
	"github.com/sweeney/pw-dashboard/internal/schedule"
	"github.com/sweeney/pw-dashboard/internal/status"
)

const (
	macLamp = "000D6F0000D3595D"
	macTV   = "000D6F0001A5A3B6"
	macPump = "000D6F0001A5A3B8"
)

// --- parseFlags tests ---

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.backendURL != "http://localhost:8000" {
		t.Errorf("backendURL: got %q, want %q", cfg.backendURL, "http://localhost:8000")
	}
	if cfg.httpAddr != ":8080" {
		t.Errorf("httpAddr: got %q, want %q", cfg.httpAddr, ":8080")
	}
	if cfg.prefix != mqtt.DefaultPrefix {
		t.Errorf("prefix: got %q, want %q", cfg.prefix, mqtt.DefaultPrefix)
	}
	if cfg.telemetry != viaSocket || cfg.commands != viaSocket {
		t.Errorf("transports: got %q/%q, want socket/socket", cfg.telemetry, cfg.commands)
	}
	if !cfg.wide {
		t.Error("wide should default to true")
	}
	if cfg.orientation() != schedule.Wide {
		t.Errorf("orientation: got %v, want %v", cfg.orientation(), schedule.Wide)
	}
	if len(cfg.buttons) != 0 {
		t.Errorf("expected no buttons, got %v", cfg.buttons)
	}
	if cfg.needsBroker() {
		t.Error("socket mode should not need a broker")
	}
	if !cfg.needsSocket() {
		t.Error("socket mode should need the socket")
	}
}

func TestParseFlagsFromEnv(t *testing.T) {
	t.Setenv("PW_BACKEND_URL", "http://pi.local:8000")
	t.Setenv("PW_TELEMETRY", "mqtt")
	t.Setenv("PW_COMMANDS", "mqtt")
	t.Setenv("PW_WIDE", "false")
	t.Setenv("PW_BUTTONS", "17=000D6F0000D3595D, 27=000D6F0001A5A3B6")

	cfg, err := parseFlags(nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.backendURL != "http://pi.local:8000" {
		t.Errorf("backendURL: got %q, want %q", cfg.backendURL, "http://pi.local:8000")
	}
	if cfg.orientation() != schedule.Tall {
		t.Errorf("orientation: got %v, want %v", cfg.orientation(), schedule.Tall)
	}
	if !cfg.needsBroker() {
		t.Error("mqtt mode should need a broker")
	}
	if cfg.needsSocket() {
		t.Error("mqtt mode should not need the socket")
	}
	if len(cfg.buttons) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(cfg.buttons))
	}
	if cfg.buttons[1].Pin != 27 || cfg.buttons[1].MAC != macTV {
		t.Errorf("button 1: got %+v", cfg.buttons[1])
	}
}

func TestParseFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PW_HTTP_ADDR", ":9000")

	cfg, err := parseFlags([]string{"-http", ":9100", "-commands", "http"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.httpAddr != ":9100" {
		t.Errorf("httpAddr: got %q, want %q", cfg.httpAddr, ":9100")
	}
	if cfg.commands != viaHTTP {
		t.Errorf("commands: got %q, want %q", cfg.commands, viaHTTP)
	}
}

func TestParseFlagsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown telemetry", []string{"-telemetry", "carrier-pigeon"}},
		{"unknown commands", []string{"-commands", "none"}},
		{"bad wide", []string{"-wide", "sideways"}},
		{"bad buttons", []string{"-buttons", "17"}},
		{"unknown flag", []string{"-frobnicate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args, zerolog.Nop()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// --- printCircles ---

type staticSource struct {
	static  circle.StaticDocument
	control circle.ControlDocument
}

func (s staticSource) StaticConfig(context.Context) (circle.StaticDocument, error) {
	return s.static, nil
}

func (s staticSource) ControlConfig(context.Context) (circle.ControlDocument, error) {
	return s.control, nil
}

func (s staticSource) SaveControlConfig(context.Context, circle.ControlDocument) error {
	return errors.New("read only")
}

func TestPrintCircles(t *testing.T) {
	src := staticSource{
		static: circle.StaticDocument{Static: []circle.Record{
			{"mac": macLamp, "name": "lamp", "location": "hall"},
			{"mac": macTV, "name": "tv", "location": "living"},
		}},
	}

	var out bytes.Buffer
	if err := printCircles(context.Background(), src, zerolog.Nop(), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], macLamp+" ") {
		t.Errorf("line 0: got %q, want prefix %q", lines[0], macLamp)
	}
	if !strings.HasPrefix(lines[1], macTV+" ") {
		t.Errorf("line 1: got %q, want prefix %q", lines[1], macTV)
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from runLoop's goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// repeat returns n copies of sample.
func repeat(sample []bool, n int) [][]bool {
	out := make([][]bool, n)
	for i := range out {
		out[i] = sample
	}
	return out
}

func concat(parts ...[][]bool) [][]bool {
	var out [][]bool
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// faultReader wraps a FakeReader and returns errors for a range of Read() calls.
type faultReader struct {
	inner      *gpio.FakeReader
	call       int
	faultStart int // first call index that returns error (inclusive)
	faultEnd   int // last call index that returns error (exclusive)
}

func (r *faultReader) Read() ([]bool, error) {
	i := r.call
	r.call++
	if i >= r.faultStart && i < r.faultEnd {
		return nil, errors.New("gpio fault")
	}
	return r.inner.Read()
}

func (r *faultReader) Close() error { return r.inner.Close() }

func testTracker() *status.Tracker {
	tracker := status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{})
	tracker.ReplaceCircles([]circle.Circle{
		{MAC: macLamp, Name: "lamp", RelayOn: "off"},
		{MAC: macTV, Name: "tv", RelayOn: "on"},
		{MAC: macPump, Name: "pump", RelayOn: "on", AlwaysOn: true},
	})
	return tracker
}

func testDeps(reader gpio.Reader, buttons []logic.Button, tracker *status.Tracker, cmds mqtt.Commander) loopDeps {
	return loopDeps{
		reader:   reader,
		buttons:  buttons,
		tracker:  tracker,
		commands: cmds,
		metrics:  metrics.Noop(),
		prefix:   mqtt.DefaultPrefix,
		debounce: 250 * time.Millisecond,
		now:      fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond),
		log:      zerolog.Nop(),
	}
}

// runRunLoop drives runLoop for nTicks and then cancels it, returning its
// error.
func runRunLoop(t *testing.T, d loopDeps, nTicks int) error {
	t.Helper()
	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(ctx, d, tick)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	cancel()

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return after cancel")
		return nil
	}
}

func TestRunLoopNoCommandsAtBaseline(t *testing.T) {
	buttons := []logic.Button{{Pin: 17, MAC: macLamp}, {Pin: 27, MAC: macTV}}
	// Held buttons at startup become the baseline and do not toggle.
	samples := repeat([]bool{true, false}, 4)
	cmds := mqtt.NewFakeCommander()

	err := runRunLoop(t, testDeps(gpio.NewFakeReader(samples), buttons, testTracker(), cmds), len(samples))
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if got := len(cmds.Sent()); got != 0 {
		t.Errorf("expected 0 commands, got %d", got)
	}
}

func TestRunLoopPressTogglesSwitch(t *testing.T) {
	buttons := []logic.Button{{Pin: 17, MAC: macLamp}, {Pin: 27, MAC: macTV}}
	samples := concat(
		repeat([]bool{false, false}, 4), // baseline
		repeat([]bool{true, false}, 4),  // lamp pressed
		repeat([]bool{false, false}, 4), // released
		repeat([]bool{false, true}, 4),  // tv pressed
	)
	cmds := mqtt.NewFakeCommander()

	err := runRunLoop(t, testDeps(gpio.NewFakeReader(samples), buttons, testTracker(), cmds), len(samples))
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	sent := cmds.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(sent))
	}

	// lamp was off, tv was on
	want := []struct{ mac, val string }{{macLamp, mqtt.ValOn}, {macTV, mqtt.ValOff}}
	for i, w := range want {
		if sent[i].Payload.MAC != w.mac {
			t.Errorf("command %d mac: got %q, want %q", i, sent[i].Payload.MAC, w.mac)
		}
		if sent[i].Payload.Val != w.val {
			t.Errorf("command %d val: got %q, want %q", i, sent[i].Payload.Val, w.val)
		}
		if sent[i].Payload.Cmd != mqtt.CmdSwitch {
			t.Errorf("command %d cmd: got %q, want %q", i, sent[i].Payload.Cmd, mqtt.CmdSwitch)
		}
		if wantTopic := mqtt.CommandTopic(mqtt.DefaultPrefix, mqtt.CmdSwitch, w.mac); sent[i].Topic != wantTopic {
			t.Errorf("command %d topic: got %q, want %q", i, sent[i].Topic, wantTopic)
		}
	}
}

func TestRunLoopBounceRejection(t *testing.T) {
	buttons := []logic.Button{{Pin: 17, MAC: macLamp}}
	samples := concat(
		repeat([]bool{false}, 4), // baseline
		[][]bool{{true}},         // 1x bounce
		repeat([]bool{false}, 4), // return to stable
	)
	cmds := mqtt.NewFakeCommander()

	err := runRunLoop(t, testDeps(gpio.NewFakeReader(samples), buttons, testTracker(), cmds), len(samples))
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if got := len(cmds.Sent()); got != 0 {
		t.Errorf("expected 0 commands (bounce rejected), got %d", got)
	}
}

func TestRunLoopIgnoresAlwaysOnAndUnknown(t *testing.T) {
	buttons := []logic.Button{{Pin: 17, MAC: macPump}, {Pin: 27, MAC: "000D6F00DEADBEEF"}}
	samples := concat(
		repeat([]bool{false, false}, 4),
		repeat([]bool{true, true}, 4),
	)
	cmds := mqtt.NewFakeCommander()

	err := runRunLoop(t, testDeps(gpio.NewFakeReader(samples), buttons, testTracker(), cmds), len(samples))
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if got := len(cmds.Sent()); got != 0 {
		t.Errorf("expected 0 commands, got %d", got)
	}
}

func TestRunLoopSendErrorRaisesAlert(t *testing.T) {
	buttons := []logic.Button{{Pin: 17, MAC: macLamp}}
	samples := concat(
		repeat([]bool{false}, 4),
		repeat([]bool{true}, 4),
		repeat([]bool{false}, 4),
		repeat([]bool{true}, 4),
	)
	cmds := mqtt.NewFakeCommander()
	cmds.SendError = errors.New("broker offline")
	tracker := testTracker()

	err := runRunLoop(t, testDeps(gpio.NewFakeReader(samples), buttons, tracker, cmds), len(samples))
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	a := tracker.Snapshot().Alert
	if a.Message != "failed to switch lamp" {
		t.Errorf("alert: got %q, want %q", a.Message, "failed to switch lamp")
	}
}

func TestRunLoopGPIOReadError(t *testing.T) {
	buttons := []logic.Button{{Pin: 17, MAC: macLamp}}
	inner := gpio.NewFakeReader(concat(
		repeat([]bool{false}, 4),
		repeat([]bool{true}, 4),
	))
	reader := &faultReader{
		inner:      inner,
		faultStart: 4, // calls 4,5 return error
		faultEnd:   6,
	}
	cmds := mqtt.NewFakeCommander()

	err := runRunLoop(t, testDeps(reader, buttons, testTracker(), cmds), 10)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	// The press is still detected once reads recover.
	if got := len(cmds.Sent()); got != 1 {
		t.Errorf("expected 1 command after GPIO errors, got %d", got)
	}
}

func TestRunLoopWithoutButtons(t *testing.T) {
	cmds := mqtt.NewFakeCommander()
	broker := mqtt.NewFakeCommander()
	broker.Connected = true
	tracker := testTracker()

	d := testDeps(nil, nil, tracker, cmds)
	d.mqttStatus = broker

	if err := runRunLoop(t, d, 3); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if !tracker.Snapshot().MQTTConnected {
		t.Error("expected tracker to report MQTT connected")
	}
	if got := len(cmds.Sent()); got != 0 {
		t.Errorf("expected 0 commands, got %d", got)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// With no buttons the detector baselines on the first sample, so the
	// heartbeat fires once the interval has elapsed.
	d := testDeps(nil, nil, testTracker(), mqtt.NewFakeCommander())
	d.now = fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5*time.Minute)
	d.heartbeat = 15 * time.Minute

	var buf bytes.Buffer
	d.log = zerolog.New(&buf)

	if err := runRunLoop(t, d, 4); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if got := strings.Count(buf.String(), `"message":"heartbeat"`); got != 1 {
		t.Errorf("expected 1 heartbeat log line, got %d:\n%s", got, buf.String())
	}
}
