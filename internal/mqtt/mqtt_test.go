package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

const testMAC = "000D6F0001A5A3B6"

func TestCommandTopic(t *testing.T) {
	tests := []struct {
		prefix string
		cmd    string
		want   string
	}{
		{"plugwise2py", CmdSwitch, "plugwise2py/cmd/switch/" + testMAC},
		{"", CmdSchedule, "plugwise2py/cmd/schedule/" + testMAC},
		{"home/pw/", CmdSwitch, "home/pw/cmd/switch/" + testMAC},
	}

	for _, tt := range tests {
		got := CommandTopic(tt.prefix, tt.cmd, testMAC)
		if got != tt.want {
			t.Errorf("CommandTopic(%q, %q): got %q, want %q", tt.prefix, tt.cmd, got, tt.want)
		}
	}
}

func TestStateTopic(t *testing.T) {
	if got := StateTopic(""); got != "plugwise2py/state/#" {
		t.Errorf("got %q, want plugwise2py/state/#", got)
	}
	if got := StateTopic("x"); got != "x/state/#" {
		t.Errorf("got %q, want x/state/#", got)
	}
}

func TestNewCommandNormalizesValue(t *testing.T) {
	cmd, err := NewSwitchCommand("", testMAC, " ON ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Payload.Val != ValOn {
		t.Errorf("val: got %q, want %q", cmd.Payload.Val, ValOn)
	}
	if cmd.Payload.Cmd != CmdSwitch {
		t.Errorf("cmd: got %q, want %q", cmd.Payload.Cmd, CmdSwitch)
	}
	if cmd.Payload.MAC != testMAC {
		t.Errorf("mac: got %q, want %q", cmd.Payload.MAC, testMAC)
	}
}

func TestNewCommandRejectsValue(t *testing.T) {
	for _, val := range []string{"", "toggle", "1"} {
		_, err := NewScheduleCommand("", testMAC, val)
		if !errors.Is(err, ErrInvalidValue) {
			t.Errorf("val %q: expected ErrInvalidValue, got %v", val, err)
		}
	}
}

func TestFormatCommand(t *testing.T) {
	cmd, err := NewScheduleCommand("plugwise2py", testMAC, "off")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := FormatCommand(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed["topic"] != "plugwise2py/cmd/schedule/"+testMAC {
		t.Errorf("unexpected topic: %v", parsed["topic"])
	}
	payload, ok := parsed["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload is not an object: %v", parsed["payload"])
	}
	if payload["mac"] != testMAC || payload["cmd"] != "schedule" || payload["val"] != "off" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestFormatPayload(t *testing.T) {
	cmd, _ := NewSwitchCommand("", testMAC, "on")
	data, err := FormatPayload(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"mac":"` + testMAC + `","cmd":"switch","val":"on"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestFakeCommander(t *testing.T) {
	f := NewFakeCommander()
	cmd, _ := NewSwitchCommand("", testMAC, "on")

	if err := f.SendCommand(context.Background(), cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := f.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 command, got %d", len(sent))
	}
	if sent[0].Topic != cmd.Topic {
		t.Errorf("unexpected topic: %s", sent[0].Topic)
	}
	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}
}

func TestFakeCommanderError(t *testing.T) {
	f := NewFakeCommander()
	f.SendError = errors.New("simulated error")
	cmd, _ := NewSwitchCommand("", testMAC, "on")

	if err := f.SendCommand(context.Background(), cmd); err == nil {
		t.Error("expected error")
	}
	if len(f.Sent()) != 0 {
		t.Errorf("expected no commands recorded on error, got %d", len(f.Sent()))
	}
}

func TestFakeCommanderDeliver(t *testing.T) {
	f := NewFakeCommander()
	f.Deliver([]byte("dropped")) // no handler yet

	var got []string
	if err := f.Subscribe(func(p []byte) { got = append(got, string(p)) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.Deliver([]byte(`{"mac":"A"}`))

	if len(got) != 1 || got[0] != `{"mac":"A"}` {
		t.Errorf("unexpected deliveries: %v", got)
	}
}

func TestFakeCommanderCloseAndReset(t *testing.T) {
	f := NewFakeCommander()
	f.Connected = true
	if !f.IsConnected() {
		t.Error("expected connected")
	}

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed || f.IsConnected() || len(f.Sent()) != 0 {
		t.Error("expected clean state after Reset")
	}
}

func TestInterfaceCompliance(t *testing.T) {
	var _ Commander = (*FakeCommander)(nil)
	var _ Commander = (*RealCommander)(nil)
	var _ ConnectionStatus = (*FakeCommander)(nil)
	var _ ConnectionStatus = (*RealCommander)(nil)
}

func TestFallbackCommanderUsesPrimary(t *testing.T) {
	primary, secondary := NewFakeCommander(), NewFakeCommander()
	f := &FallbackCommander{Primary: primary, Secondary: secondary}

	cmd, _ := NewSwitchCommand("", "ABC", "on")
	if err := f.SendCommand(context.Background(), cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(primary.Sent()) != 1 || len(secondary.Sent()) != 0 {
		t.Errorf("got primary=%d secondary=%d, want 1 and 0", len(primary.Sent()), len(secondary.Sent()))
	}
}

func TestFallbackCommanderFallsBack(t *testing.T) {
	primary, secondary := NewFakeCommander(), NewFakeCommander()
	primary.SendError = errors.New("socket down")
	f := &FallbackCommander{Primary: primary, Secondary: secondary}

	cmd, _ := NewSwitchCommand("", "ABC", "off")
	if err := f.SendCommand(context.Background(), cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent := secondary.Sent(); len(sent) != 1 || sent[0].Payload.Val != "off" {
		t.Errorf("secondary got %+v", sent)
	}

	secondary.SendError = errors.New("backend down")
	err := f.SendCommand(context.Background(), cmd)
	if err == nil {
		t.Fatal("expected error when both transports fail")
	}
	if !errors.Is(err, primary.SendError) || !errors.Is(err, secondary.SendError) {
		t.Errorf("error should wrap both failures: %v", err)
	}
}
