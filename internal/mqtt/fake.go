package mqtt

import (
	"context"
	"sync"
)

// FakeCommander records sent commands for test assertions and lets tests
// deliver state payloads to the subscribed handler.
type FakeCommander struct {
	mu sync.Mutex

	// Commands contains all commands that were sent.
	Commands []Command

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SendError, if set, will be returned by SendCommand.
	SendError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	handler func(payload []byte)
}

// NewFakeCommander creates a FakeCommander for testing.
func NewFakeCommander() *FakeCommander {
	return &FakeCommander{}
}

// SendCommand records the command.
func (f *FakeCommander) SendCommand(_ context.Context, cmd Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}

	payload, err := FormatPayload(cmd)
	if err != nil {
		return err
	}
	f.Commands = append(f.Commands, cmd)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Sent returns a copy of the recorded commands.
func (f *FakeCommander) Sent() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.Commands...)
}

// Subscribe stores handler for Deliver.
func (f *FakeCommander) Subscribe(handler func(payload []byte)) error {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	return nil
}

// Deliver passes payload to the subscribed handler, if any.
func (f *FakeCommander) Deliver(payload []byte) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(payload)
	}
}

// Close marks the commander as closed.
func (f *FakeCommander) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake commander is "connected".
func (f *FakeCommander) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded commands.
func (f *FakeCommander) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = nil
	f.Payloads = nil
	f.Closed = false
	f.SendError = nil
	f.Connected = false
}
