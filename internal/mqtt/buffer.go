package mqtt

// pendingCommand is a serialized command waiting for the broker.
type pendingCommand struct {
	topic   string
	payload []byte
}

// commandQueue holds commands while the broker is unreachable. Only the
// latest command per topic is kept, so a later request for the same circle
// and command replaces an earlier one and moves to the back. When full the
// oldest command is dropped.
// Not safe for concurrent use; callers synchronize.
type commandQueue struct {
	items    []pendingCommand
	capacity int
	overflow bool // a command was dropped since the last drain
}

func newCommandQueue(capacity int) *commandQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &commandQueue{capacity: capacity}
}

// push queues cmd. replaced reports whether it superseded a queued command
// on the same topic. firstDrop is true the first time a command is dropped
// since the last drain.
func (q *commandQueue) push(cmd pendingCommand) (replaced, firstDrop bool) {
	for i, it := range q.items {
		if it.topic == cmd.topic {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.items = append(q.items, cmd)
			return true, false
		}
	}

	if len(q.items) == q.capacity {
		firstDrop = !q.overflow
		q.overflow = true
		q.items = append(q.items[:0], q.items[1:]...)
	}
	q.items = append(q.items, cmd)
	return false, firstDrop
}

// drain returns the queued commands, oldest first, and empties the queue.
func (q *commandQueue) drain() []pendingCommand {
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	q.overflow = false
	return out
}

func (q *commandQueue) len() int {
	return len(q.items)
}
