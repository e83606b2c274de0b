package mqtt

// pending is a serialized message waiting for the broker.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO holding messages while the broker is
// unreachable. When full, the oldest message is dropped.
// Not safe for concurrent use; the caller must synchronize.
type outbox struct {
	msgs    []pending
	next    int // write position
	count   int
	dropped int // dropped since last flush
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{msgs: make([]pending, capacity)}
}

// add stores msg and reports whether an older message was dropped to make room.
func (o *outbox) add(msg pending) bool {
	full := o.count == len(o.msgs)
	o.msgs[o.next] = msg
	o.next = (o.next + 1) % len(o.msgs)
	if full {
		o.dropped++
		return true
	}
	o.count++
	return false
}

// flush removes and returns all messages, oldest first, plus the number
// dropped since the previous flush.
func (o *outbox) flush() ([]pending, int) {
	dropped := o.dropped
	if o.count == 0 {
		o.dropped = 0
		return nil, dropped
	}

	out := make([]pending, o.count)
	start := (o.next - o.count + len(o.msgs)) % len(o.msgs)
	for i := range out {
		out[i] = o.msgs[(start+i)%len(o.msgs)]
	}

	o.next = 0
	o.count = 0
	o.dropped = 0
	return out, dropped
}

func (o *outbox) len() int {
	return o.count
}
