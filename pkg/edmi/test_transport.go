package edmi

// Scripted transport for session and reader tests. Responses are either
// queued up front or computed per written frame; every write is recorded so
// tests can assert on the traffic.

type fakeTransport struct {
	writes [][]byte
	queue  [][]byte

	// respond, when set, is called with each written frame and its return
	// chunks are appended to the read queue. Wake-up bytes are not frames
	// and are passed through as-is.
	respond func(wire []byte) [][]byte

	writeErr error
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) enqueue(chunks ...[]byte) {
	t.queue = append(t.queue, chunks...)
}

func (t *fakeTransport) Write(p []byte) error {
	if t.writeErr != nil {
		return t.writeErr
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	t.writes = append(t.writes, cp)
	if t.respond != nil {
		t.queue = append(t.queue, t.respond(cp)...)
	}
	return nil
}

// Read hands out one queued chunk per call. An empty queue behaves like a
// serial read timeout.
func (t *fakeTransport) Read(p []byte) (int, error) {
	if len(t.queue) == 0 {
		return 0, ErrTimeout
	}
	chunk := t.queue[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		t.queue[0] = chunk[n:]
	} else {
		t.queue = t.queue[1:]
	}
	return n, nil
}

func (t *fakeTransport) Flush() error { return nil }

func (t *fakeTransport) Close() error {
	t.closed = true
	return nil
}

const testMeterSerial uint32 = 0x00000001

// respFrame builds a meter answer the way the device would: echoed command
// and extension followed by the answer body.
func respFrame(cmd Command, ext Extension, body []byte) []byte {
	return BuildFrame(testMeterSerial, cmd, ext, body)
}

// canFrame builds a rejected answer carrying a protocol error code.
func canFrame(code ErrorCode) []byte {
	return BuildFrame(testMeterSerial, Command(respCAN), Extension(code), nil)
}

// loginOKFrame is the 16-byte ACK answer to a login command.
func loginOKFrame() []byte {
	return BuildFrame(testMeterSerial, Command(respACK), ExtNone, nil)
}

// decodeWrittenFrame extracts and decodes the frame inside a written packet,
// skipping any wake-up preamble.
func decodeWrittenFrame(wire []byte) ([]byte, error) {
	raw, _, err := ExtractFrame(wire)
	if err != nil {
		return nil, err
	}
	return DecodeFrame(raw)
}

// corruptFrame flips one payload byte after stuffing so the CRC check fails.
func corruptFrame(frame []byte) []byte {
	out := make([]byte, len(frame))
	copy(out, frame)
	out[len(out)/2] ^= 0x01
	return out
}
