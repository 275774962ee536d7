package local

import "sync"

// ─── MockSource ───────────────────────────────────────────────────────────────

// MockSource is an in-memory [Source] for tests and headless runs. Write
// frames to FrameChan to simulate capture; Close closes the channel.
type MockSource struct {
	// FrameChan carries the frames returned by Frames.
	FrameChan chan []byte

	mu sync.Mutex

	// CallCountClose records how many times Close was called.
	CallCountClose int

	closeOnce sync.Once
}

var _ Source = (*MockSource)(nil)

// NewMockSource creates a mock source with a buffered frame channel.
func NewMockSource(buffer int) *MockSource {
	return &MockSource{FrameChan: make(chan []byte, buffer)}
}

// Frames implements [Source]. Returns FrameChan.
func (s *MockSource) Frames() <-chan []byte { return s.FrameChan }

// Close implements [Source]. Closes FrameChan exactly once.
func (s *MockSource) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.FrameChan) })
	return nil
}

// ─── MockSink ─────────────────────────────────────────────────────────────────

// MockSink is an in-memory [Sink] that records every call. The accessors
// lock, so tests can poll them while the sink is in use.
type MockSink struct {
	mu       sync.Mutex
	enqueued [][]byte
	flushes  int
	closes   int

	// CloseError is returned by Close.
	CloseError error
}

var _ Sink = (*MockSink)(nil)

// Enqueue implements [Sink]. Records a copy of pcm.
func (s *MockSink) Enqueue(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.enqueued = append(s.enqueued, cp)
}

// Flush implements [Sink]. Records the call.
func (s *MockSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

// Close implements [Sink]. Records the call and returns CloseError.
func (s *MockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.CloseError
}

// Enqueued returns a snapshot of every Enqueue payload in call order.
func (s *MockSink) Enqueued() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.enqueued...)
}

// Played returns the concatenation of everything enqueued so far.
func (s *MockSink) Played() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, chunk := range s.enqueued {
		out = append(out, chunk...)
	}
	return out
}

// Flushes returns how many times Flush was called.
func (s *MockSink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Closes returns how many times Close was called.
func (s *MockSink) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
