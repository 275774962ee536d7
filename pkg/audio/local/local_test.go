package local

import (
	"bytes"
	"testing"
	"time"
)

func TestQueue_ReadBlocksUntilPush(t *testing.T) {
	q := newQueue()

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 8)
		n, err := q.Read(buf)
		if err != nil {
			t.Errorf("Read() error = %v", err)
		}
		got <- buf[:n]
	}()

	select {
	case <-got:
		t.Fatal("Read returned before any audio was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.push([]byte{1, 2, 3, 4})

	select {
	case data := <-got:
		if !bytes.Equal(data, []byte{1, 2, 3, 4}) {
			t.Errorf("Read() = %v, want [1 2 3 4]", data)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not wake after push")
	}
}

func TestQueue_ServesSilenceAfterClose(t *testing.T) {
	q := newQueue()
	q.push([]byte{9, 9})
	q.close()

	buf := make([]byte, 4)
	n, err := q.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Read() n = %d, want 2 (remaining audio first)", n)
	}

	for i := range buf {
		buf[i] = 0xFF
	}
	n, err = q.Read(buf)
	if err != nil {
		t.Fatalf("Read() after close error = %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Read() after close n = %d, want %d", n, len(buf))
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("buf[%d] = %#x, want silence", i, b)
		}
	}
}

func TestQueue_FlushDropsQueuedAudio(t *testing.T) {
	q := newQueue()
	q.push([]byte{1, 2, 3, 4})
	q.flush()
	q.close()

	buf := make([]byte, 4)
	if _, err := q.Read(buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("buf[%d] = %#x after flush, want silence", i, b)
		}
	}
}

func TestQueue_PushAfterCloseIsIgnored(t *testing.T) {
	q := newQueue()
	q.close()
	q.push([]byte{1, 2})

	buf := make([]byte, 2)
	if _, err := q.Read(buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if buf[0] != 0 || buf[1] != 0 {
		t.Errorf("Read() = %v after close, want silence", buf)
	}
}

func TestMockSink_RecordsCalls(t *testing.T) {
	sink := &MockSink{}
	sink.Enqueue([]byte{1, 2})
	sink.Enqueue([]byte{3})
	sink.Flush()
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := sink.Enqueued(); len(got) != 2 {
		t.Fatalf("len(Enqueued()) = %d, want 2", len(got))
	}
	if got := sink.Played(); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("Played() = %v, want [1 2 3]", got)
	}
	if sink.Flushes() != 1 {
		t.Errorf("Flushes() = %d, want 1", sink.Flushes())
	}
	if sink.Closes() != 1 {
		t.Errorf("Closes() = %d, want 1", sink.Closes())
	}
}

func TestMockSink_EnqueueCopiesPayload(t *testing.T) {
	sink := &MockSink{}
	frame := []byte{1, 2}
	sink.Enqueue(frame)
	frame[0] = 9

	if sink.Enqueued()[0][0] != 1 {
		t.Error("Enqueue must copy the payload, not alias it")
	}
}

func TestMockSource_CloseIsIdempotent(t *testing.T) {
	src := NewMockSource(2)
	src.FrameChan <- []byte{1}

	if err := src.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if src.CallCountClose != 2 {
		t.Errorf("CallCountClose = %d, want 2", src.CallCountClose)
	}

	// A buffered frame still drains before the channel reports closure.
	if pcm, ok := <-src.Frames(); !ok || !bytes.Equal(pcm, []byte{1}) {
		t.Errorf("Frames() first receive = %v, %v; want [1], true", pcm, ok)
	}
	if _, ok := <-src.Frames(); ok {
		t.Error("Frames() still open after Close")
	}
}
