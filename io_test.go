//go:build linux || darwin

package polyphony

import (
	"os"
	"testing"
	"time"
)

func TestIO_PipeWriterAndReaderExchangeBytesThroughWaitIO(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	// os.File.Fd puts the descriptor back into blocking mode on every call,
	// so take each fd once, before switching it to non-blocking.
	rfd, wfd := int(r.Fd()), int(w.Fd())
	if err := SetNonblock(rfd, true); err != nil {
		t.Fatal(err)
	}
	if err := SetNonblock(wfd, true); err != nil {
		t.Fatal(err)
	}

	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	want := "hello from a fiber"
	var got string
	sched.Run(func() {
		writer := Spin("writer", func() (any, error) {
			Sleep(5 * time.Millisecond)
			_, werr := Write(wfd, []byte(want))
			return nil, werr
		})
		reader := Spin("reader", func() (any, error) {
			buf := make([]byte, len(want))
			_, rerr := Read(rfd, buf)
			got = string(buf)
			return nil, rerr
		})
		_, _ = writer.Await()
		_, _ = reader.Await()
	})

	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIO_ReadLoopDrainsChunksUntilWriterClosesPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	rfd, wfd := int(r.Fd()), int(w.Fd())
	if err := SetNonblock(rfd, true); err != nil {
		t.Fatal(err)
	}
	if err := SetNonblock(wfd, true); err != nil {
		t.Fatal(err)
	}

	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	chunks := []string{"first chunk\n", "second chunk\n"}
	var received []byte
	var loopErr error
	sched.Run(func() {
		Spin("writer", func() (any, error) {
			for _, c := range chunks {
				if _, err := Write(wfd, []byte(c)); err != nil {
					return nil, err
				}
			}
			return nil, w.Close()
		})
		reader := Spin("reader", func() (any, error) {
			err := ReadLoop(FDReader{FD: rfd}, nil, func(chunk []byte) error {
				received = append(received, chunk...)
				return nil
			})
			return nil, err
		})
		_, loopErr = reader.Await()
	})

	if loopErr != nil {
		t.Fatalf("unexpected error: %v", loopErr)
	}
	want := chunks[0] + chunks[1]
	if string(received) != want {
		t.Fatalf("got %q, want %q", string(received), want)
	}
}

func TestIO_GetsReadsLineByLine(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	rfd, wfd := int(r.Fd()), int(w.Fd())
	if err := SetNonblock(rfd, true); err != nil {
		t.Fatal(err)
	}
	if err := SetNonblock(wfd, true); err != nil {
		t.Fatal(err)
	}

	sched, err := NewScheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Close()

	var lines []string
	var gotErr error
	sched.Run(func() {
		Spin("writer", func() (any, error) {
			if _, err := Write(wfd, []byte("alpha\nbeta\n")); err != nil {
				return nil, err
			}
			return nil, w.Close()
		})
		reader := Spin("reader", func() (any, error) {
			for {
				line, err := Gets(rfd)
				if err != nil {
					return nil, err
				}
				lines = append(lines, line)
			}
		})
		_, gotErr = reader.Await()
	})

	if len(lines) != 2 || lines[0] != "alpha" || lines[1] != "beta" {
		t.Fatalf("got %v, want [alpha beta]", lines)
	}
	// Gets returns io.EOF once the writer closes its end with nothing left
	// to read; the reader's own body returns that as its failure.
	if gotErr == nil {
		t.Fatal("expected the reader fiber to fail with io.EOF once the pipe closed")
	}
}
