package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter moves log writes off the calling goroutine. A single loop owns
// the sinks, so no lock guards them; a request with an ack channel acts as a
// flush barrier.
type asyncWriter struct {
	reqs  chan writeReq
	done  chan struct{}
	once  sync.Once
	sinks []*bufio.Writer

	errMu sync.Mutex
	err   error
}

type writeReq struct {
	line []byte
	ack  chan error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]*bufio.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, bufio.NewWriterSize(w, bufSize))
		}
	}
	aw := &asyncWriter{
		reqs:  make(chan writeReq, 256),
		done:  make(chan struct{}),
		sinks: sinks,
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for req := range w.reqs {
		if req.ack != nil {
			req.ack <- w.flushSinks()
			continue
		}
		if err := w.fanOut(req.line); err != nil {
			w.keepErr(err)
		}
	}
	w.keepErr(w.flushSinks())
}

// Write enqueues one line. It blocks when the queue is full so lines are
// never dropped.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	line := make([]byte, len(p))
	copy(line, p)
	select {
	case <-w.done:
		return errors.New("logger: writer closed")
	case w.reqs <- writeReq{line: line}:
		return nil
	}
}

// Flush blocks until everything queued before it has reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.Err(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	select {
	case <-w.done:
		return w.Err()
	case w.reqs <- writeReq{ack: ack}:
		return <-ack
	}
}

// Close drains the queue and reports the first write error seen.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.reqs) })
	<-w.done
	return w.Err()
}

func (w *asyncWriter) fanOut(line []byte) error {
	for _, sink := range w.sinks {
		if _, err := sink.Write(line); err != nil {
			return err
		}
		if err := sink.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushSinks() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *asyncWriter) keepErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
