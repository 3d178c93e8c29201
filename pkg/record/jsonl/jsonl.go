// Package jsonl appends stream records to a file, one JSON object per line.
// Writes are funneled through a single goroutine so completions from many
// concurrent streams never interleave bytes.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/meklund/restitch/pkg/record"
)

var ErrClosed = errors.New("jsonl sink closed")

func NewSink(ctx context.Context, out io.WriteCloser) record.Sink {
	sink := &Sink{
		cx:         ctx,
		ch:         make(chan *item, 64),
		bw:         bufio.NewWriterSize(out, 64*1024),
		out:        out,
		closed:     make(chan struct{}),
		flushEvery: 32,
	}
	sink.start()
	return sink
}

type Sink struct {
	cx         context.Context
	wg         sync.WaitGroup
	ch         chan *item
	bw         *bufio.Writer
	out        io.WriteCloser
	closed     chan struct{}
	once       sync.Once
	pending    int
	flushEvery int
}

func (s *Sink) start() {
	s.wg.Add(1)
	appendToFile := func(it *item) {
		if _, err := s.bw.Write(it.line); err != nil {
			it.report(s.cx, err)
			return
		}
		if err := s.bw.WriteByte('\n'); err != nil {
			it.report(s.cx, err)
			return
		}
		s.pending++
		if s.flushEvery > 0 && (s.pending >= s.flushEvery || len(s.ch) == 0) {
			if err := s.bw.Flush(); err != nil {
				it.report(s.cx, err)
				return
			}
			s.pending = 0
		}
		it.report(s.cx, nil)
	}
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.closed:
				for {
					select {
					case it := <-s.ch:
						if it != nil {
							appendToFile(it)
						}
					default:
						return
					}
				}
			case it := <-s.ch:
				if it != nil {
					appendToFile(it)
				}
			}
		}
	}()
}

func (s *Sink) Record(rec *record.StreamRecord) error {
	select {
	case <-s.cx.Done():
		return s.cx.Err()
	case <-s.closed:
		return ErrClosed
	default:
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	it := &item{line: line, callback: make(chan error, 1)}
	select {
	case <-s.cx.Done():
		return s.cx.Err()
	case <-s.closed:
		return ErrClosed
	case s.ch <- it:
	}
	select {
	case <-s.cx.Done():
		return s.cx.Err()
	case err := <-it.callback:
		return err
	}
}

func (s *Sink) Close() error {
	s.once.Do(func() {
		close(s.closed)
	})
	s.wg.Wait()
	if s.bw != nil {
		if err := s.bw.Flush(); err != nil {
			return err
		}
	}
	return s.out.Close()
}

type item struct {
	line     []byte
	callback chan error
}

func (i *item) report(ctx context.Context, err error) {
	select {
	case <-ctx.Done():
	case i.callback <- err:
	}
}
