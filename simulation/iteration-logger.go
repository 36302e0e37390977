package simulation

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"diffusion-sim/model"
)

// IterationLogger appends iterations to a msgpack stream from a background
// worker, in batches
type IterationLogger struct {
	Filename  string
	BatchSize int
	queue     chan *model.Iteration
	stopFlag  chan struct{}
	flushReq  chan chan struct{}
	wg        sync.WaitGroup
	lock      sync.Mutex
	file      *os.File
	log       *slog.Logger
	failed    error
}

// NewIterationLogger opens filename for appending; truncate starts a new stream
func NewIterationLogger(filename string, batchSize int, truncate bool, log *slog.Logger) (*IterationLogger, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(filename, flags, 0644)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	batchSize = max(batchSize, 1)

	logger := &IterationLogger{
		Filename:  filename,
		BatchSize: batchSize,
		queue:     make(chan *model.Iteration, batchSize*2),
		stopFlag:  make(chan struct{}),
		flushReq:  make(chan chan struct{}),
		file:      file,
		log:       log,
	}

	logger.wg.Add(1)
	go logger.worker()

	return logger, nil
}

// Observe queues the iteration
func (l *IterationLogger) Observe(it *model.Iteration) error {
	select {
	case l.queue <- it:
		return nil
	case <-l.stopFlag:
		return fmt.Errorf("iteration logger stopped")
	}
}

func (l *IterationLogger) worker() {
	defer l.wg.Done()

	batch := make([]*model.Iteration, 0, l.BatchSize)

	for {
		select {
		case it := <-l.queue:
			batch = append(batch, it)
			if len(batch) >= l.BatchSize {
				l.writeBatch(batch)
				batch = batch[:0]
			}

		case done := <-l.flushReq:
			batch = l.drain(batch)
			if len(batch) > 0 {
				l.writeBatch(batch)
				batch = batch[:0]
			}
			close(done)

		case <-l.stopFlag:
			batch = l.drain(batch)
			if len(batch) > 0 {
				l.writeBatch(batch)
			}
			return
		}
	}
}

// drain takes what is already queued
func (l *IterationLogger) drain(batch []*model.Iteration) []*model.Iteration {
	for {
		select {
		case it := <-l.queue:
			batch = append(batch, it)
		default:
			return batch
		}
	}
}

func (l *IterationLogger) writeBatch(batch []*model.Iteration) {
	l.lock.Lock()
	defer l.lock.Unlock()

	w := bufio.NewWriter(l.file)
	enc := msgpack.NewEncoder(w)
	for _, it := range batch {
		if err := enc.Encode(it); err != nil {
			l.log.Warn("failed to encode iteration", "iteration", it.Number, "err", err)
			l.failed = err
		}
	}
	if err := w.Flush(); err != nil {
		l.log.Warn("failed to write iterations", "file", l.Filename, "err", err)
		l.failed = err
		return
	}
	l.file.Sync()
}

// Flush blocks until every queued iteration is written
func (l *IterationLogger) Flush() error {
	done := make(chan struct{})
	select {
	case l.flushReq <- done:
	case <-l.stopFlag:
		return fmt.Errorf("iteration logger stopped")
	}
	<-done

	l.lock.Lock()
	defer l.lock.Unlock()
	return l.failed
}

// Stop flushes the queue and closes the file. It returns the last write error.
func (l *IterationLogger) Stop() error {
	close(l.stopFlag)
	l.wg.Wait()

	l.lock.Lock()
	defer l.lock.Unlock()
	if err := l.file.Close(); err != nil {
		return err
	}
	return l.failed
}
