package vdf

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/logger"
)

var (
	ErrQueueFull     = errors.New("prover queue full")
	ErrWorkerStopped = errors.New("prover stopped")
)

// Job asks the prover to evaluate the VDF for one round.
type Job struct {
	Round inter.RoundID
	X     hash.Hash
	Ref   inter.VDFRef
}

// Result is the outcome of a Job. Err is set when evaluation failed or was
// cancelled.
type Result struct {
	Round   inter.RoundID
	Ref     inter.VDFRef
	Proof   inter.VDFProof
	Elapsed time.Duration
	Err     error
}

type WorkerConfig struct {
	// MaxPending bounds queued jobs. Enqueue fails beyond it.
	MaxPending int
	// ReadyCap bounds finished results awaiting PopReady. The oldest is
	// dropped on overflow.
	ReadyCap int
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{MaxPending: 16, ReadyCap: 64}
}

// Worker evaluates jobs one at a time, oldest first, on a background
// goroutine. Evaluation is inherently sequential, so one goroutine is all a
// prover can use.
type Worker struct {
	engine Engine
	cfg    WorkerConfig
	log    logrus.FieldLogger

	mu      sync.Mutex
	pending []Job
	running Job
	cancel  context.CancelFunc
	ready   []Result
	stopped bool

	feed event.Feed
	wake chan struct{}
	quit chan struct{}
	wg   sync.WaitGroup
}

func NewWorker(engine Engine, cfg WorkerConfig, log logrus.FieldLogger) *Worker {
	if cfg.MaxPending <= 0 || cfg.ReadyCap <= 0 {
		cfg = DefaultWorkerConfig()
	}
	return &Worker{
		engine: engine,
		cfg:    cfg,
		log:    logger.Or(log).WithField("module", "prover"),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop cancels the running job and waits for the loop to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	close(w.quit)
	w.wg.Wait()
}

// Enqueue schedules a job. A job identical to the queued or running one of
// its round is ignored; a queued job with a different input is replaced.
func (w *Worker) Enqueue(job Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrWorkerStopped
	}
	if w.cancel != nil && w.running == job {
		return nil
	}
	for i, p := range w.pending {
		if p.Round == job.Round {
			w.pending[i] = job
			return nil
		}
	}
	if len(w.pending) >= w.cfg.MaxPending {
		return ErrQueueFull
	}
	w.pending = append(w.pending, job)
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Cancel drops a queued job or aborts the running one for round.
func (w *Worker) Cancel(round inter.RoundID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, p := range w.pending {
		if p.Round == round {
			w.pending = append(w.pending[:i], w.pending[i+1:]...)
			return
		}
	}
	if w.cancel != nil && w.running.Round == round {
		w.cancel()
	}
}

// PopReady removes and returns up to max finished results, oldest first.
func (w *Worker) PopReady(max int) []Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if max <= 0 || max > len(w.ready) {
		max = len(w.ready)
	}
	out := append([]Result(nil), w.ready[:max]...)
	w.ready = w.ready[max:]
	return out
}

// Pending returns the number of queued jobs, excluding the running one.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// SubscribeResults delivers every finished Result to ch.
func (w *Worker) SubscribeResults(ch chan<- Result) event.Subscription {
	return w.feed.Subscribe(ch)
}

func (w *Worker) next() (Job, context.Context, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 || w.stopped {
		return Job{}, nil, false
	}
	job := w.pending[0]
	w.pending = w.pending[1:]
	ctx, cancel := context.WithCancel(context.Background())
	w.running, w.cancel = job, cancel
	return job, ctx, true
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		job, ctx, ok := w.next()
		if !ok {
			select {
			case <-w.wake:
				continue
			case <-w.quit:
				return
			}
		}

		start := time.Now()
		proof, err := w.engine.Evaluate(ctx, job.X, job.Ref)
		res := Result{Round: job.Round, Ref: job.Ref, Proof: proof, Elapsed: time.Since(start), Err: err}

		w.mu.Lock()
		w.cancel()
		w.cancel = nil
		w.ready = append(w.ready, res)
		if len(w.ready) > w.cfg.ReadyCap {
			w.ready = w.ready[len(w.ready)-w.cfg.ReadyCap:]
		}
		w.mu.Unlock()

		fields := logrus.Fields{"round": job.Round, "elapsed": res.Elapsed}
		if err != nil {
			w.log.WithFields(fields).WithError(err).Warn("VDF evaluation abandoned")
		} else {
			w.log.WithFields(fields).Info("VDF proof ready")
		}
		w.feed.Send(res)
	}
}
