package vdf

import (
	"context"
	"testing"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/randbeacon/inter"
)

// blockingEngine evaluates only when released, or fails when cancelled.
type blockingEngine struct {
	Stub
	started chan inter.RoundID
	release chan struct{}
}

func (b *blockingEngine) Evaluate(ctx context.Context, x hash.Hash, ref inter.VDFRef) (inter.VDFProof, error) {
	b.started <- inter.RoundID(x[31])
	select {
	case <-b.release:
		return b.Stub.Evaluate(ctx, x, ref)
	case <-ctx.Done():
		return inter.VDFProof{}, ctx.Err()
	}
}

func job(round byte, ref inter.VDFRef) Job {
	return Job{Round: inter.RoundID(round), X: hash.BytesToHash([]byte{round}), Ref: ref}
}

func recv(t *testing.T, ch <-chan Result) Result {
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for prover result")
	}
	return Result{}
}

func TestWorker_ProducesInOrder(t *testing.T) {
	rules, ref := fakeRules(t)
	w := NewWorker(&Stub{Rules: rules}, DefaultWorkerConfig(), nil)
	results := make(chan Result, 8)
	sub := w.SubscribeResults(results)
	defer sub.Unsubscribe()

	for r := byte(1); r <= 3; r++ {
		require.NoError(t, w.Enqueue(job(r, ref)))
	}
	w.Start()
	defer w.Stop()

	for r := byte(1); r <= 3; r++ {
		res := recv(t, results)
		require.NoError(t, res.Err)
		require.Equal(t, inter.RoundID(r), res.Round)
		require.Equal(t, hash.BytesToHash([]byte{r}), res.Proof.X)
	}

	ready := w.PopReady(2)
	require.Len(t, ready, 2)
	require.Equal(t, inter.RoundID(1), ready[0].Round)
	require.Len(t, w.PopReady(0), 1)
	require.Empty(t, w.PopReady(0))
}

func TestWorker_DedupeQueueFullAndCancel(t *testing.T) {
	rules, ref := fakeRules(t)
	eng := &blockingEngine{Stub: Stub{Rules: rules}, started: make(chan inter.RoundID, 4), release: make(chan struct{})}
	w := NewWorker(eng, WorkerConfig{MaxPending: 2, ReadyCap: 4}, nil)
	results := make(chan Result, 8)
	sub := w.SubscribeResults(results)
	defer sub.Unsubscribe()
	w.Start()
	defer w.Stop()

	require.NoError(t, w.Enqueue(job(1, ref)))
	require.Equal(t, inter.RoundID(1), <-eng.started)

	require.NoError(t, w.Enqueue(job(1, ref)), "running round is ignored")
	require.NoError(t, w.Enqueue(job(2, ref)))
	require.NoError(t, w.Enqueue(job(2, ref)), "queued round is ignored")
	require.NoError(t, w.Enqueue(job(3, ref)))
	require.Equal(t, ErrQueueFull, w.Enqueue(job(4, ref)))
	require.Equal(t, 2, w.Pending())

	w.Cancel(2)
	require.Equal(t, 1, w.Pending())

	// abort the running job past its deadline
	w.Cancel(1)
	res := recv(t, results)
	require.Equal(t, inter.RoundID(1), res.Round)
	require.Equal(t, context.Canceled, res.Err)

	require.Equal(t, inter.RoundID(3), <-eng.started)
	close(eng.release)
	res = recv(t, results)
	require.Equal(t, inter.RoundID(3), res.Round)
	require.NoError(t, res.Err)
}

func TestWorker_ReadyDropsOldest(t *testing.T) {
	rules, ref := fakeRules(t)
	w := NewWorker(&Stub{Rules: rules}, WorkerConfig{MaxPending: 8, ReadyCap: 2}, nil)
	results := make(chan Result, 8)
	sub := w.SubscribeResults(results)
	defer sub.Unsubscribe()
	w.Start()

	for r := byte(1); r <= 4; r++ {
		require.NoError(t, w.Enqueue(job(r, ref)))
	}
	for i := 0; i < 4; i++ {
		recv(t, results)
	}
	w.Stop()

	ready := w.PopReady(10)
	require.Len(t, ready, 2)
	require.Equal(t, inter.RoundID(3), ready[0].Round)
	require.Equal(t, inter.RoundID(4), ready[1].Round)

	require.Equal(t, ErrWorkerStopped, w.Enqueue(job(5, ref)))
	w.Stop()
}

func TestWorker_ChangedInputIsRequeued(t *testing.T) {
	rules, ref := fakeRules(t)
	eng := &blockingEngine{Stub: Stub{Rules: rules}, started: make(chan inter.RoundID, 4), release: make(chan struct{})}
	w := NewWorker(eng, DefaultWorkerConfig(), nil)
	results := make(chan Result, 8)
	sub := w.SubscribeResults(results)
	defer sub.Unsubscribe()
	w.Start()
	defer w.Stop()

	require.NoError(t, w.Enqueue(job(1, ref)))
	require.Equal(t, inter.RoundID(1), <-eng.started)

	// the checkpoint under round 1 changed: abort and prove the new input
	changed := Job{Round: 1, X: hash.BytesToHash([]byte{0xee, 1}), Ref: ref}
	w.Cancel(1)
	require.NoError(t, w.Enqueue(changed))

	res := recv(t, results)
	require.Equal(t, context.Canceled, res.Err)

	<-eng.started
	close(eng.release)
	res = recv(t, results)
	require.NoError(t, res.Err)
	require.Equal(t, changed.X, res.Proof.X)
}
