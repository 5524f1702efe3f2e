package rpcapi

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rony4d/randbeacon/randomness/beacon"
	"github.com/rony4d/randbeacon/randomness/beaconchain"
	"github.com/rony4d/randbeacon/randomness/vdf"
)

// eventBuffer is the channel size between a feed and one RPC subscriber.
const eventBuffer = 16

// RPCProof is an accepted VDF proof.
type RPCProof struct {
	Round hexutil.Uint64 `json:"round"`
	X     common.Hash    `json:"x"`
	V     common.Hash    `json:"v"`
	Pi    hexutil.Bytes  `json:"pi"`
}

// RPCProverResult is one finished evaluation of the local prover.
type RPCProverResult struct {
	Round     hexutil.Uint64 `json:"round"`
	ElapsedMs hexutil.Uint64 `json:"elapsedMs"`
	V         *common.Hash   `json:"v,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// BeaconEvents streams finalizations and invalidations of checkpoints
// (rand_subscribe "beaconEvents").
func (api *PublicBeaconAPI) BeaconEvents(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()
	events := make(chan beaconchain.Event, eventBuffer)
	sub := api.svc.Chain().SubscribeEvents(events)

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-events:
				notifier.Notify(rpcSub.ID, rpcEntry(ev.Kind, ev.Record))
			case <-sub.Err():
				return
			case <-rpcSub.Err():
				return
			case <-notifier.Closed():
				return
			}
		}
	}()
	return rpcSub, nil
}

// VdfAccepted streams every VDF proof that becomes effective for a round
// (rand_subscribe "vdfAccepted").
func (api *PublicBeaconAPI) VdfAccepted(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()
	proofs := make(chan beacon.ProofEvent, eventBuffer)
	sub := api.svc.SubscribeProofs(proofs)

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-proofs:
				notifier.Notify(rpcSub.ID, &RPCProof{
					Round: hexutil.Uint64(ev.Round),
					X:     common.Hash(ev.Proof.X),
					V:     common.Hash(ev.Proof.V),
					Pi:    ev.Proof.Pi,
				})
			case <-sub.Err():
				return
			case <-rpcSub.Err():
				return
			case <-notifier.Closed():
				return
			}
		}
	}()
	return rpcSub, nil
}

// ProverResults streams the outcome of every local evaluation
// (rand_subscribe "proverResults").
func (api *PublicBeaconAPI) ProverResults(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()
	results := make(chan vdf.Result, eventBuffer)
	sub := api.svc.SubscribeProverResults(results)

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case res := <-results:
				notifier.Notify(rpcSub.ID, rpcProverResult(res))
			case <-sub.Err():
				return
			case <-rpcSub.Err():
				return
			case <-notifier.Closed():
				return
			}
		}
	}()
	return rpcSub, nil
}

func rpcProverResult(res vdf.Result) *RPCProverResult {
	out := &RPCProverResult{
		Round:     hexutil.Uint64(res.Round),
		ElapsedMs: hexutil.Uint64(res.Elapsed.Milliseconds()),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
		return out
	}
	v := common.Hash(res.Proof.V)
	out.V = &v
	return out
}
