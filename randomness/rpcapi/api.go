// Package rpcapi exposes the beacon service under the "rand" JSON-RPC
// namespace.
package rpcapi

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/randomness/beacon"
	"github.com/rony4d/randbeacon/randomness/beaconchain"
)

// Namespace is the JSON-RPC namespace of the API.
const Namespace = "rand"

// MaxHistory caps a single getHistory page.
const MaxHistory = 256

// PublicBeaconAPI provides read access to the beacon and accepts
// submissions from participants and external provers.
type PublicBeaconAPI struct {
	svc *beacon.Service
}

func NewPublicBeaconAPI(svc *beacon.Service) *PublicBeaconAPI {
	return &PublicBeaconAPI{svc: svc}
}

// APIs returns the descriptors to register on an rpc.Server.
func APIs(svc *beacon.Service) []rpc.API {
	return []rpc.API{{
		Namespace: Namespace,
		Version:   "1.0",
		Service:   NewPublicBeaconAPI(svc),
		Public:    true,
	}}
}

// NewServer returns an rpc.Server with the beacon API registered.
func NewServer(svc *beacon.Service) (*rpc.Server, error) {
	srv := rpc.NewServer()
	for _, api := range APIs(svc) {
		if err := srv.RegisterName(api.Namespace, api.Service); err != nil {
			return nil, fmt.Errorf("register %s api: %w", api.Namespace, err)
		}
	}
	return srv, nil
}

// RPCBeacon is the JSON form of a checkpoint.
type RPCBeacon struct {
	Round      hexutil.Uint64 `json:"round"`
	B          common.Hash    `json:"b"`
	V          common.Hash    `json:"v"`
	X          common.Hash    `json:"x"`
	Height     hexutil.Uint64 `json:"height"`
	HeaderHash common.Hash    `json:"headerHash"`
}

func rpcBeacon(rec inter.BeaconRecord) *RPCBeacon {
	return &RPCBeacon{
		Round:      hexutil.Uint64(rec.Round),
		B:          common.Hash(rec.B),
		V:          common.Hash(rec.V),
		X:          common.Hash(rec.X),
		Height:     hexutil.Uint64(rec.Height),
		HeaderHash: common.Hash(rec.HeaderHash),
	}
}

// RPCEntry is one element of the checkpoint log.
type RPCEntry struct {
	Kind   string     `json:"kind"`
	Record *RPCBeacon `json:"record"`
}

func rpcEntry(kind beaconchain.EntryKind, rec inter.BeaconRecord) *RPCEntry {
	name := "finalize"
	if kind == beaconchain.KindInvalidate {
		name = "invalidate"
	}
	return &RPCEntry{Kind: name, Record: rpcBeacon(rec)}
}

// RPCStatus mirrors beacon.Status.
type RPCStatus struct {
	Height        hexutil.Uint64 `json:"height"`
	Round         hexutil.Uint64 `json:"round"`
	Phase         string         `json:"phase"`
	Latest        *RPCBeacon     `json:"latest"`
	ParamsID      hexutil.Uint64 `json:"paramsId"`
	Iterations    hexutil.Uint64 `json:"iterations"`
	ProverPending int            `json:"proverPending"`
	Commits       int            `json:"commits"`
	Reveals       int            `json:"reveals"`
}

// RPCRandMeta is the JSON form of a header-committed round leaf.
type RPCRandMeta struct {
	Round      hexutil.Uint64 `json:"round"`
	Aggregate  common.Hash    `json:"aggregate"`
	ParamsID   hexutil.Uint64 `json:"paramsId"`
	Iterations hexutil.Uint64 `json:"iterations"`
	Leaf       common.Hash    `json:"leaf"`
}

// GetBeacon returns the checkpoint of round, or the latest one when round
// is omitted.
func (api *PublicBeaconAPI) GetBeacon(round *hexutil.Uint64) (*RPCBeacon, error) {
	var want *uint64
	if round != nil {
		r := uint64(*round)
		want = &r
	}
	if _, err := api.svc.RandBeacon(want); err != nil {
		return nil, err
	}
	if want == nil {
		return rpcBeacon(api.svc.Chain().Latest()), nil
	}
	rec, ok := api.svc.Chain().Checkpoint(inter.RoundID(*want))
	if !ok {
		return nil, fmt.Errorf("round %d is not finalized", *want)
	}
	return rpcBeacon(rec), nil
}

// GetRandMeta returns the leaf committed for a closed round.
func (api *PublicBeaconAPI) GetRandMeta(round hexutil.Uint64) (*RPCRandMeta, error) {
	meta, ok := api.svc.RandMeta(inter.RoundID(round))
	if !ok {
		return nil, fmt.Errorf("round %d is not closed", round)
	}
	return &RPCRandMeta{
		Round:      hexutil.Uint64(meta.Round),
		Aggregate:  common.Hash(meta.Aggr),
		ParamsID:   hexutil.Uint64(meta.VDF.ParamsID),
		Iterations: hexutil.Uint64(meta.VDF.Iterations),
		Leaf:       common.Hash(meta.LeafHash()),
	}, nil
}

func (api *PublicBeaconAPI) GetStatus() *RPCStatus {
	st := api.svc.Status()
	return &RPCStatus{
		Height:        hexutil.Uint64(st.Height),
		Round:         hexutil.Uint64(st.Round),
		Phase:         st.Phase.String(),
		Latest:        rpcBeacon(st.Latest),
		ParamsID:      hexutil.Uint64(st.Params.ParamsID),
		Iterations:    hexutil.Uint64(st.Params.Iterations),
		ProverPending: st.ProverPending,
		Commits:       st.Stats.Commits,
		Reveals:       st.Stats.Reveals,
	}
}

// GetLightProof returns the binary light proof of a finalized round.
func (api *PublicBeaconAPI) GetLightProof(round hexutil.Uint64) (hexutil.Bytes, error) {
	lp, err := api.svc.LightProof(inter.RoundID(round))
	if err != nil {
		return nil, err
	}
	return lp.MarshalBinary()
}

// GetHistory pages through the checkpoint log, superseded entries included.
func (api *PublicBeaconAPI) GetHistory(offset, limit hexutil.Uint64) []*RPCEntry {
	if limit == 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	entries := api.svc.Chain().History(int(offset), int(limit))
	res := make([]*RPCEntry, len(entries))
	for i, e := range entries {
		res[i] = rpcEntry(e.Kind, e.Record)
	}
	return res
}

// SubmitCommit records a commitment at the node's current height.
func (api *PublicBeaconAPI) SubmitCommit(round hexutil.Uint64, addr common.Address, c common.Hash) (bool, error) {
	if err := api.svc.SubmitCommit(inter.RoundID(round), addr, hash.Hash(c), api.svc.Height()); err != nil {
		return false, err
	}
	return true, nil
}

// SubmitReveal opens a commitment at the node's current height.
func (api *PublicBeaconAPI) SubmitReveal(round hexutil.Uint64, addr common.Address, salt, payload hexutil.Bytes) (bool, error) {
	if err := api.svc.SubmitReveal(inter.RoundID(round), addr, salt, payload, api.svc.Height()); err != nil {
		return false, err
	}
	return true, nil
}

// SubmitVdfProof offers an externally computed VDF proof. It returns false
// when the round already has a proof.
func (api *PublicBeaconAPI) SubmitVdfProof(round hexutil.Uint64, x, v common.Hash, pi hexutil.Bytes) (bool, error) {
	return api.svc.SubmitVDFProof(inter.RoundID(round), inter.VDFProof{
		X:  hash.Hash(x),
		V:  hash.Hash(v),
		Pi: pi,
	})
}
