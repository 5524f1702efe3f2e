package inter

import "github.com/Fantom-foundation/lachesis-base/hash"

// VDFParamsID names an immutable VDF parameter set. Rotation always
// introduces a new id.
type VDFParamsID uint32

// VDFRef is the part of the VDF parameters committed into headers.
type VDFRef struct {
	ParamsID   VDFParamsID
	Iterations uint64
}

// VDFProof is the output of one VDF evaluation. X is the input seed, V the
// 32-byte output digest and Pi the encoded group proof.
type VDFProof struct {
	X  hash.Hash
	V  hash.Hash
	Pi []byte
}
