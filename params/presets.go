package params

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/rony4d/randbeacon/inter"
)

// RSA2048 is the RSA Factoring Challenge modulus. Its factorisation is not
// publicly known, which makes Z_N^* a group of unknown order without a
// trusted setup ceremony.
const RSA2048 = "25195908475657893494027183240048398571429282126204032027777137836043662020707595556264018525880784406918290641249515082189298559149176184502808489120072844992687392807287776735971418347270261896375014971824691165077613379859095700097330459748808428401797429100642458691817195118746121515172654632282216869987549182422433637259085141865462043576798423387184774447920739934236584823824281198163815010674810451660377306056201619676256133844143603833904414952634432190114657544454178424020924616515723350778707749817125772467962926386356373289912154831438167899885040445364023527381951378636564391212010397122822120720357"

const (
	// RSA2048ParamsV1 is the production parameter set id.
	RSA2048ParamsV1 inter.VDFParamsID = 1
	// RSA2048FastParams is the same group with a short delay for devnets.
	RSA2048FastParams inter.VDFParamsID = 0xf001
)

func rsa2048() *big.Int {
	n, ok := new(big.Int).SetString(RSA2048, 10)
	if !ok {
		panic("params: bad RSA-2048 constant")
	}
	return n
}

func genesisBeacon(name string) hash.Hash {
	return inter.DomainHash("randbeacon/genesis/v1", []byte(name))
}

func MainNetRules() Rules {
	return Rules{
		Name:          "main",
		NetworkID:     MainNetworkID,
		GenesisBeacon: genesisBeacon("main"),
		Rounds:        DefaultRoundRules(),
		Ledger:        DefaultLedgerRules(),
		VDF: VDFRules{
			Active: RSA2048ParamsV1,
			Allowlist: []VDFParams{
				{ID: RSA2048ParamsV1, Modulus: rsa2048(), ModulusBits: 2048, Iterations: 1 << 22},
			},
		},
		Light: DefaultLightRules(),
	}
}

func TestNetRules() Rules {
	return Rules{
		Name:          "test",
		NetworkID:     TestNetworkID,
		GenesisBeacon: genesisBeacon("test"),
		Rounds:        DefaultRoundRules(),
		Ledger:        DefaultLedgerRules(),
		VDF: VDFRules{
			Active: RSA2048ParamsV1,
			Allowlist: []VDFParams{
				{ID: RSA2048ParamsV1, Modulus: rsa2048(), ModulusBits: 2048, Iterations: 1 << 20},
			},
		},
		Light: DefaultLightRules(),
	}
}

// FakeNetRules are used by tests and local devnets: short windows and a
// delay of only 1024 squarings.
func FakeNetRules() Rules {
	rounds := DefaultRoundRules()
	rounds.CommitWindowBlocks = 4
	rounds.RevealWindowBlocks = 4
	rounds.RevealGraceBlocks = 1
	rounds.VDFWindowBlocks = 8

	return Rules{
		Name:          "fake",
		NetworkID:     FakeNetworkID,
		GenesisBeacon: genesisBeacon("fake"),
		Rounds:        rounds,
		Ledger:        DefaultLedgerRules(),
		VDF: VDFRules{
			Active: RSA2048FastParams,
			Allowlist: []VDFParams{
				{ID: RSA2048FastParams, Modulus: rsa2048(), ModulusBits: 2048, Iterations: 1 << 10},
			},
		},
		Light: DefaultLightRules(),
	}
}

func DefaultRoundRules() RoundRules {
	return RoundRules{
		StartHeight:        1,
		CommitWindowBlocks: DefaultCommitWindowBlocks,
		RevealWindowBlocks: DefaultRevealWindowBlocks,
		RevealGraceBlocks:  DefaultRevealGraceBlocks,
		VDFWindowBlocks:    DefaultVDFWindowBlocks,
	}
}

func DefaultLedgerRules() LedgerRules {
	return LedgerRules{
		MaxCommitsPerRound: 1,
		MaxPayloadBytes:    1024,
		MaxSaltBytes:       64,
		RetentionRounds:    1024,
	}
}

func DefaultLightRules() LightRules {
	return LightRules{
		Version:    inter.LightProofVersion,
		MaxPending: 64,
	}
}
