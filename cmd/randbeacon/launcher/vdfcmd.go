package launcher

import (
	"context"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/logger"
	"github.com/rony4d/randbeacon/randomness/vdf"
)

var (
	vdfInputFlag = cli.StringFlag{
		Name:  "input",
		Usage: "32-byte hex VDF input X",
	}
	vdfOutputFlag = cli.StringFlag{
		Name:  "output",
		Usage: "32-byte hex VDF output V",
	}
	vdfProofFlag = cli.StringFlag{
		Name:  "proof",
		Usage: "Hex encoded group proof",
	}
	vdfNetworkFlag = cli.StringFlag{
		Name:  "network",
		Usage: "Network whose active VDF parameters are used (fake|test|main)",
		Value: DefaultNetwork,
	}
)

var vdfCommand = cli.Command{
	Name:     "vdf",
	Usage:    "Evaluate or verify a VDF proof offline",
	Category: "MISCELLANEOUS COMMANDS",
	Subcommands: []cli.Command{
		{
			Name:   "eval",
			Usage:  "Run the delay function on an input",
			Action: vdfEval,
			Flags:  []cli.Flag{vdfNetworkFlag, vdfInputFlag},
		},
		{
			Name:   "verify",
			Usage:  "Check a proof against an input",
			Action: vdfVerify,
			Flags:  []cli.Flag{vdfNetworkFlag, vdfInputFlag, vdfOutputFlag, vdfProofFlag},
		},
	},
}

func vdfEngine(ctx *cli.Context) (*vdf.Wesolowski, inter.VDFRef, error) {
	rules, err := NetworkRules(ctx.String(vdfNetworkFlag.Name))
	if err != nil {
		return nil, inter.VDFRef{}, err
	}
	p, err := rules.VDF.ActiveParams()
	if err != nil {
		return nil, inter.VDFRef{}, err
	}
	engine, err := vdf.New(rules.VDF, 1, logger.Discard())
	if err != nil {
		return nil, inter.VDFRef{}, err
	}
	return engine, inter.VDFRef{ParamsID: p.ID, Iterations: p.Iterations}, nil
}

func hashFlag(ctx *cli.Context, name string) (hash.Hash, error) {
	raw, err := hexutil.Decode(ctx.String(name))
	if err != nil {
		return hash.Hash{}, fmt.Errorf("--%s: %w", name, err)
	}
	if len(raw) != len(hash.Hash{}) {
		return hash.Hash{}, fmt.Errorf("--%s: want %d bytes, got %d", name, len(hash.Hash{}), len(raw))
	}
	return hash.BytesToHash(raw), nil
}

func vdfEval(ctx *cli.Context) error {
	engine, ref, err := vdfEngine(ctx)
	if err != nil {
		return err
	}
	x, err := hashFlag(ctx, vdfInputFlag.Name)
	if err != nil {
		return err
	}
	proof, err := engine.Evaluate(context.Background(), x, ref)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "params: %d\niterations: %d\noutput: %s\nproof: %s\n",
		ref.ParamsID, ref.Iterations, hexutil.Encode(proof.V[:]), hexutil.Encode(proof.Pi))
	return nil
}

func vdfVerify(ctx *cli.Context) error {
	engine, ref, err := vdfEngine(ctx)
	if err != nil {
		return err
	}
	x, err := hashFlag(ctx, vdfInputFlag.Name)
	if err != nil {
		return err
	}
	v, err := hashFlag(ctx, vdfOutputFlag.Name)
	if err != nil {
		return err
	}
	pi, err := hexutil.Decode(ctx.String(vdfProofFlag.Name))
	if err != nil {
		return fmt.Errorf("--%s: %w", vdfProofFlag.Name, err)
	}
	if err := engine.Verify(inter.VDFProof{X: x, V: v, Pi: pi}, ref); err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, "proof valid")
	return nil
}
