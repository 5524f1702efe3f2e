package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NodeFlags holds knobs specific to the local node instance: which network
// it follows, its resource profile and whether it proves.
func NodeFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Usage: "Beacon network rules (fake|test|main)",
			Value: "fake",
		},
		cli.StringFlag{
			Name:  "preset",
			Usage: "Resource preset (default|lite|full|light)",
		},
		cli.BoolTFlag{
			Name:  "prover",
			Usage: "Run the local VDF prover (--prover=false to follow external proofs)",
		},
		cli.IntFlag{
			Name:  "vdf.cache",
			Usage: "Number of verified VDF proofs to remember",
			Value: 1024,
		},
		cli.IntFlag{
			Name:  "cache",
			Usage: "Megabytes of memory allocated to the database",
			Value: 256,
		},
		cli.IntFlag{
			Name:  "handles",
			Usage: "Number of open file handles for the database",
			Value: 256,
		},
		cli.StringFlag{
			Name:  "datadir.beacondata",
			Usage: "Override path to the beacon DB (defaults to <datadir>/beacondata)",
		},
	}
}
