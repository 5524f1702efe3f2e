package flags

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// RPCFlags covers the JSON-RPC HTTP and WebSocket endpoints. Both share
// one listener; WebSocket is served under /ws.
func RPCFlags() []cli.Flag {
	return []cli.Flag{
		cli.BoolFlag{
			Name:  "http",
			Usage: "Enable HTTP JSON-RPC server",
		},
		cli.StringFlag{
			Name:  "http.addr",
			Usage: "HTTP-RPC server listening interface",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  "http.port",
			Usage: "HTTP-RPC server listening port",
			Value: 18545,
		},
		cli.BoolFlag{
			Name:  "ws",
			Usage: "Enable WebSocket JSON-RPC with subscriptions at /ws",
		},
		cli.StringFlag{
			Name:  "ws.origins",
			Usage: "Comma separated origins accepted by the WebSocket endpoint",
			Value: "*",
		},
		cli.DurationFlag{
			Name:  "rpc.timeout",
			Usage: "HTTP read and write timeout",
			Value: 30 * time.Second,
		},
	}
}

// DevnetFlags drive the built-in block producer used on the fake network.
func DevnetFlags() []cli.Flag {
	return []cli.Flag{
		cli.BoolFlag{
			Name:  "devnet",
			Usage: "Produce blocks locally instead of following an external header source",
		},
		cli.DurationFlag{
			Name:  "devnet.period",
			Usage: "Interval between produced blocks",
			Value: time.Second,
		},
	}
}
