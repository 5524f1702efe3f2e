package launcher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/randbeacon/flags"
	"github.com/rony4d/randbeacon/logger"
)

const Version = "0.1.0"

var app = newApp()

func newApp() *cli.App {
	app := flags.NewApp(Version, "commit-reveal and VDF randomness beacon")
	app.Flags = flags.AllFlags()
	app.Action = runNodeAction
	app.Commands = []cli.Command{
		{
			Name:     "dumpconfig",
			Usage:    "Show configuration values",
			Category: "MISCELLANEOUS COMMANDS",
			Action:   dumpConfigAction,
			Flags:    flags.AllFlags(),
		},
		{
			Name:     "rules",
			Usage:    "Print the rules of a network as JSON",
			Category: "MISCELLANEOUS COMMANDS",
			Action:   rulesAction,
			Flags:    flags.NodeFlags(),
		},
		vdfCommand,
	}
	return app
}

// Launch parses args and runs the selected command.
func Launch(args []string) error {
	return app.Run(args)
}

func runNodeAction(ctx *cli.Context) error {
	if args := ctx.Args(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging, ctx.App.ErrWriter)
	if err != nil {
		return err
	}
	n, err := newNode(cfg, log)
	if err != nil {
		return err
	}
	defer n.close()

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return n.run(sigctx)
}

func dumpConfigAction(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	return writeConfig(ctx.App.Writer, &cfg)
}

func rulesAction(ctx *cli.Context) error {
	rules, err := NetworkRules(ctx.String("network"))
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, rules.String())
	return nil
}
