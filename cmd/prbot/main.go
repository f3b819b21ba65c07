package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/abduznik/AI-PR-Analyzer/cmd/prbot/commands"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{Out: os.Stdout}

	parser := kong.Parse(cli,
		kong.Name("prbot"),
		kong.Description("Relays AI reviews of new pull requests to Telegram and answers chat questions."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Get().String()},
		kong.Bind(global),
	)

	if err := parser.Run(cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
	}
}
