// Command budgetctl inspects and administers the family budget offline:
// it reads the same config, state file and history database as the bot.
//
// The bot and budgetctl do not coordinate writes; run mutating commands
// (set-limit, rollover) while the bot is stopped.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	env := &environment{out: os.Stdout}
	flag.StringVar(&env.configPath, "config", defaultConfigPath(), "path to the YAML config (CONFIG_PATH)")

	for _, c := range commands(env) {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}
