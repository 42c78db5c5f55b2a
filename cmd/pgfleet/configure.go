package main

import (
	"flag"
	"os"

	pgfleet "github.com/minhngo/pgfleet"
	"github.com/minhngo/pgfleet/internal/configure"
)

func runConfigure() error {
	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	configPath := fs.String("config", pgfleet.DefaultConfigPath, "Path to configuration file")
	fs.Parse(os.Args[2:])

	printBanner(os.Stderr, isTTY(os.Stderr.Fd()))
	return configure.Run(*configPath)
}
