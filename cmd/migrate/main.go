package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/flicky/solar-storefront/internal/config"
	"github.com/flicky/solar-storefront/internal/migrations"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate <up|down [n]|version>\n")
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}
	dsn := cfg.DB.MigrateDSN()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = migrations.Up(dsn)
	case "down":
		n := 1
		if flag.NArg() > 1 {
			if n, err = strconv.Atoi(flag.Arg(1)); err != nil || n < 1 {
				log.Error("invalid step count", "value", flag.Arg(1))
				os.Exit(2)
			}
		}
		err = migrations.Steps(dsn, -n)
	case "version":
		version, dirty, ok, verr := migrations.Version(dsn)
		if verr == nil {
			if !ok {
				log.Info("no migrations applied")
			} else {
				log.Info("schema version", "version", version, "dirty", dirty)
			}
		}
		err = verr
	default:
		log.Error("unknown command", "command", cmd)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Error("migrate", "error", err)
		os.Exit(1)
	}
	log.Info("done", "command", flag.Arg(0))
}
