// cmd/preflight/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/hamed0406/uptimemon/internal/config"
	"github.com/hamed0406/uptimemon/internal/domain"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fail(".env: " + err.Error())
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		for _, e := range multierr.Errors(errors.Unwrap(err)) {
			fail(e.Error())
		}
		if errors.Unwrap(err) == nil {
			fail(err.Error())
		}
		os.Exit(1)
	}
	ok("config loaded (addr " + cfg.Server.Addr + ")")

	if len(cfg.Server.AdminAPIKeys) == 0 {
		warn("no admin API keys; admin routes are open to anyone who can reach the API.")
	}
	if len(cfg.Server.PublicAPIKeys) == 0 {
		warn("no public API keys; read routes are open.")
	}
	for _, k := range append(cfg.Server.AdminAPIKeys, cfg.Server.PublicAPIKeys...) {
		if len(k) < 16 {
			warn("an API key is shorter than 16 characters")
			break
		}
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		warn("storage driver is memory; status and history are lost on restart.")
	case config.DriverSQLite:
		ok("storage sqlite at " + cfg.Storage.SQLitePath)
	case config.DriverBolt:
		ok("storage bolt at " + cfg.Storage.BoltPath)
	case config.DriverPostgres:
		ok("storage postgres (DATABASE_URL present)")
	}

	if len(cfg.Server.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; every origin is allowed by CORS.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.Server.AllowedOrigins, ","))
	}

	if cfg.Redis.Addr == "" {
		ok("redis disabled; transitions are not published")
	} else {
		ok("redis events at " + cfg.Redis.Addr)
	}

	if cfg.SeedFile == "" {
		warn("no seed_file; monitors must be added through the API.")
	} else {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			for _, e := range multierr.Errors(err) {
				fail("seed: " + e.Error())
			}
		} else {
			checkSeed(seed, ok, warn)
		}
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}

func checkSeed(seed *config.Seed, ok, warn func(string)) {
	ok(fmt.Sprintf("seed: %d monitors, %d channels, %d maintenance windows",
		len(seed.Monitors), len(seed.Channels), len(seed.Maintenance)))

	known := map[domain.MonitorID]bool{}
	for _, m := range seed.Monitors {
		known[m.ID] = true
		if !m.Active {
			warn(fmt.Sprintf("monitor %q is inactive and will not be scheduled", m.ID))
		}
	}
	for _, w := range seed.Maintenance {
		for _, id := range w.MonitorIDs {
			if !known[id] {
				warn(fmt.Sprintf("maintenance window %q names unknown monitor %q", w.ID, id))
			}
		}
	}
	enabled := 0
	for _, c := range seed.Channels {
		if c.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		warn("no enabled notification channels; transitions are only logged.")
	}
}
