// Package main provides the migration runner for the party roster schema.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/viper"

	"github.com/marchaven/roadband/internal/config"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	migrationsDir := flag.String("migrations", "migrations", "directory holding the SQL migration files")
	command := flag.String("command", "up", "up, down, to, or version")
	steps := flag.Int("steps", 0, "number of steps for up/down (0 = all)")
	target := flag.Uint("to", 0, "target schema version for the 'to' command")
	flag.Parse()

	// Only the database section matters here; the full config would demand
	// content directories a migration host has no reason to carry.
	dbCfg := config.Default().Database
	v := viper.New()
	v.SetConfigFile(*configPath)
	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("reading config: %v", err)
	}
	if sub := v.Sub("database"); sub != nil {
		if err := sub.Unmarshal(&dbCfg); err != nil {
			log.Fatalf("parsing database config: %v", err)
		}
	}

	m, err := migrate.New("file://"+*migrationsDir, dbCfg.DSN())
	if err != nil {
		log.Fatalf("creating migrator: %v", err)
	}
	defer m.Close()

	err = run(m, *command, *steps, *target)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}

	version, dirty, vErr := m.Version()
	if errors.Is(vErr, migrate.ErrNilVersion) {
		fmt.Fprintf(os.Stdout, "schema is empty [%s]\n", time.Since(start))
		return
	}
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintf(os.Stdout, "no changes (version=%d dirty=%v) [%s]\n", version, dirty, time.Since(start))
		return
	}
	fmt.Fprintf(os.Stdout, "%s done: version=%d dirty=%v [%s]\n", *command, version, dirty, time.Since(start))
}

// run dispatches one migrator command. "to" walks the schema in either
// direction until it reaches the target version.
func run(m *migrate.Migrate, command string, steps int, target uint) error {
	switch command {
	case "up":
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case "down":
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	case "to":
		if target == 0 {
			return fmt.Errorf("the 'to' command needs -to <version>")
		}
		return m.Migrate(target)
	case "version":
		return migrate.ErrNoChange
	default:
		return fmt.Errorf("unknown command %q: must be up, down, to, or version", command)
	}
}
