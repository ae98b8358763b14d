package trace

import (
	"fmt"
	"log"
	"os"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching.
func RunMigrateCommand(args []string, dbPath, migrationsDir string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	action := args[0]

	// Open the database without running schema initialization; the
	// migrations manage the schema.
	store, err := OpenStore(dbPath)
	if err != nil {
		log.Fatalf("Failed to open trace database: %v", err)
	}
	defer store.Close()

	switch action {
	case "up":
		log.Printf("Running migrations...")
		if err := store.MigrateUp(migrationsDir); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("✓ All migrations applied successfully")
		printVersion(store, migrationsDir)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := store.MigrateDown(migrationsDir); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("✓ Migration rolled back successfully")
		printVersion(store, migrationsDir)

	case "version":
		version, dirty, err := store.MigrateVersion(migrationsDir)
		if err != nil {
			log.Fatalf("Failed to get migration version: %v", err)
		}
		latest, err := GetLatestMigrationVersion(migrationsDir)
		if err != nil {
			log.Fatalf("Failed to get latest migration version: %v", err)
		}
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Latest available: %d\n", latest)
		fmt.Printf("Dirty: %v\n", dirty)
		if dirty {
			fmt.Println("\nWARNING: the database is in a dirty state. A migration")
			fmt.Println("failed mid-execution; inspect the database, fix any issues,")
			fmt.Println("then run: imxctl migrate force <version>")
		}

	case "to":
		if len(args) < 2 {
			log.Fatal("Usage: imxctl migrate to <version_number>")
		}
		var target uint
		if _, err := fmt.Sscanf(args[1], "%d", &target); err != nil {
			log.Fatalf("Invalid version number: %s", args[1])
		}
		log.Printf("Migrating to version %d...", target)
		if err := store.MigrateTo(migrationsDir, target); err != nil {
			log.Fatalf("Migration to version %d failed: %v", target, err)
		}
		log.Printf("✓ Migrated to version %d successfully", target)

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: imxctl migrate force <version_number>")
		}
		var target int
		if _, err := fmt.Sscanf(args[1], "%d", &target); err != nil {
			log.Fatalf("Invalid version number: %s", args[1])
		}
		if err := store.MigrateForce(migrationsDir, target); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		log.Printf("✓ Migration version forced to %d", target)

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

func printVersion(store *Store, migrationsDir string) {
	version, dirty, _ := store.MigrateVersion(migrationsDir)
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp() {
	fmt.Println("Trace Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: imxctl migrate <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Rollback one migration")
	fmt.Println("  version         Show current and latest migration versions")
	fmt.Println("  to <N>          Migrate up or down to version N")
	fmt.Println("  force <N>       Force migration version to N (recovery only)")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  imxctl migrate up")
	fmt.Println("  imxctl migrate version")
	fmt.Println("  imxctl migrate to 1")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -trace-db <path>    Path to the trace database (default: imx258_trace.db)")
}
