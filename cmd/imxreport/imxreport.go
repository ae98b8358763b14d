// Command imxreport renders offline reports (write timeline, register
// activity, bus latency, exposure envelope) from a recorded trace database.
package main

import (
	"flag"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"github.com/davidplowman/imx258/internal/fsutil"
	"github.com/davidplowman/imx258/internal/report"
	"github.com/davidplowman/imx258/internal/trace"
)

func main() {
	var dbPath string
	var sessionID string
	var outDir string
	var list bool

	flag.StringVar(&dbPath, "db", "imx258_trace.db", "path to the trace database")
	flag.StringVar(&sessionID, "session", "", "trace session id (default: most recent)")
	flag.StringVar(&outDir, "out", "reports", "output directory for report files")
	flag.BoolVar(&list, "list", false, "list recorded sessions and exit")
	flag.Parse()

	store, err := trace.NewStore(dbPath)
	if err != nil {
		log.Fatalf("open trace database: %v", err)
	}
	defer store.Close()

	if list {
		sessions, err := store.Sessions()
		if err != nil {
			log.Fatalf("list sessions: %v", err)
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions recorded")
			return
		}
		fmt.Printf("%-36s  %-19s  %8s  %s\n", "id", "started", "ops", "label")
		for _, s := range sessions {
			fmt.Printf("%-36s  %-19s  %8d  %s\n", s.ID, s.StartedAt, s.Ops, s.Label)
		}
		return
	}

	if sessionID == "" {
		sessionID, err = store.LatestSession()
		if err != nil {
			log.Fatalf("pick session: %v", err)
		}
	}

	gen := report.NewGenerator(store, fsutil.OSFileSystem{}, outDir)
	paths, err := gen.GenerateAll(sessionID)
	if err != nil {
		log.Fatalf("generate reports: %v", err)
	}

	fmt.Printf("reports for session %s:\n", sessionID)
	for _, p := range paths {
		fmt.Printf("  wrote %s\n", p)
	}
}
