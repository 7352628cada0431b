package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/shopspring/decimal"

	"github.com/jordentan9538/loanledger/pkg/audit"
	"github.com/jordentan9538/loanledger/pkg/money"
	"github.com/jordentan9538/loanledger/pkg/store"
)

func main() {
	dbPath := flag.String("db", "loanledger.db", "Path to the SQLite database file")
	tolerance := flag.Float64("tolerance", money.DefaultAuditTolerance, "Allowed rounding difference when comparing balances")
	asJSON := flag.Bool("json", false, "Print the audit report as JSON")
	flag.Parse()

	storage, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer storage.Close()

	report, err := audit.Run(context.Background(), storage, audit.Config{
		Tolerance: decimal.NewFromFloat(*tolerance),
	})
	if err != nil {
		log.Fatalf("Audit failed: %v", err)
	}

	if *asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			log.Fatalf("Failed to encode report: %v", err)
		}
	} else {
		audit.WriteReport(os.Stdout, report)
	}
	if report.IssueCount > 0 {
		os.Exit(1)
	}
}
