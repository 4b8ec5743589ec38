package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/models"
)

// Regenerates the flat location-mapping workbook from the mapping table. The
// table is the source of truth; the workbook is a derived report for people
// who want the mappings in a spreadsheet.

func main() {
	out := flag.String("out", "location_mappings.xlsx", "Output workbook path")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	mappings, err := models.GetLocationMappings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list mappings: %v\n", err)
		os.Exit(1)
	}
	if err := models.WriteMappingWorkbook(mappings, *out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write workbook: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d mappings to %s\n", len(mappings), *out)
}
