package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"bitbucket.org/finfocus/labourrecon_backend/config"
	"bitbucket.org/finfocus/labourrecon_backend/models"
	"bitbucket.org/finfocus/labourrecon_backend/utils"
	"github.com/shopspring/decimal"
)

// Loads one organization's reference vocabulary from CSV exports. Each table
// is replaced wholesale and the cached code sets are invalidated, so the next
// validation run sees the fresh vocabulary.

func main() {
	locations := flag.String("locations", "", "CSV of locations: code,name")
	departments := flag.String("departments", "", "CSV of departments: code,name")
	payComps := flag.String("pay-components", "", "CSV of pay components: code,description")
	employees := flag.String("employees", "", "CSV of employees: code,name,employment_type,is_salaried,auto_pay_amount")
	splits := flag.String("cost-center-splits", "", "CSV of cost-center splits: source_account,target_account,percentage (fraction, e.g. 0.075)")
	journalDescs := flag.String("journal-descriptions", "", "CSV of journal description mappings: description,gl_account,include_in_total_cost")
	flag.Parse()

	if *locations == "" && *departments == "" && *payComps == "" && *employees == "" && *splits == "" && *journalDescs == "" {
		fmt.Fprintln(os.Stderr, "nothing to load: pass at least one of -locations, -departments, -pay-components, -employees, -cost-center-splits, -journal-descriptions")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()
	config.ConnectRedis()

	if *locations != "" {
		rows, err := readCSV(*locations)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", *locations, err)
			os.Exit(1)
		}
		var recs []models.RefLocation
		for _, row := range rows {
			recs = append(recs, models.RefLocation{LocationCode: row[0], LocationName: field(row, 1)})
		}
		if err := models.ReplaceReferenceTable(db, recs); err != nil {
			fmt.Fprintf(os.Stderr, "load locations: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("loaded %d locations\n", len(recs))
	}

	if *departments != "" {
		rows, err := readCSV(*departments)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", *departments, err)
			os.Exit(1)
		}
		var recs []models.RefDepartment
		for _, row := range rows {
			recs = append(recs, models.RefDepartment{DepartmentCode: row[0], DepartmentName: field(row, 1)})
		}
		if err := models.ReplaceReferenceTable(db, recs); err != nil {
			fmt.Fprintf(os.Stderr, "load departments: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("loaded %d departments\n", len(recs))
	}

	if *payComps != "" {
		rows, err := readCSV(*payComps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", *payComps, err)
			os.Exit(1)
		}
		var recs []models.RefPayComponent
		for _, row := range rows {
			recs = append(recs, models.RefPayComponent{PayCompCode: row[0], Description: field(row, 1)})
		}
		if err := models.ReplaceReferenceTable(db, recs); err != nil {
			fmt.Fprintf(os.Stderr, "load pay components: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("loaded %d pay components\n", len(recs))
	}

	if *employees != "" {
		rows, err := readCSV(*employees)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", *employees, err)
			os.Exit(1)
		}
		var recs []models.RefEmployee
		for _, row := range rows {
			rec := models.RefEmployee{
				EmployeeCode:   row[0],
				FullName:       field(row, 1),
				EmploymentType: field(row, 2),
				IsSalaried:     utils.NewFalse(),
			}
			if strings.EqualFold(field(row, 3), "true") || field(row, 3) == "1" {
				rec.IsSalaried = utils.NewTrue()
			}
			if v := field(row, 4); v != "" {
				amount, err := decimal.NewFromString(v)
				if err != nil {
					fmt.Fprintf(os.Stderr, "employee %s: bad auto pay amount %q: %v\n", row[0], v, err)
					os.Exit(1)
				}
				rec.AutoPayAmount = amount
			}
			recs = append(recs, rec)
		}
		if err := models.ReplaceReferenceTable(db, recs); err != nil {
			fmt.Fprintf(os.Stderr, "load employees: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("loaded %d employees\n", len(recs))
	}

	if *splits != "" {
		rows, err := readCSV(*splits)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", *splits, err)
			os.Exit(1)
		}
		var recs []models.CostCenterSplit
		for _, row := range rows {
			if !models.IsSplitAccount(row[0]) {
				fmt.Fprintf(os.Stderr, "split source %q: must carry the SPL- prefix\n", row[0])
				os.Exit(1)
			}
			pct, err := decimal.NewFromString(field(row, 2))
			if err != nil {
				fmt.Fprintf(os.Stderr, "split %s: bad percentage %q: %v\n", row[0], field(row, 2), err)
				os.Exit(1)
			}
			recs = append(recs, models.CostCenterSplit{
				SourceAccount: row[0],
				TargetAccount: field(row, 1),
				Percentage:    pct,
				IsActive:      utils.NewTrue(),
			})
		}
		if err := models.ReplaceReferenceTable(db, recs); err != nil {
			fmt.Fprintf(os.Stderr, "load cost-center splits: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("loaded %d cost-center splits\n", len(recs))
	}

	if *journalDescs != "" {
		rows, err := readCSV(*journalDescs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", *journalDescs, err)
			os.Exit(1)
		}
		var recs []models.JournalDescriptionMapping
		for _, row := range rows {
			rec := models.JournalDescriptionMapping{
				Description:        row[0],
				GLAccount:          field(row, 1),
				IncludeInTotalCost: utils.NewFalse(),
				IsActive:           utils.NewTrue(),
			}
			include := field(row, 2)
			if strings.EqualFold(include, "y") || strings.EqualFold(include, "true") || include == "1" {
				rec.IncludeInTotalCost = utils.NewTrue()
			}
			recs = append(recs, rec)
		}
		if err := models.ReplaceReferenceTable(db, recs); err != nil {
			fmt.Fprintf(os.Stderr, "load journal description mappings: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("loaded %d journal description mappings\n", len(recs))
	}

	if err := models.InvalidateReferenceCaches(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to invalidate reference caches: %v\n", err)
	}
}

// readCSV returns data rows with whitespace-trimmed cells. A first row is
// treated as a header and skipped only when its first cell literally names a
// known header column.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}
		if len(rows) == 0 &&
			(strings.EqualFold(row[0], "code") ||
				strings.EqualFold(row[0], "source_account") ||
				strings.EqualFold(row[0], "description")) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
