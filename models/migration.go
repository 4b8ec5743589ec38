package models

import (
	"log"

	"bitbucket.org/finfocus/labourrecon_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&PayPeriod{},
		&Upload{}, &IQBDetail{}, &TandaShift{}, &JournalLine{},
		&LocationMapping{},
		&CostAllocationRule{}, &EmployeeAllocationSource{},
		&ValidationResult{},
		&ReconciliationRun{}, &ReconciliationException{}, &EmployeeReconciliation{},
		&JournalReconciliation{},
		&CostCenterSplit{}, &JournalDescriptionMapping{},
		&RefLocation{}, &RefDepartment{}, &RefPayComponent{}, &RefEmployee{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
