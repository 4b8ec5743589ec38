package models

// General-ledger accounts that labour cost posts against.
const (
	GLAccountSalaries         = "6345"
	GLAccountSuperannuation   = "6370"
	GLAccountAnnualLeave      = "6300"
	GLAccountSickLeave        = "6310"
	GLAccountLongServiceLeave = "6320"
)

var GLAccountNames = map[string]string{
	GLAccountSalaries:         "Salaries & Wages",
	GLAccountSuperannuation:   "Superannuation",
	GLAccountAnnualLeave:      "Annual Leave",
	GLAccountSickLeave:        "Sick Leave",
	GLAccountLongServiceLeave: "Long Service Leave",
}

var transactionTypeGLAccounts = map[string]string{
	"Hours By Rate":      GLAccountSalaries,
	"Auto Pay":           GLAccountSalaries,
	"Annual Leave":       GLAccountAnnualLeave,
	"Sick Leave":         GLAccountSickLeave,
	"Long Service Leave": GLAccountLongServiceLeave,
	"Super":              GLAccountSuperannuation,
}

// Payment-side rows that are not labour cost and never participate in
// reconciliation or allocation.
var excludedTransactionTypes = map[string]bool{
	"Tax":     true,
	"Net Pay": true,
}

// GLAccountForTransactionType maps a payroll transaction type to the GL
// account its cost posts against. Unrecognized cost types post to salaries.
func GLAccountForTransactionType(transactionType string) string {
	if gl, ok := transactionTypeGLAccounts[transactionType]; ok {
		return gl
	}
	return GLAccountSalaries
}

func IsCostTransactionType(transactionType string) bool {
	return !excludedTransactionTypes[transactionType]
}
