package models

type SourceSystem string

const (
	SourceSystemIQB     SourceSystem = "Micropay_IQB"
	SourceSystemTanda   SourceSystem = "Tanda_Timesheet"
	SourceSystemJournal SourceSystem = "Micropay_Journal"
)

// AllocationSource is the authoritative origin for one employee's allocation
// in one pay period. Exactly one applies at a time; switching is a selection,
// never a merge.
type AllocationSourceTag string

const (
	AllocationSourceIQB      AllocationSourceTag = "iqb"
	AllocationSourceTanda    AllocationSourceTag = "tanda"
	AllocationSourceOverride AllocationSourceTag = "override"
)

func (s AllocationSourceTag) Valid() bool {
	switch s {
	case AllocationSourceIQB, AllocationSourceTanda, AllocationSourceOverride:
		return true
	}
	return false
}

type PayPeriodStatus string

const (
	PayPeriodStatusUploaded   PayPeriodStatus = "uploaded"
	PayPeriodStatusReconciled PayPeriodStatus = "reconciled"
	PayPeriodStatusAllocated  PayPeriodStatus = "allocated"
)

type ReconciliationRunStatus string

const (
	ReconciliationRunStatusRunning   ReconciliationRunStatus = "running"
	ReconciliationRunStatusCompleted ReconciliationRunStatus = "completed"
	ReconciliationRunStatusFailed    ReconciliationRunStatus = "failed"
)

// Reason codes for reconciliation exceptions.
type ExceptionReason string

const (
	ExceptionReasonAmountMismatch     ExceptionReason = "amount-mismatch"
	ExceptionReasonMissingInSource    ExceptionReason = "missing-in-source"
	ExceptionReasonUnmappedLocation   ExceptionReason = "unmapped-location"
	ExceptionReasonCostCenterVariance ExceptionReason = "cost-center-variance"
	ExceptionReasonIncompleteSources  ExceptionReason = "incomplete-sources"
)
