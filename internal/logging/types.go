package logging

import "time"

// #region audit-entry
// AuditEntry is one planning cycle's audit row: what was picked and why.
type AuditEntry struct {
	CycleID       string
	PlanID        string
	Strategy      string
	Approved      bool
	Fallback      bool // no candidate was approved; top-ranked plan used anyway
	AdjustedScore float64
	VerdictsJSON  string // every candidate's verdict, rank order
	Reason        string
	CreatedAt     time.Time
}
// #endregion audit-entry
