package logging

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// #region log-cycle
// LogCycle writes an audit entry to the audit_log table.
func LogCycle(db *sql.DB, entry AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO audit_log (cycle_id, plan_id, strategy, approved, fallback, adjusted_score, verdicts_json, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CycleID,
		entry.PlanID,
		entry.Strategy,
		boolInt(entry.Approved),
		boolInt(entry.Fallback),
		entry.AdjustedScore,
		nullIfEmpty(entry.VerdictsJSON),
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log cycle: %w", err)
	}
	return nil
}
// #endregion log-cycle

// #region emit
// Emit writes the audit entry as one structured log line. Fallback cycles log at WARN.
func Emit(logger *zap.Logger, entry AuditEntry) {
	fields := []zap.Field{
		zap.String("cycle_id", entry.CycleID),
		zap.String("plan_id", entry.PlanID),
		zap.String("strategy", entry.Strategy),
		zap.Bool("approved", entry.Approved),
		zap.Bool("fallback", entry.Fallback),
		zap.Float64("adjusted_score", entry.AdjustedScore),
	}
	if entry.Fallback {
		logger.Warn("planning cycle fell back to unapproved plan", append(fields, zap.String("reason", entry.Reason))...)
		return
	}
	logger.Info("planning cycle", fields...)
}
// #endregion emit

// #region list
// ListCycles returns the newest audit entries, newest first.
func ListCycles(db *sql.DB, limit int) ([]AuditEntry, error) {
	rows, err := db.Query(
		`SELECT cycle_id, plan_id, strategy, approved, fallback, adjusted_score, verdicts_json, reason, created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var approved, fallback int
		var verdicts, reason sql.NullString
		var createdStr string
		if err := rows.Scan(&e.CycleID, &e.PlanID, &e.Strategy, &approved, &fallback,
			&e.AdjustedScore, &verdicts, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		e.Approved = approved == 1
		e.Fallback = fallback == 1
		e.VerdictsJSON = verdicts.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
// #endregion list

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
// #endregion helpers
