package core

// outcome.go combines validation and commit findings into the final account
// of a batch. Counts are computed here and only here, after the commit
// coordinator has finished, so a row that validated but failed to persist
// is counted on the error side.

import (
	"fmt"
	"math"
	"sort"
)

// BuildOutcome reconciles the validation outcomes of a commit batch with
// what the coordinator persisted.
//
// rows holds every submitted row; the rows that failed validation
// contribute their findings under their real field names. ErrorCount counts
// rows, not findings.
func BuildOutcome(rows []RowOutcome, commit CommitResult) BatchOutcome {
	var findings []CommitFinding
	for _, row := range rows {
		if row.OK() {
			continue
		}
		for _, f := range row.Findings {
			findings = append(findings, CommitFinding{
				Row:     f.Row,
				Ref:     row.Normalized.Ref,
				Field:   f.Field,
				Code:    f.Code,
				Message: f.Message,
			})
		}
	}
	findings = append(findings, commit.Findings...)
	sortFindings(findings)

	failed := make(map[int]struct{}, len(findings))
	for _, f := range findings {
		failed[f.Row] = struct{}{}
	}

	created := commit.Created
	if created == nil {
		created = []CommittedRecord{}
	}
	if findings == nil {
		findings = []CommitFinding{}
	}

	return BatchOutcome{
		Total:        len(rows),
		SuccessCount: len(created),
		ErrorCount:   len(failed),
		SuccessRate:  SuccessRate(len(created), len(rows)),
		Created:      created,
		Errors:       findings,
	}
}

// BuildPreflight summarizes a validate-only run.
func BuildPreflight(validationID string, rows []RowOutcome) PreflightResult {
	errCount := 0
	for _, row := range rows {
		if !row.OK() {
			errCount++
		}
	}
	ok := len(rows) - errCount

	return PreflightResult{
		ValidationID: validationID,
		Total:        len(rows),
		SuccessCount: ok,
		ErrorCount:   errCount,
		SuccessRate:  SuccessRate(ok, len(rows)),
		Rows:         rows,
		Message:      fmt.Sprintf("%d records checked, %d errors", len(rows), errCount),
	}
}

// Message returns the human-readable summary for a commit outcome.
func (o BatchOutcome) Message() string {
	switch o.Class() {
	case OutcomeSuccess:
		return "all records registered"
	case OutcomePartial:
		return fmt.Sprintf("created %d, failed %d", o.SuccessCount, o.ErrorCount)
	default:
		return fmt.Sprintf("no records registered, %d failed", o.ErrorCount)
	}
}

// SuccessRate returns round(success/total*100), or 0 for an empty batch.
func SuccessRate(success, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(success) / float64(total) * 100))
}

// sortFindings orders findings by row; findings of the same row keep their
// relative order.
func sortFindings(findings []CommitFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Row < findings[j].Row
	})
}
