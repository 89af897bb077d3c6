package core

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// TemplateSheet is the sheet name used in the XLSX template.
const TemplateSheet = "project_history"

// templateRows are the example rows shipped in the template. Each must pass
// validation as written.
var templateRows = []map[string]string{
	{
		FieldProjectName:       "Billing platform migration",
		FieldProjectCode:       "PRJ-2024-001",
		FieldRoleTitle:         "Backend developer",
		FieldClientName:        "Acme Corp",
		FieldStartDate:         "2024-01-15",
		FieldEndDate:           "2024-09-30",
		FieldProjectStatus:     "completed",
		FieldParticipationRate: "80",
		FieldTeamSize:          "6",
		FieldEvaluationScore:   "4.5",
		FieldIsConfidential:    "false",
		FieldDescription:       "Moved invoicing off the legacy mainframe",
		FieldTechnologies:      "Go, PostgreSQL, Kafka",
		FieldResponsibilities:  "Payment service design, data migration",
		FieldAchievements:      "Cut invoice run time from 6h to 20m",
	},
	{
		FieldProjectName:       "Internal analytics portal",
		FieldProjectCode:       "PRJ-2025-014",
		FieldRoleTitle:         "Tech lead",
		FieldStartDate:         "2025-03-01",
		FieldProjectStatus:     "active",
		FieldParticipationRate: "100",
		FieldTeamSize:          "4",
		FieldIsConfidential:    "true",
	},
}

// TemplateHeaders returns the template column names in catalog order.
func TemplateHeaders() []string {
	headers := make([]string, len(recordFields))
	for i, f := range recordFields {
		headers[i] = f.Name
	}
	return headers
}

func templateRecords() [][]string {
	headers := TemplateHeaders()
	records := [][]string{headers}
	for _, row := range templateRows {
		record := make([]string, len(headers))
		for i, h := range headers {
			record[i] = row[h]
		}
		records = append(records, record)
	}
	return records
}

// WriteTemplateCSV writes the CSV template to w.
func WriteTemplateCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(templateRecords()); err != nil {
		return fmt.Errorf("write csv template: %w", err)
	}
	return nil
}

// TemplateXLSX returns the workbook template. All cells are strings so the
// values read back exactly as written.
func TemplateXLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), TemplateSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, record := range templateRecords() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, fmt.Errorf("cell name: %w", err)
		}
		row := make([]any, len(record))
		for j, v := range record {
			row[j] = v
		}
		if err := f.SetSheetRow(TemplateSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx template: %w", err)
	}
	return buf.Bytes(), nil
}
