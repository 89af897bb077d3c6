package core

// normalize.go coerces raw cells into typed candidate values.
//
// Coercion never fails here. A value that is present but unparseable is kept
// with Valid=false, and the validator turns it into a finding alongside any
// business-rule violations for the same row.

import (
	"sort"
	"strings"
)

// Normalizer converts RawRows into NormalizedRows using the field catalog.
type Normalizer struct {
	fields map[string]FieldSpec

	// fileCells unwraps spreadsheet text formulas. Structured records are
	// only trimmed.
	fileCells bool

	// serialDates accepts spreadsheet date serial numbers in date columns.
	serialDates bool
}

// NewNormalizer returns a normalizer for rows from the given source.
func NewNormalizer(kind SourceKind) *Normalizer {
	fields := make(map[string]FieldSpec, len(recordFields))
	for _, f := range recordFields {
		fields[f.Name] = f
	}
	return &Normalizer{
		fields:      fields,
		fileCells:   kind != SourceStructured,
		serialDates: kind == SourceSpreadsheet,
	}
}

// Normalize coerces every catalog column of row. Unknown columns are listed
// in Unrecognized in sorted order.
func (n *Normalizer) Normalize(row RawRow) NormalizedRow {
	out := NormalizedRow{
		Ordinal: row.Ordinal,
		Ref:     row.Ref,
		Values:  make(map[string]FieldValue, len(row.Fields)),
	}

	for name, raw := range row.Fields {
		spec, ok := n.fields[name]
		if !ok {
			out.Unrecognized = append(out.Unrecognized, name)
			continue
		}
		out.Values[name] = n.coerce(spec, raw)
	}
	sort.Strings(out.Unrecognized)

	return out
}

// NormalizeAll normalizes rows in order.
func (n *Normalizer) NormalizeAll(rows []RawRow) []NormalizedRow {
	out := make([]NormalizedRow, len(rows))
	for i, row := range rows {
		out[i] = n.Normalize(row)
	}
	return out
}

func (n *Normalizer) coerce(spec FieldSpec, raw string) FieldValue {
	s := strings.TrimSpace(raw)
	if n.fileCells {
		s = CleanCell(raw)
	}
	v := FieldValue{Type: spec.Type, Raw: raw}
	if s == "" {
		return v
	}
	v.Present = true

	switch spec.Type {
	case FieldText:
		v.Text, v.Valid = s, true
	case FieldEnum:
		v.Text, v.Valid = NormalizeEnum(s), true
	case FieldNumeric:
		v.Number, v.Valid = ParseNumber(s)
		v.Text = s
	case FieldInteger:
		i, _, ok := ParseInteger(s)
		if ok {
			v.Int, v.Number, v.Valid = i, float64(i), true
		}
		v.Text = s
	case FieldBool:
		v.Bool, v.Valid = ParseBool(s)
		v.Text = strings.ToLower(s)
	case FieldDate:
		v.Date, v.Valid = ParseDate(s)
		if !v.Valid && n.serialDates {
			v.Date, v.Valid = ParseExcelSerialDate(s)
		}
		if v.Valid {
			v.Text = v.Date.Format(DateLayout)
		} else {
			v.Text = s
		}
	}

	return v
}

// Data returns the row's catalog values as display strings, keyed by field.
// Absent fields are omitted. Used for echoing rows back to the caller.
func (r NormalizedRow) Data() map[string]any {
	data := make(map[string]any, len(r.Values))
	for name, v := range r.Values {
		if !v.Present {
			continue
		}
		switch {
		case !v.Valid:
			data[name] = v.Text
		case v.Type == FieldNumeric:
			data[name] = v.Number
		case v.Type == FieldInteger:
			data[name] = v.Int
		case v.Type == FieldBool:
			data[name] = v.Bool
		default:
			data[name] = v.Text
		}
	}
	return data
}

// BuildRecord copies the business fields of a validated row into a
// ProjectRecord for ownerID. The row must have passed validation.
func BuildRecord(ownerID string, row NormalizedRow) ProjectRecord {
	rec := ProjectRecord{
		OwnerID:          ownerID,
		ProjectCode:      row.Value(FieldProjectCode).Text,
		ProjectName:      row.Value(FieldProjectName).Text,
		RoleTitle:        row.Value(FieldRoleTitle).Text,
		ClientName:       row.Value(FieldClientName).Text,
		StartDate:        row.Value(FieldStartDate).Date,
		ProjectStatus:    row.Value(FieldProjectStatus).Text,
		Description:      row.Value(FieldDescription).Text,
		Technologies:     row.Value(FieldTechnologies).Text,
		Responsibilities: row.Value(FieldResponsibilities).Text,
		Achievements:     row.Value(FieldAchievements).Text,
	}

	if v := row.Value(FieldEndDate); v.Valid {
		d := v.Date
		rec.EndDate = &d
	}
	if v := row.Value(FieldParticipationRate); v.Valid {
		f := v.Number
		rec.ParticipationRate = &f
	}
	if v := row.Value(FieldTeamSize); v.Valid {
		i := v.Int
		rec.TeamSize = &i
	}
	if v := row.Value(FieldEvaluationScore); v.Valid {
		f := v.Number
		rec.EvaluationScore = &f
	}
	if v := row.Value(FieldIsConfidential); v.Valid {
		rec.IsConfidential = v.Bool
	}

	return rec
}
