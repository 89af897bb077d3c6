package core

// rules.go holds the declarative catalog shared by preflight and commit.
//
// Two tables live here:
//   - recordFields declares every column the importer understands and its type.
//   - ruleCatalog declares every validation rule as data.
//
// Both modes validate through the same Validator built from ruleCatalog, so
// they cannot drift apart. To add a rule, add a row to ruleCatalog; to add a
// column, add a row to recordFields (and to ProjectRecord if it is persisted).

// Field names.
const (
	FieldProjectName       = "project_name"
	FieldProjectCode       = "project_code"
	FieldRoleTitle         = "role_title"
	FieldClientName        = "client_name"
	FieldStartDate         = "start_date"
	FieldEndDate           = "end_date"
	FieldProjectStatus     = "project_status"
	FieldParticipationRate = "participation_rate"
	FieldTeamSize          = "team_size"
	FieldEvaluationScore   = "evaluation_score"
	FieldIsConfidential    = "is_confidential"
	FieldDescription       = "description"
	FieldTechnologies      = "technologies"
	FieldResponsibilities  = "responsibilities"
	FieldAchievements      = "achievements"
)

// ProjectStatuses lists the allowed project_status values.
var ProjectStatuses = []string{"planning", "active", "completed", "on_hold", "cancelled"}

// FieldSpec declares one catalog column.
type FieldSpec struct {
	Name       string
	Type       FieldType
	EnumValues []string
}

// recordFields is in template column order.
var recordFields = []FieldSpec{
	{Name: FieldProjectName, Type: FieldText},
	{Name: FieldProjectCode, Type: FieldText},
	{Name: FieldRoleTitle, Type: FieldText},
	{Name: FieldClientName, Type: FieldText},
	{Name: FieldStartDate, Type: FieldDate},
	{Name: FieldEndDate, Type: FieldDate},
	{Name: FieldProjectStatus, Type: FieldEnum, EnumValues: ProjectStatuses},
	{Name: FieldParticipationRate, Type: FieldNumeric},
	{Name: FieldTeamSize, Type: FieldInteger},
	{Name: FieldEvaluationScore, Type: FieldNumeric},
	{Name: FieldIsConfidential, Type: FieldBool},
	{Name: FieldDescription, Type: FieldText},
	{Name: FieldTechnologies, Type: FieldText},
	{Name: FieldResponsibilities, Type: FieldText},
	{Name: FieldAchievements, Type: FieldText},
}

// Fields returns the catalog columns in template order.
func Fields() []FieldSpec {
	out := make([]FieldSpec, len(recordFields))
	copy(out, recordFields)
	return out
}

// LookupField returns the catalog entry for a column.
func LookupField(name string) (FieldSpec, bool) {
	for _, f := range recordFields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// RuleKind names a validation check.
type RuleKind string

const (
	RuleRequired  RuleKind = "required"   // value must be present and non-empty
	RuleDate      RuleKind = "date"       // present value must be a YYYY-MM-DD calendar date
	RuleNumber    RuleKind = "number"     // present value must be numeric
	RuleInteger   RuleKind = "integer"    // present value must be a whole number
	RuleBool      RuleKind = "bool"       // present value must be true/false
	RuleRange     RuleKind = "range"      // parsed number must fall within [Min, Max]
	RuleMinimum   RuleKind = "minimum"    // parsed number must be >= Min
	RuleOneOf     RuleKind = "one_of"     // value must be one of Values
	RuleMaxLength RuleKind = "max_length" // value must be at most Limit characters
)

// RuleParams carries the arguments of a rule. Unused fields are zero.
type RuleParams struct {
	Min    float64
	Max    float64
	Limit  int
	Values []string
}

// Rule is one row of the validation catalog.
type Rule struct {
	Field   string
	Kind    RuleKind
	Params  RuleParams
	Message string
	Code    string
}

// ruleCatalog is the complete rule set. Rules are independent and their
// order only fixes the order findings are reported in.
var ruleCatalog = []Rule{
	{Field: FieldProjectName, Kind: RuleRequired, Message: "required", Code: CodeRequired},
	{Field: FieldProjectCode, Kind: RuleRequired, Message: "required", Code: CodeRequired},
	{Field: FieldRoleTitle, Kind: RuleRequired, Message: "required", Code: CodeRequired},
	{Field: FieldStartDate, Kind: RuleRequired, Message: "required", Code: CodeRequired},
	{Field: FieldProjectStatus, Kind: RuleRequired, Message: "required", Code: CodeRequired},

	{Field: FieldProjectName, Kind: RuleMaxLength, Params: RuleParams{Limit: 200}, Message: "must be at most 200 characters", Code: CodeTooLong},
	{Field: FieldProjectCode, Kind: RuleMaxLength, Params: RuleParams{Limit: 50}, Message: "must be at most 50 characters", Code: CodeTooLong},

	{Field: FieldStartDate, Kind: RuleDate, Message: "must be a valid date in YYYY-MM-DD format", Code: CodeInvalidDate},
	{Field: FieldEndDate, Kind: RuleDate, Message: "must be a valid date in YYYY-MM-DD format", Code: CodeInvalidDate},

	{Field: FieldProjectStatus, Kind: RuleOneOf, Params: RuleParams{Values: ProjectStatuses}, Message: "must be one of: planning, active, completed, on_hold, cancelled", Code: CodeInvalidEnum},

	{Field: FieldParticipationRate, Kind: RuleNumber, Message: "must be a number", Code: CodeInvalidNum},
	{Field: FieldParticipationRate, Kind: RuleRange, Params: RuleParams{Min: 0, Max: 100}, Message: "must be between 0 and 100", Code: CodeOutOfRange},

	{Field: FieldTeamSize, Kind: RuleInteger, Message: "must be a whole number", Code: CodeNotInteger},
	{Field: FieldTeamSize, Kind: RuleMinimum, Params: RuleParams{Min: 1}, Message: "must be at least 1", Code: CodeOutOfRange},

	{Field: FieldEvaluationScore, Kind: RuleNumber, Message: "must be a number", Code: CodeInvalidNum},
	{Field: FieldEvaluationScore, Kind: RuleRange, Params: RuleParams{Min: 1, Max: 5}, Message: "must be between 1 and 5", Code: CodeOutOfRange},

	{Field: FieldIsConfidential, Kind: RuleBool, Message: "must be true or false", Code: CodeInvalidBool},
}

// Rules returns a copy of the rule catalog.
func Rules() []Rule {
	out := make([]Rule, len(ruleCatalog))
	copy(out, ruleCatalog)
	return out
}
