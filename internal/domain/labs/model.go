package labs

import "fmt"

// Record is a flat set of extracted lab values keyed by field name. Values are
// numbers, strings or nil, exactly as they arrive from a decoded JSON object.
type Record map[string]any

// Priority ranks a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// MarshalText refuses to encode a priority outside the closed set.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority: %q", string(p))
	}
	return []byte(p), nil
}

// UnmarshalText parses a priority, rejecting unknown values.
func (p *Priority) UnmarshalText(text []byte) error {
	v := Priority(text)
	if !v.Valid() {
		return fmt.Errorf("invalid priority: %q", string(text))
	}
	*p = v
	return nil
}

// Recommendation is one finding produced by a rule. Values are copied out of
// the evaluator and never shared.
type Recommendation struct {
	Title    string   `json:"title" yaml:"title"`
	Reason   string   `json:"reason" yaml:"reason"`
	Priority Priority `json:"priority" yaml:"priority"`
}

// Sex values recognised by the sex-dependent reference ranges. Any other
// resolved value is kept in the summary but treated as unspecified.
const (
	SexMale   = "male"
	SexFemale = "female"
)

// Profile is the resolved, normalised view of a Record. It doubles as the
// summary section of an AnalysisResult, so field order matches the output.
type Profile struct {
	Sex              *string `json:"sex" yaml:"sex"`
	Age              int     `json:"age" yaml:"age"`
	Glucose          float64 `json:"glucose" yaml:"glucose"`
	HbA1c            float64 `json:"hba1c" yaml:"hba1c"`
	LDL              float64 `json:"ldl" yaml:"ldl"`
	HDL              float64 `json:"hdl" yaml:"hdl"`
	Triglycerides    float64 `json:"triglycerides" yaml:"triglycerides"`
	TotalCholesterol float64 `json:"total_cholesterol" yaml:"total_cholesterol"`
	Hemoglobin       float64 `json:"hemoglobin" yaml:"hemoglobin"`
	Hematocrit       float64 `json:"hematocrit" yaml:"hematocrit"`
	WBC              float64 `json:"wbc" yaml:"wbc"`
	Platelets        float64 `json:"platelets" yaml:"platelets"`
	ALT              float64 `json:"alt" yaml:"alt"`
	AST              float64 `json:"ast" yaml:"ast"`
	Creatinine       float64 `json:"creatinine" yaml:"creatinine"`
	EGFR             float64 `json:"egfr" yaml:"egfr"`
	CRP              float64 `json:"crp" yaml:"crp"`
}

// IsAdult applies adult reference ranges when age is unknown (zero).
func (p Profile) IsAdult() bool {
	if p.Age == 0 {
		return true
	}
	return p.Age >= 18
}

func (p Profile) sexIs(sex string) bool {
	return p.Sex != nil && *p.Sex == sex
}

// AnalysisResult is the output of a single evaluation.
type AnalysisResult struct {
	Summary         Profile          `json:"summary" yaml:"summary"`
	Recommendations []Recommendation `json:"recommendations" yaml:"recommendations"`
}
