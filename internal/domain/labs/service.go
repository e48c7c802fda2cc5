package labs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// rule inspects a resolved profile and reports at most one recommendation.
type rule func(p Profile) (Recommendation, bool)

// Service evaluates the fixed reference-range rule set. It holds no mutable
// state and is safe for concurrent use.
type Service struct {
	rules []rule
}

func NewService() *Service {
	return &Service{rules: defaultRules()}
}

// defaultRules lists the rule blocks in output order: glucose and HbA1c,
// lipids, blood counts, then liver, kidney and inflammation markers.
func defaultRules() []rule {
	return []rule{
		glucoseRule,
		hba1cRule,
		ldlRule,
		hdlRule,
		triglyceridesRule,
		totalCholesterolRule,
		hemoglobinRule,
		wbcRule,
		plateletsRule,
		altRule,
		astRule,
		creatinineRule,
		egfrRule,
		crpRule,
	}
}

// Analyze resolves rec and evaluates it. The only error it returns is a
// *ValidationError from resolution.
func (s *Service) Analyze(rec Record) (*AnalysisResult, error) {
	p, err := ResolveProfile(rec)
	if err != nil {
		return nil, err
	}
	result := s.Evaluate(p)
	return &result, nil
}

// Evaluate runs every rule against p in order.
func (s *Service) Evaluate(p Profile) AnalysisResult {
	recs := make([]Recommendation, 0, len(s.rules))
	for _, r := range s.rules {
		if rec, ok := r(p); ok {
			recs = append(recs, rec)
		}
	}
	return AnalysisResult{Summary: p, Recommendations: recs}
}

// ladder is a two-step "high / borderline" classification where both bounds
// are inclusive lower limits: v >= high, else borderline <= v < high.
type ladder struct {
	high, borderline           float64
	highTitle, borderlineTitle string
}

func (l ladder) classify(v float64, reason string) (Recommendation, bool) {
	switch {
	case v >= l.high:
		return high(l.highTitle, reason)
	case v >= l.borderline:
		return medium(l.borderlineTitle, reason)
	}
	return Recommendation{}, false
}

var (
	hba1cLadder = ladder{6.5, 5.7, "HbA1c diyabet aralığı", "HbA1c prediyabet aralığı"}

	ldlAdult     = ladder{160, 130, "LDL yüksek", "LDL sınırda/orta yüksek"}
	ldlPediatric = ladder{130, 110, "LDL yüksek (pediatrik)", "LDL sınırda (pediatrik)"}

	tgAdult     = ladder{200, 150, "Trigliserid yüksek", "Trigliserid hafif yüksek"}
	tgPediatric = ladder{130, 90, "Trigliserid yüksek (pediatrik)", "Trigliserid sınırda (pediatrik)"}

	totalCholAdult     = ladder{240, 200, "Total kolesterol yüksek", "Total kolesterol sınırda"}
	totalCholPediatric = ladder{200, 170, "Total kolesterol yüksek (pediatrik)", "Total kolesterol sınırda (pediatrik)"}
)

func medium(title, reason string) (Recommendation, bool) {
	return Recommendation{Title: title, Reason: reason, Priority: PriorityMedium}, true
}

func high(title, reason string) (Recommendation, bool) {
	return Recommendation{Title: title, Reason: reason, Priority: PriorityHigh}, true
}

// The prediabetes band is closed at 125, so a fractional reading between
// 125 and 126 produces nothing.
func glucoseRule(p Profile) (Recommendation, bool) {
	reason := fmt.Sprintf("Glukoz %s mg/dL.", formatValue(p.Glucose))
	switch {
	case p.Glucose >= 126:
		return high("Yüksek açlık glukozu", reason)
	case p.Glucose >= 100 && p.Glucose <= 125:
		return medium("Prediyabet aralığı (glukoz)", reason)
	}
	return Recommendation{}, false
}

func hba1cRule(p Profile) (Recommendation, bool) {
	return hba1cLadder.classify(p.HbA1c, fmt.Sprintf("HbA1c %s%%.", formatValue(p.HbA1c)))
}

func ldlRule(p Profile) (Recommendation, bool) {
	l := ldlPediatric
	if p.IsAdult() {
		l = ldlAdult
	}
	return l.classify(p.LDL, fmt.Sprintf("LDL %s mg/dL.", formatValue(p.LDL)))
}

// Only a low HDL is flagged. Unspecified sex uses the male threshold.
func hdlRule(p Profile) (Recommendation, bool) {
	threshold := 45.0
	if p.IsAdult() {
		threshold = 40
		if p.sexIs(SexFemale) {
			threshold = 50
		}
	}
	if p.HDL != 0 && p.HDL < threshold {
		return medium("Düşük HDL", fmt.Sprintf("HDL %s mg/dL.", formatValue(p.HDL)))
	}
	return Recommendation{}, false
}

func triglyceridesRule(p Profile) (Recommendation, bool) {
	l := tgPediatric
	if p.IsAdult() {
		l = tgAdult
	}
	return l.classify(p.Triglycerides, fmt.Sprintf("TG %s mg/dL.", formatValue(p.Triglycerides)))
}

func totalCholesterolRule(p Profile) (Recommendation, bool) {
	l := totalCholPediatric
	if p.IsAdult() {
		l = totalCholAdult
	}
	return l.classify(p.TotalCholesterol, fmt.Sprintf("Total %s mg/dL.", formatValue(p.TotalCholesterol)))
}

// hemoglobinRange returns the normal band. Unlike HDL, unspecified sex has
// its own adult band.
func hemoglobinRange(p Profile) (lo, hi float64) {
	switch {
	case !p.IsAdult():
		return 11.5, 15.5
	case p.sexIs(SexMale):
		return 13.5, 17.5
	case p.sexIs(SexFemale):
		return 12.0, 16.0
	default:
		return 12.5, 17.0
	}
}

func hemoglobinRule(p Profile) (Recommendation, bool) {
	if p.Hemoglobin == 0 {
		return Recommendation{}, false
	}
	lo, hi := hemoglobinRange(p)
	reason := fmt.Sprintf("Hemoglobin %s g/dL.", formatValue(p.Hemoglobin))
	switch {
	case p.Hemoglobin < lo:
		return medium("Anemi olası", reason)
	case p.Hemoglobin > hi:
		return medium("Yüksek hemoglobin", reason)
	}
	return Recommendation{}, false
}

func wbcRule(p Profile) (Recommendation, bool) {
	if p.WBC == 0 {
		return Recommendation{}, false
	}
	reason := fmt.Sprintf("WBC %s x10^3/µL.", formatValue(p.WBC))
	switch {
	case p.WBC > 11:
		return medium("Lökositoz", reason)
	case p.WBC < 4:
		return medium("Lökopeni", reason)
	}
	return Recommendation{}, false
}

func plateletsRule(p Profile) (Recommendation, bool) {
	if p.Platelets == 0 {
		return Recommendation{}, false
	}
	reason := fmt.Sprintf("PLT %s x10^3/µL.", formatValue(p.Platelets))
	switch {
	case p.Platelets < 150:
		return high("Trombositopeni", reason)
	case p.Platelets > 450:
		return medium("Trombositoz", reason)
	}
	return Recommendation{}, false
}

func altRule(p Profile) (Recommendation, bool) {
	if p.ALT != 0 && p.ALT > 40 {
		return medium("ALT yüksek", fmt.Sprintf("ALT %s U/L.", formatValue(p.ALT)))
	}
	return Recommendation{}, false
}

func astRule(p Profile) (Recommendation, bool) {
	if p.AST != 0 && p.AST > 40 {
		return medium("AST yüksek", fmt.Sprintf("AST %s U/L.", formatValue(p.AST)))
	}
	return Recommendation{}, false
}

func creatinineLimit(p Profile) float64 {
	switch {
	case p.sexIs(SexMale):
		return 1.4
	case p.sexIs(SexFemale):
		return 1.2
	default:
		return 1.3
	}
}

func creatinineRule(p Profile) (Recommendation, bool) {
	if p.Creatinine != 0 && p.Creatinine > creatinineLimit(p) {
		return medium("Kreatinin yüksek", fmt.Sprintf("Kreatinin %s mg/dL.", formatValue(p.Creatinine)))
	}
	return Recommendation{}, false
}

func egfrRule(p Profile) (Recommendation, bool) {
	if p.EGFR != 0 && p.EGFR < 60 {
		return high("Azalmış böbrek fonksiyonu", fmt.Sprintf("eGFR %s mL/min/1.73m².", formatValue(p.EGFR)))
	}
	return Recommendation{}, false
}

func crpRule(p Profile) (Recommendation, bool) {
	if p.CRP != 0 && p.CRP > 5 {
		return medium("CRP yüksek (inflamasyon)", fmt.Sprintf("CRP %s mg/L.", formatValue(p.CRP)))
	}
	return Recommendation{}, false
}

// formatValue renders v as a float literal: integral values keep a ".0"
// suffix (130 -> "130.0"), very large or very small magnitudes use
// exponent notation, and nothing is rounded.
func formatValue(v float64) string {
	abs := math.Abs(v)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
