// Package decisioning implements the loan evaluation pipeline behind the
// reference server: extracting application fields from free-form chat,
// steering the conversation toward the next missing field, scoring
// eligibility, verifying documents, and issuing the final decision.
package decisioning

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Conversation stages reported to the client. The client only reacts to
// eligibility and the stages it defines itself; the intermediate ones
// exist so the transcript reads as a guided interview.
const (
	StageAmount      = "amount"
	StageIncome      = "income"
	StageEmployment  = "employment"
	StageEligibility = "eligibility"
)

// Fields is the applicant data collected across chat turns. Zero values
// mean not yet collected.
type Fields struct {
	LoanAmount         int64  `json:"loan_amount,omitempty"`
	Income             int64  `json:"income,omitempty"`
	EmploymentType     string `json:"employment_type,omitempty"`
	EmploymentDuration int    `json:"employment_duration,omitempty"`
}

var (
	lakhRe     = regexp.MustCompile(`(\d+)\s*(?:lakh|lac)`)
	amountRe   = regexp.MustCompile(`(\d[\d,]{4,})`)
	incomeRe   = regexp.MustCompile(`(\d[\d,]{3,})`)
	bareNumRe  = regexp.MustCompile(`(\d{4,})`)
	durationRe = regexp.MustCompile(`(\d+)\s*(?:year|yr)`)
)

var incomeWords = []string{"income", "salary", "earn", "make", "paid"}

// ExtractFields pulls every recognizable application field out of one
// message. Extraction is permissive; Merge decides what sticks.
func ExtractFields(message string) Fields {
	text := strings.ToLower(message)
	return Fields{
		LoanAmount:         extractAmount(text),
		Income:             extractIncome(text),
		EmploymentType:     extractEmploymentType(text),
		EmploymentDuration: extractDuration(text),
	}
}

func extractAmount(text string) int64 {
	if m := lakhRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		return n * 100000
	}
	if m := amountRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
		if n >= 10000 && n <= 10000000 {
			return n
		}
	}
	return 0
}

func extractIncome(text string) int64 {
	for _, w := range incomeWords {
		if strings.Contains(text, w) {
			if m := incomeRe.FindStringSubmatch(text); m != nil {
				n, _ := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
				if n >= 5000 && n <= 1000000 {
					return n
				}
			}
			break
		}
	}
	// A bare figure, typically the answer to the income question.
	if m := bareNumRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		if n >= 5000 && n <= 1000000 {
			return n
		}
	}
	return 0
}

func extractEmploymentType(text string) string {
	if strings.Contains(text, "salari") {
		return "salaried"
	}
	for _, w := range []string{"self", "business", "entrepreneur"} {
		if strings.Contains(text, w) {
			return "self-employed"
		}
	}
	return ""
}

func extractDuration(text string) int {
	if m := durationRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// Merge fills empty fields from extra. Collected values are never
// overwritten by later turns.
func (f *Fields) Merge(extra Fields) {
	if f.LoanAmount == 0 {
		f.LoanAmount = extra.LoanAmount
	}
	if f.Income == 0 {
		f.Income = extra.Income
	}
	if f.EmploymentType == "" {
		f.EmploymentType = extra.EmploymentType
	}
	if f.EmploymentDuration == 0 {
		f.EmploymentDuration = extra.EmploymentDuration
	}
}

// Complete reports whether every field needed for scoring is present.
func (f Fields) Complete() bool {
	return f.LoanAmount != 0 && f.Income != 0 && f.EmploymentType != "" && f.EmploymentDuration != 0
}

// NextStage names the conversation stage that collects the first missing
// field, or StageEligibility once the set is complete.
func (f Fields) NextStage() string {
	switch {
	case f.LoanAmount == 0:
		return StageAmount
	case f.Income == 0:
		return StageIncome
	case f.EmploymentType == "" || f.EmploymentDuration == 0:
		return StageEmployment
	default:
		return StageEligibility
	}
}

// Respond produces the assistant line asking for the first missing field.
func Respond(f Fields) string {
	switch {
	case f.Complete():
		return "Perfect! I have all the information. Let me analyze your eligibility..."
	case f.LoanAmount == 0:
		return "I'd be happy to help! How much would you like to borrow?"
	case f.Income == 0:
		return fmt.Sprintf("Got it, ₹%s. What's your monthly income?", groupDigits(f.LoanAmount))
	default:
		return "Thanks! Are you salaried or self-employed? And how many years have you been working?"
	}
}

// Factor is one line of the eligibility explanation shown to the
// applicant.
type Factor struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Positive bool   `json:"positive"`
}

// Eligibility is the scored outcome. ApprovedAmount is zero when
// Eligible is false; MaxEligible always carries the income-derived cap.
type Eligibility struct {
	Eligible       bool     `json:"eligible"`
	ApprovedAmount int64    `json:"approved_amount"`
	InterestRate   float64  `json:"interest_rate"`
	MaxEligible    int64    `json:"max_eligible"`
	RiskScore      int      `json:"risk_score"`
	Explanation    []Factor `json:"explanation"`
}

// Evaluate scores the application. The model is a fixed rule set: an
// income multiplier caps the amount, a risk score in [0,100] moves the
// rate off the employment-type base, and approval requires both the cap
// and a risk score under 70.
func Evaluate(f Fields) Eligibility {
	var multiplier int64
	var baseRate float64
	if f.EmploymentType == "salaried" {
		baseRate = 10.5
		multiplier = 50
		if f.EmploymentDuration >= 3 {
			multiplier = 60
		}
	} else {
		baseRate = 11.5
		multiplier = 40
		if f.EmploymentDuration >= 2 {
			multiplier = 48
		}
	}
	maxEligible := f.Income * multiplier

	risk := 50
	if f.EmploymentType == "salaried" {
		risk -= 10
	}
	switch {
	case f.EmploymentDuration >= 3:
		risk -= 15
	case f.EmploymentDuration >= 2:
		risk -= 10
	}

	var emiRatio float64
	if f.Income > 0 && f.LoanAmount > 0 {
		emiRatio = (float64(f.LoanAmount) * 0.022) / float64(f.Income)
		switch {
		case emiRatio < 0.3:
			risk -= 20
		case emiRatio < 0.4:
			risk -= 10
		default:
			risk += 15
		}
	}
	risk = max(0, min(100, risk))

	rate := baseRate
	switch {
	case risk < 30:
		rate = baseRate - 0.5
	case risk >= 60:
		rate = baseRate + 1.0
	}

	eligible := f.LoanAmount <= maxEligible && risk < 70
	var approved int64
	if eligible {
		approved = min(f.LoanAmount, maxEligible)
	}

	return Eligibility{
		Eligible:       eligible,
		ApprovedAmount: approved,
		InterestRate:   rate,
		MaxEligible:    maxEligible,
		RiskScore:      risk,
		Explanation:    explain(f, risk, emiRatio),
	}
}

func explain(f Fields, risk int, emiRatio float64) []Factor {
	var factors []Factor

	switch {
	case risk < 30:
		factors = append(factors, Factor{
			Title:    "Excellent Risk Profile",
			Detail:   fmt.Sprintf("Risk score: %d%% (very low)", risk),
			Positive: true,
		})
	case risk < 60:
		factors = append(factors, Factor{
			Title:    "Good Risk Profile",
			Detail:   fmt.Sprintf("Risk score: %d%% (acceptable)", risk),
			Positive: true,
		})
	default:
		factors = append(factors, Factor{
			Title:  "Higher Risk",
			Detail: fmt.Sprintf("Risk score: %d%%", risk),
		})
	}

	if f.Income > 0 && f.LoanAmount > 0 {
		pct := emiRatio * 100
		if pct < 40 {
			factors = append(factors, Factor{
				Title:    "Affordable EMI",
				Detail:   fmt.Sprintf("EMI is %.1f%% of income", pct),
				Positive: true,
			})
		} else {
			factors = append(factors, Factor{
				Title:  "High EMI Burden",
				Detail: fmt.Sprintf("EMI would be %.1f%% of income", pct),
			})
		}
	}

	if f.EmploymentDuration >= 2 {
		factors = append(factors, Factor{
			Title:    "Stable Employment",
			Detail:   fmt.Sprintf("%d years of work history", f.EmploymentDuration),
			Positive: true,
		})
	}

	return factors
}

// Verification is one document check result.
type Verification struct {
	Type     string `json:"type,omitempty"`
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

var documentLabels = map[string]string{
	"aadhaar": "Aadhaar Card",
	"pan":     "PAN Card",
	"salary":  "Salary Slip",
}

// VerifyDocument checks an uploaded document of the given type. The
// reference implementation accepts every known type.
func VerifyDocument(docType string) Verification {
	label, ok := documentLabels[docType]
	if !ok {
		return Verification{Verified: false, Message: "Unknown document type"}
	}
	return Verification{
		Type:     docType,
		Verified: true,
		Message:  fmt.Sprintf("%s verified successfully", label),
	}
}

// Outcome is the final decision payload. Decision carries the narrative
// text; Message, when present, is the short secondary summary.
type Outcome struct {
	Status          string `json:"status"`
	Decision        string `json:"decision,omitempty"`
	Message         string `json:"message,omitempty"`
	ProcessingTime  string `json:"processing_time"`
	TraditionalTime string `json:"traditional_time,omitempty"`
}

// Decide issues the final verdict from the scored eligibility and the
// number of uploaded documents on file.
func Decide(elig Eligibility, docCount int) Outcome {
	if !elig.Eligible {
		return Outcome{
			Status:         "rejected",
			Decision:       "Application needs review for alternative options.",
			ProcessingTime: "2.5 minutes",
		}
	}
	if docCount < 3 {
		return Outcome{
			Status:         "pending",
			Decision:       "Awaiting document verification",
			ProcessingTime: "1.8 minutes",
		}
	}
	if elig.RiskScore < 60 {
		return Outcome{
			Status: "approved",
			Decision: fmt.Sprintf(
				"Congratulations! Your loan of ₹%s at %v%% has been APPROVED! Download your sanction letter below.",
				groupDigits(elig.ApprovedAmount), elig.InterestRate),
			Message: fmt.Sprintf("Loan approved for ₹%s at %v%% interest.",
				groupDigits(elig.ApprovedAmount), elig.InterestRate),
			ProcessingTime:  "3.2 minutes",
			TraditionalTime: "5-7 days",
		}
	}
	return Outcome{
		Status:         "manual_review",
		Decision:       "Your application requires manual review. You will hear back within 24 hours.",
		ProcessingTime: "2.8 minutes",
	}
}

// groupDigits renders n with thousands separators.
func groupDigits(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
