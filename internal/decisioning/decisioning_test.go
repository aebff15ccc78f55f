package decisioning

import (
	"strings"
	"testing"
)

func TestExtractFields(t *testing.T) {
	tests := []struct {
		message string
		want    Fields
	}{
		{"I need 5 lakh for a wedding", Fields{LoanAmount: 500000}},
		{"give me 2 lac", Fields{LoanAmount: 200000}},
		{"I want to borrow 7,50,000", Fields{LoanAmount: 750000}},
		// A bare figure in range also satisfies the amount pattern; the
		// fill-only merge keeps that from clobbering a collected amount.
		{"my salary is 45,000 per month", Fields{LoanAmount: 45000, Income: 45000}},
		{"I earn 60000", Fields{LoanAmount: 60000, Income: 60000}},
		{"I'm salaried", Fields{EmploymentType: "salaried"}},
		{"I run my own business", Fields{EmploymentType: "self-employed"}},
		{"self employed for 4 years", Fields{EmploymentType: "self-employed", EmploymentDuration: 4}},
		{"salaried, 5 yrs at the same company", Fields{EmploymentType: "salaried", EmploymentDuration: 5}},
		{"hello there", Fields{}},
	}
	for _, tt := range tests {
		if got := ExtractFields(tt.message); got != tt.want {
			t.Errorf("ExtractFields(%q) = %+v, want %+v", tt.message, got, tt.want)
		}
	}
}

func TestMerge_NeverOverwrites(t *testing.T) {
	f := Fields{LoanAmount: 500000, Income: 45000}
	f.Merge(Fields{LoanAmount: 999999, EmploymentType: "salaried"})

	if f.LoanAmount != 500000 {
		t.Errorf("loan amount overwritten: %d", f.LoanAmount)
	}
	if f.EmploymentType != "salaried" {
		t.Error("empty field not filled")
	}
}

func TestNextStage_Progression(t *testing.T) {
	f := Fields{}
	if got := f.NextStage(); got != StageAmount {
		t.Fatalf("stage = %s, want amount", got)
	}
	f.LoanAmount = 500000
	if got := f.NextStage(); got != StageIncome {
		t.Fatalf("stage = %s, want income", got)
	}
	f.Income = 45000
	if got := f.NextStage(); got != StageEmployment {
		t.Fatalf("stage = %s, want employment", got)
	}
	f.EmploymentType = "salaried"
	if got := f.NextStage(); got != StageEmployment {
		t.Fatalf("stage = %s, want employment until duration is known", got)
	}
	f.EmploymentDuration = 5
	if got := f.NextStage(); got != StageEligibility {
		t.Fatalf("stage = %s, want eligibility", got)
	}
}

func TestRespond_AsksForIncomeWithAmountEcho(t *testing.T) {
	got := Respond(Fields{LoanAmount: 500000})
	if !strings.Contains(got, "500,000") || !strings.Contains(got, "income") {
		t.Errorf("Respond = %q", got)
	}
}

func TestEvaluate_EligibleSalaried(t *testing.T) {
	e := Evaluate(Fields{
		LoanAmount:         500000,
		Income:             50000,
		EmploymentType:     "salaried",
		EmploymentDuration: 5,
	})

	if !e.Eligible {
		t.Fatalf("not eligible: %+v", e)
	}
	if e.MaxEligible != 3000000 {
		t.Errorf("max eligible = %d, want 3000000", e.MaxEligible)
	}
	if e.ApprovedAmount != 500000 {
		t.Errorf("approved = %d, want 500000", e.ApprovedAmount)
	}
	// 50 base, -10 salaried, -15 tenure, -20 low EMI ratio.
	if e.RiskScore != 5 {
		t.Errorf("risk = %d, want 5", e.RiskScore)
	}
	if e.InterestRate != 10.0 {
		t.Errorf("rate = %v, want 10.0 (low-risk discount)", e.InterestRate)
	}
	if len(e.Explanation) == 0 {
		t.Error("explanation empty")
	}
}

func TestEvaluate_AmountOverCap(t *testing.T) {
	e := Evaluate(Fields{
		LoanAmount:         1000000,
		Income:             10000,
		EmploymentType:     "salaried",
		EmploymentDuration: 1,
	})

	if e.Eligible {
		t.Fatal("eligible despite amount over cap")
	}
	if e.ApprovedAmount != 0 {
		t.Errorf("approved = %d, want 0", e.ApprovedAmount)
	}
	if e.MaxEligible != 500000 {
		t.Errorf("max eligible = %d, want 500000", e.MaxEligible)
	}
}

func TestEvaluate_SelfEmployedBaseRate(t *testing.T) {
	e := Evaluate(Fields{
		LoanAmount:         200000,
		Income:             40000,
		EmploymentType:     "self-employed",
		EmploymentDuration: 1,
	})
	// 50 base, -20 low EMI ratio = 30; mid band keeps the 11.5 base.
	if e.InterestRate != 11.5 {
		t.Errorf("rate = %v, want 11.5", e.InterestRate)
	}
	if e.MaxEligible != 1600000 {
		t.Errorf("max eligible = %d, want 1600000", e.MaxEligible)
	}
}

func TestVerifyDocument(t *testing.T) {
	for _, docType := range []string{"aadhaar", "pan", "salary"} {
		v := VerifyDocument(docType)
		if !v.Verified || v.Type != docType {
			t.Errorf("VerifyDocument(%s) = %+v", docType, v)
		}
	}

	v := VerifyDocument("passport")
	if v.Verified {
		t.Error("unknown type verified")
	}
	if v.Message != "Unknown document type" {
		t.Errorf("message = %q", v.Message)
	}
}

func TestDecide(t *testing.T) {
	eligible := Eligibility{Eligible: true, ApprovedAmount: 500000, InterestRate: 10.5, RiskScore: 25}

	tests := []struct {
		name     string
		elig     Eligibility
		docCount int
		status   string
	}{
		{"ineligible", Eligibility{Eligible: false}, 3, "rejected"},
		{"missing documents", eligible, 2, "pending"},
		{"approved", eligible, 3, "approved"},
		{"high risk", Eligibility{Eligible: true, RiskScore: 65}, 3, "manual_review"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Decide(tt.elig, tt.docCount)
			if out.Status != tt.status {
				t.Errorf("status = %s, want %s", out.Status, tt.status)
			}
			if out.ProcessingTime == "" {
				t.Error("processing time empty")
			}
		})
	}
}

func TestDecide_ApprovedCarriesBothTexts(t *testing.T) {
	out := Decide(Eligibility{Eligible: true, ApprovedAmount: 500000, InterestRate: 10.5, RiskScore: 25}, 3)
	if !strings.Contains(out.Decision, "APPROVED") {
		t.Errorf("decision = %q", out.Decision)
	}
	if !strings.Contains(out.Message, "500,000") {
		t.Errorf("message = %q", out.Message)
	}
	if out.TraditionalTime == "" {
		t.Error("traditional time missing on approval")
	}
}
