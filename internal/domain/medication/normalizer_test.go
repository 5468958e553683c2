package medication

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Fixtures(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Losartan 50 mg once daily (lifelong)", "Losartan"},
		{"sodium bicarbonate treatment", "Sodium Bicarbonate"},
		{"Metformin 500mg twice daily", "Metformin"},
		{"Lisinopril 10mg daily", "Lisinopril"},
		{"LISINOPRIL", "Lisinopril"},
		{"Vitamin D3 1000 IU", "Vitamin D3"},
		{"Vitamin B12 injection", "Vitamin B12"},
		{"Amoxicillin 250mg/5ml suspension PO tid", "Amoxicillin"},
		{"Insulin glargine 10 units subcutaneous every 24 hours", "Insulin Glargine"},
		{"Albuterol inhaled q4h", "Albuterol"},
		{"Hydrocortisone 1% cream topical", "Hydrocortisone"},
		{"Potassium chloride 20 mEq oral", "Potassium Chloride"},
		{"Fluticasone nasal spray", "Fluticasone"},
		{"Ondansetron 4 mg IV every 8 hours", "Ondansetron"},
		{"Cyanocobalamin 1000 mcg", "Cyanocobalamin"},
		{"Levothyroxine 0.125 mg tablet", "Levothyroxine"},
		{"Aspirin 81 mg three times daily", "Aspirin"},
		{"chemotherapy", "Chemotherapy"},
		{"losartan-HCTZ", "Losartan-hctz"},
		{"  ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalize_FallsBackToTrimmedInput(t *testing.T) {
	// Every token is a stripped form, so the raw text is kept.
	assert.Equal(t, "500 mg tablet", Normalize("  500 mg tablet "))
	assert.Equal(t, "(as needed)", Normalize("(as needed)"))
}

func TestNormalize_KeepsUnitLikeWords(t *testing.T) {
	// "grams" is not in the unit set, and the digit run is preserved.
	assert.Equal(t, "Fiber 5 Grams", Normalize("fiber 5 grams"))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Losartan 50 mg once daily (lifelong)",
		"sodium bicarbonate treatment",
		"tab,let",
		"o,ral vitamin",
		"500 mg tablet",
		"(as needed)",
		"Metformin ER 750mg PO BID with meals",
		"Warfarin — 5 mg; daily!!",
		"acetaminophen/codeine 300/30",
		"µg",
		"5 µg levothyroxine",
		"Iron ( ferrous sulfate ) 325mg",
		"",
		"   ",
		"q6h",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_RepeatsUntilStable(t *testing.T) {
	// punctuation removal exposes "tab" as a whole word on the second pass
	assert.Equal(t, "Let", Normalize("tab,let"))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "losartan", Key("Losartan 50 mg"))
	assert.Equal(t, "losartan", Key("losartan"))
	assert.Equal(t, "", Key(""))
}
