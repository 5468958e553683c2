package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

func TestExtractionMessages_EmbedsText(t *testing.T) {
	msgs, err := ExtractionMessages("Patient takes Metformin 500mg.")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[1].Parts[0].Text, "Patient takes Metformin 500mg.")
	assert.Contains(t, msgs[1].Parts[0].Text, `"medications"`)
}

func TestParseExtraction(t *testing.T) {
	res, err := ParseExtraction(`{"medications":[{"text":"Metformin","dosage":"500mg","frequency":"twice daily","start_date":null}]}`)
	require.NoError(t, err)
	require.Len(t, res.Medications, 1)
	m := res.Medications[0]
	assert.Equal(t, "Metformin", m.Text)
	assert.Equal(t, "500mg", *m.Dosage)
	assert.Equal(t, "twice daily", *m.Frequency)
	assert.Nil(t, m.StartDate)
	assert.Nil(t, m.Purpose)
}

func TestParseExtraction_CodeFence(t *testing.T) {
	res, err := ParseExtraction("```json\n{\"medications\":[{\"text\":\"Lisinopril\"}]}\n```")
	require.NoError(t, err)
	require.Len(t, res.Medications, 1)
	assert.Equal(t, "Lisinopril", res.Medications[0].Text)
}

func TestParseExtraction_EmptyIsValid(t *testing.T) {
	for _, in := range []string{`{"medications":[]}`, `{"medications":null}`} {
		res, err := ParseExtraction(in)
		require.NoError(t, err, in)
		assert.NotNil(t, res.Medications)
		assert.Empty(t, res.Medications)
	}
}

func TestParseExtraction_Errors(t *testing.T) {
	for _, in := range []string{``, `not json`, `{"drugs":[]}`, `{"medications":"x"}`, `[1,2]`} {
		_, err := ParseExtraction(in)
		assert.True(t, errors.IsCode(err, errors.ErrCodeLLMResponseParse), "input %q", in)
	}
}
