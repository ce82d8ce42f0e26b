package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt(false)
	assert.Contains(t, p, "Hi, I'm Meddy!")
	assert.Contains(t, p, RegularPrompt)
	assert.Contains(t, p, "createDocument")
	assert.NotContains(t, p, "searchAttachments")

	assert.Contains(t, SystemPrompt(true), "searchAttachments")
}

func TestUpdateDocumentPrompt(t *testing.T) {
	assert.Contains(t, UpdateDocumentPrompt("# Patient File", "text"), "preserving existing information")
	assert.Contains(t, UpdateDocumentPrompt("print(1)", "code"), "Improve the following code")
	assert.Empty(t, UpdateDocumentPrompt("x", "sheet"))
}

func TestDiagnosisPrompt(t *testing.T) {
	p := DiagnosisPrompt(DiagnosisInput{
		Symptoms:       []string{"headache", "nausea"},
		Age:            "34",
		MedicalHistory: []string{"migraine"},
	})
	assert.True(t, strings.HasPrefix(p, "[INST]"))
	assert.True(t, strings.HasSuffix(p, "[/INST]"))
	assert.Contains(t, p, "- Symptoms: headache, nausea")
	assert.Contains(t, p, "- Age: 34")
	assert.Contains(t, p, "- Gender: Not provided")
	assert.Contains(t, p, "- Duration: Not specified")
	assert.Contains(t, p, "- Medical History: migraine")
	assert.NotContains(t, p, "Current Medications")
}
