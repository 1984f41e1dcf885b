package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testValidator(t *testing.T) *LLMResponseValidator {
	t.Helper()
	v, err := NewLLMResponseValidator()
	require.NoError(t, err)
	return v
}

func TestValidateAcceptsWellFormedEnvelope(t *testing.T) {
	v := testValidator(t)

	for _, raw := range []string{
		`{"answer":"hi","ui_type":"TEXT"}`,
		`{"answer":"hi","ui_type":"CHART","chart_type":"line","data":[{"label":"Mon","value":3}]}`,
		`{"answer":"hi","ui_type":"TABLE","sql":"SELECT 1","suggested_actions":["a","b","c"],"sources":null}`,
	} {
		assert.NoError(t, v.Validate([]byte(raw)), raw)
	}
}

func TestValidateRejectsViolations(t *testing.T) {
	v := testValidator(t)

	for _, raw := range []string{
		`not json at all`,
		`{"ui_type":"TEXT"}`,
		`{"answer":"hi"}`,
		`{"answer":"hi","ui_type":"POPUP"}`,
		`{"answer":"hi","ui_type":"CHART","chart_type":"scatter"}`,
		`{"answer":"hi","ui_type":"TEXT","suggested_actions":["a","b","c","d"]}`,
		`{"answer":42,"ui_type":"TEXT"}`,
	} {
		assert.Error(t, v.Validate([]byte(raw)), raw)
	}
}
