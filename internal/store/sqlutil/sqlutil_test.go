package sqlutil

import (
	"testing"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateStatement(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	p := core.Patch{Location: core.Ptr("Bay 3"), SignedReport: core.Ptr(true)}

	q, args, ok := UpdateStatement(p, Dollar, at, "M1")
	require.True(t, ok)
	assert.Equal(t, "UPDATE modules SET location = $1, signed_report = $2, updated_at = $3 WHERE module_no = $4", q)
	assert.Equal(t, []any{"Bay 3", true, at, "M1"}, args)

	q, _, ok = UpdateStatement(p, Question, at, "M1")
	require.True(t, ok)
	assert.Equal(t, "UPDATE modules SET location = ?, signed_report = ?, updated_at = ? WHERE module_no = ?", q)
}

func TestUpdateStatement_EmptyPatch(t *testing.T) {
	_, _, ok := UpdateStatement(core.Patch{}, Dollar, time.Now(), "M1")
	assert.False(t, ok)
}

func TestInsertValuesMatchesArgs(t *testing.T) {
	values := InsertValues(Question)
	args := InsertArgs(core.Module{})
	assert.Equal(t, len(args), len(splitComma(values)))
	assert.Equal(t, len(args), len(ScanArgs(&core.Module{})))
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
