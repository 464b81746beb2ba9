package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUsageQueryDeclaresPeriodParamTypes(t *testing.T) {
	// pgx prepares with undeclared parameter types; without the casts the
	// COALESCE inputs are all unknown and resolve to text, and
	// timestamptz >= text fails at statement parse.
	require.Contains(t, usageQuery, "COALESCE($1::timestamptz, '-infinity')")
	require.Contains(t, usageQuery, "COALESCE($2::timestamptz, 'infinity')")
}
