package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONBPatch_PlaceholdersMatchArgs(t *testing.T) {
	p := newJSONBPatch("checklist")
	require.NoError(t, p.set(jsonPath("steps", "drain", "status"), "completed"))
	require.NoError(t, p.appendTo(jsonPath("steps", "drain", "photos"), "drain.jpg"))
	p.increment(jsonPath("water_usage"), 250)

	assert.Equal(t, strings.Count(p.sql, "?"), len(p.args))
	assert.True(t, strings.HasPrefix(p.sql, "jsonb_set(jsonb_set(jsonb_set(checklist, "))
	assert.Equal(t, []interface{}{
		"{steps,drain,status}", `"completed"`,
		"{steps,drain,photos}", "{steps,drain,photos}", `["drain.jpg"]`,
		"{water_usage}", "{water_usage}", 250,
	}, p.args)
}

func TestJSONBPatch_Empty(t *testing.T) {
	p := newJSONBPatch("checklist")
	assert.Equal(t, "checklist", p.expr().SQL)
	assert.Empty(t, p.args)
}
