package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRecomputesUnixMirrors(t *testing.T) {
	m := IssueMetadata{
		CreatedAt: "2026-01-10T08:30:00Z",
		UpdatedAt: "2026-01-14T18:45:00Z",
		// Stale mirrors from a previous write must be overwritten.
		CreatedAtTS: 1,
		UpdatedAtTS: 1,
	}
	m.Normalize()

	assert.Equal(t, int64(1768033800), m.CreatedAtTS)
	assert.Equal(t, int64(1768416300), m.UpdatedAtTS)
}

func TestNormalizeUnparseableTimestamps(t *testing.T) {
	m := IssueMetadata{CreatedAt: "yesterday", UpdatedAt: ""}
	m.Normalize()

	assert.Zero(t, m.CreatedAtTS)
	assert.Zero(t, m.UpdatedAtTS)
}

func TestVectorID(t *testing.T) {
	assert.Equal(t, "golang/go#7421", VectorID("golang/go", 7421))
}
