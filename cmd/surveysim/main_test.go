package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/survey-sim/internal/database"
)

func TestPrintComparison(t *testing.T) {
	var buf bytes.Buffer
	printComparison(&buf, []*database.PolicySummary{
		{Policy: "rotation", Runs: 3, MitigationMean: 0.2125, MitigationMin: 0.2, MitigationMax: 0.225, DetectedMean: 18.5, AvgPODMean: 0.41},
		{Policy: "random", Runs: 1, MitigationMean: 0.19, MitigationMin: 0.19, MitigationMax: 0.19, DetectedMean: 16, AvgPODMean: 0.4},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Policy"))
	assert.Contains(t, lines[1], "rotation")
	assert.Contains(t, lines[1], "21.25%")
	assert.Contains(t, lines[1], "20.00%")
	assert.Contains(t, lines[1], "22.50%")
	assert.Contains(t, lines[2], "random")
}

func TestPrintComparisonEmpty(t *testing.T) {
	var buf bytes.Buffer
	printComparison(&buf, nil)
	assert.Equal(t, "No stored runs to compare\n", buf.String())
}
