package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"autofix/internal/diag"
)

type stubProvider struct{ batch bool }

func (stubProvider) Name() string           { return "stub" }
func (stubProvider) FixableRules() []string { return []string{"R1", "R2"} }
func (stubProvider) Languages() []string    { return []string{"Text"} }
func (stubProvider) Remediate(context.Context, *FixContext) (*Remediation, error) {
	return nil, nil
}

type stubBatch struct{ stubProvider }

func (stubBatch) RemediateAll(context.Context, *BatchContext) (*Remediation, error) {
	return nil, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) ID() string { return "a" }
func (stubAnalyzer) Rules() []RuleDescriptor {
	return []RuleDescriptor{{ID: "R1", DefaultSeverity: diag.SevWarning}}
}
func (stubAnalyzer) Analyze(context.Context, *Pass) error { return nil }

func TestDescriptors(t *testing.T) {
	single := DescribeProvider("m", stubProvider{})
	require.False(t, single.Batch)
	require.True(t, single.Fixes("R2"))
	require.True(t, single.Supports("text"))
	require.False(t, single.Supports("go"))

	batch := DescribeProvider("m", stubBatch{})
	require.True(t, batch.Batch)

	any := FixProviderDescriptor{Languages: []string{AnyLanguage}}
	require.True(t, any.Supports("whatever"))

	a := DescribeAnalyzer("m", stubAnalyzer{})
	require.Equal(t, []string{"R1"}, a.Rules)
	require.True(t, a.Declares("R1"))
	require.False(t, a.Declares("R2"))
}

func TestRemediationEmpty(t *testing.T) {
	var r *Remediation
	require.True(t, r.Empty())
	require.True(t, (&Remediation{Title: "x"}).Empty())
	require.False(t, (&Remediation{Edits: []diag.TextEdit{{NewText: "a"}}}).Empty())
}
