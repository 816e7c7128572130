package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuild_MinesSenderProjectCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	project := env.seedProject(t, "BK-2101", "active")
	env.seedLinkedMessages(t, "kittipong@thaicontractor.co.th", project, 6)

	result, err := env.patternSvc.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Patterns)
	assert.Equal(t, 0, result.SendersExcluded)

	patterns, err := env.patterns.GetBySender(ctx, "kittipong@thaicontractor.co.th")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "BK-2101", patterns[0].ProjectCode)
	assert.Equal(t, 6, patterns[0].Occurrences)
	// All six links on one project: confidence clears the auto-link bar.
	assert.GreaterOrEqual(t, patterns[0].Confidence, 0.7)
	assert.LessOrEqual(t, patterns[0].Confidence, 0.95)
}

func TestRebuild_SplitSenderGetsLowerConfidence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.seedProject(t, "BK-2101", "active")
	p2 := env.seedProject(t, "VN-0042", "active")
	env.seedLinkedMessages(t, "pm@consultants.com", p1, 5)
	env.seedLinkedMessages(t, "pm@consultants.com", p2, 5)

	result, err := env.patternSvc.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Patterns)

	patterns, err := env.patterns.GetBySender(ctx, "pm@consultants.com")
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	for _, p := range patterns {
		assert.Equal(t, 5, p.Occurrences)
		assert.Less(t, p.Confidence, 0.7, "an evenly split sender must not auto-link")
	}
}

func TestRebuild_ExcludesInternalSenders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.seedProject(t, "BK-2101", "active")
	p2 := env.seedProject(t, "VN-0042", "active")
	env.seedLinkedMessages(t, "jane@bensley.com", p1, 10)
	env.seedLinkedMessages(t, "jane@bensley.com", p2, 10)
	env.seedLinkedMessages(t, "outside@vendor.com", p1, 6)

	result, err := env.patternSvc.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Patterns)
	assert.Equal(t, 1, result.SendersExcluded, "each excluded sender counted once")

	patterns, err := env.patterns.GetBySender(ctx, "jane@bensley.com")
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestRebuild_ReplacesStalePatterns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.seedProject(t, "BK-2101", "active")
	env.seedLinkedMessages(t, "pm@consultants.com", p1, 6)
	_, err := env.patternSvc.Rebuild(ctx)
	require.NoError(t, err)

	// The sender's mail shifts to a new project; the recompute must reflect
	// the new distribution, not accumulate on top of the old one.
	p2 := env.seedProject(t, "VN-0042", "active")
	env.seedLinkedMessages(t, "pm@consultants.com", p2, 12)
	_, err = env.patternSvc.Rebuild(ctx)
	require.NoError(t, err)

	patterns, err := env.patterns.GetBySender(ctx, "pm@consultants.com")
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, "VN-0042", patterns[0].ProjectCode, "strongest pattern first")
	assert.Equal(t, 12, patterns[0].Occurrences)
}

func TestPatternConfidence(t *testing.T) {
	tests := []struct {
		name        string
		count       int
		senderTotal int
		min, max    float64
	}{
		{"zero count", 0, 0, 0, 0},
		{"single occurrence damped", 1, 1, 0.3, 0.4},
		{"six of six clears threshold", 6, 6, 0.7, 0.8},
		{"even split stays low", 5, 10, 0.3, 0.4},
		{"large monoculture capped", 100, 100, 0.95, 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := patternConfidence(tt.count, tt.senderTotal)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}
