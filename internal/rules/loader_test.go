package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metric-guardrails/internal/model"
)

func TestDefault_Loads(t *testing.T) {
	rs, err := Default(context.Background())
	require.NoError(t, err)

	_, ok := rs.Dependency("estimated_glucose_range")
	assert.True(t, ok)
	assert.Equal(t, "exploratory_only", rs.Ladder().Tiers[len(rs.Ladder().Tiers)-1].Tier)
	assert.Equal(t, model.AllModes, rs.Priority())
	assert.Equal(t, "PROXY", rs.Badge("estimated_hba1c_range").Label)
	assert.NotEmpty(t, rs.ConsistencyRules())
	assert.Empty(t, rs.Coverage())

	r, ok := rs.Temporal("insulin_resistance_index")
	require.True(t, ok)
	assert.Equal(t, DampenByFactor, r.ViolationBehavior.CapStrategy)
	assert.Equal(t, 15.0, r.MaxDelta())
}

func TestDefault_ParsesThresholdKinds(t *testing.T) {
	rs, err := Default(context.Background())
	require.NoError(t, err)

	var sawLabel, sawNumber bool
	for _, r := range rs.ConsistencyRules() {
		for _, c := range r.If {
			if c.ThresholdType == ClassMatch {
				assert.True(t, c.Threshold.IsLabel)
				sawLabel = true
			} else {
				assert.False(t, c.Threshold.IsLabel)
				sawNumber = true
			}
		}
	}
	assert.True(t, sawLabel)
	assert.True(t, sawNumber)
}

const minimalDeps = `
version: "1"
metrics:
  m1:
    required_inputs:
      - { stream: s, min_days_covered: 1, max_missing_rate: 0.5, min_quality_score: 0.5 }
    fallback_behavior: { confidence_floor: 0.2, confidence_penalty: 0.1 }
`

const minimalLadder = `
version: "1"
tiers:
  - tier: only
    criteria: { data_adequacy_min: 0, missing_rate_max: 1, conflicts_max: -1 }
    confidence_multiplier: 0.5
    range_uncertainty_multiplier: 1.5
`

func minimalFS() fstest.MapFS {
	return fstest.MapFS{
		"metric_dependency_map.yaml":          {Data: []byte(minimalDeps)},
		"data_degradation_ladder.yml":         {Data: []byte(minimalLadder)},
		"metric_provenance_map.json":          {Data: []byte(`{"version":"1","metrics":{},"provenance_badge_values":{}}`)},
		"temporal_sanity_rules.yaml":          {Data: []byte("version: \"1\"\nmetrics: {}\n")},
		"cross_metric_consistency_rules.json": {Data: []byte(`{"version":"1","rules":[{"rule_id":"x","if":[{"metric_id":"m1","threshold_type":"class_match","threshold":"High"}],"then":{"flag_code":"F","confidence_penalty":0.1,"affected_metrics":["m1"]}}]}`)},
	}
}

func TestLoadFS_MixedExtensions(t *testing.T) {
	rs, err := LoadFS(context.Background(), minimalFS())
	require.NoError(t, err)

	assert.Equal(t, "only", rs.Ladder().Tiers[0].Tier)
	assert.Equal(t, model.AllModes, rs.Priority())
	require.Len(t, rs.ConsistencyRules(), 1)
	assert.Equal(t, LabelThreshold("High"), rs.ConsistencyRules()[0].If[0].Threshold)
}

func TestLoadFS_MissingRequiredFile(t *testing.T) {
	fsys := minimalFS()
	delete(fsys, "temporal_sanity_rules.yaml")

	_, err := LoadFS(context.Background(), fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing rule file temporal_sanity_rules")
}

func TestLoadFS_ParseError(t *testing.T) {
	fsys := minimalFS()
	fsys["data_degradation_ladder.yml"] = &fstest.MapFile{Data: []byte("tiers: [unclosed")}

	_, err := LoadFS(context.Background(), fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse data_degradation_ladder.yml")
}

func TestLoadFS_InvalidThresholdNode(t *testing.T) {
	fsys := minimalFS()
	fsys["cross_metric_consistency_rules.json"] = &fstest.MapFile{Data: []byte(`{"rules":[{"if":[{"metric_id":"m1","threshold_type":"class_match","threshold":[1,2]}],"then":{"flag_code":"F","affected_metrics":["m1"]}}]}`)}

	_, err := LoadFS(context.Background(), fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold must be a scalar")
}

func TestLoadFS_SemanticValidation(t *testing.T) {
	fsys := minimalFS()
	fsys["data_degradation_ladder.yml"] = &fstest.MapFile{Data: []byte(`
tiers:
  - tier: strict
    criteria: { data_adequacy_min: 0.9, missing_rate_max: 0.1, conflicts_max: 0 }
    confidence_multiplier: 1
    range_uncertainty_multiplier: 1
`)}

	_, err := LoadFS(context.Background(), fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be unconditional")
}

func TestLoadFS_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadFS(ctx, minimalFS())
	require.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	for name, f := range minimalFS() {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), f.Data, 0o644))
	}

	rs, err := LoadDir(context.Background(), dir)
	require.NoError(t, err)
	_, ok := rs.Dependency("m1")
	assert.True(t, ok)
}

func TestLoadDir_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := LoadDir(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")

	_, err = LoadDir(context.Background(), "/nonexistent/rules")
	assert.Error(t, err)
}
