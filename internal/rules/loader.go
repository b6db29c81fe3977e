package rules

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Rule file base names. Each may be stored as .yaml, .yml or .json.
const (
	FileDependencies = "metric_dependency_map"
	FileDegradation  = "data_degradation_ladder"
	FileProvenance   = "metric_provenance_map"
	FileTemporal     = "temporal_sanity_rules"
	FileConsistency  = "cross_metric_consistency_rules"
	FileRender       = "render_priority_rules"
)

var extensions = []string{".yaml", ".yml", ".json"}

//go:embed defaults/*.yaml
var defaultFS embed.FS

// Default loads the rule set bundled with the binary.
func Default(ctx context.Context) (*RuleSet, error) {
	sub, err := fs.Sub(defaultFS, "defaults")
	if err != nil {
		return nil, eris.Wrap(err, "rules: open embedded defaults")
	}
	return LoadFS(ctx, sub)
}

// LoadDir loads the rule files from a directory.
func LoadDir(ctx context.Context, dir string) (*RuleSet, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: stat %s", dir)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("rules: %s is not a directory", dir)
	}
	return LoadFS(ctx, os.DirFS(dir))
}

// LoadFS reads all rule files concurrently, then validates them as a whole.
// The render priority file is optional; all others are required.
func LoadFS(ctx context.Context, fsys fs.FS) (*RuleSet, error) {
	var t Tables

	g, gctx := errgroup.WithContext(ctx)
	load := func(name string, dst any, required bool) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return readTable(fsys, name, dst, required)
		})
	}
	load(FileDependencies, &t.Dependencies, true)
	load(FileDegradation, &t.Degradation, true)
	load(FileProvenance, &t.Provenance, true)
	load(FileTemporal, &t.Temporal, true)
	load(FileConsistency, &t.Consistency, true)
	load(FileRender, &t.Render, false)

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rs, err := New(t)
	if err != nil {
		return nil, err
	}

	zap.L().Info("rules: rule set loaded",
		zap.String("version", rs.Version()),
		zap.Int("dependency_rules", len(rs.dependencies)),
		zap.Int("tiers", len(rs.ladder)),
		zap.Int("temporal_rules", len(rs.temporal)),
		zap.Int("consistency_rules", len(rs.consistency)),
	)
	if missing := rs.Coverage(); len(missing) > 0 {
		zap.L().Warn("rules: metrics without dependency rule will be gated conservatively",
			zap.Int("count", len(missing)),
		)
	}
	return rs, nil
}

func readTable(fsys fs.FS, name string, dst any, required bool) error {
	for _, ext := range extensions {
		data, err := fs.ReadFile(fsys, name+ext)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return eris.Wrapf(err, "rules: read %s%s", name, ext)
		}
		if err := yaml.Unmarshal(data, dst); err != nil {
			return eris.Wrapf(err, "rules: parse %s%s", name, ext)
		}
		return nil
	}
	if required {
		return eris.Errorf("rules: missing rule file %s (.yaml, .yml or .json)", name)
	}
	return nil
}
