package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"artifact-compiler/internal/models"
)

// BatchItem is one raw response to compile.
type BatchItem struct {
	Kind models.ArtifactKind
	Raw  string
}

// BatchResult holds the outcome of one BatchItem. Exactly one of Artifact
// and Err is set.
type BatchResult struct {
	Artifact *models.Artifact
	Err      error
}

// CompileBatch compiles independent responses with at most limit running at
// once. Results are in input order and one failing item does not stop the
// others. Only cancellation of ctx is returned as an error.
func (p *Pipeline) CompileBatch(ctx context.Context, items []BatchItem, limit int) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return err
			}
			a, err := p.Compile(gctx, item.Raw, item.Kind)
			results[i] = BatchResult{Artifact: a, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
