package modelstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/MindMate/internal/models"
)

// DefaultLoadTimeout bounds the load of a single artifact.
const DefaultLoadTimeout = 30 * time.Second

// Registry holds classifiers loaded once at startup. It is never mutated after
// Load returns, so concurrent readers need no locking.
type Registry struct {
	classifiers map[string]Classifier
	failures    map[string]error
}

// Load fetches and parses every named artifact. A failure for one name is
// recorded and does not prevent loading the others; callers decide whether a
// partial registry is usable.
func Load(ctx context.Context, loader Loader, names ...string) *Registry {
	r := &Registry{
		classifiers: make(map[string]Classifier, len(names)),
		failures:    make(map[string]error),
	}
	for _, name := range names {
		c, err := loadOne(ctx, loader, name)
		if err != nil {
			slog.Warn("modelstore.Load: artifact unavailable", "name", name, "error", err)
			r.failures[name] = err
			continue
		}
		slog.Info("modelstore.Load: artifact loaded", "name", name)
		r.classifiers[name] = c
	}
	return r
}

func loadOne(ctx context.Context, loader Loader, name string) (Classifier, error) {
	if loader == nil {
		return nil, fmt.Errorf("no artifact loader configured")
	}
	loadCtx, cancel := context.WithTimeout(ctx, DefaultLoadTimeout)
	defer cancel()
	data, err := loader.Load(loadCtx, name)
	if err != nil {
		return nil, err
	}
	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if a.Name == "" {
		a.Name = name
	}
	return a, nil
}

// NewRegistry builds a registry from already-constructed classifiers.
func NewRegistry(classifiers map[string]Classifier) *Registry {
	r := &Registry{classifiers: make(map[string]Classifier, len(classifiers)), failures: map[string]error{}}
	for k, v := range classifiers {
		r.classifiers[k] = v
	}
	return r
}

// Classifier returns the named classifier, or the error that prevented loading it.
func (r *Registry) Classifier(name string) (Classifier, error) {
	if r == nil {
		return nil, fmt.Errorf("classifier %s: %w", name, models.ErrNoClassifierArtifact)
	}
	if c, ok := r.classifiers[name]; ok {
		return c, nil
	}
	if err, ok := r.failures[name]; ok {
		return nil, fmt.Errorf("classifier %s: %w: %w", name, models.ErrNoClassifierArtifact, err)
	}
	return nil, fmt.Errorf("classifier %s: %w", name, models.ErrNoClassifierArtifact)
}

// Len returns the number of loaded classifiers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.classifiers)
}
