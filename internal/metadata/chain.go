package metadata

import (
	"context"
	"errors"
	"strings"

	"tunetag/internal/logger"
)

// ChainEnricher asks several enrichers in order and returns the fragment
// of the first one that finds something.
type ChainEnricher struct {
	enrichers []Enricher
	logger    *logger.Logger
}

// NewChainEnricher creates a ChainEnricher that queries enrichers in order.
func NewChainEnricher(enrichers []Enricher, log *logger.Logger) *ChainEnricher {
	return &ChainEnricher{enrichers: enrichers, logger: log}
}

func (c *ChainEnricher) Name() string {
	names := make([]string, len(c.enrichers))
	for i, e := range c.enrichers {
		names[i] = e.Name()
	}
	return strings.Join(names, "+")
}

// Enrich returns the first non-empty fragment. Errors from earlier links
// are only reported when no link produced anything.
func (c *ChainEnricher) Enrich(ctx context.Context, q Query) (Record, error) {
	var errs []error
	for _, e := range c.enrichers {
		rec, err := e.Enrich(ctx, q)
		if err != nil {
			c.logger.Debug("enricher %s failed: %v", e.Name(), err)
			errs = append(errs, &AdapterError{Source: e.Name(), Err: err})
			continue
		}
		if !rec.IsEmpty() {
			return rec, nil
		}
	}
	return Record{}, errors.Join(errs...)
}
