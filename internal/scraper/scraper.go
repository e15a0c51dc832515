package scraper

import (
	"context"
	"fmt"
	"sort"

	"price-tracker/internal/models"
)

// Scraper is implemented once per supermarket. FetchProduct returns
// (nil, nil) when the product does not exist or is not published; the caller
// decides how to record that.
type Scraper interface {
	Source() string
	ListProductIDs(ctx context.Context) ([]int64, error)
	FetchProduct(ctx context.Context, productID int64) (*models.ProductSnapshot, error)
}

// Registry holds the fixed set of scrapers built at startup. Sources are not
// pluggable at runtime; adding one means adding a constructor here and a
// config block.
type Registry struct {
	scrapers map[string]Scraper
}

func NewRegistry(scrapers ...Scraper) *Registry {
	r := &Registry{scrapers: make(map[string]Scraper, len(scrapers))}
	for _, s := range scrapers {
		r.scrapers[s.Source()] = s
	}
	return r
}

// Get returns the scraper for a source
func (r *Registry) Get(source string) (Scraper, error) {
	s, ok := r.scrapers[source]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", source)
	}
	return s, nil
}

// Sources returns the registered source names in stable order
func (r *Registry) Sources() []string {
	sources := make([]string, 0, len(r.scrapers))
	for name := range r.scrapers {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}
