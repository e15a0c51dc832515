package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"price-tracker/config"
	"price-tracker/internal/models"
	"price-tracker/internal/util"

	"go.uber.org/zap"
)

// Mercadona product page URLs look like /product/<id>/<slug>
var mercadonaProductIDPattern = regexp.MustCompile(`/product/(\d+)/`)

// MercadonaScraper reads the Mercadona online store through its public
// product API
type MercadonaScraper struct {
	client     *Client
	sitemapURL string
	apiURL     string
	logger     *zap.Logger
}

func NewMercadonaScraper(cfg config.MercadonaConfig, requestsPerSecond int, timeout time.Duration) *MercadonaScraper {
	return &MercadonaScraper{
		client:     NewClient(models.SourceMercadona, requestsPerSecond, timeout),
		sitemapURL: cfg.SitemapURL,
		apiURL:     cfg.APIURL,
		logger:     util.GetLogger(),
	}
}

func (s *MercadonaScraper) Source() string {
	return models.SourceMercadona
}

// ListProductIDs downloads the sitemap and extracts every product ID
func (s *MercadonaScraper) ListProductIDs(ctx context.Context) ([]int64, error) {
	s.logger.Info("fetching sitemap", zap.String("source", s.Source()), zap.String("url", s.sitemapURL))

	body, err := s.client.Get(ctx, s.sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mercadona sitemap: %w", err)
	}

	ids, err := extractProductIDs(body, mercadonaProductIDPattern)
	if err != nil {
		return nil, err
	}

	s.logger.Info("sitemap parsed", zap.String("source", s.Source()), zap.Int("products", len(ids)))
	return ids, nil
}

type mercadonaResponse struct {
	Published   bool    `json:"published"`
	DisplayName string  `json:"display_name"`
	Brand       *string `json:"brand"`
	Packaging   *string `json:"packaging"`
	Details     struct {
		Description       *string `json:"description"`
		UsageInstructions *string `json:"usage_instructions"`
	} `json:"details"`
	PriceInstructions struct {
		UnitPrice       interface{} `json:"unit_price"`
		ReferencePrice  interface{} `json:"reference_price"`
		ReferenceFormat *string     `json:"reference_format"`
	} `json:"price_instructions"`
	Badges struct {
		RequiresAgeCheck bool `json:"requires_age_check"`
	} `json:"badges"`
	Categories []mercadonaCategory `json:"categories"`
}

type mercadonaCategory struct {
	Name       string              `json:"name"`
	Categories []mercadonaCategory `json:"categories"`
}

// FetchProduct fetches one product from the Mercadona API. Unpublished
// products and 404s return (nil, nil).
func (s *MercadonaScraper) FetchProduct(ctx context.Context, productID int64) (*models.ProductSnapshot, error) {
	url := fmt.Sprintf("%s/%d/", s.apiURL, productID)

	var resp mercadonaResponse
	if err := s.client.GetJSON(ctx, url, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if !resp.Published {
		s.logger.Debug("product not published",
			zap.String("source", s.Source()), zap.Int64("product_id", productID))
		return nil, nil
	}

	// unit_price is the shelf price here; reference_price is the per-unit
	// comparison price
	snap := &models.ProductSnapshot{
		ProductID:         productID,
		Source:            s.Source(),
		Name:              resp.DisplayName,
		Description:       resp.Details.Description,
		Brand:             resp.Brand,
		PackSize:          resp.Packaging,
		PriceAmount:       parsePrice(resp.PriceInstructions.UnitPrice),
		Currency:          "EUR",
		UnitPriceAmount:   parsePrice(resp.PriceInstructions.ReferencePrice),
		UnitPriceCurrency: "EUR",
		UnitPriceUnit:     resp.PriceInstructions.ReferenceFormat,
		Available:         resp.Published,
		Alcohol:           resp.Badges.RequiresAgeCheck,
		CookingGuidelines: resp.Details.UsageInstructions,
		Categories:        flattenMercadonaCategories(resp.Categories),
	}

	return snap, nil
}

// flattenMercadonaCategories walks the nested category tree depth first and
// collects every name
func flattenMercadonaCategories(cats []mercadonaCategory) []string {
	names := make([]string, 0, len(cats))
	var walk func([]mercadonaCategory)
	walk = func(level []mercadonaCategory) {
		for _, c := range level {
			if c.Name != "" {
				names = append(names, c.Name)
			}
			if len(c.Categories) > 0 {
				walk(c.Categories)
			}
		}
	}
	walk(cats)
	return names
}
