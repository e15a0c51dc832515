package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"price-tracker/config"
	"price-tracker/internal/models"
	"price-tracker/internal/util"

	"go.uber.org/zap"
)

// Bonpreu product page URLs look like /products/<slug>/<id>
var bonpreuProductIDPattern = regexp.MustCompile(`/products/[^/]+/(\d+)/?$`)

// BonpreuScraper reads the Bonpreu online store through its product API
type BonpreuScraper struct {
	client     *Client
	sitemapURL string
	apiURL     string
	logger     *zap.Logger
}

func NewBonpreuScraper(cfg config.BonpreuConfig, requestsPerSecond int, timeout time.Duration) *BonpreuScraper {
	return &BonpreuScraper{
		client:     NewClient(models.SourceBonpreu, requestsPerSecond, timeout),
		sitemapURL: cfg.SitemapURL,
		apiURL:     cfg.BaseURL + "/api/webproductpagews/v5/products/bop",
		logger:     util.GetLogger(),
	}
}

func (s *BonpreuScraper) Source() string {
	return models.SourceBonpreu
}

// ListProductIDs downloads the product sitemap and extracts every product ID
func (s *BonpreuScraper) ListProductIDs(ctx context.Context) ([]int64, error) {
	s.logger.Info("fetching sitemap", zap.String("source", s.Source()), zap.String("url", s.sitemapURL))

	body, err := s.client.Get(ctx, s.sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bonpreu sitemap: %w", err)
	}

	ids, err := extractProductIDs(body, bonpreuProductIDPattern)
	if err != nil {
		return nil, err
	}

	s.logger.Info("sitemap parsed", zap.String("source", s.Source()), zap.Int("products", len(ids)))
	return ids, nil
}

type bonpreuResponse struct {
	Product *bonpreuProduct `json:"product"`
	BopData struct {
		DetailedDescription *string `json:"detailedDescription"`
	} `json:"bopData"`
}

type bonpreuProduct struct {
	Type                *string           `json:"type"`
	Name                string            `json:"name"`
	Brand               *string           `json:"brand"`
	PackSizeDescription *string           `json:"packSizeDescription"`
	Price               interface{}       `json:"price"`
	UnitPrice           *bonpreuUnitPrice `json:"unitPrice"`
	Available           *bool             `json:"available"`
	Alcohol             bool              `json:"alcohol"`
	CookingGuidelines   *string           `json:"cookingGuidelines"`
	CategoryPath        []interface{}     `json:"categoryPath"`
}

type bonpreuUnitPrice struct {
	Price struct {
		Amount interface{} `json:"amount"`
	} `json:"price"`
	Unit string `json:"unit"`
}

// FetchProduct fetches one product from the Bonpreu API. Returns (nil, nil)
// when the API has no product for the ID.
func (s *BonpreuScraper) FetchProduct(ctx context.Context, productID int64) (*models.ProductSnapshot, error) {
	url := fmt.Sprintf("%s?retailerProductId=%d", s.apiURL, productID)

	var resp bonpreuResponse
	if err := s.client.GetJSON(ctx, url, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if resp.Product == nil {
		s.logger.Debug("no product data in response",
			zap.String("source", s.Source()), zap.Int64("product_id", productID))
		return nil, nil
	}

	p := resp.Product
	available := true
	if p.Available != nil {
		available = *p.Available
	}

	snap := &models.ProductSnapshot{
		ProductID:         productID,
		Source:            s.Source(),
		ProductType:       p.Type,
		Name:              p.Name,
		Description:       resp.BopData.DetailedDescription,
		Brand:             p.Brand,
		PackSize:          p.PackSizeDescription,
		PriceAmount:       parsePrice(p.Price),
		Currency:          "EUR",
		UnitPriceCurrency: "EUR",
		Available:         available,
		Alcohol:           p.Alcohol,
		CookingGuidelines: p.CookingGuidelines,
		Categories:        bonpreuCategories(p.CategoryPath),
	}

	if p.UnitPrice != nil {
		snap.UnitPriceAmount = parsePrice(p.UnitPrice.Price.Amount)
		if unit := bonpreuUnit(p.UnitPrice.Unit); unit != "" {
			snap.UnitPriceUnit = &unit
		}
	}

	return snap, nil
}

// bonpreuUnit strips the API's localization key prefix, leaving the bare unit
// ("kg", "l", "ut")
func bonpreuUnit(unit string) string {
	return strings.TrimPrefix(unit, "fop.price.per.")
}

// bonpreuCategories accepts the categoryPath list, whose elements are either
// plain strings or objects with a name or title field
func bonpreuCategories(path []interface{}) []string {
	categories := make([]string, 0, len(path))
	for _, entry := range path {
		switch c := entry.(type) {
		case string:
			categories = append(categories, c)
		case map[string]interface{}:
			if name, ok := c["name"].(string); ok && name != "" {
				categories = append(categories, name)
			} else if title, ok := c["title"].(string); ok && title != "" {
				categories = append(categories, title)
			}
		}
	}
	return categories
}
