package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"price-tracker/config"
	"price-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bonpreuProductJSON = `{
	"product": {
		"type": "groceries",
		"name": "Llet sencera Ametller",
		"brand": "Ametller",
		"packSizeDescription": "1 l",
		"price": {"amount": "1,45"},
		"unitPrice": {"price": {"amount": 1.45}, "unit": "fop.price.per.l"},
		"available": true,
		"alcohol": false,
		"categoryPath": ["Làctics", {"name": "Llet"}]
	},
	"bopData": {"detailedDescription": "Llet sencera pasteuritzada"}
}`

func newTestBonpreu(t *testing.T, handler http.Handler) (*BonpreuScraper, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := NewBonpreuScraper(config.BonpreuConfig{
		BaseURL:    srv.URL,
		SitemapURL: srv.URL + "/sitemap.xml",
	}, 1000, 5*time.Second)
	s.client.sleep = func(time.Duration) {}
	return s, srv
}

func TestBonpreuFetchProduct(t *testing.T) {
	s, _ := newTestBonpreu(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "12345", r.URL.Query().Get("retailerProductId"))
		w.Write([]byte(bonpreuProductJSON))
	}))

	snap, err := s.FetchProduct(context.Background(), 12345)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, int64(12345), snap.ProductID)
	assert.Equal(t, models.SourceBonpreu, snap.Source)
	assert.Equal(t, "Llet sencera Ametller", snap.Name)
	require.NotNil(t, snap.Brand)
	assert.Equal(t, "Ametller", *snap.Brand)
	require.NotNil(t, snap.Description)
	assert.Equal(t, "Llet sencera pasteuritzada", *snap.Description)

	require.True(t, snap.PriceAmount.Valid)
	assert.Equal(t, "1.45", snap.PriceAmount.Decimal.String())
	assert.Equal(t, "EUR", snap.Currency)
	require.True(t, snap.UnitPriceAmount.Valid)
	require.NotNil(t, snap.UnitPriceUnit)
	assert.Equal(t, "l", *snap.UnitPriceUnit)

	assert.True(t, snap.Available)
	assert.False(t, snap.Alcohol)
	assert.Equal(t, []string{"Làctics", "Llet"}, snap.Categories)
}

func TestBonpreuFetchProductNotFound(t *testing.T) {
	s, _ := newTestBonpreu(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	snap, err := s.FetchProduct(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestBonpreuFetchProductEmptyPayload(t *testing.T) {
	s, _ := newTestBonpreu(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	snap, err := s.FetchProduct(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestBonpreuListProductIDs(t *testing.T) {
	s, _ := newTestBonpreu(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bonpreuSitemap))
	}))

	ids, err := s.ListProductIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{12345, 67890}, ids)
}

func TestBonpreuUnit(t *testing.T) {
	assert.Equal(t, "kg", bonpreuUnit("fop.price.per.kg"))
	assert.Equal(t, "ut", bonpreuUnit("ut"))
}
