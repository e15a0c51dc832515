package scraper

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
)

type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// extractProductIDs parses a sitemap urlset and pulls the product ID out of
// every location matching idPattern (first capture group). Duplicate IDs are
// dropped, first occurrence wins.
func extractProductIDs(data []byte, idPattern *regexp.Regexp) ([]int64, error) {
	var urlset sitemapURLSet
	if err := xml.Unmarshal(data, &urlset); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap: %w", err)
	}

	seen := make(map[int64]struct{})
	ids := make([]int64, 0, len(urlset.URLs))
	for _, u := range urlset.URLs {
		m := idPattern.FindStringSubmatch(u.Loc)
		if m == nil {
			continue
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
