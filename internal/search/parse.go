package search

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fenimore/stuff/internal/domain"
)

// postedAtLayout is the machine-readable datetime attribute on result rows.
const postedAtLayout = "2006-01-02 15:04"

// ParseError describes one listing fragment that could not be turned into a
// Listing. It never aborts parsing of sibling fragments; ParseInventory
// collects these alongside the listings that did parse.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse listing: %s: %s", e.Field, e.Reason)
}

// ParseInventory walks a search-results page and returns every listing that
// parsed, plus one error per row that did not.
func ParseInventory(r io.Reader, city string) ([]domain.Listing, []error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, []error{&ParseError{Field: "document", Reason: err.Error()}}
	}

	rows := doc.Find("ul.rows")
	if rows.Length() == 0 {
		return nil, []error{&ParseError{Field: "results", Reason: "no ul.rows container"}}
	}

	var listings []domain.Listing
	var errs []error
	rows.First().Find("li").Each(func(_ int, li *goquery.Selection) {
		l, err := parseItem(li, city)
		if err != nil {
			errs = append(errs, err)
			return
		}
		listings = append(listings, l)
	})
	return listings, errs
}

// parseItem extracts one Listing from a result row. URL, title, time, and
// price are required; neighborhood is optional.
func parseItem(sel *goquery.Selection, city string) (domain.Listing, error) {
	var link *goquery.Selection
	sel.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.Text()) != "" {
			link = a
			return false
		}
		return true
	})
	if link == nil {
		return domain.Listing{}, &ParseError{Field: "url", Reason: "no anchor with text"}
	}
	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return domain.Listing{}, &ParseError{Field: "url", Reason: "empty href"}
	}
	title := cleanText(link.Text())
	if title == "" {
		return domain.Listing{}, &ParseError{Field: "title", Reason: "empty anchor text"}
	}

	datetime, ok := sel.Find("time").First().Attr("datetime")
	if !ok {
		return domain.Listing{}, &ParseError{Field: "time", Reason: "no time element with datetime attribute"}
	}
	postedAt, err := parsePostedAt(datetime)
	if err != nil {
		return domain.Listing{}, &ParseError{Field: "time", Reason: err.Error()}
	}

	priceSel := sel.Find("span.result-price").First()
	if priceSel.Length() == 0 {
		return domain.Listing{}, &ParseError{Field: "price", Reason: "no span.result-price"}
	}
	price, err := ParsePrice(priceSel.Text())
	if err != nil {
		return domain.Listing{}, &ParseError{Field: "price", Reason: err.Error()}
	}

	hood := ""
	if h := sel.Find("span.result-hood").First(); h.Length() > 0 {
		hood = strings.Trim(h.Text(), " ()")
	}

	return domain.Listing{
		URL:          href,
		Title:        title,
		PostedAt:     postedAt,
		Price:        price,
		Neighborhood: hood,
		City:         city,
	}, nil
}

// ParsePrice turns a currency-formatted string like "$1200" into a
// non-negative integer. A missing currency symbol is fine; the strip is a
// no-op then.
func ParsePrice(s string) (int, error) {
	s = strings.Trim(strings.TrimSpace(s), "$")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not an integer price: %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative price: %d", n)
	}
	return n, nil
}

// ParseDetails fills the listing's ImageURLs and Coordinates from its detail
// page. ImageURLs becomes every img src in document order, an empty (non-nil)
// slice when the page has none. Coordinates stay nil unless the page carries
// a #map element with both data attributes.
func ParseDetails(l *domain.Listing, doc *goquery.Document) {
	urls := make([]string, 0)
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			urls = append(urls, src)
		}
	})
	l.ImageURLs = urls

	l.Coordinates = nil
	m := doc.Find("#map").First()
	if m.Length() == 0 {
		return
	}
	lonStr, okLon := m.Attr("data-longitude")
	latStr, okLat := m.Attr("data-latitude")
	if !okLon || !okLat {
		return
	}
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	lat, errLat := strconv.ParseFloat(latStr, 64)
	if errLon != nil || errLat != nil {
		return
	}
	l.Coordinates = &domain.Coordinates{Longitude: lon, Latitude: lat}
}

func parsePostedAt(s string) (t time.Time, err error) {
	t, err = time.Parse(postedAtLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad datetime %q: want %s", s, postedAtLayout)
	}
	return t, nil
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
