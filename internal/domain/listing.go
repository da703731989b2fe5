package domain

import "time"

// Listing is one classified ad scraped from a search results page.
// ID is zero until the store assigns one on insert. ImageURLs and
// Coordinates stay empty until the detail page has been fetched;
// a nil ImageURLs means "never enriched", an empty slice means the
// detail page simply had no images.
type Listing struct {
	ID           int64
	URL          string // canonical identity; unique in the store
	Title        string
	PostedAt     time.Time
	Price        int // whole dollars, never negative
	Neighborhood string
	City         string
	ImageURLs    []string
	Coordinates  *Coordinates
	Delivered    bool
	Attempts     int // failed delivery attempts so far
}

type Coordinates struct {
	Longitude float64
	Latitude  float64
}

// Enriched reports whether the listing has been through a detail-page fetch.
func (l Listing) Enriched() bool {
	return l.ImageURLs != nil
}
