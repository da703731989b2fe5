package search

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Region, Area, and Category are closed enumerations of the path segments
// the upstream site understands. The string value is the URL segment, not
// the human name; FromName helpers map config/flag spellings to members.
type Region string

const (
	RegionNewYork      Region = "newyork"
	RegionSFBay        Region = "sfbay"
	RegionLosAngeles   Region = "losangeles"
	RegionChicago      Region = "chicago"
	RegionBoston       Region = "boston"
	RegionSeattle      Region = "seattle"
	RegionPortland     Region = "portland"
	RegionAustin       Region = "austin"
	RegionPhiladelphia Region = "philadelphia"
	RegionWashingtonDC Region = "washingtondc"
)

type Area string

const (
	AreaAnywhere     Area = "" // no path segment
	AreaBrooklyn     Area = "brk"
	AreaManhattan    Area = "mnh"
	AreaQueens       Area = "que"
	AreaBronx        Area = "brx"
	AreaStatenIsland Area = "stn"
	AreaLongIsland   Area = "lgi"
)

type Category string

const (
	CategoryFree       Category = "zip"
	CategoryFurniture  Category = "hsh"
	CategoryAllForSale Category = "sss"
	CategoryAntiques   Category = "ata"
	CategoryAppliances Category = "ppa"
	CategoryBikes      Category = "bia"
	CategoryBooks      Category = "bka"
	CategoryElectronic Category = "ela"
)

var regionNames = map[string]Region{
	"new_york_city": RegionNewYork,
	"san_francisco": RegionSFBay,
	"los_angeles":   RegionLosAngeles,
	"chicago":       RegionChicago,
	"boston":        RegionBoston,
	"seattle":       RegionSeattle,
	"portland":      RegionPortland,
	"austin":        RegionAustin,
	"philadelphia":  RegionPhiladelphia,
	"washington_dc": RegionWashingtonDC,
}

var areaNames = map[string]Area{
	"anywhere":      AreaAnywhere,
	"brooklyn":      AreaBrooklyn,
	"manhattan":     AreaManhattan,
	"queens":        AreaQueens,
	"bronx":         AreaBronx,
	"staten_island": AreaStatenIsland,
	"long_island":   AreaLongIsland,
}

var categoryNames = map[string]Category{
	"free":         CategoryFree,
	"furniture":    CategoryFurniture,
	"all_for_sale": CategoryAllForSale,
	"antiques":     CategoryAntiques,
	"appliances":   CategoryAppliances,
	"bikes":        CategoryBikes,
	"books":        CategoryBooks,
	"electronics":  CategoryElectronic,
}

// ErrBadQuery marks a query whose region, area, or category is not a member
// of the enumerations above.
var ErrBadQuery = errors.New("search: invalid query")

// Proximity narrows a search to a radius (miles) around a postal code.
type Proximity struct {
	SearchDistance int
	PostalCode     string
}

// Query is an immutable filter set for one search. The zero Keyword and a
// nil Proximity mean those filters are simply absent from the URL.
type Query struct {
	Region    Region
	Area      Area
	Category  Category
	Keyword   string
	Proximity *Proximity
}

// DefaultQuery is free stuff anywhere in New York, the original default.
func DefaultQuery() Query {
	return Query{Region: RegionNewYork, Area: AreaAnywhere, Category: CategoryFree}
}

// URL renders the query as a search URL. The rendering is deterministic:
// equal queries always produce byte-identical strings. Parameters keep the
// fixed order query, search_distance, postal; url.Values.Encode would sort
// them and break that, so the string is assembled by hand.
func (q Query) URL() (string, error) {
	if !validRegion(q.Region) {
		return "", fmt.Errorf("%w: region %q", ErrBadQuery, q.Region)
	}
	if !validArea(q.Area) {
		return "", fmt.Errorf("%w: area %q", ErrBadQuery, q.Area)
	}
	if !validCategory(q.Category) {
		return "", fmt.Errorf("%w: category %q", ErrBadQuery, q.Category)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "https://%s.craigslist.org/search/", q.Region)
	if q.Area != AreaAnywhere {
		b.WriteString(string(q.Area))
		b.WriteByte('/')
	}
	b.WriteString(string(q.Category))

	var params []string
	if q.Keyword != "" {
		params = append(params, "query="+url.QueryEscape(q.Keyword))
	}
	if q.Proximity != nil {
		params = append(params,
			"search_distance="+strconv.Itoa(q.Proximity.SearchDistance),
			"postal="+url.QueryEscape(q.Proximity.PostalCode),
		)
	}
	if len(params) > 0 {
		b.WriteByte('?')
		b.WriteString(strings.Join(params, "&"))
	}
	return b.String(), nil
}

func validRegion(r Region) bool {
	for _, v := range regionNames {
		if v == r {
			return true
		}
	}
	return false
}

func validArea(a Area) bool {
	for _, v := range areaNames {
		if v == a {
			return true
		}
	}
	return false
}

func validCategory(c Category) bool {
	for _, v := range categoryNames {
		if v == c {
			return true
		}
	}
	return false
}

func RegionFromName(name string) (Region, error) {
	if r, ok := regionNames[strings.TrimSpace(name)]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown region %q (one of %s)", ErrBadQuery, name, keys(regionNames))
}

func AreaFromName(name string) (Area, error) {
	if a, ok := areaNames[strings.TrimSpace(name)]; ok {
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown area %q (one of %s)", ErrBadQuery, name, keys(areaNames))
}

func CategoryFromName(name string) (Category, error) {
	if c, ok := categoryNames[strings.TrimSpace(name)]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown category %q (one of %s)", ErrBadQuery, name, keys(categoryNames))
}

func keys[V any](m map[string]V) string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return strings.Join(ks, ", ")
}
