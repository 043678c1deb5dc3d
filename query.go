package main

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

var imageTypes = []string{"all", "photo", "illustration", "vector"}

var categories = []string{
	"backgrounds", "fashion", "nature", "science", "education", "feelings", "health", "people",
	"religion", "places", "animals", "industry", "computer", "food", "sports", "transportation",
	"travel", "buildings", "business", "music",
}

var colorNames = []string{
	"grayscale", "transparent", "red", "orange", "yellow", "green", "turquoise", "blue",
	"lilac", "pink", "white", "gray", "black", "brown",
}

var sortOrders = []string{"popular", "latest"}

// Query is the set of user-chosen filters for one search. It is built fresh
// for every interaction and passed by value; the With* helpers return copies.
type Query struct {
	Term       string   `json:"term"`
	Category   string   `json:"category,omitempty"`
	ImageType  string   `json:"imageType"`
	Colors     []string `json:"colors,omitempty"`
	Order      string   `json:"order"`
	Page       int      `json:"page"`
	SafeSearch bool     `json:"safeSearch"` // from the caller's settings, not the query string
}

func NewQuery(term string) Query {
	return Query{Term: strings.TrimSpace(term), ImageType: "all", Order: "popular", Page: 1, SafeSearch: true}
}

// ParseQuery reads the query string used by /search and /feed:
// q, category, image_type, colors (comma separated), order, page.
func ParseQuery(v url.Values) (Query, error) {
	q := NewQuery(strings.Join(v["q"], " "))
	q.Category = strings.ToLower(strings.TrimSpace(v.Get("category")))
	if t := strings.ToLower(strings.TrimSpace(v.Get("image_type"))); t != "" {
		q.ImageType = t
	}
	if o := strings.ToLower(strings.TrimSpace(v.Get("order"))); o != "" {
		q.Order = o
	}
	for _, raw := range v["colors"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
				q.Colors = append(q.Colors, c)
			}
		}
	}
	q.Colors = normalizeColors(q.Colors)
	if p := v.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Query{}, fmt.Errorf("%w: page %q", ErrInvalidQuery, p)
		}
		q.Page = n
	}
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

func (q Query) Validate() error {
	if q.Page < 1 {
		return fmt.Errorf("%w: page must be >= 1", ErrInvalidQuery)
	}
	if !slices.Contains(imageTypes, q.ImageType) {
		return fmt.Errorf("%w: image type %q", ErrInvalidQuery, q.ImageType)
	}
	if !slices.Contains(sortOrders, q.Order) {
		return fmt.Errorf("%w: order %q", ErrInvalidQuery, q.Order)
	}
	if q.Category != "" && !slices.Contains(categories, q.Category) {
		return fmt.Errorf("%w: category %q", ErrInvalidQuery, q.Category)
	}
	for _, c := range q.Colors {
		if !slices.Contains(colorNames, c) {
			return fmt.Errorf("%w: color %q", ErrInvalidQuery, c)
		}
	}
	return nil
}

// Key identifies the query lineage: every field except the page.
func (q Query) Key() string {
	return strings.Join([]string{
		q.Term, q.Category, q.ImageType, strings.Join(normalizeColors(q.Colors), ","), q.Order,
		strconv.FormatBool(q.SafeSearch),
	}, "|")
}

func (q Query) WithPage(page int) Query {
	q.Colors = slices.Clone(q.Colors)
	q.Page = page
	return q
}

// WithoutFilters keeps only the term, page and safe-search flag; used when
// filters are switched off.
func (q Query) WithoutFilters() Query {
	out := NewQuery(q.Term)
	out.Page = q.Page
	out.SafeSearch = q.SafeSearch
	return out
}

// SearchTerm is what text-only providers receive: the term, else the
// category, else "nature".
func (q Query) SearchTerm() string {
	return firstNonEmpty(q.Term, q.Category, "nature")
}

func normalizeColors(colors []string) []string {
	if len(colors) == 0 {
		return nil
	}
	out := slices.Clone(colors)
	slices.Sort(out)
	return slices.Compact(out)
}
