package main

import (
	"context"
	"time"
)

// Fallback dimensions for records whose provider reports nothing usable.
// The pair is square on purpose: such records land in the smallest
// masonry bucket.
const (
	FallbackWidth  = 1080
	FallbackHeight = 1080
	minDimension   = 100
)

type ImageRecord struct {
	Id          string     `json:"id"`
	PreviewUrl  string     `json:"previewUrl,omitempty"`
	DisplayUrl  string     `json:"displayUrl,omitempty"`
	FullUrl     string     `json:"fullUrl,omitempty"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Tags        string     `json:"tags"`
	Author      string     `json:"author"`
	Likes       int        `json:"likes"`
	Downloads   int        `json:"downloads"`
	PageUrl     string     `json:"pageUrl,omitempty"`
	Source      string     `json:"source"`
	FavoritedAt *time.Time `json:"favoritedAt,omitempty"`
}

// Key is the identity used for favorites de-duplication. Metadata such as
// likes changes between fetches and is never compared.
func (img *ImageRecord) Key() string {
	switch {
	case img.Id != "":
		return img.Id
	case img.DisplayUrl != "":
		return img.DisplayUrl
	default:
		return img.FullUrl
	}
}

// Display picks the best url for grid rendering.
func (img *ImageRecord) Display() string {
	return firstNonEmpty(img.DisplayUrl, img.PreviewUrl, img.FullUrl)
}

// Dimensions returns the stored size, or the fallback pair when either side
// is missing or below minDimension.
func (img *ImageRecord) Dimensions() (int, int) {
	if img.Width < minDimension || img.Height < minDimension {
		return FallbackWidth, FallbackHeight
	}
	return img.Width, img.Height
}

type ImageSearcher interface {
	Search(ctx context.Context, page int, query Query) ImageSearchResult
	Type() string
	TTL() int
	PageSize() int
}

type ImageSearchResult struct {
	err    error
	total  int
	images []ImageRecord
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
