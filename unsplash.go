package main

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"
)

type UnsplashPhoto struct {
	Id             string             `json:"id"`
	Width          int                `json:"width"`
	Height         int                `json:"height"`
	Description    string             `json:"description"`
	AltDescription string             `json:"alt_description"`
	Likes          int                `json:"likes"`
	User           UnsplashUser       `json:"user"`
	Urls           UnsplashUrls       `json:"urls"`
	Links          UnsplashPhotoLinks `json:"links"`
}

type UnsplashUser struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type UnsplashPhotoLinks struct {
	Self     string `json:"self"`
	Html     string `json:"html"`
	Download string `json:"download"`
}

type UnsplashUrls struct {
	Raw     string `json:"raw"`
	Full    string `json:"full"`
	Regular string `json:"regular"`
	Small   string `json:"small"`
	Thumb   string `json:"thumb"`
}

type UnsplashSearchResult struct {
	Total      int             `json:"total"`
	TotalPages int             `json:"total_pages"`
	Results    []UnsplashPhoto `json:"results"`
}

var unsplashColors = map[string]string{
	"grayscale": "black_and_white",
	"black":     "black",
	"white":     "white",
	"yellow":    "yellow",
	"orange":    "orange",
	"red":       "red",
	"lilac":     "purple",
	"pink":      "magenta",
	"green":     "green",
	"turquoise": "teal",
	"blue":      "blue",
}

type UnsplashApi struct {
	up        *Upstream
	accessKey string
	baseUrl   string
	forceSafe bool
	ttl       int
	log       *log.Logger
}

func NewUnsplashApi(cfg *Config, up *Upstream, logger *log.Logger) *UnsplashApi {
	return &UnsplashApi{
		up:        up,
		accessKey: cfg.Unsplash.AccessKey,
		baseUrl:   "https://api.unsplash.com/search/photos",
		forceSafe: cfg.Search.ForceSafeSearch,
		ttl:       cfg.Search.CacheTTLSec,
		log:       logger.WithPrefix("unsplash"),
	}
}

func (unsp *UnsplashApi) Type() string {
	return "unsplash"
}

func (unsp *UnsplashApi) TTL() int {
	return unsp.ttl
}

func (unsp *UnsplashApi) PageSize() int { return 30 }

func (unsp *UnsplashApi) Search(ctx context.Context, page int, query Query) ImageSearchResult {
	qParam := url.Values{}
	qParam.Add("query", query.SearchTerm())
	qParam.Add("page", strconv.Itoa(page))
	qParam.Add("per_page", strconv.Itoa(unsp.PageSize()))
	if query.SafeSearch || unsp.forceSafe {
		qParam.Add("content_filter", "high")
	} else {
		qParam.Add("content_filter", "low")
	}
	if query.Order == "latest" {
		qParam.Add("order_by", "latest")
	}
	if len(query.Colors) == 1 {
		if c, ok := unsplashColors[query.Colors[0]]; ok {
			qParam.Add("color", c)
		}
	}
	getReq, err := http.NewRequest(http.MethodGet, unsp.baseUrl+"?"+qParam.Encode(), nil)
	if err != nil {
		unsp.log.Error("failed to create http request", "err", err)
		return ImageSearchResult{err: err}
	}
	getReq.Header.Set("Accept-Version", "v1")
	getReq.Header.Set("Authorization", "Client-ID "+unsp.accessKey)

	data := UnsplashSearchResult{}
	if err := unsp.up.GetJSON(ctx, getReq, unsp.TTL(), &data); err != nil {
		unsp.log.Warn("search failed", "err", err)
		return ImageSearchResult{err: err}
	}
	output := make([]ImageRecord, 0, len(data.Results))
	for _, el := range data.Results {
		img := ImageRecord{
			Id:         "unsplash/" + el.Id,
			PreviewUrl: el.Urls.Small,
			DisplayUrl: el.Urls.Regular,
			FullUrl:    firstNonEmpty(el.Urls.Full, el.Urls.Raw),
			Width:      el.Width,
			Height:     el.Height,
			Tags:       firstNonEmpty(el.Description, el.AltDescription),
			Author:     el.User.Name,
			Likes:      el.Likes,
			PageUrl:    el.Links.Html,
			Source:     unsp.Type(),
		}
		// grid clients only read displayUrl
		img.DisplayUrl = img.Display()
		if img.DisplayUrl == "" {
			continue
		}
		if el.Id == "" {
			img.Id = firstNonEmpty(img.DisplayUrl, img.FullUrl)
		}
		output = append(output, img)
	}
	total := data.Total
	if total == 0 {
		total = len(output)
	}
	return ImageSearchResult{total: total, images: output}
}
