package main

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"
)

type PexelsPhoto struct {
	Id             int            `json:"id"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	Url            string         `json:"url"`
	Alt            string         `json:"alt"`
	Photographer   string         `json:"photographer"`
	PhotographerId int            `json:"photographer_id"`
	Src            PexelsPhotoSrc `json:"src"`
}

type PexelsPhotoSrc struct {
	Original string `json:"original"`
	Large2x  string `json:"large2x"`
	Large    string `json:"large"`
	Medium   string `json:"medium"`
	Small    string `json:"small"`
}

type PexelsSearchResult struct {
	TotalResults int           `json:"total_results"`
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
	Photos       []PexelsPhoto `json:"photos"`
}

// Pexels names a few colors differently from the Pixabay vocabulary.
var pexelsColors = map[string]string{
	"grayscale": "gray",
	"gray":      "gray",
	"lilac":     "violet",
	"red":       "red",
	"orange":    "orange",
	"yellow":    "yellow",
	"green":     "green",
	"turquoise": "turquoise",
	"blue":      "blue",
	"pink":      "pink",
	"brown":     "brown",
	"black":     "black",
	"white":     "white",
}

type PexelsApi struct {
	up      *Upstream
	apiKey  string
	baseUrl string
	ttl     int
	log     *log.Logger
}

func NewPexelsApi(cfg *Config, up *Upstream, logger *log.Logger) *PexelsApi {
	return &PexelsApi{
		up:      up,
		apiKey:  cfg.Pexels.Key,
		baseUrl: "https://api.pexels.com/v1/search",
		ttl:     cfg.Search.CacheTTLSec,
		log:     logger.WithPrefix("pexels"),
	}
}

func (api *PexelsApi) Type() string {
	return "pexels"
}

func (api *PexelsApi) TTL() int {
	return api.ttl
}

func (api *PexelsApi) PageSize() int { return 80 }

func (api *PexelsApi) Search(ctx context.Context, page int, query Query) ImageSearchResult {
	qParam := url.Values{}
	qParam.Add("query", query.SearchTerm())
	qParam.Add("page", strconv.Itoa(page))
	qParam.Add("per_page", strconv.Itoa(api.PageSize()))
	if len(query.Colors) == 1 {
		if c, ok := pexelsColors[query.Colors[0]]; ok {
			qParam.Add("color", c)
		}
	}
	getReq, err := http.NewRequest(http.MethodGet, api.baseUrl+"?"+qParam.Encode(), nil)
	if err != nil {
		api.log.Error("failed to create http request", "err", err)
		return ImageSearchResult{err: err}
	}
	getReq.Header.Set("Authorization", api.apiKey)

	data := PexelsSearchResult{}
	if err := api.up.GetJSON(ctx, getReq, api.TTL(), &data); err != nil {
		api.log.Warn("search failed", "err", err)
		return ImageSearchResult{err: err}
	}
	output := make([]ImageRecord, 0, len(data.Photos))
	for _, el := range data.Photos {
		img := ImageRecord{
			Id:         "pexels/" + strconv.Itoa(el.Id),
			PreviewUrl: el.Src.Medium,
			DisplayUrl: el.Src.Large,
			FullUrl:    firstNonEmpty(el.Src.Original, el.Src.Large2x),
			Width:      el.Width,
			Height:     el.Height,
			Tags:       el.Alt,
			Author:     el.Photographer,
			PageUrl:    el.Url,
			Source:     api.Type(),
		}
		// grid clients only read displayUrl
		img.DisplayUrl = img.Display()
		if img.DisplayUrl == "" {
			continue
		}
		if el.Id == 0 {
			img.Id = firstNonEmpty(img.DisplayUrl, img.FullUrl)
		}
		output = append(output, img)
	}
	total := data.TotalResults
	if total == 0 {
		total = len(output)
	}
	return ImageSearchResult{total: total, images: output}
}
