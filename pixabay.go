package main

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

type PixabaySearchItem struct {
	Id            int    `json:"id"`
	PageUrl       string `json:"pageURL"`
	Tags          string `json:"tags"`
	PreviewUrl    string `json:"previewURL"`
	WebFormatUrl  string `json:"webformatURL"`
	LargeImageUrl string `json:"largeImageURL"`
	FullHDUrl     string `json:"fullHDURL"`
	ImageUrl      string `json:"imageURL"`
	ImageWidth    int    `json:"imageWidth"`
	ImageHeight   int    `json:"imageHeight"`
	Likes         int    `json:"likes"`
	Downloads     int    `json:"downloads"`
	UserId        int    `json:"user_id"`
	User          string `json:"user"`
}

type PixabaySearchResult struct {
	Total     int                 `json:"total"`
	TotalHits int                 `json:"totalHits"`
	Hits      []PixabaySearchItem `json:"hits"`
}

type PixabayApi struct {
	up        *Upstream
	apiKey    string
	baseUrl   string
	forceSafe bool
	ttl       int
	log       *log.Logger
}

func NewPixabayApi(cfg *Config, up *Upstream, logger *log.Logger) *PixabayApi {
	return &PixabayApi{
		up:        up,
		apiKey:    cfg.Pixabay.Key,
		baseUrl:   "https://pixabay.com/api/",
		forceSafe: cfg.Search.ForceSafeSearch,
		ttl:       cfg.Search.CacheTTLSec,
		log:       logger.WithPrefix("pixabay"),
	}
}

func (api *PixabayApi) Type() string {
	return "pixabay"
}

func (api *PixabayApi) TTL() int {
	return api.ttl
}

func (api *PixabayApi) PageSize() int { return 100 }

// Pixabay is the only provider that understands every filter; empty
// filters are left off the request.
func (api *PixabayApi) Search(ctx context.Context, page int, query Query) ImageSearchResult {
	qParam := url.Values{}
	qParam.Add("key", api.apiKey)
	qParam.Add("page", strconv.Itoa(page))
	qParam.Add("per_page", strconv.Itoa(api.PageSize()))
	qParam.Add("safesearch", strconv.FormatBool(query.SafeSearch || api.forceSafe))
	if query.Term != "" {
		qParam.Add("q", query.Term)
	}
	if query.Category != "" {
		qParam.Add("category", query.Category)
	}
	if query.ImageType != "" {
		qParam.Add("image_type", query.ImageType)
	}
	if len(query.Colors) > 0 {
		qParam.Add("colors", strings.Join(query.Colors, ","))
	}
	if query.Order != "" {
		qParam.Add("order", query.Order)
	}
	getReq, err := http.NewRequest(http.MethodGet, api.baseUrl+"?"+qParam.Encode(), nil)
	if err != nil {
		api.log.Error("failed to create http request", "err", err)
		return ImageSearchResult{err: err}
	}

	data := PixabaySearchResult{}
	if err := api.up.GetJSON(ctx, getReq, api.TTL(), &data); err != nil {
		api.log.Warn("search failed", "err", err)
		return ImageSearchResult{err: err}
	}
	output := make([]ImageRecord, 0, len(data.Hits))
	for _, el := range data.Hits {
		img := ImageRecord{
			Id:         "pixabay/" + strconv.Itoa(el.Id),
			PreviewUrl: el.PreviewUrl,
			DisplayUrl: el.WebFormatUrl,
			FullUrl:    firstNonEmpty(el.LargeImageUrl, el.ImageUrl, el.FullHDUrl),
			Width:      el.ImageWidth,
			Height:     el.ImageHeight,
			Tags:       el.Tags,
			Author:     el.User,
			Likes:      el.Likes,
			Downloads:  el.Downloads,
			PageUrl:    el.PageUrl,
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
	total := data.TotalHits
	if total == 0 {
		total = len(output)
	}
	return ImageSearchResult{total: total, images: output}
}
