package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultOverscan = 800

type Server struct {
	cfg      *Config
	search   Searcher
	sessions *FeedSessions
	storage  Storage
	users    UserChecker
	gatherer prometheus.Gatherer
	metrics  *Metrics
	log      *log.Logger

	favorites sync.Map // user -> *Favorites
	settings  sync.Map // user -> *Settings
}

type ServerDeps struct {
	Search   Searcher
	Sessions *FeedSessions
	Storage  Storage
	Users    UserChecker
	Gatherer prometheus.Gatherer
	Metrics  *Metrics
}

func NewServer(cfg *Config, deps ServerDeps, logger *log.Logger) *Server {
	return &Server{
		cfg:      cfg,
		search:   deps.Search,
		sessions: deps.Sessions,
		storage:  deps.Storage,
		users:    deps.Users,
		gatherer: deps.Gatherer,
		metrics:  deps.Metrics,
		log:      logger.WithPrefix("http"),
	}
}

func (srv *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(srv.log), requestID, requestLogger(srv.log))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "Not Found")
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	if srv.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(srv.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(basicAuth(srv.users, srv.cfg.Auth.Required))
		r.Get("/search", srv.handleSearch)
		r.Post("/feed", srv.handleFeedCreate)
		r.Get("/feed/{id}", srv.handleFeedGet)
		r.Put("/feed/{id}", srv.handleFeedReplace)
		r.Delete("/feed/{id}", srv.handleFeedDelete)
		if srv.cfg.Features.Pagination {
			r.Post("/feed/{id}/more", srv.handleFeedMore)
		}
		r.Get("/layout", srv.handleLayout)
		if srv.cfg.Features.Favorites {
			r.Get("/favorites", srv.handleFavoritesList)
			r.Post("/favorites", srv.handleFavoritesAdd)
			r.Delete("/favorites", srv.handleFavoritesRemove)
			r.Get("/favorites/contains", srv.handleFavoritesContains)
			r.Post("/favorites/clear", srv.handleFavoritesClear)
		}
		r.Get("/settings", srv.handleSettingsGet)
		r.Patch("/settings", srv.handleSettingsPatch)
		r.Post("/settings/reset", srv.handleSettingsReset)
	})
	return r
}

// parseQuery reads the filters from the query string and safe search from
// the caller's settings.
func (srv *Server) parseQuery(r *http.Request) (Query, error) {
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		return Query{}, err
	}
	// A failed read still yields the last known settings.
	settings, _ := srv.settingsFor(r).Get(r.Context())
	q.SafeSearch = settings.SafeSearch
	if !srv.cfg.Features.Filters {
		q = q.WithoutFilters()
	}
	return q, nil
}

func (srv *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := srv.parseQuery(r)
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	page := srv.search.Search(r.Context(), q)
	status := http.StatusOK
	if !page.OK {
		status = http.StatusServiceUnavailable
	}
	srv.writeJSON(w, r, status, page)
}

type feedResponse struct {
	ID string `json:"id"`
	Snapshot
}

func (srv *Server) handleFeedCreate(w http.ResponseWriter, r *http.Request) {
	q, err := srv.parseQuery(r)
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	id, feed := srv.sessions.Create()
	snap, err := feed.Replace(r.Context(), srv.search, q)
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	srv.writeJSON(w, r, http.StatusCreated, feedResponse{ID: id, Snapshot: snap})
}

func (srv *Server) handleFeedGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	feed, err := srv.sessions.Get(id)
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	srv.writeJSON(w, r, http.StatusOK, feedResponse{ID: id, Snapshot: feed.Snapshot()})
}

// handleFeedReplace runs a new query on an existing session. A replace that
// was overtaken by a newer one answers 409.
func (srv *Server) handleFeedReplace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	feed, err := srv.sessions.Get(id)
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	q, err := srv.parseQuery(r)
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	snap, err := feed.Replace(r.Context(), srv.search, q)
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	srv.writeJSON(w, r, http.StatusOK, feedResponse{ID: id, Snapshot: snap})
}

func (srv *Server) handleFeedDelete(w http.ResponseWriter, r *http.Request) {
	srv.sessions.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) handleFeedMore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	feed, err := srv.sessions.Get(id)
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	snap, err := feed.More(r.Context(), srv.search)
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	srv.writeJSON(w, r, http.StatusOK, feedResponse{ID: id, Snapshot: snap})
}

type layoutCell struct {
	Cell
	Id  string `json:"id"`
	Url string `json:"url"`
}

type layoutResponse struct {
	Columns int          `json:"columns"`
	Total   int          `json:"total"`
	Cells   []layoutCell `json:"cells"`
}

func (srv *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	feed, err := srv.sessions.Get(r.URL.Query().Get("feed"))
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	width, err1 := intParam(r, "width", 0)
	top, err2 := intParam(r, "top", 0)
	height, err3 := intParam(r, "height", 0)
	overscan, err4 := intParam(r, "overscan", defaultOverscan)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		srv.writeErr(w, r, err)
		return
	}

	// A failed read still yields the last known settings.
	settings, _ := srv.settingsFor(r).Get(r.Context())
	columns := ColumnCount(width, settings.Columns)

	items := feed.Snapshot().Items
	cells := Layout(items, columns)
	if height > 0 {
		cells = Visible(cells, top, height, overscan)
	}
	out := layoutResponse{Columns: columns, Total: len(items), Cells: make([]layoutCell, len(cells))}
	for i, c := range cells {
		img := &items[c.Index]
		out.Cells[i] = layoutCell{Cell: c, Id: img.Key(), Url: img.Display()}
	}
	srv.writeJSON(w, r, http.StatusOK, out)
}

func (srv *Server) favoritesFor(r *http.Request) *Favorites {
	user := userFrom(r.Context())
	if v, ok := srv.favorites.Load(user); ok {
		return v.(*Favorites)
	}
	v, _ := srv.favorites.LoadOrStore(user, NewFavorites(srv.storage, user, srv.log, srv.metrics))
	return v.(*Favorites)
}

func (srv *Server) settingsFor(r *http.Request) *Settings {
	user := userFrom(r.Context())
	if v, ok := srv.settings.Load(user); ok {
		return v.(*Settings)
	}
	v, _ := srv.settings.LoadOrStore(user, NewSettings(srv.storage, user, srv.log, srv.metrics))
	return v.(*Settings)
}

func (srv *Server) handleFavoritesList(w http.ResponseWriter, r *http.Request) {
	list, err := srv.favoritesFor(r).List(r.Context())
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	srv.writeJSON(w, r, http.StatusOK, list)
}

func (srv *Server) handleFavoritesAdd(w http.ResponseWriter, r *http.Request) {
	var img ImageRecord
	if err := decodeStrict(r, &img); err != nil {
		srv.writeErr(w, r, fmt.Errorf("%w: %v", ErrInvalidQuery, err))
		return
	}
	if img.Key() == "" {
		srv.writeErr(w, r, fmt.Errorf("%w: image needs an id or url", ErrInvalidQuery))
		return
	}
	added, err := srv.favoritesFor(r).Add(r.Context(), img)
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	srv.writeJSON(w, r, status, map[string]bool{"added": added})
}

func (srv *Server) handleFavoritesRemove(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		srv.writeErr(w, r, fmt.Errorf("%w: key is required", ErrInvalidQuery))
		return
	}
	removed, err := srv.favoritesFor(r).Remove(r.Context(), ImageRecord{Id: key})
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	srv.writeJSON(w, r, http.StatusOK, map[string]bool{"removed": removed})
}

func (srv *Server) handleFavoritesContains(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	found, err := srv.favoritesFor(r).Contains(r.Context(), ImageRecord{Id: key})
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	srv.writeJSON(w, r, http.StatusOK, map[string]bool{"favorite": found})
}

func (srv *Server) handleFavoritesClear(w http.ResponseWriter, r *http.Request) {
	if err := srv.favoritesFor(r).Clear(r.Context()); err != nil {
		srv.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	rec, err := srv.settingsFor(r).Get(r.Context())
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	srv.writeJSON(w, r, http.StatusOK, rec)
}

func (srv *Server) handleSettingsPatch(w http.ResponseWriter, r *http.Request) {
	var patch SettingsPatch
	if err := decodeStrict(r, &patch); err != nil {
		srv.writeErr(w, r, fmt.Errorf("%w: %v", ErrInvalidQuery, err))
		return
	}
	rec, err := srv.settingsFor(r).Set(r.Context(), patch)
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	srv.writeJSON(w, r, http.StatusOK, rec)
}

func (srv *Server) handleSettingsReset(w http.ResponseWriter, r *http.Request) {
	rec, err := srv.settingsFor(r).Reset(r.Context())
	if err != nil {
		srv.writeErr(w, r, err)
		return
	}
	srv.writeJSON(w, r, http.StatusOK, rec)
}

func (srv *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, value any) {
	indent := ""
	if srv.cfg.Debug.PrettyJson {
		indent = "  "
	}
	if err := writeJSON(w, r, status, value, indent); err != nil {
		srv.log.Warn("writing response", "path", r.URL.Path, "err", err)
	}
}

func (srv *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		srv.log.Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeError(w, r, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrPaginationDisabled):
		return http.StatusNotFound
	case errors.Is(err, ErrFetchInProgress), errors.Is(err, ErrNoMoreResults), errors.Is(err, ErrStaleResult):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON compresses with brotli or gzip when the client accepts it.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, value any, indent string) error {
	w.Header().Set("Content-Type", "application/json")
	body := brotli.HTTPCompressor(w, r)
	defer body.Close()
	w.WriteHeader(status)
	enc := json.NewEncoder(body)
	enc.SetIndent("", indent)
	return enc.Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	_ = writeJSON(w, r, status, map[string]string{"error": msg}, "")
}

func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidQuery, name, raw)
	}
	return n, nil
}
