package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"econscour/internal/aggregate"
	"econscour/internal/pipeline"
	"econscour/internal/session"
	"econscour/internal/view"
	"econscour/pkg/apierror"
	"econscour/pkg/response"

	"github.com/go-chi/chi/v5"
)

// TopItems is the length of the held and moved rankings in the summary.
const TopItems = 5

// MaxPageSize caps the limit query parameter.
const MaxPageSize = 1000

// EconHandler serves the data of the last completed load.
type EconHandler struct {
	session   *session.Controller
	chunkSize int
}

// NewEconHandler creates an econ data handler.
func NewEconHandler(s *session.Controller) *EconHandler {
	return &EconHandler{
		session:   s,
		chunkSize: s.Loader().Config().ChunkSize,
	}
}

// SummaryResponse is the body of GET /api/v1/summary.
type SummaryResponse struct {
	Start    string                 `json:"start"`
	End      string                 `json:"end"`
	Totals   aggregate.Totals       `json:"totals"`
	TopHeld  []aggregate.ItemCount  `json:"top_held"`
	TopMoved []aggregate.ItemCount  `json:"top_moved"`
	Ships    int                    `json:"ships"`
	Records  int                    `json:"records"`
	Policy   string                 `json:"policy"`
	Failed   []pipeline.DateFailure `json:"failed"`
	Dropped  int                    `json:"dropped"`
	Filtered int                    `json:"filtered"`
}

// Summary handles GET /api/v1/summary
func (h *EconHandler) Summary(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.Result()
	if err != nil {
		writeError(w, err)
		return
	}

	failed := res.Failed
	if failed == nil {
		failed = []pipeline.DateFailure{}
	}
	response.WithWarnings(w, SummaryResponse{
		Start:    res.Start.String(),
		End:      res.End.String(),
		Totals:   res.Totals,
		TopHeld:  aggregate.Named(aggregate.TopN(res.Totals.ItemsHeld, TopItems), res.Schema),
		TopMoved: aggregate.Named(aggregate.TopN(res.Totals.ItemsMoved, TopItems), res.Schema),
		Ships:    res.Ships.Len(),
		Records:  len(res.Records),
		Policy:   string(res.Policy),
		Failed:   failed,
		Dropped:  res.Dropped,
		Filtered: res.Filtered,
	}, res.Warnings)
}

// Records handles GET /api/v1/records
//
// Filters: q, item, src, dst, hide_bots, ships_only, ship_names. Windowing uses
// offset and limit when offset is present, page and limit otherwise.
func (h *EconHandler) Records(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.Result()
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	query := view.Query{
		Text:        q.Get("q"),
		Item:        q.Get("item"),
		Source:      q.Get("src"),
		Destination: q.Get("dst"),
	}
	var shipNames bool
	flags := []struct {
		name string
		dst  *bool
	}{
		{"hide_bots", &query.HideBots},
		{"ships_only", &query.ShipsOnly},
		{"ship_names", &shipNames},
	}
	for _, f := range flags {
		if *f.dst, err = boolParam(q.Get(f.name)); err != nil {
			response.Error(w, badParam(f.name, err))
			return
		}
	}
	if shipNames {
		query.ShipNames = res.Ships.LatestName
	}

	rows, err := view.Filter(r.Context(), res.Records, query, res.Schema, h.chunkSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, rows)
}

// Ships handles GET /api/v1/ships
//
// q filters the latest state by name, hex code or date; name matches any past
// name with * wildcards.
func (h *EconHandler) Ships(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.Result()
	if err != nil {
		writeError(w, err)
		return
	}

	latest := res.Ships.Latest(res.Schema)
	if pattern := r.URL.Query().Get("name"); pattern != "" {
		matched := make(map[string]aggregate.ShipState)
		for _, hex := range res.Ships.Search(pattern) {
			matched[hex] = latest[hex]
		}
		latest = matched
	}
	writePage(w, r, view.FilterShips(latest, r.URL.Query().Get("q")))
}

// ShipHistory handles GET /api/v1/ships/{hex}/history
func (h *EconHandler) ShipHistory(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.Result()
	if err != nil {
		writeError(w, err)
		return
	}

	hex := chi.URLParam(r, "hex")
	hist := res.Ships.History(hex)
	if len(hist) == 0 {
		response.Error(w, apierror.NotFound(fmt.Sprintf("ship %s not seen in the loaded range", hex)))
		return
	}
	response.OK(w, map[string]any{
		"hex_code": hist[0].HexCode,
		"names":    res.Ships.Names(hex),
		"history":  hist,
	})
}

// Items handles GET /api/v1/items
func (h *EconHandler) Items(w http.ResponseWriter, r *http.Request) {
	schema, err := h.session.Loader().ItemSchema(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, view.FilterItems(schema.Entries(), r.URL.Query().Get("q")))
}

// BotDrops handles GET /api/v1/bot-drops
func (h *EconHandler) BotDrops(w http.ResponseWriter, r *http.Request) {
	text, err := h.session.Loader().BotDrops(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]any{
		"content": text,
		"lines":   strings.Count(text, "\n") + 1,
	})
}

func boolParam(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func intParam(r *http.Request, name string, def int) (int, *apierror.Error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		if err == nil {
			err = fmt.Errorf("must not be negative")
		}
		return 0, badParam(name, err)
	}
	return n, nil
}

// writePage windows items by offset/limit or page/limit and writes them with
// pagination metadata.
func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	limit, apiErr := intParam(r, "limit", view.DefaultPageSize)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	limit = min(max(limit, 1), MaxPageSize)

	if r.URL.Query().Has("offset") {
		offset, apiErr := intParam(r, "offset", 0)
		if apiErr != nil {
			response.Error(w, apiErr)
			return
		}
		response.JSONWithMeta(w, http.StatusOK, view.Window(items, offset, limit), response.Meta{
			Page:       offset/limit + 1,
			Limit:      limit,
			Total:      len(items),
			TotalPages: (len(items) + limit - 1) / limit,
		})
		return
	}

	page, apiErr := intParam(r, "page", 1)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	p := view.Paginate(items, page, limit)
	response.JSONWithMeta(w, http.StatusOK, p.Items, response.Meta{
		Page:       p.Page,
		Limit:      p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	})
}
