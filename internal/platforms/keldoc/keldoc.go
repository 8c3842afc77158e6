// Package keldoc probes venues booked through
// vaccination-covid.keldoc.com. The public venue URL is only a vanity
// address: the real resource ids live in the query string of the
// redirect it issues, so resolving the handle costs one extra round
// trip (cached per venue for the scan).
package keldoc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vitemadose-backend/internal/model"
	"vitemadose-backend/internal/platforms"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("platforms/keldoc")

const (
	defaultBaseURL = "https://vaccination-covid.keldoc.com"
	defaultAPIURL  = "https://booking.keldoc.com"
	pageDays       = 14
	defaultHorizon = 28
	defaultTimeout = time.Second * 25
	defaultBudget  = time.Second * 20
)

type Options struct {
	BaseURL     string
	APIURL      string
	Timeout     time.Duration
	HorizonDays int
	Budget      time.Duration
}

type Adapter struct {
	front *resty.Client
	api   *resty.Client
	cache *lru.Cache[string, *resource]
	opts  Options
}

// resource is the resolved venue descriptor: the redirect target ids
// plus the motives already filtered down to bookable vaccination ones.
type resource struct {
	cabinetID int
	motives   []motive
}

type motive struct {
	ID        int
	Name      string
	AgendaIds []int
	Vaccine   model.Vaccine
	DoseRanks []int
}

func New(opts Options) (*Adapter, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.APIURL == "" {
		opts.APIURL = defaultAPIURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = defaultHorizon
	}
	if opts.Budget <= 0 {
		opts.Budget = defaultBudget
	}

	cache, err := lru.New[string, *resource](1024)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		front: platforms.NewHTTPClient(opts.BaseURL, opts.Timeout, "platforms/keldoc/front"),
		api:   platforms.NewHTTPClient(opts.APIURL, opts.Timeout, "platforms/keldoc/api"),
		cache: cache,
		opts:  opts,
	}, nil
}

func (a *Adapter) Platform() model.Platform { return model.Keldoc }

func (a *Adapter) Fetch(ctx context.Context, req *platforms.ScrapeRequest, emit platforms.Emit) error {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	res, err := a.resolve(ctx, req)
	if err != nil {
		if errors.Is(err, platforms.ErrBlocked) {
			return err
		}
		emit(model.NoSlot{Venue: req.Venue})
		return nil
	}

	deadline := time.Now().Add(a.opts.Budget)
	emitted := 0

	for _, m := range res.motives {
		req.Count(platforms.CounterMotives)
		if time.Now().After(deadline) {
			break
		}

		walk := platforms.WalkOptions{
			PageDays:    pageDays,
			HorizonDays: a.opts.HorizonDays,
			Budget:      time.Until(deadline),
		}
		m := m
		err := platforms.WalkCalendar(ctx, req, walk,
			a.pageFunc(m),
			func(when time.Time) {
				emitted++
				emit(model.Slot{
					Venue:      req.Venue,
					When:       when,
					BookingURL: req.URL,
					Vaccines:   []model.Vaccine{m.Vaccine},
					DoseRanks:  m.DoseRanks,
				})
			},
		)
		if errors.Is(err, platforms.ErrBlocked) {
			return err
		}
	}

	if emitted == 0 {
		emit(model.NoSlot{Venue: req.Venue})
	}
	return nil
}

type redirectParams struct {
	dom  string
	inst string
	user string
}

// parsePath keeps the venue path as the cache key.
func parsePath(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || strings.Trim(u.Path, "/") == "" {
		return "", false
	}
	return u.Path, true
}

// resolve follows the vanity URL redirect and loads the cabinet's
// motive categories, cached per venue path.
func (a *Adapter) resolve(ctx context.Context, req *platforms.ScrapeRequest) (*resource, error) {
	path, ok := parsePath(req.URL)
	if !ok {
		return nil, fmt.Errorf("no venue path in %q", req.URL)
	}
	if cached, ok := a.cache.Get(path); ok {
		return cached, nil
	}

	req.Count(platforms.CounterBooking)
	params, err := a.followRedirect(ctx, path)
	if err != nil {
		return nil, err
	}

	var cabinets cabinetsResponse
	res, err := a.api.R().
		SetContext(ctx).
		SetResult(&cabinets).
		SetQueryParams(map[string]string{
			"type":        params.dom,
			"location":    params.inst,
			"destination": params.user,
		}).
		Get("/api/patients/v2/searches/resource")
	if err != nil {
		return nil, err
	}
	if err := platforms.CheckStatus(res); err != nil {
		return nil, err
	}
	if len(cabinets.Cabinets) == 0 {
		return nil, fmt.Errorf("no cabinet for %q", path)
	}
	cabinet := cabinets.Cabinets[0]

	var categories []motiveCategory
	res, err = a.api.R().
		SetContext(ctx).
		SetResult(&categories).
		Get(fmt.Sprintf("/api/patients/v2/cabinets/%d/motive_categories", cabinet.ID))
	if err != nil {
		return nil, err
	}
	if err := platforms.CheckStatus(res); err != nil {
		return nil, err
	}

	resolved := &resource{
		cabinetID: cabinet.ID,
		motives:   filterMotives(categories),
	}
	a.cache.Add(path, resolved)
	return resolved, nil
}

// followRedirect issues the vanity-URL request and reads the resource
// ids off the redirect target's query string.
func (a *Adapter) followRedirect(ctx context.Context, path string) (redirectParams, error) {
	res, err := a.front.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return redirectParams{}, err
	}
	if err := platforms.CheckStatus(res); err != nil {
		return redirectParams{}, err
	}

	final := res.RawResponse.Request.URL.Query()
	params := redirectParams{
		dom:  final.Get("dom"),
		inst: final.Get("inst"),
		user: final.Get("user"),
	}
	if params.inst == "" && params.user == "" {
		return redirectParams{}, fmt.Errorf("redirect for %q carries no resource ids", path)
	}
	return params, nil
}

// keldoc motives carry no vaccination flag: the category name is the
// only signal.
func filterMotives(categories []motiveCategory) []motive {
	var out []motive
	for _, cat := range categories {
		if !strings.Contains(strings.ToLower(cat.Name), "vaccin") {
			continue
		}
		for _, m := range cat.Motives {
			vaccine, ok := model.VaccineFromMotive(m.Name)
			if !ok {
				continue
			}
			ranks := model.DoseRanksFromMotive(m.Name)
			if len(ranks) > 0 && !serveFirstOrBooster(ranks) {
				continue
			}
			out = append(out, motive{
				ID:        m.ID,
				Name:      m.Name,
				AgendaIds: m.AgendaIds,
				Vaccine:   vaccine,
				DoseRanks: ranks,
			})
		}
	}
	return out
}

func serveFirstOrBooster(ranks []int) bool {
	for _, r := range ranks {
		if r == 1 || r == 3 {
			return true
		}
	}
	return false
}

func (a *Adapter) pageFunc(m motive) platforms.PageFunc {
	return func(ctx context.Context, start time.Time) (platforms.Page, error) {
		var body timetableResponse
		res, err := a.api.R().
			SetContext(ctx).
			SetResult(&body).
			SetQueryParams(map[string]string{
				"from":       start.Format("2006-01-02"),
				"to":         start.AddDate(0, 0, pageDays).Format("2006-01-02"),
				"agenda_ids": joinInts(m.AgendaIds),
			}).
			Get(fmt.Sprintf("/api/patients/v2/timetables/%d", m.ID))
		if err != nil {
			return platforms.Page{}, err
		}
		if err := platforms.CheckStatus(res); err != nil {
			return platforms.Page{}, err
		}
		return body.page()
	}
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

var _ platforms.Adapter = (*Adapter)(nil)
