// Package maiia probes venues booked through www.maiia.com. Maiia
// identifies a venue by the centerid query parameter of its booking
// URL and serves a flat availability window per consultation reason.
package maiia

import (
	"context"
	"errors"
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

var tracer = otel.Tracer("platforms/maiia")

const (
	defaultBaseURL = "https://www.maiia.com"
	pageDays       = 14
	defaultHorizon = 28
	defaultTimeout = time.Second * 25
	defaultBudget  = time.Second * 20
	pageLimit      = 200
)

type Options struct {
	BaseURL     string
	Timeout     time.Duration
	HorizonDays int
	Budget      time.Duration
}

type Adapter struct {
	http  *resty.Client
	cache *lru.Cache[string, []reason]
	opts  Options
}

type reason struct {
	Name      string
	Vaccine   model.Vaccine
	DoseRanks []int
}

func New(opts Options) (*Adapter, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
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

	cache, err := lru.New[string, []reason](1024)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		http:  platforms.NewHTTPClient(opts.BaseURL, opts.Timeout, "platforms/maiia/http"),
		cache: cache,
		opts:  opts,
	}, nil
}

func (a *Adapter) Platform() model.Platform { return model.Maiia }

// parseCenterID extracts the center id pinned in the booking URL, for
// example https://www.maiia.com/centre-de-vaccination/75011-paris/centre-x?centerid=5ffc...
func parseCenterID(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	id := u.Query().Get("centerid")
	if id == "" {
		id = u.Query().Get("centerId")
	}
	return id, id != ""
}

func (a *Adapter) Fetch(ctx context.Context, req *platforms.ScrapeRequest, emit platforms.Emit) error {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	centerID, ok := parseCenterID(req.URL)
	if !ok {
		emit(model.NoSlot{Venue: req.Venue})
		return nil
	}

	reasons, err := a.consultationReasons(ctx, req, centerID)
	if err != nil {
		if errors.Is(err, platforms.ErrBlocked) {
			return err
		}
		emit(model.NoSlot{Venue: req.Venue})
		return nil
	}

	deadline := time.Now().Add(a.opts.Budget)
	emitted := 0

	for _, r := range reasons {
		req.Count(platforms.CounterMotives)
		if time.Now().After(deadline) {
			break
		}

		walk := platforms.WalkOptions{
			PageDays:    pageDays,
			HorizonDays: a.opts.HorizonDays,
			Budget:      time.Until(deadline),
		}
		r := r
		err := platforms.WalkCalendar(ctx, req, walk,
			a.pageFunc(centerID, r.Name),
			func(when time.Time) {
				emitted++
				emit(model.Slot{
					Venue:      req.Venue,
					When:       when,
					BookingURL: req.URL,
					Vaccines:   []model.Vaccine{r.Vaccine},
					DoseRanks:  r.DoseRanks,
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

func (a *Adapter) consultationReasons(ctx context.Context, req *platforms.ScrapeRequest, centerID string) ([]reason, error) {
	if cached, ok := a.cache.Get(centerID); ok {
		return cached, nil
	}

	req.Count(platforms.CounterBooking)
	var body reasonsResponse
	res, err := a.http.R().
		SetContext(ctx).
		SetResult(&body).
		SetQueryParam("rootCenterId", centerID).
		Get("/api/pat-public/consultation-reason-hcd")
	if err != nil {
		return nil, err
	}
	if err := platforms.CheckStatus(res); err != nil {
		return nil, err
	}

	reasons := filterReasons(body.Items)
	a.cache.Add(centerID, reasons)
	return reasons, nil
}

// filterReasons keeps online-bookable first or booster dose reasons
// naming a recognized vaccine.
func filterReasons(items []consultationReason) []reason {
	var out []reason
	for _, item := range items {
		if !strings.Contains(strings.ToLower(item.Name), "vaccin") {
			continue
		}
		if item.InjectionType != "" && !strings.EqualFold(item.InjectionType, "COVID") {
			continue
		}
		vaccine, ok := model.VaccineFromMotive(item.Name)
		if !ok {
			continue
		}
		ranks := model.DoseRanksFromMotive(item.Name)
		if len(ranks) > 0 && !containsAny(ranks, 1, 3) {
			continue
		}
		out = append(out, reason{Name: item.Name, Vaccine: vaccine, DoseRanks: ranks})
	}
	return out
}

func containsAny(haystack []int, wanted ...int) bool {
	for _, h := range haystack {
		for _, w := range wanted {
			if h == w {
				return true
			}
		}
	}
	return false
}

func (a *Adapter) pageFunc(centerID, reasonName string) platforms.PageFunc {
	return func(ctx context.Context, start time.Time) (platforms.Page, error) {
		var body availabilitiesResponse
		res, err := a.http.R().
			SetContext(ctx).
			SetResult(&body).
			SetQueryParams(map[string]string{
				"centerId":               centerID,
				"consultationReasonName": reasonName,
				"from":                   start.Format("2006-01-02"),
				"to":                     start.AddDate(0, 0, pageDays).Format("2006-01-02"),
				"limit":                  strconv.Itoa(pageLimit),
			}).
			Get("/api/pat-public/availabilities")
		if err != nil {
			return platforms.Page{}, err
		}
		if err := platforms.CheckStatus(res); err != nil {
			return platforms.Page{}, err
		}
		return body.page(), nil
	}
}

var _ platforms.Adapter = (*Adapter)(nil)
