// Package ordoclic probes pharmacies booked through app.ordoclic.fr.
// The booking URL carries an entity slug; the public API resolves it
// to an entity id, lists bookable reasons and serves open slots over
// an arbitrary date range.
package ordoclic

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"vitemadose-backend/internal/model"
	"vitemadose-backend/internal/platforms"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("platforms/ordoclic")

const (
	defaultBaseURL = "https://api.ordoclic.fr"
	pageDays       = 14
	defaultHorizon = 28
	defaultTimeout = time.Second * 25
	defaultBudget  = time.Second * 20
)

type Options struct {
	BaseURL     string
	Timeout     time.Duration
	HorizonDays int
	Budget      time.Duration
}

type Adapter struct {
	http  *resty.Client
	cache *lru.Cache[string, *entity]
	opts  Options
}

type entity struct {
	id      string
	reasons []reason
}

type reason struct {
	ID        string
	Label     string
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

	cache, err := lru.New[string, *entity](1024)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		http:  platforms.NewHTTPClient(opts.BaseURL, opts.Timeout, "platforms/ordoclic/http"),
		cache: cache,
		opts:  opts,
	}, nil
}

func (a *Adapter) Platform() model.Platform { return model.Ordoclic }

// parseSlug reads the entity slug off a booking URL like
// https://app.ordoclic.fr/app/pharmacie/pharmacie-de-la-gare-paris
func parseSlug(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	slug := segments[len(segments)-1]
	return slug, slug != ""
}

func (a *Adapter) Fetch(ctx context.Context, req *platforms.ScrapeRequest, emit platforms.Emit) error {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	slug, ok := parseSlug(req.URL)
	if !ok {
		emit(model.NoSlot{Venue: req.Venue})
		return nil
	}

	ent, err := a.resolve(ctx, req, slug)
	if err != nil {
		if errors.Is(err, platforms.ErrBlocked) {
			return err
		}
		emit(model.NoSlot{Venue: req.Venue})
		return nil
	}

	deadline := time.Now().Add(a.opts.Budget)
	emitted := 0

	for _, r := range ent.reasons {
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
			a.pageFunc(ent.id, r.ID),
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

func (a *Adapter) resolve(ctx context.Context, req *platforms.ScrapeRequest, slug string) (*entity, error) {
	if cached, ok := a.cache.Get(slug); ok {
		return cached, nil
	}

	req.Count(platforms.CounterBooking)
	var profile profileResponse
	res, err := a.http.R().
		SetContext(ctx).
		SetResult(&profile).
		Get("/v1/public/entities/profile/" + url.PathEscape(slug))
	if err != nil {
		return nil, err
	}
	if err := platforms.CheckStatus(res); err != nil {
		return nil, err
	}
	if profile.EntityID == "" {
		return nil, fmt.Errorf("no entity for slug %q", slug)
	}

	var reasons reasonsResponse
	res, err = a.http.R().
		SetContext(ctx).
		SetResult(&reasons).
		SetQueryParam("entityId", profile.EntityID).
		Get("/v1/solar/entities/reasons")
	if err != nil {
		return nil, err
	}
	if err := platforms.CheckStatus(res); err != nil {
		return nil, err
	}

	ent := &entity{id: profile.EntityID, reasons: filterReasons(reasons.Reasons)}
	a.cache.Add(slug, ent)
	return ent, nil
}

// filterReasons keeps online-bookable first or booster dose reasons
// naming a recognized vaccine. Ordoclic tags the dose explicitly when
// the label omits it.
func filterReasons(raw []rawReason) []reason {
	var out []reason
	for _, r := range raw {
		if !r.CanBookOnline {
			continue
		}
		vaccine, ok := model.VaccineFromMotive(r.Label)
		if !ok {
			continue
		}
		ranks := model.DoseRanksFromMotive(r.Label)
		if len(ranks) == 0 && r.InjectionDose > 0 {
			ranks = []int{r.InjectionDose}
		}
		if len(ranks) > 0 && !containsAny(ranks, 1, 3) {
			continue
		}
		out = append(out, reason{ID: r.ID, Label: r.Label, Vaccine: vaccine, DoseRanks: ranks})
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

func (a *Adapter) pageFunc(entityID, reasonID string) platforms.PageFunc {
	return func(ctx context.Context, start time.Time) (platforms.Page, error) {
		var body slotsResponse
		res, err := a.http.R().
			SetContext(ctx).
			SetResult(&body).
			SetQueryParams(map[string]string{
				"entityId":  entityID,
				"reasonId":  reasonID,
				"dateStart": start.Format("2006-01-02"),
				"dateEnd":   start.AddDate(0, 0, pageDays).Format("2006-01-02"),
			}).
			Get("/v1/solar/slots/availableSlots")
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
