// Package mapharma probes pharmacies booked through mapharma.net.
// A venue is addressed by its URL slug plus the campaign pinned by the
// c query parameter; slots come back as local wall-clock times grouped
// by day.
package mapharma

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

var tracer = otel.Tracer("platforms/mapharma")

const (
	defaultBaseURL = "https://mapharma.net"
	pageDays       = 7
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
	cache *lru.Cache[string, []campaign]
	opts  Options
}

type campaign struct {
	ID        int
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

	cache, err := lru.New[string, []campaign](1024)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		http:  platforms.NewHTTPClient(opts.BaseURL, opts.Timeout, "platforms/mapharma/http"),
		cache: cache,
		opts:  opts,
	}, nil
}

func (a *Adapter) Platform() model.Platform { return model.Mapharma }

type handle struct {
	slug string
	// campaign pinned by the booking URL, 0 when absent
	campaignID int
}

// parseHandle reads a booking URL like https://mapharma.net/11000?c=60&l=1
func parseHandle(raw string) (handle, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return handle{}, false
	}
	slug := strings.Trim(u.Path, "/")
	if slug == "" {
		return handle{}, false
	}
	var id int
	fmt.Sscanf(u.Query().Get("c"), "%d", &id)
	return handle{slug: slug, campaignID: id}, true
}

func (a *Adapter) Fetch(ctx context.Context, req *platforms.ScrapeRequest, emit platforms.Emit) error {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	h, ok := parseHandle(req.URL)
	if !ok {
		emit(model.NoSlot{Venue: req.Venue})
		return nil
	}

	campaigns, err := a.campaigns(ctx, req, h)
	if err != nil {
		if errors.Is(err, platforms.ErrBlocked) {
			return err
		}
		emit(model.NoSlot{Venue: req.Venue})
		return nil
	}

	deadline := time.Now().Add(a.opts.Budget)
	emitted := 0

	for _, c := range campaigns {
		req.Count(platforms.CounterMotives)
		if time.Now().After(deadline) {
			break
		}

		walk := platforms.WalkOptions{
			PageDays:    pageDays,
			HorizonDays: a.opts.HorizonDays,
			Budget:      time.Until(deadline),
		}
		c := c
		err := platforms.WalkCalendar(ctx, req, walk,
			a.pageFunc(h.slug, c.ID),
			func(when time.Time) {
				emitted++
				emit(model.Slot{
					Venue:      req.Venue,
					When:       when,
					BookingURL: req.URL,
					Vaccines:   []model.Vaccine{c.Vaccine},
					DoseRanks:  c.DoseRanks,
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

func (a *Adapter) campaigns(ctx context.Context, req *platforms.ScrapeRequest, h handle) ([]campaign, error) {
	if cached, ok := a.cache.Get(h.slug); ok {
		return selectCampaigns(cached, h.campaignID), nil
	}

	req.Count(platforms.CounterBooking)
	var body []rawCampaign
	res, err := a.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("/%s/campaigns.json", url.PathEscape(h.slug)))
	if err != nil {
		return nil, err
	}
	if err := platforms.CheckStatus(res); err != nil {
		return nil, err
	}

	campaigns := filterCampaigns(body)
	a.cache.Add(h.slug, campaigns)
	return selectCampaigns(campaigns, h.campaignID), nil
}

// filterCampaigns keeps first or booster dose vaccination campaigns
// naming a recognized vaccine.
func filterCampaigns(raw []rawCampaign) []campaign {
	var out []campaign
	for _, c := range raw {
		if !strings.Contains(strings.ToLower(c.Name), "vaccin") && !strings.EqualFold(c.Type, "COVID") {
			continue
		}
		vaccine, ok := model.VaccineFromMotive(c.Name)
		if !ok {
			continue
		}
		ranks := model.DoseRanksFromMotive(c.Name)
		if len(ranks) > 0 && !containsAny(ranks, 1, 3) {
			continue
		}
		out = append(out, campaign{ID: c.ID, Name: c.Name, Vaccine: vaccine, DoseRanks: ranks})
	}
	return out
}

// selectCampaigns honors a campaign pinned by the booking URL.
func selectCampaigns(campaigns []campaign, pinned int) []campaign {
	if pinned == 0 {
		return campaigns
	}
	for _, c := range campaigns {
		if c.ID == pinned {
			return []campaign{c}
		}
	}
	return nil
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

func (a *Adapter) pageFunc(slug string, campaignID int) platforms.PageFunc {
	return func(ctx context.Context, start time.Time) (platforms.Page, error) {
		var body slotsResponse
		res, err := a.http.R().
			SetContext(ctx).
			SetResult(&body).
			SetQueryParam("date", start.Format("2006-01-02")).
			Get(fmt.Sprintf("/%s/campaigns/%d/slots.json", url.PathEscape(slug), campaignID))
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
