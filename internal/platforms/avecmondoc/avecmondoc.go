// Package avecmondoc probes practitioners booked through
// patient.avecmondoc.com. The platform has no public venue endpoint:
// the practitioner descriptor is embedded as JSON in the booking page,
// so the adapter scrapes the page and reads the payload out of the
// __NEXT_DATA__ script tag.
package avecmondoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vitemadose-backend/internal/model"
	"vitemadose-backend/internal/platforms"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("platforms/avecmondoc")

const (
	defaultBaseURL = "https://patient.avecmondoc.com"
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
	cache *lru.Cache[string, *doctor]
	opts  Options
}

type doctor struct {
	ID      int
	Reasons []reason
}

type reason struct {
	ID        int
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

	cache, err := lru.New[string, *doctor](1024)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		http:  platforms.NewHTTPClient(opts.BaseURL, opts.Timeout, "platforms/avecmondoc/http"),
		cache: cache,
		opts:  opts,
	}, nil
}

func (a *Adapter) Platform() model.Platform { return model.Avecmondoc }

// parseSlug reads a booking URL like
// https://patient.avecmondoc.com/fiche/pharmacie-des-halles-tours
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

	doc, err := a.resolve(ctx, req, slug)
	if err != nil {
		if errors.Is(err, platforms.ErrBlocked) {
			return err
		}
		emit(model.NoSlot{Venue: req.Venue})
		return nil
	}

	deadline := time.Now().Add(a.opts.Budget)
	emitted := 0

	for _, r := range doc.Reasons {
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
			a.pageFunc(doc.ID, r.ID),
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

// resolve scrapes the booking page and extracts the practitioner
// payload embedded in the __NEXT_DATA__ script tag, cached per slug.
func (a *Adapter) resolve(ctx context.Context, req *platforms.ScrapeRequest, slug string) (*doctor, error) {
	if cached, ok := a.cache.Get(slug); ok {
		return cached, nil
	}

	req.Count(platforms.CounterBooking)
	res, err := a.http.R().
		SetContext(ctx).
		Get("/fiche/" + url.PathEscape(slug))
	if err != nil {
		return nil, err
	}
	if err := platforms.CheckStatus(res); err != nil {
		return nil, err
	}

	doc, err := parseBookingPage(res.Body())
	if err != nil {
		return nil, fmt.Errorf("booking page for %q: %w", slug, err)
	}
	a.cache.Add(slug, doc)
	return doc, nil
}

func parseBookingPage(body []byte) (*doctor, error) {
	page, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	payload := page.Find("script#__NEXT_DATA__").First().Text()
	if payload == "" {
		return nil, errors.New("no __NEXT_DATA__ payload")
	}

	var data nextData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, err
	}
	d := data.Props.PageProps.Doctor
	if d.ID == 0 {
		return nil, errors.New("no practitioner in payload")
	}

	return &doctor{ID: d.ID, Reasons: filterReasons(d.ConsultationReasons)}, nil
}

// filterReasons keeps in-person first or booster dose vaccination
// reasons naming a recognized vaccine.
func filterReasons(raw []rawReason) []reason {
	var out []reason
	for _, r := range raw {
		if r.VisioOnly {
			continue
		}
		vaccine, ok := model.VaccineFromMotive(r.Label)
		if !ok {
			continue
		}
		ranks := model.DoseRanksFromMotive(r.Label)
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

func (a *Adapter) pageFunc(doctorID, reasonID int) platforms.PageFunc {
	return func(ctx context.Context, start time.Time) (platforms.Page, error) {
		var body schedulesResponse
		res, err := a.http.R().
			SetContext(ctx).
			SetResult(&body).
			SetQueryParams(map[string]string{
				"doctorId": strconv.Itoa(doctorID),
				"reasonId": strconv.Itoa(reasonID),
				"from":     start.Format("2006-01-02"),
				"to":       start.AddDate(0, 0, pageDays).Format("2006-01-02"),
			}).
			Get("/api/Schedules/available")
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
