// Package doctolib probes venues booked through partners.doctolib.fr,
// the platform carrying the bulk of the registry. Doctolib actively
// rate-limits scrapers, hence the cloudflare bypass on the transport
// and the shared booking-info cache.
package doctolib

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vitemadose-backend/internal/model"
	"vitemadose-backend/internal/platforms"
	"vitemadose-backend/lib/timezone"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("platforms/doctolib")

const (
	defaultBaseURL  = "https://partners.doctolib.fr"
	pageDays        = 7
	defaultHorizon  = 49
	defaultTimeout  = time.Second * 25
	defaultBudget   = time.Second * 20
	defaultCacheCap = 2048
)

type Options struct {
	BaseURL     string
	Timeout     time.Duration
	HorizonDays int
	Budget      time.Duration
	// motive names containing any of these are skipped outright
	ExcludedMotives []string
}

type Adapter struct {
	http  *resty.Client
	cache *lru.Cache[string, *bookingData]
	opts  Options
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

	client := platforms.NewHTTPClient(opts.BaseURL, opts.Timeout, "platforms/doctolib/http")
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	cache, err := lru.New[string, *bookingData](defaultCacheCap)
	if err != nil {
		return nil, err
	}

	return &Adapter{http: client, cache: cache, opts: opts}, nil
}

func (a *Adapter) Platform() model.Platform { return model.Doctolib }

// parseHandle extracts the center slug from a booking URL like
// https://partners.doctolib.fr/vaccination-covid-19/paris/centre-x?pid=practice-123
func parseHandle(raw string) (slug string, practiceID int, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[len(segments)-1] == "" {
		return "", 0, false
	}
	slug = segments[len(segments)-1]

	pid := u.Query().Get("pid")
	pid = strings.TrimPrefix(pid, "practice-")
	practiceID, _ = strconv.Atoi(pid)
	return slug, practiceID, true
}

func (a *Adapter) Fetch(ctx context.Context, req *platforms.ScrapeRequest, emit platforms.Emit) error {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	slug, practiceID, ok := parseHandle(req.URL)
	if !ok {
		emit(model.NoSlot{Venue: req.Venue})
		return nil
	}

	booking, err := a.bookingInfo(ctx, req, slug)
	if err != nil {
		if errors.Is(err, platforms.ErrBlocked) {
			return err
		}
		emit(model.NoSlot{Venue: req.Venue})
		return nil
	}

	motives := a.filterMotives(booking.VisitMotives)
	deadline := time.Now().Add(a.opts.Budget)
	emitted := 0

	for _, m := range motives {
		req.Count(platforms.CounterMotives)
		if time.Now().After(deadline) {
			// budget spent: remaining motives short-circuit
			break
		}

		agendaIds, practiceIds := agendasForMotive(booking.Agendas, m.ID, practiceID)
		if len(agendaIds) == 0 {
			continue
		}

		vaccine, _ := model.VaccineFromMotive(m.Name)
		ranks := model.DoseRanksFromMotive(m.Name)

		walk := platforms.WalkOptions{
			PageDays:    pageDays,
			HorizonDays: a.opts.HorizonDays,
			Budget:      time.Until(deadline),
		}
		err := platforms.WalkCalendar(ctx, req, walk,
			a.pageFunc(slug, m.ID, agendaIds, practiceIds, req),
			func(when time.Time) {
				emitted++
				emit(model.Slot{
					Venue:      req.Venue,
					When:       when,
					BookingURL: req.URL,
					Vaccines:   []model.Vaccine{vaccine},
					DoseRanks:  ranks,
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

// bookingInfo fetches the venue descriptor, deduplicated by slug for
// the lifetime of the scan. On the largest platform well over 30% of
// probes share a slug with an earlier probe.
func (a *Adapter) bookingInfo(ctx context.Context, req *platforms.ScrapeRequest, slug string) (*bookingData, error) {
	if cached, ok := a.cache.Get(slug); ok {
		return cached, nil
	}

	req.Count(platforms.CounterBooking)
	var body bookingResponse
	res, err := a.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/booking/" + url.PathEscape(slug) + ".json")
	if err != nil {
		return nil, err
	}
	if err := platforms.CheckStatus(res); err != nil {
		return nil, err
	}

	// single-writer-wins: a concurrent fill for the same slug is
	// harmless and bounded by the venue count
	a.cache.Add(slug, &body.Data)
	return &body.Data, nil
}

// filterMotives keeps motives that are vaccination motives for the
// general public, open to new patients, serving a first or booster
// dose of a recognized vaccine. Second doses are excluded: platforms
// auto-schedule them with the first.
func (a *Adapter) filterMotives(motives []visitMotive) []visitMotive {
	var out []visitMotive
	for _, m := range motives {
		if !m.VaccinationMotive || m.ForHealthProfessionals || !m.AllowNewPatients {
			continue
		}
		if a.excluded(m.Name) {
			continue
		}
		if _, ok := model.VaccineFromMotive(m.Name); !ok {
			continue
		}
		ranks := model.DoseRanksFromMotive(m.Name)
		if len(ranks) > 0 && !containsAny(ranks, 1, 3) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (a *Adapter) excluded(name string) bool {
	lower := strings.ToLower(name)
	for _, needle := range a.opts.ExcludedMotives {
		if strings.Contains(lower, strings.ToLower(needle)) {
			return true
		}
	}
	return false
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

// agendasForMotive selects the agendas serving a motive, restricted to
// one practice when the booking URL pins it with a pid parameter.
func agendasForMotive(agendas []agenda, motiveID, practiceID int) (agendaIds, practiceIds []int) {
	seenPractices := map[int]bool{}
	for _, ag := range agendas {
		if ag.BookingDisabled || ag.BookingTemporaryDisabled {
			continue
		}
		if practiceID != 0 && ag.PracticeID != practiceID {
			continue
		}
		for _, id := range ag.VisitMotiveIds {
			if id != motiveID {
				continue
			}
			agendaIds = append(agendaIds, ag.ID)
			if !seenPractices[ag.PracticeID] {
				seenPractices[ag.PracticeID] = true
				practiceIds = append(practiceIds, ag.PracticeID)
			}
			break
		}
	}
	return agendaIds, practiceIds
}

func (a *Adapter) pageFunc(slug string, motiveID int, agendaIds, practiceIds []int, req *platforms.ScrapeRequest) platforms.PageFunc {
	return func(ctx context.Context, start time.Time) (platforms.Page, error) {
		var body availabilitiesResponse
		res, err := a.http.R().
			SetContext(ctx).
			SetResult(&body).
			SetQueryParams(map[string]string{
				"start_date":       start.Format("2006-01-02"),
				"visit_motive_ids": strconv.Itoa(motiveID),
				"agenda_ids":       joinInts(agendaIds),
				"practice_ids":     joinInts(practiceIds),
				"limit":            strconv.Itoa(pageDays),
			}).
			Get("/availabilities.json")
		if err != nil {
			return platforms.Page{}, err
		}
		if err := platforms.CheckStatus(res); err != nil {
			return platforms.Page{}, err
		}

		var page platforms.Page
		for _, day := range body.Availabilities {
			page.Slots = append(page.Slots, day.times()...)
		}
		if body.NextSlot != "" {
			if next, err := time.ParseInLocation("2006-01-02", body.NextSlot, timezone.Location); err == nil {
				page.NextSlot = &next
			} else if next, err := parseSlotTime(body.NextSlot); err == nil {
				page.NextSlot = &next
			}
		}
		return page, nil
	}
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, "-")
}

var _ platforms.Adapter = (*Adapter)(nil)
