// Package aggregator folds the slot-event stream into the published
// resources: the national snapshot, one snapshot per département and
// the per-département 8-day daily rollup. The fold is single-consumer
// and order-independent: every update is a commutative min, max or
// insert-once operation.
package aggregator

import (
	"log/slog"
	"time"

	"vitemadose-backend/internal/departements"
	"vitemadose-backend/internal/model"
	"vitemadose-backend/lib/timezone"
)

// rollup tags, a closed set. Adding one is an output format change.
const (
	TagAll        = "all"
	TagPreco18_55 = "preco18_55"
)

const rollupDays = 8

// schedule buckets counted per venue, relative to the scan start
type scheduleBucket struct {
	name string
	days int
}

var scheduleBuckets = []scheduleBucket{
	{"chronodose", 2},
	{"1_days", 1},
	{"2_days", 2},
	{"7_days", 7},
	{"28_days", 28},
	{"49_days", 49},
}

type Options struct {
	// booster-only slots count only when they serve one of these;
	// empty allows every vaccine
	BoosterVaccines []model.Vaccine
	// slots serving only dose ranks above this are excluded from the
	// snapshots; 0 disables the cut
	MaxDose int
}

type centerState struct {
	venue *model.Venue
	// output name, rewritten during name deduplication
	displayName string
	phoneOnly   bool
	sawSlot     bool
	count       int
	earliest    time.Time
	vaccines    map[model.Vaccine]bool
	schedules   map[string]int
}

type Aggregator struct {
	opts  Options
	start time.Time
	// the 8 calendar dates of the rollup window, Paris local
	window []string
	inWindow map[string]bool

	centers map[string]*centerState
	// dep → date → internal id → tag → count
	rollup map[string]map[string]map[string]map[string]int
}

func New(start time.Time, opts Options) *Aggregator {
	a := &Aggregator{
		opts:     opts,
		start:    start,
		inWindow: map[string]bool{},
		centers:  map[string]*centerState{},
		rollup:   map[string]map[string]map[string]map[string]int{},
	}
	day := timezone.Day(start)
	for i := 0; i < rollupDays; i++ {
		date := day.AddDate(0, 0, i).Format("2006-01-02")
		a.window = append(a.window, date)
		a.inWindow[date] = true
	}
	return a
}

// Consume folds one event. Not safe for concurrent use: the aggregator
// is the single consumer of the event channel.
func (a *Aggregator) Consume(e model.Event) {
	venue := e.EventVenue()

	state, ok := a.centers[venue.InternalID]
	if !ok {
		state = &centerState{
			venue:       venue,
			displayName: venue.Name,
			vaccines:    map[model.Vaccine]bool{},
			schedules:   map[string]int{},
		}
		a.centers[venue.InternalID] = state
	} else if state.venue != venue && state.venue.URL != venue.URL {
		slog.Warn("duplicate internal id, event dropped",
			"internal_id", venue.InternalID,
			"kept", state.venue.URL, "dropped", venue.URL)
		return
	}

	switch ev := e.(type) {
	case model.Slot:
		a.consumeSlot(state, ev)
	case model.NoSlot:
		if ev.PhoneOnly {
			state.phoneOnly = true
		}
	}
}

func (a *Aggregator) consumeSlot(state *centerState, slot model.Slot) {
	if a.excluded(slot) {
		return
	}

	// a single slot flips the venue to available for the whole scan
	state.sawSlot = true
	state.count++
	if state.earliest.IsZero() || slot.When.Before(state.earliest) {
		state.earliest = slot.When
	}
	for _, v := range slot.Vaccines {
		state.vaccines[v] = true
	}
	for _, bucket := range scheduleBuckets {
		if slot.When.Before(a.start.AddDate(0, 0, bucket.days)) {
			state.schedules[bucket.name]++
		}
	}

	a.count(state.venue, slot)
}

// excluded applies the dose-rank output filters.
func (a *Aggregator) excluded(slot model.Slot) bool {
	if len(slot.DoseRanks) == 0 {
		return false
	}
	if a.opts.MaxDose > 0 {
		min := slot.DoseRanks[0]
		for _, r := range slot.DoseRanks[1:] {
			if r < min {
				min = r
			}
		}
		if min > a.opts.MaxDose && !a.boosterAllowed(slot) {
			return true
		}
	}
	if boosterOnly(slot.DoseRanks) && !a.boosterAllowed(slot) {
		return true
	}
	return false
}

func boosterOnly(ranks []int) bool {
	for _, r := range ranks {
		if r != 3 {
			return false
		}
	}
	return len(ranks) > 0
}

func (a *Aggregator) boosterAllowed(slot model.Slot) bool {
	if len(a.opts.BoosterVaccines) == 0 {
		return true
	}
	for _, v := range slot.Vaccines {
		for _, allowed := range a.opts.BoosterVaccines {
			if v == allowed {
				return true
			}
		}
	}
	return false
}

// count feeds the daily rollup. Slots outside the 8-day window are
// counted in the snapshot but not here.
func (a *Aggregator) count(venue *model.Venue, slot model.Slot) {
	date := timezone.Day(slot.When).Format("2006-01-02")
	if !a.inWindow[date] {
		return
	}

	dep := a.rollup[venue.Departement]
	if dep == nil {
		dep = map[string]map[string]map[string]int{}
		a.rollup[venue.Departement] = dep
	}
	day := dep[date]
	if day == nil {
		day = map[string]map[string]int{}
		dep[date] = day
	}
	tags := day[venue.InternalID]
	if tags == nil {
		tags = map[string]int{}
		day[venue.InternalID] = tags
	}

	tags[TagAll]++
	if preco18_55(slot) {
		tags[TagPreco18_55]++
	}
}

// preco18_55 matches the vaccines recommended for the under-55 cohort.
func preco18_55(slot model.Slot) bool {
	for _, v := range slot.Vaccines {
		if v == model.Pfizer || v == model.Moderna {
			return true
		}
	}
	return false
}

// AvailableCount reports how many venues currently hold at least one
// slot, used for the process exit decision.
func (a *Aggregator) AvailableCount() int {
	n := 0
	for _, state := range a.centers {
		if state.sawSlot {
			n++
		}
	}
	return n
}

// Finalize deduplicates display names, orders the snapshots and stamps
// them. blockedDeps flags the départements whose doctolib venues hit a
// 403 during the scan. Every known département gets a resource, empty
// or not.
func (a *Aggregator) Finalize(blockedDeps map[string]bool) *Result {
	byDep := map[string][]*centerState{}
	for _, state := range a.centers {
		byDep[state.venue.Departement] = append(byDep[state.venue.Departement], state)
	}
	for _, states := range byDep {
		dedupeNames(states)
	}

	lastUpdated := timezone.Now().Format(time.RFC3339)

	result := &Result{
		National:     newExport(lastUpdated, false),
		Departements: map[string]*Export{},
		Rollups:      map[string]*DailyRollup{},
	}
	for _, code := range departements.Codes() {
		export := newExport(lastUpdated, blockedDeps[code])
		for _, state := range byDep[code] {
			center := state.withSchedules(a.start)
			export.add(center, state.sawSlot)
			result.National.add(center, state.sawSlot)
		}
		export.sort()
		result.Departements[code] = export
		result.Rollups[code] = a.buildRollup(code)
	}
	result.National.sort()
	return result
}

func (a *Aggregator) buildRollup(dep string) *DailyRollup {
	rollup := &DailyRollup{Departement: dep}
	for _, date := range a.window {
		day := DailyCount{Date: date, Venues: []VenueDailyCount{}}
		for _, id := range sortedKeys(a.rollup[dep][date]) {
			tags := a.rollup[dep][date][id]
			venueCount := VenueDailyCount{Lieu: id}
			for _, tag := range []string{TagAll, TagPreco18_55} {
				venueCount.Tags = append(venueCount.Tags, TagCount{
					Tag: tag, Count: tags[tag],
				})
			}
			day.Total += tags[TagAll]
			day.Venues = append(day.Venues, venueCount)
		}
		rollup.Days = append(rollup.Days, day)
	}
	return rollup
}
