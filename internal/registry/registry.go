// Package registry produces the finite, deduplicated, lazy sequence of
// venues to probe, merged round-robin from the government CSV and the
// per-platform snapshot files.
package registry

import (
	"log/slog"

	"vitemadose-backend/internal/departements"
	"vitemadose-backend/internal/model"
)

type Options struct {
	Blocklist Blocklist
	// fills com_insee when only a postcode is present
	PostcodeToInsee map[string]string
}

type Registry struct {
	sources []Source
	cursor  int
	blocked map[string]bool
	cpToInsee map[string]string
	// normalized URLs already emitted
	seen map[string]bool
}

// New merges sources round-robin: interleaved, not concatenated, so a
// slow source cannot starve a fast one.
func New(sources []Source, opts Options) *Registry {
	return &Registry{
		sources:   sources,
		blocked:   opts.Blocklist.urls(),
		cpToInsee: opts.PostcodeToInsee,
		seen:      map[string]bool{},
	}
}

// Next returns the next venue ready for probing, or false at
// end-of-stream. The sequence is finite and not restartable.
func (r *Registry) Next() (*model.Venue, bool) {
	for len(r.sources) > 0 {
		idx := r.cursor % len(r.sources)
		src := r.sources[idx]
		raw, ok := src.Next()
		if !ok {
			r.sources = append(r.sources[:idx], r.sources[idx+1:]...)
			continue
		}
		r.cursor = idx + 1

		venue, ok := r.build(src.Name(), raw)
		if !ok {
			continue
		}
		return venue, true
	}
	return nil, false
}

func (r *Registry) build(source string, raw RawVenue) (*model.Venue, bool) {
	if raw.Closed == "t" {
		return nil, false
	}

	url := NormalizeURL(raw.URL)
	if url == "" {
		return nil, false
	}
	if r.blocked[raw.URL] || r.blocked[url] {
		slog.Info("venue on blocklist, skipped", "url", url, "source", source)
		return nil, false
	}
	if r.seen[url] {
		return nil, false
	}

	insee := raw.Insee
	if insee == "" && raw.Postcode != "" {
		insee = r.cpToInsee[raw.Postcode]
	}
	dep, err := departements.FromInsee(insee)
	if err != nil {
		slog.Warn("venue dropped: unknown departement",
			"nom", raw.Nom, "insee", raw.Insee, "cp", raw.Postcode, "source", source)
		return nil, false
	}

	platform := model.PlatformForURL(url)

	kind := model.VenueKind(raw.Kind)
	switch kind {
	case model.VaccinationCenter, model.Drugstore, model.GeneralPractitioner:
	default:
		kind = model.VaccinationCenter
	}

	var location *model.Location
	if raw.Longitude != 0 || raw.Latitude != 0 || raw.City != "" {
		location = &model.Location{
			Longitude: raw.Longitude,
			Latitude:  raw.Latitude,
			City:      raw.City,
			Postcode:  raw.Postcode,
		}
	}

	metadata := map[string]string{}
	if raw.Address != "" {
		metadata["address"] = raw.Address
	}
	if raw.Phone != "" {
		metadata["phone_number"] = raw.Phone
	}
	for k, v := range raw.BusinessHours {
		metadata["business_hours/"+k] = v
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	r.seen[url] = true
	return &model.Venue{
		InternalID:  model.InternalID(platform, raw.Gid),
		Departement: dep,
		Name:        raw.Nom,
		URL:         url,
		Kind:        kind,
		Location:    location,
		Metadata:    metadata,
		Platform:    platform,
	}, true
}
