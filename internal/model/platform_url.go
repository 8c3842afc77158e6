package model

import "strings"

// booking-URL prefixes recognized per platform. The table is data: the
// adapter for a platform claims exactly the URLs matched here.
var platformPrefixes = map[Platform][]string{
	Doctolib:   {"https://partners.doctolib.fr", "https://www.doctolib.fr"},
	Keldoc:     {"https://vaccination-covid.keldoc.com", "https://keldoc.com", "https://www.keldoc.com"},
	Maiia:      {"https://www.maiia.com", "https://maiia.com"},
	Mapharma:   {"https://mapharma.net"},
	Ordoclic:   {"https://app.ordoclic.fr"},
	Avecmondoc: {"https://patient.avecmondoc.com"},
}

// PlatformForURL matches a booking URL against the per-platform prefix
// list. Unmatched URLs map to Unknown, which the scheduler routes to
// the no-op adapter.
func PlatformForURL(url string) Platform {
	for _, platform := range Platforms() {
		for _, prefix := range platformPrefixes[platform] {
			if strings.HasPrefix(url, prefix) {
				return platform
			}
		}
	}
	return Unknown
}

// PlatformPrefixes exposes the prefix list for one platform.
func PlatformPrefixes(p Platform) []string {
	return platformPrefixes[p]
}

// InternalID forms the globally unique venue id from a platform and
// its platform-specific id.
func InternalID(p Platform, platformID string) string {
	return strings.ToLower(string(p)) + platformID
}
