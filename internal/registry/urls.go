package registry

import (
	"net/url"
	"strings"
)

// fixed table of known URL migrations: platforms have moved their
// booking frontends over time but the open-data CSV still carries the
// old links. Replacement targets never appear on the left-hand side so
// normalization is idempotent.
var knownMigrations = []struct {
	old string
	new string
}{
	{"https://www.doctolib.fr/", "https://partners.doctolib.fr/"},
	{"https://doctolib.fr/", "https://partners.doctolib.fr/"},
	{"https://www.keldoc.com/", "https://vaccination-covid.keldoc.com/"},
	{"https://keldoc.com/", "https://vaccination-covid.keldoc.com/"},
	{"https://maiia.com/", "https://www.maiia.com/"},
	{"https://www.ordoclic.fr/", "https://app.ordoclic.fr/"},
}

// NormalizeURL canonicalizes a booking URL: trims whitespace, forces
// https, lowercases the host, drops fragments and trailing slashes and
// applies the migration table. normalize(normalize(u)) == normalize(u).
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	raw = strings.Replace(raw, "http://", "https://", 1)

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	out := u.String()

	for _, m := range knownMigrations {
		if strings.HasPrefix(out, m.old) {
			out = m.new + out[len(m.old):]
			break
		}
	}
	return out
}
