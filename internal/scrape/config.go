package scrape

import (
	"fmt"
	"strings"
	"time"

	"vitemadose-backend/internal/model"
	"vitemadose-backend/lib/configutil"
)

// PlatformConfig is one platforms.<name> section of the config file.
type PlatformConfig struct {
	Enabled *bool `json:"enabled"`
	// route overrides, e.g. {"base": "https://..."}
	API map[string]string `json:"api"`
	// e.g. {"excluded_motives": ["téléconsultation"]}
	Filters map[string][]string `json:"filters"`
	// per-request timeout, seconds
	Timeout int `json:"timeout"`
	// 403 count beyond which the scan exits with the blocked status
	BlockThreshold int `json:"block_threshold"`
}

func (c PlatformConfig) enabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c PlatformConfig) timeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c PlatformConfig) baseURL() string {
	return c.API["base"]
}

type InputsConfig struct {
	// government open-data CSV of vaccination centers
	VenuesCSV string `json:"venues_csv"`
	// per-platform venue snapshot files
	Snapshots []string `json:"snapshots"`
	Blocklist string   `json:"blocklist"`
	// postcode → INSEE table
	PostcodeToInsee string `json:"postcode_to_insee"`
}

type BreakerConfig struct {
	Trigger int `json:"trigger"`
	Release int `json:"release"`
	// seconds
	TimeLimit int `json:"time_limit"`
	// sqlite file persisting token queues; empty keeps them in memory
	StatePath string `json:"state_path"`
}

type Config struct {
	Platforms map[string]PlatformConfig `json:"platforms"`
	// scrape horizon in days; adapters may extend it
	ScrapeOnNDays             int      `json:"scrape_on_n_days"`
	VaccinesAllowedForBooster []string `json:"vaccines_allowed_for_booster"`
	MaxDoseInClassicJsons     int      `json:"max_dose_in_classic_jsons"`
	// Bernoulli sampling probability for partial runs; 0 or 1 probes all
	PartialScrape float64       `json:"partial_scrape"`
	Workers       int           `json:"workers"`
	OutDir        string        `json:"out_dir"`
	Inputs        InputsConfig  `json:"inputs"`
	Breaker       BreakerConfig `json:"breaker"`
}

// LoadConfig reads and validates the scan configuration. A missing
// platform section is a hard startup failure: silently not probing a
// platform is worse than refusing to start.
func LoadConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	for _, p := range model.Platforms() {
		if _, ok := c.Platforms[configKey(p)]; !ok {
			missing = append(missing, configKey(p))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing platform sections: %s", strings.Join(missing, ", "))
	}
	if c.OutDir == "" {
		return fmt.Errorf("config: out_dir is required")
	}
	return nil
}

func configKey(p model.Platform) string {
	return strings.ToLower(string(p))
}

// boosterVaccines maps the configured names onto the vaccine enum,
// dropping names that match nothing.
func (c *Config) boosterVaccines() []model.Vaccine {
	var out []model.Vaccine
	for _, name := range c.VaccinesAllowedForBooster {
		if v, ok := model.VaccineFromMotive(name); ok {
			out = append(out, v)
		}
	}
	return out
}

func (c *Config) platform(p model.Platform) PlatformConfig {
	return c.Platforms[configKey(p)]
}
