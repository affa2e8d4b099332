package prompt

import (
	"math/rand/v2"
	"strings"

	"github.com/cuongbtq/skitcast/internal/config"
)

// Region is one weighted group of scene templates.
type Region struct {
	Name      string
	Weight    float64
	Templates []string
}

// Catalog is the fixed set of material a prompt is assembled from:
// "<template>. <camera hint>. <suffix>".
type Catalog struct {
	Regions     []Region
	CameraHints []string
	Suffix      string
}

// DefaultCatalog returns the built-in comedy sketch catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Regions: []Region{
			{
				Name:   "gulf",
				Weight: 0.40,
				Templates: []string{
					"A short 10-second comedic Gulf skit with lively music and Arabic dialogue, close-up reactions, slapstick humor",
					"A comedic little scene in a Gulf cafe: a waiter spills tea but everyone laughs, Arabic dialogue, 10s",
					"A playful 10-second Gulf street moment: people dancing and playful greetings, comedic timing, Arabic speech",
				},
			},
			{
				Name:   "egypt",
				Weight: 0.35,
				Templates: []string{
					"A 10-second Egyptian comedic sketch with dramatic gestures and Arabic dialogue, comedic timing",
					"A short 10-second street comedy in Egypt: a vendor surprises customers, funny reactions, Arabic speech",
					"A funny Egyptian family moment: sister teases brother, comedic expressions, Arabic audio, 10s",
				},
			},
			{
				Name:   "syria",
				Weight: 0.25,
				Templates: []string{
					"A short 10-second Syrian joke scene, playful banter and comedic reactions, Arabic dialogue",
					"A 10-second Syrian street comedy: someone trips on a rug but ends charmingly, Arabic speech, funny faces",
					"A quick Syrian comedic skit, neighbors laugh at a silly misunderstanding, Arabic audio, 10s",
				},
			},
		},
		CameraHints: []string{
			"Use dynamic camera: slight pan and close-up shots",
			"Use bright daytime lighting and playful music",
			"Keep camera steady with quick cuts and expressive faces",
		},
		Suffix: "Make dialogue in Arabic.",
	}
}

// CatalogFromConfig overlays the configured catalog on the built-in one.
// Empty sections keep the defaults.
func CatalogFromConfig(cfg config.PromptsConfig) Catalog {
	catalog := DefaultCatalog()
	if len(cfg.Regions) > 0 {
		regions := make([]Region, 0, len(cfg.Regions))
		for _, r := range cfg.Regions {
			regions = append(regions, Region{Name: r.Name, Weight: r.Weight, Templates: r.Templates})
		}
		catalog.Regions = regions
	}
	if len(cfg.CameraHints) > 0 {
		catalog.CameraHints = cfg.CameraHints
	}
	if cfg.Suffix != "" {
		catalog.Suffix = cfg.Suffix
	}
	return catalog
}

// compose draws a region by weight, then a template and a camera hint.
func (c Catalog) compose(rng *rand.Rand) string {
	template := c.pickTemplate(rng)

	parts := make([]string, 0, 3)
	if template != "" {
		parts = append(parts, strings.TrimSuffix(template, "."))
	}
	if len(c.CameraHints) > 0 {
		parts = append(parts, strings.TrimSuffix(c.CameraHints[rng.IntN(len(c.CameraHints))], "."))
	}
	if c.Suffix != "" {
		parts = append(parts, c.Suffix)
	}
	return strings.Join(parts, ". ")
}

func (c Catalog) pickTemplate(rng *rand.Rand) string {
	var total float64
	for _, r := range c.Regions {
		if r.Weight > 0 && len(r.Templates) > 0 {
			total += r.Weight
		}
	}
	if total == 0 {
		return ""
	}

	x := rng.Float64() * total
	var last *Region
	for i := range c.Regions {
		r := &c.Regions[i]
		if r.Weight <= 0 || len(r.Templates) == 0 {
			continue
		}
		last = r
		if x < r.Weight {
			break
		}
		x -= r.Weight
	}
	return last.Templates[rng.IntN(len(last.Templates))]
}
