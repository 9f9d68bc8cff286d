package identity

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Default family weights. Chromium dominates real desktop traffic.
const (
	DefaultChromiumWeight = 0.6
	DefaultFirefoxWeight  = 0.3
	DefaultMobileWeight   = 0.1
)

// Generator produces coherent Profiles.
// It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	catalog *Catalog
	weights [3]float64
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand injects the random source. Use a seeded PCG for reproducible runs.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		if r != nil {
			g.rng = r
		}
	}
}

// WithCatalog replaces the built-in user-agent tables.
func WithCatalog(c *Catalog) Option {
	return func(g *Generator) {
		if c != nil {
			g.catalog = c
		}
	}
}

// WithWeights sets the relative probability of each family.
// Negative values are treated as zero.
func WithWeights(chromium, firefox, mobile float64) Option {
	return func(g *Generator) {
		g.weights = [3]float64{max(chromium, 0), max(firefox, 0), max(mobile, 0)}
	}
}

// NewGenerator creates a Generator. Without WithRand it seeds itself from
// the wall clock.
func NewGenerator(opts ...Option) (*Generator, error) {
	seed := uint64(time.Now().UnixNano()) //nolint:gosec // non-negative
	g := &Generator{
		rng:     rand.New(rand.NewPCG(seed, seed>>1|1)), //nolint:gosec // fingerprint choice, not crypto
		catalog: DefaultCatalog(),
		weights: [3]float64{DefaultChromiumWeight, DefaultFirefoxWeight, DefaultMobileWeight},
	}
	for _, opt := range opts {
		opt(g)
	}

	if err := g.catalog.Validate(); err != nil {
		return nil, err
	}
	if g.weights[0]+g.weights[1]+g.weights[2] <= 0 {
		return nil, fmt.Errorf("%w: all family weights are zero", ErrInvalidCatalog)
	}
	return g, nil
}

// Generate picks a family by weight and returns a profile for it.
func (g *Generator) Generate() *Profile {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generate(g.pickFamily())
}

// GenerateFamily returns a profile of the given family.
func (g *Generator) GenerateFamily(f Family) *Profile {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generate(f)
}

func (g *Generator) pickFamily() Family {
	total := g.weights[0] + g.weights[1] + g.weights[2]
	r := g.rng.Float64() * total
	switch {
	case r < g.weights[0]:
		return FamilyChromium
	case r < g.weights[0]+g.weights[1]:
		return FamilyFirefox
	default:
		return FamilyMobile
	}
}

// generate must be called with g.mu held.
func (g *Generator) generate(f Family) *Profile {
	c := g.catalog
	var ua string
	switch f {
	case FamilyFirefox:
		ua = g.pickUA(c.FirefoxWindows, c.FirefoxMac)
	case FamilyMobile:
		ua = g.pickUA(c.Android, c.IOS)
	default:
		f = FamilyChromium
		ua = g.pickUA(c.ChromiumWindows, c.ChromiumMac)
	}

	os := DetectOS(ua)
	traits := traitsByOS[os]
	locale := c.Locales[g.rng.IntN(len(c.Locales))]

	p := &Profile{
		Family:         f,
		OS:             os,
		UserAgent:      ua,
		Platform:       traits.platform,
		Language:       locale.Language,
		Timezone:       locale.Timezones[g.rng.IntN(len(locale.Timezones))],
		ColorDepth:     24,
		AcceptEncoding: acceptEncodingFor(ua),
		AcceptLanguage: locale.AcceptLanguage,
		TLS:            fingerprintFor(f, os),
	}

	switch os {
	case OSAndroid:
		p.ScreenResolution = g.pick(c.AndroidResolutions)
	case OSIOS:
		p.ScreenResolution = g.pick(c.IOSResolutions)
	default:
		p.ScreenResolution = g.pick(c.DesktopResolutions)
	}

	if f != FamilyFirefox && traits.hint != "" {
		p.ClientHints = &ClientHints{
			Brands:   brandsFor(ua),
			Mobile:   traits.mobileFlag,
			Platform: traits.hint,
		}
	}

	return p
}

// pickUA picks uniformly across the union of both lists.
func (g *Generator) pickUA(a, b []string) string {
	i := g.rng.IntN(len(a) + len(b))
	if i < len(a) {
		return a[i]
	}
	return b[i-len(a)]
}

func (g *Generator) pick(list []string) string {
	return list[g.rng.IntN(len(list))]
}
