package identity

import (
	"fmt"
	"regexp"
	"strconv"
)

// Locale ties a navigator language to its Accept-Language header and the
// time zones a client using it plausibly lives in.
type Locale struct {
	Language       string   `yaml:"language"`
	AcceptLanguage string   `yaml:"accept_language"`
	Timezones      []string `yaml:"timezones"`
}

// Catalog is the static data the Generator draws from.
type Catalog struct {
	ChromiumWindows []string `yaml:"chromium_windows"`
	ChromiumMac     []string `yaml:"chromium_mac"`
	FirefoxWindows  []string `yaml:"firefox_windows"`
	FirefoxMac      []string `yaml:"firefox_mac"`
	Android         []string `yaml:"android"`
	IOS             []string `yaml:"ios"`

	Locales            []Locale `yaml:"locales"`
	DesktopResolutions []string `yaml:"desktop_resolutions"`
	AndroidResolutions []string `yaml:"android_resolutions"`
	IOSResolutions     []string `yaml:"ios_resolutions"`
}

// DefaultCatalog returns the built-in user-agent and locale tables.
// A fresh copy is returned on every call so callers may modify it.
func DefaultCatalog() *Catalog {
	return &Catalog{
		ChromiumWindows: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		},
		ChromiumMac: []string{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
		FirefoxWindows: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
		},
		FirefoxMac: []string{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:120.0) Gecko/20100101 Firefox/120.0",
		},
		Android: []string{
			"Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
		},
		IOS: []string{
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1.2 Mobile/15E148 Safari/604.1",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
		},
		Locales: []Locale{
			{Language: "en-US", AcceptLanguage: "en-US,en;q=0.9", Timezones: []string{"America/New_York", "America/Chicago", "America/Los_Angeles"}},
			{Language: "en-GB", AcceptLanguage: "en-GB,en;q=0.9", Timezones: []string{"Europe/London"}},
			{Language: "de-DE", AcceptLanguage: "de-DE,de;q=0.9,en;q=0.8", Timezones: []string{"Europe/Berlin"}},
			{Language: "fr-FR", AcceptLanguage: "fr-FR,fr;q=0.9,en;q=0.8", Timezones: []string{"Europe/Paris"}},
			{Language: "ja-JP", AcceptLanguage: "ja-JP,ja;q=0.9,en;q=0.8", Timezones: []string{"Asia/Tokyo"}},
		},
		DesktopResolutions: []string{"1920x1080", "1366x768", "1440x900", "1536x864", "2560x1440"},
		AndroidResolutions: []string{"412x915", "393x873"},
		IOSResolutions:     []string{"390x844", "393x852"},
	}
}

// Validate checks that every family has at least one user agent whose OS
// can be detected, and that locale and resolution pools are non-empty.
func (c *Catalog) Validate() error {
	groups := []struct {
		name string
		uas  []string
		os   OS
	}{
		{"chromium_windows", c.ChromiumWindows, OSWindows},
		{"chromium_mac", c.ChromiumMac, OSMacOS},
		{"firefox_windows", c.FirefoxWindows, OSWindows},
		{"firefox_mac", c.FirefoxMac, OSMacOS},
		{"android", c.Android, OSAndroid},
		{"ios", c.IOS, OSIOS},
	}
	for _, g := range groups {
		for _, ua := range g.uas {
			if DetectOS(ua) != g.os {
				return fmt.Errorf("%w: %s entry %q is not a %s user agent", ErrInvalidCatalog, g.name, ua, g.os)
			}
		}
	}

	if len(c.ChromiumWindows)+len(c.ChromiumMac) == 0 {
		return fmt.Errorf("%w: no chromium user agents", ErrInvalidCatalog)
	}
	if len(c.FirefoxWindows)+len(c.FirefoxMac) == 0 {
		return fmt.Errorf("%w: no firefox user agents", ErrInvalidCatalog)
	}
	if len(c.Android)+len(c.IOS) == 0 {
		return fmt.Errorf("%w: no mobile user agents", ErrInvalidCatalog)
	}
	if len(c.Locales) == 0 {
		return fmt.Errorf("%w: no locales", ErrInvalidCatalog)
	}
	for _, l := range c.Locales {
		if l.Language == "" || l.AcceptLanguage == "" || len(l.Timezones) == 0 {
			return fmt.Errorf("%w: incomplete locale %q", ErrInvalidCatalog, l.Language)
		}
	}
	if len(c.DesktopResolutions) == 0 {
		return fmt.Errorf("%w: no desktop resolutions", ErrInvalidCatalog)
	}
	if len(c.Android) > 0 && len(c.AndroidResolutions) == 0 {
		return fmt.Errorf("%w: no android resolutions", ErrInvalidCatalog)
	}
	if len(c.IOS) > 0 && len(c.IOSResolutions) == 0 {
		return fmt.Errorf("%w: no ios resolutions", ErrInvalidCatalog)
	}
	return nil
}

var (
	chromeVersionRe  = regexp.MustCompile(`Chrome/(\d+)`)
	edgeVersionRe    = regexp.MustCompile(`Edg/(\d+)`)
	firefoxVersionRe = regexp.MustCompile(`Firefox/(\d+)`)
)

// majorVersion returns the first captured integer of re in ua, or 0.
func majorVersion(re *regexp.Regexp, ua string) int {
	m := re.FindStringSubmatch(ua)
	if len(m) < 2 {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}

// brandsFor builds the Sec-CH-UA brand list for a Chromium user agent.
// Edge advertises itself instead of Google Chrome.
func brandsFor(ua string) string {
	chrome := majorVersion(chromeVersionRe, ua)
	if edge := majorVersion(edgeVersionRe, ua); edge > 0 {
		return fmt.Sprintf(`"Not_A Brand";v="8", "Chromium";v="%d", "Microsoft Edge";v="%d"`, chrome, edge)
	}
	return fmt.Sprintf(`"Not_A Brand";v="8", "Chromium";v="%d", "Google Chrome";v="%d"`, chrome, chrome)
}

const (
	encodingBase = "gzip, deflate, br"
	encodingZstd = "gzip, deflate, br, zstd"
)

// acceptEncodingFor returns the Accept-Encoding the browser version sends.
// Chrome 123 and Firefox 126 were the first releases advertising zstd.
func acceptEncodingFor(ua string) string {
	if v := majorVersion(chromeVersionRe, ua); v >= 123 {
		return encodingZstd
	}
	if v := majorVersion(firefoxVersionRe, ua); v >= 126 {
		return encodingZstd
	}
	return encodingBase
}
