package identity

import (
	"fmt"
	"net/http"
	"strings"
)

// Family is the browser family a Profile imitates.
type Family int

const (
	// FamilyChromium covers desktop Chrome and Edge.
	FamilyChromium Family = iota

	// FamilyFirefox covers desktop Firefox.
	FamilyFirefox

	// FamilyMobile covers Chrome on Android and Safari on iOS.
	FamilyMobile
)

// String returns the lowercase family name used in flags and reports.
func (f Family) String() string {
	switch f {
	case FamilyChromium:
		return "chromium"
	case FamilyFirefox:
		return "firefox"
	case FamilyMobile:
		return "mobile"
	default:
		return "unknown"
	}
}

// MarshalText encodes the family by name so JSON and YAML output stay readable.
func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText decodes a family name.
func (f *Family) UnmarshalText(text []byte) error {
	v, err := ParseFamily(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ParseFamily converts a family name into a Family.
// It accepts "chrome" as an alias for "chromium".
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chromium", "chrome":
		return FamilyChromium, nil
	case "firefox":
		return FamilyFirefox, nil
	case "mobile":
		return FamilyMobile, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}
}

// OS is the operating system implied by a user-agent string.
type OS string

// Supported operating systems.
const (
	OSWindows OS = "windows"
	OSMacOS   OS = "macos"
	OSAndroid OS = "android"
	OSIOS     OS = "ios"
	OSUnknown OS = ""
)

// IsMobile reports whether the OS only runs on phones and tablets.
func (o OS) IsMobile() bool {
	return o == OSAndroid || o == OSIOS
}

// TLSFingerprint names the ClientHello shape a transport should present
// for a Profile.
type TLSFingerprint string

// Known TLS fingerprint families.
const (
	TLSChrome  TLSFingerprint = "chrome"
	TLSFirefox TLSFingerprint = "firefox"
	TLSSafari  TLSFingerprint = "safari"
)

// ClientHints is the Sec-CH-UA triplet sent by Chromium-based browsers.
type ClientHints struct {
	// Brands is the Sec-CH-UA value, e.g. `"Chromium";v="120", ...`.
	Brands string `json:"brands"`

	// Mobile is "?1" on phones and "?0" elsewhere.
	Mobile string `json:"mobile"`

	// Platform is the quoted platform hint, e.g. `"Windows"`.
	Platform string `json:"platform"`
}

// Profile is an immutable, internally consistent client fingerprint.
// Never modify a Profile after it has been handed to a session; generate a
// new one instead.
type Profile struct {
	Family           Family         `json:"family"`
	OS               OS             `json:"os"`
	UserAgent        string         `json:"user_agent"`
	Platform         string         `json:"platform"`
	Language         string         `json:"language"`
	Timezone         string         `json:"timezone"`
	ScreenResolution string         `json:"screen_resolution"`
	ColorDepth       int            `json:"color_depth"`
	AcceptEncoding   string         `json:"accept_encoding"`
	AcceptLanguage   string         `json:"accept_language"`
	ClientHints      *ClientHints   `json:"client_hints,omitempty"`
	TLS              TLSFingerprint `json:"tls"`
}

// defaultAccept is the navigation Accept header shared by all families.
const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"

// Headers returns the header set this profile sends on every request.
// The client-hint and Sec-Fetch block is only present when the profile
// carries client hints, matching what real Chromium browsers send.
func (p *Profile) Headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", p.UserAgent)
	h.Set("Accept", defaultAccept)
	h.Set("Accept-Language", p.AcceptLanguage)
	h.Set("Accept-Encoding", p.AcceptEncoding)
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Cache-Control", "max-age=0")

	if p.ClientHints != nil {
		h.Set("Sec-CH-UA", p.ClientHints.Brands)
		h.Set("Sec-CH-UA-Mobile", p.ClientHints.Mobile)
		h.Set("Sec-CH-UA-Platform", p.ClientHints.Platform)
		h.Set("Sec-Fetch-Dest", "document")
		h.Set("Sec-Fetch-Mode", "navigate")
		h.Set("Sec-Fetch-Site", "none")
		h.Set("Sec-Fetch-User", "?1")
	}

	return h
}

// osTraits describes the fields that must agree with a given OS.
type osTraits struct {
	platform   string
	hint       string
	mobileFlag string
}

var traitsByOS = map[OS]osTraits{
	OSWindows: {platform: "Win32", hint: `"Windows"`, mobileFlag: "?0"},
	OSMacOS:   {platform: "MacIntel", hint: `"macOS"`, mobileFlag: "?0"},
	OSAndroid: {platform: "Linux armv8l", hint: `"Android"`, mobileFlag: "?1"},
	OSIOS:     {platform: "iPhone", hint: "", mobileFlag: "?1"},
}

// Validate checks that every field describes one coherent client.
// It returns an error wrapping ErrInconsistentProfile on the first mismatch.
func (p *Profile) Validate() error {
	uaOS := DetectOS(p.UserAgent)
	if uaOS == OSUnknown {
		return fmt.Errorf("%w: cannot detect OS from user agent %q", ErrInconsistentProfile, p.UserAgent)
	}
	if uaOS != p.OS {
		return fmt.Errorf("%w: user agent implies %s but profile says %s", ErrInconsistentProfile, uaOS, p.OS)
	}

	traits := traitsByOS[p.OS]
	if p.Platform != traits.platform {
		return fmt.Errorf("%w: platform %q does not match %s", ErrInconsistentProfile, p.Platform, p.OS)
	}

	switch p.Family {
	case FamilyChromium:
		if p.OS.IsMobile() {
			return fmt.Errorf("%w: chromium profile on mobile OS %s", ErrInconsistentProfile, p.OS)
		}
		if p.ClientHints == nil {
			return fmt.Errorf("%w: chromium profile without client hints", ErrInconsistentProfile)
		}
	case FamilyFirefox:
		if p.OS.IsMobile() {
			return fmt.Errorf("%w: firefox profile on mobile OS %s", ErrInconsistentProfile, p.OS)
		}
		if !strings.Contains(p.UserAgent, "Firefox/") {
			return fmt.Errorf("%w: firefox profile with non-firefox user agent", ErrInconsistentProfile)
		}
		if p.ClientHints != nil {
			return fmt.Errorf("%w: firefox does not send client hints", ErrInconsistentProfile)
		}
	case FamilyMobile:
		if !p.OS.IsMobile() {
			return fmt.Errorf("%w: mobile profile on desktop OS %s", ErrInconsistentProfile, p.OS)
		}
	default:
		return fmt.Errorf("%w: unknown family %d", ErrInconsistentProfile, p.Family)
	}

	if p.ClientHints != nil {
		if traits.hint == "" {
			return fmt.Errorf("%w: %s does not send client hints", ErrInconsistentProfile, p.OS)
		}
		if p.ClientHints.Platform != traits.hint {
			return fmt.Errorf("%w: platform hint %s does not match %s", ErrInconsistentProfile, p.ClientHints.Platform, p.OS)
		}
		if p.ClientHints.Mobile != traits.mobileFlag {
			return fmt.Errorf("%w: mobile hint %s does not match %s", ErrInconsistentProfile, p.ClientHints.Mobile, p.OS)
		}
	}

	if p.TLS != fingerprintFor(p.Family, p.OS) {
		return fmt.Errorf("%w: tls fingerprint %s does not match %s/%s", ErrInconsistentProfile, p.TLS, p.Family, p.OS)
	}

	return nil
}

// DetectOS infers the operating system from a user-agent string.
// Mobile markers are checked first because mobile Safari mentions "Mac OS X".
func DetectOS(ua string) OS {
	switch {
	case strings.Contains(ua, "Android"):
		return OSAndroid
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return OSIOS
	case strings.Contains(ua, "Windows"):
		return OSWindows
	case strings.Contains(ua, "Macintosh"):
		return OSMacOS
	default:
		return OSUnknown
	}
}

// fingerprintFor maps a family/OS pair to the ClientHello family.
func fingerprintFor(f Family, o OS) TLSFingerprint {
	switch {
	case f == FamilyFirefox:
		return TLSFirefox
	case o == OSIOS:
		return TLSSafari
	default:
		return TLSChrome
	}
}
