package model

import (
	"net/url"
	"strings"
)

// Platform identifies the site a source URL belongs to
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformSpotify   Platform = "spotify"
	PlatformTwitter   Platform = "twitter"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformThreads   Platform = "threads"
	PlatformReddit    Platform = "reddit"
	PlatformOther     Platform = "other"
)

var platformHosts = []struct {
	platform Platform
	domains  []string
}{
	{PlatformYouTube, []string{"youtube.com", "youtu.be", "youtube-nocookie.com"}},
	{PlatformSpotify, []string{"spotify.com"}},
	{PlatformTwitter, []string{"twitter.com", "x.com"}},
	{PlatformTikTok, []string{"tiktok.com"}},
	{PlatformInstagram, []string{"instagram.com"}},
	{PlatformFacebook, []string{"facebook.com", "fb.watch"}},
	{PlatformThreads, []string{"threads.net", "threads.com"}},
	{PlatformReddit, []string{"reddit.com", "redd.it"}},
}

// DetectPlatform maps a source URL to its platform by host name.
func DetectPlatform(rawURL string) Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return PlatformOther
	}
	host := strings.ToLower(u.Hostname())
	for _, entry := range platformHosts {
		for _, domain := range entry.domains {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return entry.platform
			}
		}
	}
	return PlatformOther
}

// PlatformProfile describes how downloads from a platform are handled
type PlatformProfile struct {
	Platform      Platform `json:"platform"`
	AudioOnly     bool     `json:"audioOnly"`
	DefaultFormat string   `json:"defaultFormat"`
}

// Profile returns the handling profile for p.
func (p Platform) Profile() PlatformProfile {
	switch p {
	case PlatformYouTube:
		return PlatformProfile{Platform: p, DefaultFormat: "1080p"}
	case PlatformSpotify:
		return PlatformProfile{Platform: p, AudioOnly: true, DefaultFormat: "mp3-320"}
	case PlatformTwitter:
		return PlatformProfile{Platform: p, DefaultFormat: "best"}
	case PlatformTikTok:
		return PlatformProfile{Platform: p, DefaultFormat: "best"}
	case PlatformInstagram:
		return PlatformProfile{Platform: p, DefaultFormat: "best"}
	case PlatformFacebook:
		return PlatformProfile{Platform: p, DefaultFormat: "720p"}
	case PlatformThreads:
		return PlatformProfile{Platform: p, DefaultFormat: "best"}
	case PlatformReddit:
		return PlatformProfile{Platform: p, DefaultFormat: "best"}
	default:
		return PlatformProfile{Platform: PlatformOther, DefaultFormat: "best"}
	}
}
