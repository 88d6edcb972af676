package analytics

import (
	"net/url"
	"strings"
)

// TrafficSource is the referer category of a request
type TrafficSource string

const (
	SourceDirect   TrafficSource = "direct"
	SourceSearch   TrafficSource = "search"
	SourceSocial   TrafficSource = "social"
	SourceReferral TrafficSource = "referral"
)

// DeviceClass is the user agent category of a request
type DeviceClass string

const (
	DeviceBot     DeviceClass = "bot"
	DeviceTablet  DeviceClass = "tablet"
	DeviceMobile  DeviceClass = "mobile"
	DeviceDesktop DeviceClass = "desktop"
	DeviceOther   DeviceClass = "other"
)

// searchEngine maps a referer substring to the engine tally name
type searchEngine struct {
	name   string
	domain string
}

// Checked in order; the first domain found in the referer wins.
var searchEngines = []searchEngine{
	{name: "google", domain: "google."},
	{name: "bing", domain: "bing.com"},
	{name: "yahoo", domain: "yahoo."},
	{name: "baidu", domain: "baidu.com"},
	{name: "duckduckgo", domain: "duckduckgo.com"},
	{name: "yandex", domain: "yandex."},
	{name: "sogou", domain: "sogou.com"},
}

var socialDomains = []string{
	"facebook.com",
	"twitter.com",
	"instagram.com",
	"linkedin.com",
	"weibo.com",
	"zhihu.com",
	"reddit.com",
	"youtube.com",
	"tiktok.com",
	"douyin.com",
}

// ClassifySource puts a referer into exactly one traffic source. Matching is a case-sensitive
// substring test over the referer host; search engines are checked before social sites.
// engine is set only for SourceSearch.
func ClassifySource(referer string) (source TrafficSource, engine string) {
	if referer == "" || referer == "-" {
		return SourceDirect, ""
	}
	host := refererHost(referer)
	for _, se := range searchEngines {
		if strings.Contains(host, se.domain) {
			return SourceSearch, se.name
		}
	}
	for _, domain := range socialDomains {
		if strings.Contains(host, domain) {
			return SourceSocial, ""
		}
	}
	return SourceReferral, ""
}

// refererHost returns the host of an absolute referer without port or userinfo, or the text
// before the first '/', '?' or '#' for a referer without a scheme
func refererHost(referer string) string {
	if u, err := url.Parse(referer); err == nil && u.Host != "" {
		return u.Hostname()
	}
	if i := strings.IndexAny(referer, "/?#"); i >= 0 {
		return referer[:i]
	}
	return referer
}

var (
	botTokens = []string{
		"bot", "crawl", "spider", "slurp", "bingpreview", "facebookexternalhit",
		"curl", "wget", "python-requests", "go-http-client", "headlesschrome",
	}
	tabletTokens  = []string{"ipad", "tablet", "kindle", "silk", "playbook"}
	mobileTokens  = []string{"mobile", "iphone", "ipod", "windows phone", "blackberry", "opera mini"}
	desktopTokens = []string{"windows nt", "macintosh", "mac os x", "linux", "x11", "cros"}
)

// deviceRule matches a lower-cased user agent
type deviceRule struct {
	class DeviceClass
	match func(ua string) bool
}

// deviceRules is evaluated top to bottom. "android" alone means tablet and "android" with
// "mobile" means phone, even when a tablet token is present.
var deviceRules = []deviceRule{
	{class: DeviceBot, match: func(ua string) bool {
		return containsAny(ua, botTokens)
	}},
	{class: DeviceTablet, match: func(ua string) bool {
		if strings.Contains(ua, "android") && strings.Contains(ua, "mobile") {
			return false
		}
		if containsAny(ua, tabletTokens) {
			return true
		}
		return strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")
	}},
	{class: DeviceMobile, match: func(ua string) bool {
		return containsAny(ua, mobileTokens) || strings.Contains(ua, "android")
	}},
	{class: DeviceDesktop, match: func(ua string) bool {
		if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") {
			return false
		}
		return containsAny(ua, desktopTokens)
	}},
}

// ClassifyDevice puts a user agent into exactly one device class
func ClassifyDevice(userAgent string) DeviceClass {
	ua := strings.ToLower(userAgent)
	for _, rule := range deviceRules {
		if rule.match(ua) {
			return rule.class
		}
	}
	return DeviceOther
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
