package httpapi

import (
	"regexp"
	"strings"
)

// botPattern matches known automation clients, ported from the original
// src/core/useragent.py's _BOT_PATTERN.
var botPattern = regexp.MustCompile(`(?i)(?:curl|wget|python-requests|python-httpx|python-urllib|httpx|` +
	`Go-http-client|Java/|Apache-HttpClient|` +
	`PostmanRuntime|insomnia|HTTPie|` +
	`node-fetch|axios|undici|got/|superagent|` +
	`scrapy|mechanize|aiohttp|` +
	`bot|crawler|spider|headless)`)

// validateUserAgent rejects empty, missing, bot-like, or non-Mozilla user
// agents (spec §4.4 step a), returning a reason on rejection.
func validateUserAgent(ua string) (bool, string) {
	if strings.TrimSpace(ua) == "" {
		return false, "Missing User-Agent header"
	}
	if botPattern.MatchString(ua) {
		return false, "Automated client detected"
	}
	if !strings.HasPrefix(ua, "Mozilla/5.0") {
		return false, "Invalid User-Agent format"
	}
	return true, ""
}
