package automation

import (
	"net/http"
	"strings"
)

type blockKind string

const (
	blockNone       blockKind = ""
	blockCloudflare blockKind = "cloudflare"
	blockCaptcha    blockKind = "captcha"
)

// challengePageMax is the size below which a captcha marker is treated as a
// challenge page rather than a form widget on a real site.
const challengePageMax = 8 * 1024

// detectBlock reports whether the response is an anti-bot challenge.
func detectBlock(resp *http.Response, body []byte) (bool, blockKind) {
	if resp == nil {
		return false, blockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" ||
			strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, blockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf-chl-") {
		return true, blockCloudflare
	}

	if len(body) < challengePageMax &&
		(strings.Contains(lower, "captcha") || strings.Contains(lower, "verify you are human")) {
		return true, blockCaptcha
	}

	return false, blockNone
}
