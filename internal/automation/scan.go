package automation

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/leadscout/internal/model"
)

// hitsForFullConfidence is the number of independent signature hits that
// yields confidence 1.
const hitsForFullConfidence = 3

// scanResult is what one page reveals.
type scanResult struct {
	Tools      []string
	Hits       int
	Confidence float64
	Socials    model.SocialProfiles
}

// scan checks script sources, inline scripts and the whole markup against
// sigs. A tool is detected when any of its patterns appears.
func scan(html string, sigs []Signature) scanResult {
	var content strings.Builder
	socials := model.SocialProfiles{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		doc.Find("script").Each(func(_ int, s *goquery.Selection) {
			if src, ok := s.Attr("src"); ok {
				content.WriteString(src)
				content.WriteByte('\n')
			}
			content.WriteString(s.Text())
			content.WriteByte('\n')
		})
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if channel, link, ok := socialLink(href); ok {
				if _, seen := socials[channel]; !seen {
					socials[channel] = link
				}
			}
		})
	}
	content.WriteString(html)
	haystack := strings.ToLower(content.String())

	var res scanResult
	for _, sig := range sigs {
		matched := false
		for _, p := range sig.Patterns {
			if p != "" && strings.Contains(haystack, p) {
				res.Hits++
				matched = true
			}
		}
		if matched {
			res.Tools = append(res.Tools, sig.Name)
		}
	}
	sort.Strings(res.Tools)

	res.Confidence = min(1, float64(res.Hits)/hitsForFullConfidence)
	if len(socials) > 0 {
		res.Socials = socials
	}
	return res
}

var socialHosts = map[string]string{
	"facebook.com":  model.SocialFacebook,
	"fb.com":        model.SocialFacebook,
	"instagram.com": model.SocialInstagram,
	"linkedin.com":  model.SocialLinkedIn,
	"twitter.com":   model.SocialTwitter,
	"x.com":         model.SocialX,
	"youtube.com":   model.SocialYouTube,
	"youtu.be":      model.SocialYouTube,
	"tiktok.com":    model.SocialTikTok,
}

// socialLink classifies href as a profile link on a known channel. Share
// and intent links are not profiles.
func socialLink(href string) (channel, link string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Host == "" {
		return "", "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m.", "mobile."} {
		host = strings.TrimPrefix(host, prefix)
	}
	channel, ok = socialHosts[host]
	if !ok {
		return "", "", false
	}

	path := strings.ToLower(strings.Trim(u.Path, "/"))
	if path == "" || strings.HasPrefix(path, "sharer") || strings.HasPrefix(path, "share") ||
		strings.HasPrefix(path, "intent") || strings.HasPrefix(path, "dialog") {
		return "", "", false
	}

	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return channel, u.String(), true
}
