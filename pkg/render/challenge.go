package render

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Challenge page types reported by DetectChallenge.
const (
	ChallengeCloudflare = "cloudflare"
	ChallengeTurnstile  = "cloudflare-turnstile"
	ChallengeHCaptcha   = "hcaptcha"
	ChallengeReCAPTCHA  = "recaptcha"
	ChallengeAntiBot    = "anti-bot"
)

// DetectChallenge inspects rendered HTML and returns the type of bot
// challenge it shows, or an empty string for an ordinary page.
//
// Captcha widgets also appear on ordinary pages (contact forms), so callers
// should only consult this once the page has failed to yield an image.
func DetectChallenge(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))

	switch {
	case strings.Contains(title, "just a moment"),
		strings.Contains(title, "attention required"),
		doc.Find("#challenge-form, #cf-challenge-running, .cf-browser-verification").Length() > 0,
		strings.Contains(html, "cf_chl_opt"):
		return ChallengeCloudflare
	case doc.Find(".cf-turnstile, script[src*='challenges.cloudflare.com/turnstile']").Length() > 0:
		return ChallengeTurnstile
	case doc.Find(".h-captcha, script[src*='hcaptcha.com']").Length() > 0:
		return ChallengeHCaptcha
	case doc.Find(".g-recaptcha, script[src*='google.com/recaptcha']").Length() > 0:
		return ChallengeReCAPTCHA
	case strings.Contains(title, "access denied"),
		strings.Contains(title, "blocked"),
		strings.Contains(title, "bot detection"),
		strings.Contains(strings.ToLower(doc.Find("body").Text()), "robot or human"):
		return ChallengeAntiBot
	}
	return ""
}
