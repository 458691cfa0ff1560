// Package consent knows how common consent-management platforms render their
// banners and how to reject non-essential cookies on them.
package consent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// SettleDelay is how long a backend waits after a click so the consent
// platform can rewrite cookies.
const SettleDelay = 500 * time.Millisecond

// RejectSelectors target "reject all" buttons of known platforms.
var RejectSelectors = []string{
	"#onetrust-reject-all-handler",
	".onetrust-close-btn-handler",
	"button[data-cui-consent-action='decline']",
	"#CybotCookiebotDialogBodyButtonDecline",
	".cookie-script-decline-button",
	"[data-testid='uc-deny-all-button']",
	"[aria-label='Ablehnen']",
	"[aria-label='Deny']",
	"[aria-label='Reject']",
	"[title='Ablehnen']",
	"[title='Deny']",
	"[title='Reject']",
}

// SettingsSelectors open a platform's preference dialog.
var SettingsSelectors = []string{
	"#onetrust-pc-btn-handler",
	"button.CybotCookiebotDialogBodyButton[data-cui-denial-action='settings']",
	"#CybotCookiebotDialogBodyButtonDetails",
	"[aria-label='Cookie-Einstellungen']",
	"[aria-label='Cookie settings']",
	"[title='Einstellungen']",
	"[title='Settings']",
	"[data-testid='uc-settings-button']",
}

// BannerSelectors identify a rendered consent banner.
var BannerSelectors = []string{
	"#onetrust-banner-sdk",
	"#onetrust-consent-sdk",
	"#CybotCookiebotDialog",
	"[data-cookieconsent='dialog']",
	"#cookiescript_injected",
	"[aria-label='Cookie Consent']",
	"[aria-label='Cookie-Banner']",
	"[class*='cookie-banner']",
	"[class*='cookie-consent']",
	"[class*='cookiebanner']",
	"[id*='cookie-banner']",
	"[id*='cookie-consent']",
	"#cookiebanner",
	".cookie-notification",
	".cookieNotice",
}

// RejectTexts match button labels when no platform selector is present.
var RejectTexts = []string{"ablehnen", "nur notwendige", "deny", "decline", "reject", "refuse"}

// Detect returns the first banner selector present in html.
func Detect(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	for _, sel := range BannerSelectors {
		if doc.Find(sel).Length() > 0 {
			return sel, true
		}
	}
	return "", false
}

// RejectTarget returns the first reject control found statically in html.
func RejectTarget(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	for _, sel := range RejectSelectors {
		if doc.Find(sel).Length() > 0 {
			return sel, true
		}
	}
	found := ""
	doc.Find("button").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(s.Text()))
		for _, text := range RejectTexts {
			if strings.Contains(label, text) {
				found = "button:" + text
				return false
			}
		}
		return true
	})
	return found, found != ""
}

// ClickScript returns a browser expression that clicks the first reject control,
// opening the settings dialog first when no reject button is visible. It
// evaluates to true when something was clicked.
func ClickScript() string {
	rejects := mustJSON(RejectSelectors)
	settings := mustJSON(SettingsSelectors)
	texts := mustJSON(RejectTexts)
	return fmt.Sprintf(`(() => {
  const rejects = %s;
  const settings = %s;
  const texts = %s;
  const visible = (el) => !!(el && (el.offsetWidth || el.offsetHeight || el.getClientRects().length));
  const clickFirst = (selectors) => {
    for (const sel of selectors) {
      let el = null;
      try { el = document.querySelector(sel); } catch (e) { continue; }
      if (visible(el)) { el.click(); return true; }
    }
    return false;
  };
  const clickByText = () => {
    for (const btn of document.querySelectorAll('button')) {
      const label = (btn.innerText || '').trim().toLowerCase();
      if (visible(btn) && texts.some((t) => label.includes(t))) { btn.click(); return true; }
    }
    return false;
  };
  if (clickFirst(rejects) || clickByText()) { return true; }
  if (clickFirst(settings)) { return clickFirst(rejects) || clickByText() || true; }
  return false;
})()`, rejects, settings, texts)
}

func mustJSON(v []string) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
