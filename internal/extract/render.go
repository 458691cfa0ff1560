package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// mountSelector matches the empty root nodes client-side frameworks hydrate.
const mountSelector = "#__next, #__nuxt, #root, #app, [data-reactroot], [ng-version]"

const (
	// minStaticText is the visible text a server-rendered page usually carries.
	minStaticText = 280
	// externalScriptWeight stands in for the unknown size of a <script src>.
	externalScriptWeight = 200
)

// LooksScriptRendered reports whether a raw HTTP body is probably built by
// JavaScript, in which case a non-browser backend misses script-set cookies.
func LooksScriptRendered(body []byte) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if doc.Find(mountSelector).Length() > 0 {
		return true
	}

	scripts := doc.Find("script")
	if scripts.Length() == 0 {
		return false
	}
	weight := 0
	scripts.Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("src"); ok {
			weight += externalScriptWeight
			return
		}
		weight += len(strings.TrimSpace(s.Text()))
	})

	visible := utf8.RuneCountInString(visibleText(doc))
	return visible < minStaticText && weight >= visible
}

func visibleText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return strings.Join(strings.Fields(body.Text()), " ")
}
