// Package extract pulls links and web storage out of rendered pages.
package extract

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

// StorageScript evaluates to {"local": {...}, "session": {...}} with every
// web-storage key of the current document.
const StorageScript = `(() => {
  const dump = (store) => {
    const out = {};
    try {
      for (let i = 0; i < store.length; i++) {
        const key = store.key(i);
        out[key] = String(store.getItem(key));
      }
    } catch (e) {}
    return out;
  };
  let local = {}, session = {};
  try { local = dump(window.localStorage); } catch (e) {}
  try { session = dump(window.sessionStorage); } catch (e) {}
  return { local: local, session: session };
})()`

// StorageDump is the decoded result of StorageScript.
type StorageDump struct {
	Local   map[string]string `json:"local"`
	Session map[string]string `json:"session"`
}

// Entries flattens a dump into storage entries for pageURL, sorted by kind then key.
func (d StorageDump) Entries(pageURL string) []cookie.StorageEntry {
	out := make([]cookie.StorageEntry, 0, len(d.Local)+len(d.Session))
	out = appendSorted(out, pageURL, cookie.StorageLocal, d.Local)
	out = appendSorted(out, pageURL, cookie.StorageSession, d.Session)
	return out
}

func appendSorted(out []cookie.StorageEntry, pageURL string, kind cookie.StorageKind, m map[string]string) []cookie.StorageEntry {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, cookie.StorageEntry{URL: pageURL, Kind: kind, Key: k, Value: m[k]})
	}
	return out
}

// Links returns every href of an anchor in document order, unresolved.
func Links(html []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			if href = strings.TrimSpace(href); href != "" {
				links = append(links, href)
			}
		}
	})
	return links, nil
}
