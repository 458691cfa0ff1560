package classify

import (
	"strings"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

// FingerprintInput is the crawl evidence inspected for fingerprinting signals.
type FingerprintInput struct {
	Observations []cookie.Observation
	Pages        []string
	Storage      map[string]cookie.PageStorage
}

// FingerprintDetector flags fingerprinting techniques from cookies and web storage.
type FingerprintDetector struct {
	rules     []FingerprintRule
	heuristic *Heuristic
	clock     Clock
}

// NewFingerprintDetector lowercases rule matchers once so detection is allocation-light.
func NewFingerprintDetector(rules RuleSet, heuristic *Heuristic, clock Clock) *FingerprintDetector {
	compiled := make([]FingerprintRule, 0, len(rules.Fingerprint))
	for _, r := range rules.Fingerprint {
		compiled = append(compiled, FingerprintRule{
			Technique:     r.Technique,
			KeyContains:   lowerAll(r.KeyContains),
			ValueContains: lowerAll(r.ValueContains),
			ValuePrefix:   lowerAll(r.ValuePrefix),
		})
	}
	return &FingerprintDetector{rules: compiled, heuristic: heuristic, clock: clock}
}

// Detect returns every known technique, true only when evidence was found.
func (d *FingerprintDetector) Detect(in FingerprintInput) map[cookie.Technique]bool {
	out := make(map[cookie.Technique]bool, len(cookie.Techniques()))
	for _, t := range cookie.Techniques() {
		out[t] = false
	}
	if d.persistentIdentifier(in) {
		out[cookie.TechniquePersistentIdentifier] = true
	}
	for _, storage := range in.Storage {
		d.scan(storage.Local, out)
		d.scan(storage.Session, out)
	}
	return out
}

// persistentIdentifier looks for a long-lived cookie present on every fetched page.
func (d *FingerprintDetector) persistentIdentifier(in FingerprintInput) bool {
	pages := make(map[string]struct{}, len(in.Pages))
	for _, p := range in.Pages {
		pages[p] = struct{}{}
	}
	if len(pages) == 0 {
		return false
	}
	now := d.clock.Now()
	seenOn := map[cookie.Key]map[string]struct{}{}
	longLived := map[cookie.Key]bool{}
	for _, obs := range in.Observations {
		if _, fetched := pages[obs.PageURL]; !fetched {
			continue
		}
		key := obs.Cookie.Key()
		if seenOn[key] == nil {
			seenOn[key] = map[string]struct{}{}
		}
		seenOn[key][obs.PageURL] = struct{}{}
		// Latest observation decides the lifetime, matching dedupe semantics.
		longLived[key] = d.heuristic.LongLived(obs.Cookie, now)
	}
	for key, on := range seenOn {
		if longLived[key] && len(on) == len(pages) {
			return true
		}
	}
	return false
}

func (d *FingerprintDetector) scan(entries map[string]string, out map[cookie.Technique]bool) {
	for key, value := range entries {
		lowerKey := strings.ToLower(key)
		lowerValue := strings.ToLower(value)
		for _, rule := range d.rules {
			if out[rule.Technique] {
				continue
			}
			if ruleMatches(rule, lowerKey, lowerValue) {
				out[rule.Technique] = true
			}
		}
	}
}

func ruleMatches(rule FingerprintRule, key, value string) bool {
	if len(rule.KeyContains) > 0 && !containsAny(key, rule.KeyContains) {
		return false
	}
	if len(rule.ValueContains) > 0 && !containsAny(value, rule.ValueContains) {
		return false
	}
	if len(rule.ValuePrefix) > 0 && !hasAnyPrefix(value, rule.ValuePrefix) {
		return false
	}
	return len(rule.KeyContains)+len(rule.ValueContains)+len(rule.ValuePrefix) > 0
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
