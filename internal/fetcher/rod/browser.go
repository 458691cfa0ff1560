// Package rod drives Chrome through go-rod.
package rod

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/cookie-crawler/internal/consent"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
	"github.com/JakeFAU/cookie-crawler/internal/crawler"
	"github.com/JakeFAU/cookie-crawler/internal/extract"
	"github.com/JakeFAU/cookie-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/cookie-crawler/internal/robots"
)

// Ensure Browser implements crawler.Browser at compile time.
var _ crawler.Browser = (*Browser)(nil)

// Config controls the rod browser.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	ShowBrowser       bool
}

// Browser implements crawler.Browser on a single launched Chrome.
// Browser is safe for concurrent use by multiple goroutines.
type Browser struct {
	cfg      Config
	browser  *rod.Browser
	launcher *launcher.Launcher
	slots    *semaphore.Weighted
	robots   *robots.Loader
	rate     *ratelimit.Limiter
	logger   *zap.Logger
	closed   sync.Once
}

// New launches Chrome and connects to it. Close must be called when done.
func New(cfg Config, robotsLoader *robots.Loader, rate *ratelimit.Limiter, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if robotsLoader == nil {
		robotsLoader = robots.NewLoader(nil, cfg.UserAgent, logger)
	}

	l := launcher.New().
		Set("disable-dev-shm-usage").
		Leakless(true).
		Headless(!cfg.ShowBrowser)
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	b := &Browser{
		cfg:      cfg,
		browser:  browser,
		launcher: l,
		robots:   robotsLoader,
		rate:     rate,
		logger:   logger.Named("rod"),
	}
	if cfg.MaxParallel > 0 {
		b.slots = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}
	return b, nil
}

// Close releases browser resources. Close is safe to call multiple times.
func (b *Browser) Close() error {
	var err error
	b.closed.Do(func() {
		if b.browser != nil {
			err = b.browser.Close()
		}
		if b.launcher != nil {
			b.launcher.Kill()
		}
	})
	return err
}

// FetchRobotsRules implements crawler.Browser.
func (b *Browser) FetchRobotsRules(ctx context.Context, seed *url.URL) (crawler.RobotsRules, error) {
	data, err := b.robots.Load(ctx, seed)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	b.rate.CrawlDelay(seed.String(), b.robots.CrawlDelay(data))
	return data, nil
}

// OpenPage creates a tab and waits for rawURL to load.
func (b *Browser) OpenPage(ctx context.Context, rawURL string) (crawler.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.slots != nil {
		if err := b.slots.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("rod slot wait canceled: %w", err)
		}
	}
	release := func() {
		if b.slots != nil {
			b.slots.Release(1)
		}
	}
	if err := b.rate.Wait(ctx, rawURL); err != nil {
		release()
		return nil, err
	}

	// Each page gets its own browser context so its cookie jar starts empty
	// and every observation belongs to that page.
	session, err := b.browser.Incognito()
	if err != nil {
		release()
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	tab, err := session.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = session.Close()
		release()
		return nil, fmt.Errorf("creating page: %w", err)
	}
	p := &page{
		tab:         tab,
		session:     session,
		requested:   rawURL,
		release:     release,
		timeout:     b.cfg.NavigationTimeout,
		readCookies: allCookies,
	}

	if b.cfg.UserAgent != "" {
		if err := tab.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}); err != nil {
			p.Close()
			return nil, fmt.Errorf("set user-agent: %w", err)
		}
	}
	nav := p.bound(ctx)
	if err := nav.Navigate(rawURL); err != nil {
		p.Close()
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if err := nav.WaitLoad(); err != nil {
		p.Close()
		return nil, fmt.Errorf("wait load %s: %w", rawURL, err)
	}
	if err := crawler.CheckStatus(rawURL, navigationStatus(nav)); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// InteractWithConsentBanner clicks the first reject control it can find.
func (b *Browser) InteractWithConsentBanner(ctx context.Context, cp crawler.Page) bool {
	p, ok := cp.(*page)
	if !ok {
		return false
	}
	res, err := p.bound(ctx).Eval("() => " + consent.ClickScript())
	if err != nil {
		b.logger.Debug("consent script failed", zap.String("url", p.URL()), zap.Error(err))
		return false
	}
	clicked := res.Value.Bool()
	if clicked {
		timer := time.NewTimer(consent.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	return clicked
}

type page struct {
	tab         *rod.Page
	session     *rod.Browser
	requested   string
	final       string
	timeout     time.Duration
	release     func()
	readCookies func(*rod.Page) ([]*proto.NetworkCookie, error)
	closeOnce   sync.Once
}

// allCookies returns every cookie in the page's browser context, third-party
// ad and analytics cookies included.
func allCookies(tab *rod.Page) ([]*proto.NetworkCookie, error) {
	res, err := proto.NetworkGetAllCookies{}.Call(tab)
	if err != nil {
		return nil, err
	}
	return res.Cookies, nil
}

// navigationStatus reads the main document's HTTP status. Zero means Chrome
// did not report one and is treated as success.
func navigationStatus(tab *rod.Page) int {
	res, err := tab.Eval(`() => {
  const nav = performance.getEntriesByType("navigation")[0];
  return nav && nav.responseStatus ? nav.responseStatus : 0;
}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// bound returns the tab scoped to ctx and the navigation timeout.
func (p *page) bound(ctx context.Context) *rod.Page {
	return p.tab.Context(ctx).Timeout(p.timeout)
}

func (p *page) URL() string {
	if p.final != "" {
		return p.final
	}
	return p.requested
}

// Extract collects cookies, web storage, and links from the tab.
func (p *page) Extract(ctx context.Context) (crawler.PageData, error) {
	tab := p.bound(ctx)
	if info, err := tab.Info(); err == nil && info.URL != "" {
		p.final = info.URL
	}
	html, err := tab.HTML()
	if err != nil {
		return crawler.PageData{}, fmt.Errorf("read html: %w", err)
	}
	res, err := tab.Eval("() => " + extract.StorageScript)
	if err != nil {
		return crawler.PageData{}, fmt.Errorf("read storage: %w", err)
	}
	cookies, err := p.readCookies(tab)
	if err != nil {
		return crawler.PageData{}, fmt.Errorf("get cookies: %w", err)
	}
	links, err := extract.Links([]byte(html))
	if err != nil {
		return crawler.PageData{}, err
	}
	return crawler.PageData{
		FinalURL: p.URL(),
		Cookies:  convertCookies(cookies),
		Storage:  storageDump(res.Value).Entries(p.URL()),
		Links:    links,
	}, nil
}

// Close closes the tab and frees its slot.
func (p *page) Close() {
	p.closeOnce.Do(func() {
		_ = p.tab.Close()
		if p.session != nil {
			_ = p.session.Close()
		}
		p.release()
	})
}

func storageDump(v gson.JSON) extract.StorageDump {
	dump := extract.StorageDump{Local: map[string]string{}, Session: map[string]string{}}
	obj := v.Map()
	for k, val := range obj["local"].Map() {
		dump.Local[k] = val.Str()
	}
	for k, val := range obj["session"].Map() {
		dump.Session[k] = val.Str()
	}
	return dump
}

func convertCookies(in []*proto.NetworkCookie) []cookie.RawCookie {
	out := make([]cookie.RawCookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		out = append(out, cookie.RawCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expiry(c.Session, float64(c.Expires)),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: cookie.ParseSameSite(string(c.SameSite)),
		})
	}
	return out
}

func expiry(session bool, epochSeconds float64) *time.Time {
	if session || epochSeconds <= 0 {
		return nil
	}
	sec := int64(epochSeconds)
	nsec := int64((epochSeconds - float64(sec)) * float64(time.Second))
	t := time.Unix(sec, nsec).UTC()
	return &t
}
