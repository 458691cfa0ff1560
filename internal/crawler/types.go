package crawler

import (
	"errors"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

const defaultUserAgent = "cookie-crawler/1.0"

var (
	// ErrSeedFetch is returned when the seed page cannot be fetched.
	ErrSeedFetch = errors.New("seed fetch failed")
	// ErrInvalidSeed is returned for seeds that are not http(s) URLs with a host.
	ErrInvalidSeed = errors.New("invalid seed url")
	// ErrInvalidBudget is returned when the page budget is below one.
	ErrInvalidBudget = errors.New("page budget must be >= 1")
)

// State is the controller's position in a crawl.
type State string

// Controller states.
const (
	StateIdle           State = "idle"
	StateFetchingRobots State = "fetching_robots"
	StateCrawling       State = "crawling"
	StateDone           State = "done"
)

// Options selects crawl behavior for one controller.
type Options struct {
	RespectRobots         bool
	UseConcurrency        bool
	Concurrency           int
	RunConsentInteraction bool
	UserAgent             string
}

func (o Options) concurrent() bool {
	return o.UseConcurrency && o.Concurrency > 1
}

func (o Options) userAgent() string {
	if o.UserAgent == "" {
		return defaultUserAgent
	}
	return o.UserAgent
}

// Aggregate is the merged output of a crawl.
type Aggregate struct {
	// Observations are ordered by the sequence in which pages were dispatched.
	Observations []cookie.Observation
	Storage      map[string]cookie.PageStorage
	// Pages lists successfully fetched pages in dispatch order.
	Pages    []string
	Warnings []string
}

// Cookies flattens observations into raw cookies, preserving order.
func (a Aggregate) Cookies() []cookie.RawCookie {
	out := make([]cookie.RawCookie, 0, len(a.Observations))
	for _, obs := range a.Observations {
		out = append(out, obs.Cookie)
	}
	return out
}
