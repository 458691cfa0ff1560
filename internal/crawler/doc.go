// Package crawler walks a single host breadth-first under robots.txt rules and a
// page budget, collecting cookies, web storage, and same-host links through an
// interchangeable Browser backend.
//
// A Controller moves through Idle, FetchingRobots, Crawling, and Done. In
// concurrent mode a single coordinator owns the frontier and the aggregate while
// a bounded pool of workers performs the fetches.
package crawler
