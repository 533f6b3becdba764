// Package lister discovers candidate meeting documents on the portal's listing pages.
package lister

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// PageFetcher returns the HTML of one listing page. Both the colly fetcher and the
// headless renderer satisfy it.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// Config describes the listing pages and how document links are recognised.
type Config struct {
	Pages []string
	// LinkPattern is a case-insensitive substring that marks a document link.
	LinkPattern string
	// IDParam is the query parameter carrying the document identifier.
	IDParam     string
	Concurrency int
	NewestFirst bool
}

// Lister implements meeting.Lister.
type Lister struct {
	cfg     Config
	fetcher PageFetcher
	logger  *zap.Logger
}

// New validates the configuration.
func New(cfg Config, fetcher PageFetcher, logger *zap.Logger) (*Lister, error) {
	if fetcher == nil {
		return nil, errors.New("lister requires a page fetcher")
	}
	if len(cfg.Pages) == 0 {
		return nil, errors.New("lister requires at least one page")
	}
	if cfg.LinkPattern == "" || cfg.IDParam == "" {
		return nil, errors.New("lister requires a link pattern and id param")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lister{cfg: cfg, fetcher: fetcher, logger: logger}, nil
}

type pageResult struct {
	candidates []meeting.Candidate
	skipped    int
	failed     bool
}

// List fetches every configured page and returns one completed collection: pages in
// configured order, links in document order, first occurrence of each id kept.
// Page and link failures are logged and counted; only cancellation returns an error.
func (l *Lister) List(ctx context.Context) (meeting.Listing, error) {
	results := make([]pageResult, len(l.cfg.Pages))

	var g errgroup.Group
	g.SetLimit(l.cfg.Concurrency)
	for i, page := range l.cfg.Pages {
		g.Go(func() error {
			results[i] = l.listPage(ctx, page)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return meeting.Listing{}, fmt.Errorf("list candidates: %w", err)
	}

	listing := meeting.Listing{PagesTotal: len(l.cfg.Pages)}
	seen := make(map[string]struct{})
	for _, res := range results {
		if res.failed {
			listing.PagesFailed++
		}
		listing.LinksSkipped += res.skipped
		for _, c := range res.candidates {
			if _, dup := seen[c.DocumentID]; dup {
				continue
			}
			seen[c.DocumentID] = struct{}{}
			listing.Candidates = append(listing.Candidates, c)
		}
	}
	if l.cfg.NewestFirst {
		sortNewestFirst(listing.Candidates)
	}
	return listing, nil
}

func (l *Lister) listPage(ctx context.Context, page string) pageResult {
	body, err := l.fetcher.Fetch(ctx, page)
	if err != nil {
		l.logger.Warn("listing page failed", zap.String("page", page), zap.Error(err))
		return pageResult{failed: true}
	}
	candidates, skipped, err := l.extract(page, body)
	if err != nil {
		l.logger.Warn("listing page unreadable", zap.String("page", page), zap.Error(err))
		return pageResult{failed: true}
	}
	l.logger.Debug("listing page parsed",
		zap.String("page", page),
		zap.Int("candidates", len(candidates)),
		zap.Int("skipped", skipped),
	)
	return pageResult{candidates: candidates, skipped: skipped}
}

// extract inspects every anchor on the page; it does not depend on the surrounding markup.
func (l *Lister) extract(page string, body []byte) ([]meeting.Candidate, int, error) {
	base, err := url.Parse(page)
	if err != nil {
		return nil, 0, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("parse listing html: %w", err)
	}

	pattern := strings.ToLower(l.cfg.LinkPattern)
	var (
		candidates []meeting.Candidate
		skipped    int
	)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if !strings.Contains(strings.ToLower(href), pattern) {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			skipped++
			l.logger.Warn("skipping unparsable document link", zap.String("page", page), zap.String("href", href))
			return
		}
		id := queryParam(resolved.Query(), l.cfg.IDParam)
		if !validID.MatchString(id) {
			skipped++
			l.logger.Warn("skipping document link without a usable id",
				zap.String("page", page), zap.String("href", href))
			return
		}
		candidates = append(candidates, meeting.Candidate{DocumentID: id, SourceURL: resolved.String()})
	})
	return candidates, skipped, nil
}

// queryParam reads name case-insensitively; portals are inconsistent about DocumentId vs documentid.
func queryParam(values url.Values, name string) string {
	if v := values.Get(name); v != "" {
		return strings.TrimSpace(v)
	}
	for key, vs := range values {
		if strings.EqualFold(key, name) && len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
	}
	return ""
}

// sortNewestFirst orders numeric ids descending; non-numeric ids keep their order after them.
func sortNewestFirst(candidates []meeting.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, aErr := strconv.ParseInt(candidates[i].DocumentID, 10, 64)
		b, bErr := strconv.ParseInt(candidates[j].DocumentID, 10, 64)
		switch {
		case aErr == nil && bErr == nil:
			return a > b
		case aErr == nil:
			return true
		default:
			return false
		}
	})
}
