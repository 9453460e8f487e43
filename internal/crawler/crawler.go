package crawler

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/config"
	"github.com/lexharvest/lexharvest/internal/extractor"
)

// sourceTypeDocument marks a seed that is itself a document page rather than
// a link index.
const sourceTypeDocument = "document"

// Crawler walks the configured seed sources: index pages are fetched once,
// their relevant links followed one hop, and document seeds fetched directly.
type Crawler struct {
	fetcher   Fetcher
	extractor *extractor.Extractor
	cfg       config.CrawlerConfig
	logger    *zap.Logger
}

// New builds a Crawler.
func New(fetcher Fetcher, ext *extractor.Extractor, cfg config.CrawlerConfig, logger *zap.Logger) *Crawler {
	return &Crawler{
		fetcher:   fetcher,
		extractor: ext,
		cfg:       cfg,
		logger:    logger,
	}
}

// CrawlAll crawls every configured source. A failing source is logged and
// skipped; the remaining sources still run.
func (c *Crawler) CrawlAll(ctx context.Context) []RawItem {
	var items []RawItem
	for _, src := range c.cfg.Sources {
		if ctx.Err() != nil {
			c.logger.Warn("crawl canceled", zap.Error(ctx.Err()))
			break
		}
		found, err := c.CrawlSource(ctx, src)
		if err != nil {
			c.logger.Error("source crawl failed",
				zap.String("source", src.Name),
				zap.String("url", src.URL),
				zap.Error(err),
			)
			continue
		}
		items = append(items, found...)
	}
	return items
}

// CrawlSource crawls one seed source and returns the raw items it yields.
func (c *Crawler) CrawlSource(ctx context.Context, src config.Source) ([]RawItem, error) {
	if src.Type == sourceTypeDocument {
		item, err := c.CrawlURL(ctx, src.URL)
		if err != nil {
			return nil, err
		}
		item.Source = src.Name
		return []RawItem{*item}, nil
	}
	return c.crawlIndex(ctx, src)
}

// crawlIndex fetches an index page, extracts its relevant links and fetches
// each linked page through a bounded worker pool.
func (c *Crawler) crawlIndex(ctx context.Context, src config.Source) ([]RawItem, error) {
	page, err := c.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", src.URL, err)
	}

	links := c.extractor.Links(page.Content, page.URL)
	if max := c.cfg.MaxLinksPerSource; max > 0 && len(links) > max {
		links = links[:max]
	}
	c.logger.Info("index crawled",
		zap.String("source", src.Name),
		zap.Int("links", len(links)),
	)

	concurrency := c.cfg.FetchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("create fetch pool: %w", err)
	}
	defer pool.Release()

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		items []RawItem
	)
	for _, link := range links {
		link := link
		wg.Add(1)
		submit := pool.Submit(func() {
			defer wg.Done()
			item, err := c.followLink(ctx, src, link)
			if err != nil {
				c.logger.Warn("link fetch failed",
					zap.String("url", link.URL),
					zap.Error(err),
				)
				return
			}
			mu.Lock()
			items = append(items, *item)
			mu.Unlock()
		})
		if submit != nil {
			wg.Done()
			c.logger.Warn("pool submit failed", zap.Error(submit))
		}
	}
	wg.Wait()

	return items, nil
}

// followLink materializes one extracted link as a raw item. Document files
// (PDF and Word attachments) are not downloaded; a placeholder item carrying
// the anchor text stands in for them.
func (c *Crawler) followLink(ctx context.Context, src config.Source, link extractor.Link) (*RawItem, error) {
	if link.IsDocumentFile {
		return &RawItem{
			URL:            link.URL,
			Content:        fmt.Sprintf("[PDF Document] %s", link.AnchorText),
			Title:          link.AnchorText,
			Source:         src.Name,
			IsDocumentFile: true,
		}, nil
	}

	item, err := c.CrawlURL(ctx, link.URL)
	if err != nil {
		return nil, err
	}
	item.Source = src.Name
	if item.Title == "" {
		item.Title = link.AnchorText
	}
	return item, nil
}

// CrawlURL fetches a single page and extracts its main content. Pages whose
// extracted content is empty are dropped with an error.
func (c *Crawler) CrawlURL(ctx context.Context, rawURL string) (*RawItem, error) {
	page, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	content := c.extractor.Content(page.Content, page.URL)
	if content == "" {
		return nil, fmt.Errorf("no extractable content at %s", page.URL)
	}
	return &RawItem{
		URL:     page.URL,
		HTML:    page.Content,
		Content: content,
		Title:   c.extractor.Title(page.Content),
		Source:  page.URL,
	}, nil
}
