// Package extractor turns raw HTML into main-content text and candidate
// follow-links for index pages.
package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	"go.uber.org/zap"
)

// minContentLength is the threshold below which the readability result is
// discarded in favor of the generic DOM fallback.
const minContentLength = 100

// Link is one candidate follow-link found on an index page.
type Link struct {
	URL            string
	AnchorText     string
	IsDocumentFile bool
}

// relevanceKeywords classify a link as worth following when any of them
// appears in the href or anchor text.
var relevanceKeywords = []string{
	"act", "rule", "notification", "amendment", "circular", "order",
	"labour", "labor", "wage", "worker", "gazette",
}

// documentExtensions mark links to binary document files that are flagged
// instead of fetched for extraction.
var documentExtensions = []string{".pdf", ".doc", ".docx"}

// Extractor extracts content and links from HTML.
type Extractor struct {
	logger *zap.Logger
}

// New constructs an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Content extracts the main text of a page. It prefers readability-style
// extraction (tables and links included, images excluded) and falls back to
// a generic DOM strategy when the result is missing or too short. Extraction
// failure yields empty text, never an error.
func (e *Extractor) Content(html, pageURL string) string {
	opts := trafilatura.Options{
		IncludeImages: false,
		IncludeLinks:  true,
		ExcludeTables: false,
	}
	if parsed, err := url.Parse(pageURL); err == nil {
		opts.OriginalURL = parsed
	}
	result, err := trafilatura.Extract(strings.NewReader(html), opts)
	if err == nil && result != nil && len(result.ContentText) >= minContentLength {
		return result.ContentText
	}
	if err != nil {
		e.logger.Debug("readability extraction failed, using DOM fallback",
			zap.String("url", pageURL), zap.Error(err))
	}
	return e.domFallback(html)
}

// Title returns the page title, preferring the <title> element and falling
// back to the first <h1>. An unparseable or untitled page yields "".
func (e *Extractor) Title(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if title := collapseText(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return collapseText(doc.Find("h1").First().Text())
}

// domFallback strips chrome elements and prefers a main/article/content
// region, else the full page text.
func (e *Extractor) domFallback(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("html parse failed during fallback extraction", zap.Error(err))
		return ""
	}
	doc.Find("script, style, nav, header, footer, aside").Remove()
	for _, selector := range []string{"main", "article", ".content"} {
		if region := doc.Find(selector).First(); region.Length() > 0 {
			return collapseText(region.Text())
		}
	}
	return collapseText(doc.Text())
}

// Links resolves and classifies every anchor on the page against baseURL.
// Non-HTTP schemes, fragment-only links and unresolvable hrefs are dropped;
// only links relevant to legal-document vocabulary (or document files)
// are returned.
func (e *Extractor) Links(html, baseURL string) []Link {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("html parse failed during link extraction",
			zap.String("base_url", baseURL), zap.Error(err))
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []Link
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		anchorText := strings.TrimSpace(sel.Text())

		if href == "" || strings.HasPrefix(href, "#") ||
			hasScheme(href, "javascript", "mailto", "tel") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if resolved.Host == "" {
			return
		}
		absolute := resolved.String()
		if _, dup := seen[absolute]; dup {
			return
		}

		isDocFile := isDocumentFile(resolved.Path)
		if !isDocFile && !isRelevant(href, anchorText) {
			return
		}
		seen[absolute] = struct{}{}
		links = append(links, Link{
			URL:            absolute,
			AnchorText:     anchorText,
			IsDocumentFile: isDocFile,
		})
	})
	return links
}

func hasScheme(href string, schemes ...string) bool {
	lower := strings.ToLower(href)
	for _, scheme := range schemes {
		if strings.HasPrefix(lower, scheme+":") {
			return true
		}
	}
	return false
}

func isRelevant(href, anchorText string) bool {
	lowerHref := strings.ToLower(href)
	lowerText := strings.ToLower(anchorText)
	for _, keyword := range relevanceKeywords {
		if strings.Contains(lowerHref, keyword) || strings.Contains(lowerText, keyword) {
			return true
		}
	}
	return false
}

func isDocumentFile(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range documentExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func collapseText(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
