// Package normalize turns raw HTML or extracted text into clean document
// content plus best-effort metadata and a stable content fingerprint.
package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"
	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/hash/sha256"
	"github.com/lexharvest/lexharvest/internal/storage"
)

// Result is the normalized view of one document.
type Result struct {
	Content         string
	Title           string
	Category        storage.Category
	PublicationDate string
	Language        string
	Fingerprint     string
}

var boilerplatePatterns = []string{
	`copyright\s*©?\s*\d{4}`,
	`all rights reserved`,
	`privacy policy`,
	`terms of use`,
	`cookie policy`,
	`powered by`,
	`site map`,
	`contact us`,
	`follow us on`,
	`share on`,
	`print this page`,
	`download pdf`,
	`related links`,
	`quick links`,
	`important links`,
	`skip to main content`,
	`skip to navigation`,
}

var (
	boilerplateRe = regexp.MustCompile(`(?i)` + strings.Join(boilerplatePatterns, "|"))
	controlRe     = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f-\x9f]`)
	spaceRunRe    = regexp.MustCompile(`[ \t]+`)
	blankRunRe    = regexp.MustCompile(`\n\s*\n`)
	wsCollapseRe  = regexp.MustCompile(`\s+`)
	punctLineRe   = regexp.MustCompile(`^[\W\d\s]+$`)

	glyphFolder = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`,
		"‘", "'", "’", "'", "‚", "'",
		"–", "-", "—", "-",
	)

	strippedSelectors = []string{
		"script", "style", "nav", "header", "footer",
		"aside", "iframe", "noscript", "meta", "link",
	}

	// Ordered date patterns, first match wins. The match is kept as an
	// unparsed best-effort string.
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})\b`),
		regexp.MustCompile(`(?i)\b(\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4})\b`),
		regexp.MustCompile(`(?i)\b((?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`),
	}

	// Category keywords in priority order; the first keyword found in the
	// URL or title wins.
	categoryOrder = []struct {
		keyword  string
		category storage.Category
	}{
		{"amendment", storage.CategoryAmendment},
		{"notification", storage.CategoryNotification},
		{"rule", storage.CategoryRule},
		{"act", storage.CategoryAct},
		{"circular", storage.CategoryCircular},
		{"order", storage.CategoryOrder},
	}
)

// Normalizer cleans content and extracts metadata.
type Normalizer struct {
	hasher *sha256.Hasher
	logger *zap.Logger
}

// New constructs a Normalizer.
func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		hasher: sha256.New(),
		logger: logger,
	}
}

// Process cleans the input (HTML or plain text), extracts title, category,
// date and language, and computes the content fingerprint. It never fails;
// malformed input degrades to empty content.
func (n *Normalizer) Process(htmlOrText, url string) Result {
	content := n.CleanHTML(htmlOrText)

	title, date := n.extractMetadata(htmlOrText)
	result := Result{
		Content:         content,
		Title:           title,
		Category:        Categorize(url, title),
		PublicationDate: date,
		Language:        n.DetectLanguage(content),
	}
	result.Fingerprint = n.Fingerprint(content)
	return result
}

// CleanHTML strips markup and chrome elements from the input and normalizes
// the remaining text. Plain-text input passes through markup stripping
// unchanged.
func (n *Normalizer) CleanHTML(input string) string {
	if input == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(input))
	if err != nil {
		n.logger.Warn("html parse failed, cleaning raw text", zap.Error(err))
		return n.NormalizeText(input)
	}
	doc.Find(strings.Join(strippedSelectors, ", ")).Remove()
	doc.Find("[class*=sidebar], [class*=menu], [class*=nav], [class*=footer], [class*=header], [class*=advertisement], [class*=banner], [class*=popup], [class*=modal]").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		sb.WriteString(sel.Text())
		sb.WriteString("\n")
	})
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return n.NormalizeText(text)
}

// NormalizeText applies the character-level and line-level cleanup rules:
// control characters dropped, whitespace collapsed, quotes and dashes folded
// to ASCII, boilerplate lines and near-empty punctuation lines removed.
func (n *Normalizer) NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	text = controlRe.ReplaceAllString(text, "")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	text = glyphFolder.Replace(text)

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || boilerplateRe.MatchString(line) {
			continue
		}
		if len(line) <= 20 && punctLineRe.MatchString(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// DetectLanguage runs detection on the first 1000 characters of text when it
// is at least 50 characters long. Detection is advisory only: short text or
// detector failure yields "unknown".
func (n *Normalizer) DetectLanguage(text string) string {
	if utf8.RuneCountInString(text) < 50 {
		return "unknown"
	}
	sample := text
	if runes := []rune(sample); len(runes) > 1000 {
		sample = string(runes[:1000])
	}
	info := whatlanggo.Detect(sample)
	code := whatlanggo.LangToStringShort(info.Lang)
	if code == "" {
		n.logger.Debug("language detection inconclusive")
		return "unknown"
	}
	return code
}

// Fingerprint lower-cases and whitespace-collapses the content, then hashes
// it with SHA-256. Identical fingerprints define content-identical documents
// regardless of formatting differences the normalization removed.
func (n *Normalizer) Fingerprint(content string) string {
	if content == "" {
		return ""
	}
	canonical := wsCollapseRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(content)), " ")
	return n.hasher.Hash([]byte(canonical))
}

// Categorize infers the document category from URL and title keywords,
// first match wins in priority order, default Unknown.
func Categorize(url, title string) storage.Category {
	urlLower := strings.ToLower(url)
	titleLower := strings.ToLower(title)
	for _, entry := range categoryOrder {
		if strings.Contains(urlLower, entry.keyword) || strings.Contains(titleLower, entry.keyword) {
			return entry.category
		}
	}
	return storage.CategoryUnknown
}

func (n *Normalizer) extractMetadata(input string) (title, date string) {
	if input == "" {
		return "", ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(input))
	if err != nil {
		return "", ""
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	text := doc.Text()
	for _, pattern := range datePatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			date = match[1]
			break
		}
	}
	return title, date
}
