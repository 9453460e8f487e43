package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexharvest/lexharvest/internal/storage"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>The Minimum Wages (Amendment) Notification, 2025</title></head>
<body>
<nav>Home | Acts | Rules</nav>
<main>
<h1>Minimum Wages Notification</h1>
<p>Published on 12 March 2025, this notification revises the minimum rates
of wages for scheduled employments under the Minimum Wages Act.</p>
<p>&#8220;Fair wages&#8221; shall mean wages fixed under section 5 &#8212; subject to revision.</p>
</main>
<footer>Copyright © 2025 Ministry of Labour. All rights reserved.</footer>
<script>analytics();</script>
</body>
</html>`

func TestProcess_SamplePage(t *testing.T) {
	t.Parallel()

	n := New(nil)
	result := n.Process(samplePage, "https://labour.gov.in/whatsnew/minimum-wages-notification")

	require.Equal(t, "The Minimum Wages (Amendment) Notification, 2025", result.Title)
	require.Equal(t, storage.CategoryAmendment, result.Category)
	require.Equal(t, "12 March 2025", result.PublicationDate)
	require.NotEmpty(t, result.Fingerprint)
	require.Len(t, result.Fingerprint, 64)

	require.Contains(t, result.Content, "minimum rates")
	require.NotContains(t, result.Content, "analytics")
	require.NotContains(t, result.Content, "All rights reserved")
	// Smart quotes and em dashes are folded to ASCII.
	require.Contains(t, result.Content, `"Fair wages"`)
	require.Contains(t, result.Content, "- subject to revision")
}

func TestNormalizeText_DropsBoilerplateAndPunctLines(t *testing.T) {
	t.Parallel()

	n := New(nil)
	input := "Real content line that is long enough to keep.\n" +
		"Copyright © 2024 Example Corp\n" +
		"***\n" +
		"12345\n" +
		"Skip to main content\n" +
		"Another substantive line about labour welfare."
	out := n.NormalizeText(input)
	require.Contains(t, out, "Real content line")
	require.Contains(t, out, "labour welfare")
	require.NotContains(t, out, "Copyright")
	require.NotContains(t, out, "***")
	require.NotContains(t, out, "12345")
	require.NotContains(t, out, "Skip to main content")
}

func TestFingerprint_InvariantToWhitespace(t *testing.T) {
	t.Parallel()

	n := New(nil)
	a := n.Fingerprint("The Payment of Wages Act")
	b := n.Fingerprint("  The   Payment of\n\nWages\tAct ")
	c := n.Fingerprint("the payment of wages act")
	require.Equal(t, a, b)
	require.Equal(t, a, c)
	require.NotEqual(t, a, n.Fingerprint("The Payment of Wages Act 1936"))
	require.Empty(t, n.Fingerprint(""))
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	n := New(nil)
	english := "This Act may be called the Industrial Disputes Act and it extends to the whole of India."
	require.Equal(t, "en", n.DetectLanguage(english))
	require.Equal(t, "unknown", n.DetectLanguage("short"))
	require.Equal(t, "unknown", n.DetectLanguage(""))
	// Detection runs on the first 1000 characters only.
	long := english + strings.Repeat(" provisions of this act", 200)
	require.Equal(t, "en", n.DetectLanguage(long))
}

func TestDetectLanguage_MinimumLengthCountsRunes(t *testing.T) {
	t.Parallel()

	n := New(nil)
	// 30 Devanagari-heavy runes, 80 bytes: under the 50-character floor
	// even though the byte count is over it.
	short := strings.TrimSpace(strings.Repeat("श्रम ", 5) + "कानून")
	require.Equal(t, "unknown", n.DetectLanguage(short))

	hindi := strings.Repeat("श्रम कानून में न्यूनतम मजदूरी का प्रावधान है। ", 10)
	require.NotEqual(t, "unknown", n.DetectLanguage(hindi))
}

func TestCategorize_PriorityOrder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		url   string
		title string
		want  storage.Category
	}{
		{"amendment beats act", "https://labour.gov.in/acts/wages-amendment", "", storage.CategoryAmendment},
		{"notification beats rule", "", "Notification under Rule 5", storage.CategoryNotification},
		{"rule from url", "https://labour.gov.in/rules/wage-rules", "", storage.CategoryRule},
		{"act from title", "https://example.gov/doc/123", "Factories Act", storage.CategoryAct},
		{"circular", "https://example.gov/circular/2025-01", "", storage.CategoryCircular},
		{"order", "", "Standing Order for contract workers", storage.CategoryOrder},
		{"unknown", "https://example.gov/misc", "General page", storage.CategoryUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Categorize(tc.url, tc.title))
		})
	}
}

func TestProcess_TitleFallsBackToH1(t *testing.T) {
	t.Parallel()

	n := New(nil)
	page := `<html><body><h1>Contract Labour Rules</h1><p>Body text.</p></body></html>`
	result := n.Process(page, "https://example.gov/page")
	require.Equal(t, "Contract Labour Rules", result.Title)
}

func TestProcess_PlainTextInput(t *testing.T) {
	t.Parallel()

	n := New(nil)
	result := n.Process("Plain text document about worker safety standards and compliance.", "")
	require.Contains(t, result.Content, "worker safety")
	require.Equal(t, storage.CategoryUnknown, result.Category)
}
