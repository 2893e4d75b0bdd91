package collyfetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteintel/analyzer/internal/analysis"
)

// Extract parses an HTML body into the fields the analysis prompts use.
// Boilerplate regions (scripts, styles, navigation chrome) are stripped
// before the text is collected.
func Extract(pageURL string, statusCode int, body []byte) (analysis.PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return analysis.PageContent{}, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return analysis.PageContent{}, fmt.Errorf("parse page url: %w", err)
	}

	page := analysis.PageContent{
		URL:             pageURL,
		Domain:          base.Hostname(),
		StatusCode:      statusCode,
		MetaDescription: metaContent(doc, "description", "og:description"),
		Keywords:        metaContent(doc, "keywords", ""),
		Links:           extractLinks(doc, base),
		Images:          extractImages(doc, base),
	}
	page.Title = extractTitle(doc, base.Hostname())
	page.Text = extractText(doc)
	return page, nil
}

func extractTitle(doc *goquery.Document, domain string) string {
	if title := clean(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if h1 := clean(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	if domain != "" {
		return domain
	}
	return "No title found"
}

func metaContent(doc *goquery.Document, name, property string) string {
	if v, ok := doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).First().Attr("content"); ok {
		if v = clean(v); v != "" {
			return v
		}
	}
	if property == "" {
		return ""
	}
	if v, ok := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().Attr("content"); ok {
		return clean(v)
	}
	return ""
}

// extractText returns the visible body text with chrome elements
// removed and runs of whitespace collapsed.
func extractText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return ""
	}
	body.Find("script, style, nav, header, footer, noscript, iframe").Remove()
	return clean(body.Text())
}

func extractLinks(doc *goquery.Document, base *url.URL) []analysis.Link {
	var links []analysis.Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := resolveRef(base, href)
		if resolved == "" {
			return
		}
		links = append(links, analysis.Link{
			URL:  resolved,
			Text: clean(s.Text()),
		})
	})
	return links
}

func extractImages(doc *goquery.Document, base *url.URL) []analysis.Image {
	var images []analysis.Image
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		resolved := resolveRef(base, src)
		if resolved == "" {
			return
		}
		alt, _ := s.Attr("alt")
		images = append(images, analysis.Image{
			URL: resolved,
			Alt: clean(alt),
		})
	})
	return images
}

func resolveRef(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") ||
		strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "mailto:") ||
		strings.HasPrefix(ref, "data:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
