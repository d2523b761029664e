package fetch

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractTitle returns the document title, used to describe unexpected pages
// in escalations.
func extractTitle(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}
