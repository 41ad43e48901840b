// Package scraper discovers #StopRansomware advisories and their artifact links.
package scraper

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Anchor is an <a href> element with its visible text.
type Anchor struct {
	Href string
	Text string
}

// ParseAnchors returns every anchor with an href attribute, in document order.
func ParseAnchors(markup []byte) ([]Anchor, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var anchors []Anchor
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		anchors = append(anchors, Anchor{
			Href: strings.TrimSpace(href),
			Text: strings.Join(strings.Fields(s.Text()), " "),
		})
	})
	return anchors, nil
}
