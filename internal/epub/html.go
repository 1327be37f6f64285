package epub

import (
	"html"
	"regexp"
	"strings"
)

var (
	reStripBlocks = regexp.MustCompile(`(?is)<(script|style|head)\b.*?</(script|style|head)>`)
	reComments    = regexp.MustCompile(`(?s)<!--.*?-->`)
	reBlockEnd    = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|blockquote|section|article|tr|table|figure|figcaption|pre)>|<(br|hr)\s*/?>`)
	reTags        = regexp.MustCompile(`(?s)<[^>]*>`)
	reHeading     = regexp.MustCompile(`(?is)<h[1-3][^>]*>(.*?)</h[1-3]>`)
	reTitleTag    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	reSpaces      = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// extractParagraphs converts an XHTML chapter document into plain-text
// paragraphs. Block-level closing tags become paragraph breaks; everything
// else collapses to single-spaced text.
func extractParagraphs(doc string) []string {
	doc = reStripBlocks.ReplaceAllString(doc, " ")
	doc = reComments.ReplaceAllString(doc, " ")
	doc = reBlockEnd.ReplaceAllString(doc, "\n\n")
	doc = reTags.ReplaceAllString(doc, " ")
	doc = html.UnescapeString(doc)

	var paragraphs []string
	for _, block := range strings.Split(doc, "\n\n") {
		block = reSpaces.ReplaceAllString(block, " ")
		block = strings.Join(strings.Fields(block), " ")
		if block == "" {
			continue
		}
		paragraphs = append(paragraphs, block)
	}
	return paragraphs
}

// extractTitle pulls a chapter heading from the first h1-h3 element, falling
// back to the document title.
func extractTitle(doc string) string {
	if m := reHeading.FindStringSubmatch(doc); m != nil {
		if t := cleanInline(m[1]); t != "" {
			return t
		}
	}
	if m := reTitleTag.FindStringSubmatch(doc); m != nil {
		return cleanInline(m[1])
	}
	return ""
}

func cleanInline(s string) string {
	s = reTags.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
