package extract

import (
	"bytes"
	"fmt"
	nurl "net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

const (
	// maxTextLength is the maximum number of runes sent for one document.
	maxTextLength = 15000
	// minTextLength rejects pages that are empty or only navigation.
	minTextLength = 20
)

// htmlToText extracts the readable text of an HTML document using go-readability.
func htmlToText(name string, body []byte) (string, error) {
	base, _ := nurl.Parse("file:///" + strings.TrimLeft(name, "/"))
	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	text := normalizeText(article.TextContent)
	if utf8.RuneCountInString(text) < minTextLength {
		return "", fmt.Errorf("extracted content too short (%d chars)", utf8.RuneCountInString(text))
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		runes := []rune(text)
		text = string(runes[:maxTextLength]) + "\n... [truncated]"
	}
	if article.Title != "" {
		text = article.Title + "\n\n" + text
	}
	return text, nil
}

// prepareDocument converts HTML documents to plain text; other files pass through.
func prepareDocument(f File) (File, error) {
	if f.MIMEType != "text/html" {
		return f, nil
	}
	text, err := htmlToText(f.Name, f.Data)
	if err != nil {
		return f, err
	}
	return File{Name: f.Name, MIMEType: "text/plain", Data: []byte(text)}, nil
}

var multiSpace = regexp.MustCompile(`[ \t]+`)
var multiNewline = regexp.MustCompile(`\n{3,}`)

func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	s = multiSpace.ReplaceAllString(s, " ")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return s
}
