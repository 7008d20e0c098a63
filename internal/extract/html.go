package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLDocument is the visible text and outgoing links of an HTML page.
type HTMLDocument struct {
	Title string
	// Text is every visible text node, whitespace-collapsed and joined by single spaces.
	Text string
	// Links holds raw href values of <a> elements in document order, unresolved.
	Links []string
	// BaseHref is the href of a <base> element, if any.
	BaseHref string
}

// ParseHTML parses r and collects visible text and links. Script, style, noscript and template
// contents are not visible text.
func ParseHTML(r io.Reader) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parse HTML: %v", ErrMalformedDocument, err)
	}
	doc := &HTMLDocument{}
	var words []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			words = append(words, strings.Fields(n.Data)...)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Title:
				if doc.Title == "" {
					doc.Title = strings.Join(strings.Fields(nodeText(n)), " ")
				}
			case atom.A:
				if href, ok := attr(n, "href"); ok && strings.TrimSpace(href) != "" {
					doc.Links = append(doc.Links, strings.TrimSpace(href))
				}
			case atom.Base:
				if href, ok := attr(n, "href"); ok && doc.BaseHref == "" {
					doc.BaseHref = strings.TrimSpace(href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	doc.Text = strings.Join(words, " ")
	return doc, nil
}

func extractHTMLText(content []byte) (string, error) {
	doc, err := ParseHTML(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
