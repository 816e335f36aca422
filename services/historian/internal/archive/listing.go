package archive

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var errNoTable = errors.New("no table in listing page")

type link struct {
	href string
	text string
}

// parseListing returns the anchors found in table cells of an index page.
func parseListing(body []byte) ([]link, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var (
		links    []link
		sawTable bool
		walk     func(n *html.Node, inTable, inCell bool)
	)
	walk = func(n *html.Node, inTable, inCell bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Table:
				sawTable = true
				inTable = true
			case atom.Td:
				inCell = inTable
			case atom.A:
				if inCell {
					links = append(links, link{href: attr(n, "href"), text: strings.TrimSpace(text(n))})
				}
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, inTable, inCell)
		}
	}
	walk(doc, false, false)

	if !sawTable {
		return nil, errNoTable
	}
	return links, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return b.String()
}
