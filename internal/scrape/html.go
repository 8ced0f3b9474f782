package scrape

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractRows picks the list container most likely to hold the student rows
// and returns the text of each of its <li> children. Containers whose <li>
// count falls outside [rowsMin, rowsMax] are ignored. A login form, or lists
// without any 등원/하원 marker, make the page malformed.
func ExtractRows(r io.Reader, rowsMin, rowsMax int) ([]string, error) {
	if rowsMin < 1 {
		rowsMin = 1
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		best      []*html.Node
		bestScore = -1
		loginForm bool
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Input && attr(n, "type") == "password" {
				loginForm = true
			}
			items := childItems(n)
			if len(items) >= rowsMin && len(items) <= rowsMax {
				score := 0
				for _, li := range items {
					text := nodeText(li)
					if strings.Contains(text, checkInToken) || strings.Contains(text, checkOutToken) {
						score++
					}
				}
				if score > bestScore || (score == bestScore && len(items) > len(best)) {
					best, bestScore = items, score
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	// an expired session redirects to a login page, which may still carry
	// navigation lists
	if loginForm {
		return nil, fmt.Errorf("%w: login form instead of the board", ErrMalformed)
	}
	if best == nil {
		return nil, nil
	}
	if bestScore == 0 {
		return nil, fmt.Errorf("%w: no list carries attendance rows", ErrMalformed)
	}

	rows := make([]string, 0, len(best))
	for _, li := range best {
		rows = append(rows, nodeText(li))
	}
	return rows, nil
}

func childItems(n *html.Node) []*html.Node {
	var items []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			items = append(items, c)
		}
	}
	return items
}

// nodeText joins every non-blank text node under n, one per line.
func nodeText(n *html.Node) string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(lines, "\n")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
