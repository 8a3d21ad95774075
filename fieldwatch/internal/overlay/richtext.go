package overlay

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

const highlightStyle = "border-bottom:2px solid #dc2626;background:rgba(220,38,38,.08);"

// parseFragment parses field inner HTML under a detached root.
func parseFragment(fragment string) (*html.Node, error) {
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), root)
	if err != nil {
		return nil, fmt.Errorf("overlay: parse fragment: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

func renderChildren(root *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("overlay: render fragment: %w", err)
		}
	}
	return buf.String(), nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func isHighlight(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Span {
		return false
	}
	v, ok := attr(n, page.AttrOwned)
	return ok && v == "highlight"
}

// unwrap replaces every highlight span with its children and merges the
// text nodes this leaves side by side.
func unwrap(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if isHighlight(c) {
			for gc := c.FirstChild; gc != nil; {
				gnext := gc.NextSibling
				c.RemoveChild(gc)
				n.InsertBefore(gc, c)
				gc = gnext
			}
			n.RemoveChild(c)
		} else {
			unwrap(c)
		}
		c = next
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode && next != nil && next.Type == html.TextNode {
			c.Data += next.Data
			n.RemoveChild(next)
			continue
		}
		c = next
	}
}

// textNodes lists text nodes in document order, with <br> rendered as a
// newline pseudo-node (nil) so offsets match Text.
func textNodes(n *html.Node, out *[]*html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			*out = append(*out, c)
		case c.Type == html.ElementNode && c.DataAtom == atom.Br:
			*out = append(*out, nil)
		case c.Type == html.ElementNode:
			textNodes(c, out)
		}
	}
}

// Text returns the plain text of a rich field's HTML, without highlight
// markup, with <br> as a newline. Flagged range offsets for rich fields
// are counted against this text.
func Text(fragment string) (string, error) {
	root, err := parseFragment(fragment)
	if err != nil {
		return "", err
	}
	unwrap(root)
	var nodes []*html.Node
	textNodes(root, &nodes)
	var b strings.Builder
	for _, n := range nodes {
		if n == nil {
			b.WriteByte('\n')
			continue
		}
		b.WriteString(n.Data)
	}
	return b.String(), nil
}

// Strip removes every highlight span from fragment.
func Strip(fragment string) (string, error) {
	root, err := parseFragment(fragment)
	if err != nil {
		return "", err
	}
	unwrap(root)
	return renderChildren(root)
}

// Highlight removes prior highlight spans from fragment and wraps each
// valid range of the plain text (see Text) in a highlight span. Ranges
// crossing element boundaries get one span per text node. Overlapping
// ranges keep the earliest.
func Highlight(fragment string, ranges []correction.FlaggedRange) (string, error) {
	root, err := parseFragment(fragment)
	if err != nil {
		return "", err
	}
	unwrap(root)

	var nodes []*html.Node
	textNodes(root, &nodes)
	total := 0
	for _, n := range nodes {
		if n == nil {
			total++
			continue
		}
		total += len([]rune(n.Data))
	}

	valid := make([]correction.FlaggedRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Within(total) {
			valid = append(valid, r)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].StartIndex < valid[j].StartIndex })
	kept := valid[:0]
	lastEnd := -1
	for _, r := range valid {
		if r.StartIndex >= lastEnd {
			kept = append(kept, r)
			lastEnd = r.EndIndex
		}
	}

	offset := 0
	for _, n := range nodes {
		if n == nil {
			offset++
			continue
		}
		runes := []rune(n.Data)
		nodeStart, nodeEnd := offset, offset+len(runes)
		offset = nodeEnd

		var cuts []correction.FlaggedRange
		for _, r := range kept {
			if r.EndIndex <= nodeStart || r.StartIndex >= nodeEnd {
				continue
			}
			cuts = append(cuts, r)
		}
		if len(cuts) > 0 {
			splitText(n, runes, nodeStart, cuts)
		}
	}
	return renderChildren(root)
}

// splitText replaces text node n with plain and highlighted segments.
func splitText(n *html.Node, runes []rune, base int, cuts []correction.FlaggedRange) {
	parent := n.Parent
	pos := 0
	for _, r := range cuts {
		from := max(r.StartIndex-base, 0)
		to := min(r.EndIndex-base, len(runes))
		if from > pos {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: string(runes[pos:from])}, n)
		}
		parent.InsertBefore(highlightSpan(r, string(runes[from:to])), n)
		pos = to
	}
	if pos < len(runes) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: string(runes[pos:])}, n)
	}
	parent.RemoveChild(n)
}

func highlightSpan(r correction.FlaggedRange, text string) *html.Node {
	span := &html.Node{
		Type:     html.ElementNode,
		Data:     "span",
		DataAtom: atom.Span,
		Attr: []html.Attribute{
			{Key: "class", Val: page.HighlightClass},
			{Key: page.AttrOwned, Val: "highlight"},
			{Key: "data-word", Val: r.Word},
			{Key: "style", Val: highlightStyle},
		},
	}
	if len(r.Suggestions) > 0 {
		span.Attr = append(span.Attr, html.Attribute{Key: "title", Val: strings.Join(r.Suggestions, "، ")})
	}
	span.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return span
}
