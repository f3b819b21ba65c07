// Package markdown renders generated Markdown replies as plain text for
// chats that reject the Markdown parse mode.
package markdown

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PlainText strips Markdown syntax from src while keeping its words, list
// structure, code and link targets. Link targets follow the link text in
// parentheses unless they are identical.
func PlainText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}

	source := []byte(src)
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	r := &plainRenderer{source: source}
	_ = gmast.Walk(root, r.walk)

	return strings.TrimSpace(r.b.String())
}

type plainRenderer struct {
	source []byte
	b      strings.Builder
	// linkStart holds the output offsets of open links.
	linkStart []int
}

func (r *plainRenderer) walk(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
	switch node := n.(type) {
	case *gmast.Text:
		if entering {
			r.b.Write(node.Segment.Value(r.source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				r.b.WriteByte('\n')
			}
		}
	case *gmast.String:
		if entering {
			r.b.Write(node.Value)
		}
	case *gmast.AutoLink:
		if entering {
			r.b.Write(node.URL(r.source))
		}
		return gmast.WalkSkipChildren, nil
	case *gmast.RawHTML, *gmast.HTMLBlock:
		return gmast.WalkSkipChildren, nil
	case *gmast.CodeBlock, *gmast.FencedCodeBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				r.b.Write(seg.Value(r.source))
			}
			return gmast.WalkSkipChildren, nil
		}
		r.endBlock(n)
	case *gmast.Link:
		r.link(entering, string(node.Destination))
	case *gmast.Image:
		r.link(entering, string(node.Destination))
	case *gmast.ListItem:
		if entering {
			r.b.WriteString(listMarker(node))
		} else {
			r.newline()
		}
	case *gmast.ThematicBreak:
		if entering {
			r.b.WriteString("---")
		} else {
			r.endBlock(n)
		}
	case *gmast.Paragraph, *gmast.Heading, *gmast.TextBlock, *gmast.List, *gmast.Blockquote:
		if !entering {
			r.endBlock(n)
		}
	}
	return gmast.WalkContinue, nil
}

func (r *plainRenderer) link(entering bool, dest string) {
	if entering {
		r.linkStart = append(r.linkStart, r.b.Len())
		return
	}
	start := r.linkStart[len(r.linkStart)-1]
	r.linkStart = r.linkStart[:len(r.linkStart)-1]

	label := r.b.String()[start:]
	if dest != "" && label != dest {
		if label == "" {
			r.b.WriteString(dest)
		} else {
			fmt.Fprintf(&r.b, " (%s)", dest)
		}
	}
}

// endBlock terminates a block; top-level blocks are separated by a blank line.
func (r *plainRenderer) endBlock(n gmast.Node) {
	r.newline()
	if n.NextSibling() == nil {
		return
	}
	if _, inItem := n.Parent().(*gmast.ListItem); inItem {
		return
	}
	r.b.WriteByte('\n')
}

func (r *plainRenderer) newline() {
	s := r.b.String()
	if s != "" && !strings.HasSuffix(s, "\n") {
		r.b.WriteByte('\n')
	}
}

func listMarker(item *gmast.ListItem) string {
	list, ok := item.Parent().(*gmast.List)
	if !ok || !list.IsOrdered() {
		return "- "
	}
	idx := 0
	for sib := item.PreviousSibling(); sib != nil; sib = sib.PreviousSibling() {
		idx++
	}
	return fmt.Sprintf("%d. ", list.Start+idx)
}
