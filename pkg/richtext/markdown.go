package richtext

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// FromMarkdown parses GitHub flavoured markdown.
func FromMarkdown(body string) (*Document, error) {
	src := []byte(body)
	root := markdown.Parser().Parse(text.NewReader(src))

	c := &mdConverter{src: src}
	doc := &Document{Type: NodeDoc, Content: c.blocks(root)}
	return doc, nil
}

type mdConverter struct {
	src []byte
}

func (c *mdConverter) blocks(parent ast.Node) []Node {
	var out []Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if block, ok := c.block(n); ok {
			out = append(out, block)
		}
	}
	return out
}

func (c *mdConverter) block(n ast.Node) (Node, bool) {
	switch node := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		return Node{Type: NodeParagraph, Content: c.inlines(node, nil)}, true
	case *ast.Heading:
		return Node{
			Type:    NodeHeading,
			Attrs:   map[string]any{"level": node.Level},
			Content: c.inlines(node, nil),
		}, true
	case *ast.List:
		return c.list(node), true
	case *ast.Blockquote:
		return Node{Type: NodeBlockquote, Content: c.blocks(node)}, true
	case *ast.ThematicBreak:
		return Node{Type: NodeHorizontalRule}, true
	case *ast.FencedCodeBlock:
		block := Node{Type: NodeCodeBlock, Content: c.lines(node)}
		if lang := string(node.Language(c.src)); lang != "" {
			block.Attrs = map[string]any{"language": lang}
		}
		return block, true
	case *ast.CodeBlock:
		return Node{Type: NodeCodeBlock, Content: c.lines(node)}, true
	case *ast.HTMLBlock:
		raw := strings.TrimSpace(c.lineText(node))
		if raw == "" {
			return Node{}, false
		}
		return Node{Type: NodeParagraph, Content: []Node{textNode(raw, nil)}}, true
	default:
		if n.Type() == ast.TypeBlock && n.HasChildren() {
			return Node{Type: NodeParagraph, Content: c.inlines(n, nil)}, true
		}
		return Node{}, false
	}
}

func (c *mdConverter) list(list *ast.List) Node {
	listType, itemType := NodeBulletList, NodeListItem
	if list.IsOrdered() {
		listType = NodeOrderedList
	}
	if isTaskList(list) {
		listType, itemType = NodeTaskList, NodeTaskItem
	}

	out := Node{Type: listType}
	if list.IsOrdered() && list.Start > 1 {
		out.Attrs = map[string]any{"start": list.Start}
	}

	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		li := Node{Type: itemType, Content: c.blocks(item)}
		if itemType == NodeTaskItem {
			li.Attrs = map[string]any{"checked": taskChecked(item)}
		}
		out.Content = append(out.Content, li)
	}
	return out
}

func isTaskList(list *ast.List) bool {
	first := list.FirstChild()
	if first == nil || first.FirstChild() == nil {
		return false
	}
	_, ok := first.FirstChild().FirstChild().(*east.TaskCheckBox)
	return ok
}

func taskChecked(item ast.Node) bool {
	if item.FirstChild() == nil {
		return false
	}
	box, ok := item.FirstChild().FirstChild().(*east.TaskCheckBox)
	return ok && box.IsChecked
}

func (c *mdConverter) inlines(parent ast.Node, marks []Mark) []Node {
	var out []Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Text:
			value := string(node.Segment.Value(c.src))
			if value != "" {
				out = append(out, textNode(value, marks))
			}
			if node.HardLineBreak() {
				out = append(out, Node{Type: NodeHardBreak})
			} else if node.SoftLineBreak() {
				out = append(out, textNode(" ", marks))
			}
		case *ast.String:
			out = append(out, textNode(string(node.Value), marks))
		case *ast.Emphasis:
			mark := Mark{Type: MarkItalic}
			if node.Level >= 2 {
				mark = Mark{Type: MarkBold}
			}
			out = append(out, c.inlines(node, withMark(marks, mark))...)
		case *east.Strikethrough:
			out = append(out, c.inlines(node, withMark(marks, Mark{Type: MarkStrike}))...)
		case *ast.CodeSpan:
			var b strings.Builder
			for t := node.FirstChild(); t != nil; t = t.NextSibling() {
				if segment, ok := t.(*ast.Text); ok {
					b.Write(segment.Segment.Value(c.src))
				}
			}
			out = append(out, textNode(b.String(), withMark(marks, Mark{Type: MarkCode})))
		case *ast.Link:
			link := Mark{Type: MarkLink, Attrs: map[string]any{"href": string(node.Destination)}}
			out = append(out, c.inlines(node, withMark(marks, link))...)
		case *ast.AutoLink:
			link := Mark{Type: MarkLink, Attrs: map[string]any{"href": string(node.URL(c.src))}}
			out = append(out, textNode(string(node.Label(c.src)), withMark(marks, link)))
		case *ast.Image:
			out = append(out, c.inlines(node, marks)...)
		case *east.TaskCheckBox:
			// rendered through the taskItem attrs
		default:
			out = append(out, c.inlines(n, marks)...)
		}
	}
	return mergeText(out)
}

func (c *mdConverter) lines(n ast.Node) []Node {
	value := strings.TrimRight(c.lineText(n), "\n")
	if value == "" {
		return nil
	}
	return []Node{textNode(value, nil)}
}

func (c *mdConverter) lineText(n ast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		b.Write(segment.Value(c.src))
	}
	return b.String()
}

// mergeText joins adjacent text nodes carrying the same marks.
func mergeText(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if last.Type == NodeText && n.Type == NodeText && sameMarks(last.Marks, n.Marks) {
				last.Text += n.Text
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type {
			return false
		}
		if a[i].Type == MarkLink && a[i].Attrs["href"] != b[i].Attrs["href"] {
			return false
		}
	}
	return true
}
