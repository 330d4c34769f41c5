package richtext

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FromHTML converts an HTML fragment (Microsoft Graph bodies, Jira rendered fields) into a Document.
func FromHTML(body string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	return &Document{Type: NodeDoc, Content: htmlBlocks(root)}, nil
}

// htmlBlocks walks the children of s. Runs of loose inline content are wrapped in paragraphs.
func htmlBlocks(s *goquery.Selection) []Node {
	var out []Node
	var pending []Node

	flush := func() {
		pending = trimInline(mergeText(pending))
		if len(pending) > 0 {
			out = append(out, Node{Type: NodeParagraph, Content: pending})
		}
		pending = nil
	}

	s.Contents().Each(func(_ int, child *goquery.Selection) {
		name := goquery.NodeName(child)
		switch name {
		case "p", "div", "section", "article":
			flush()
			if hasBlockChildren(child) {
				out = append(out, htmlBlocks(child)...)
				return
			}
			if content := trimInline(mergeText(htmlInlines(child, nil))); len(content) > 0 {
				out = append(out, Node{Type: NodeParagraph, Content: content})
			}
		case "h1", "h2", "h3", "h4", "h5", "h6":
			flush()
			level, _ := strconv.Atoi(name[1:])
			out = append(out, Node{
				Type:    NodeHeading,
				Attrs:   map[string]any{"level": level},
				Content: trimInline(mergeText(htmlInlines(child, nil))),
			})
		case "ul", "ol":
			flush()
			out = append(out, htmlList(child, name == "ol"))
		case "blockquote":
			flush()
			out = append(out, Node{Type: NodeBlockquote, Content: htmlBlocks(child)})
		case "pre":
			flush()
			code := strings.TrimRight(child.Text(), "\n")
			block := Node{Type: NodeCodeBlock}
			if code != "" {
				block.Content = []Node{textNode(code, nil)}
			}
			out = append(out, block)
		case "hr":
			flush()
			out = append(out, Node{Type: NodeHorizontalRule})
		case "script", "style", "head", "#comment":
		default:
			pending = append(pending, htmlInline(child, nil)...)
		}
	})
	flush()

	return out
}

func htmlList(s *goquery.Selection, ordered bool) Node {
	list := Node{Type: NodeBulletList}
	if ordered {
		list.Type = NodeOrderedList
	}

	s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		item := Node{Type: NodeListItem, Content: htmlBlocks(li)}
		list.Content = append(list.Content, item)
	})
	return list
}

func hasBlockChildren(s *goquery.Selection) bool {
	return s.ChildrenFiltered("p, div, ul, ol, pre, blockquote, h1, h2, h3, h4, h5, h6, hr").Length() > 0
}

func htmlInlines(s *goquery.Selection, marks []Mark) []Node {
	var out []Node
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		out = append(out, htmlInline(child, marks)...)
	})
	return out
}

func htmlInline(s *goquery.Selection, marks []Mark) []Node {
	switch goquery.NodeName(s) {
	case "#text":
		value := collapseSpace(s.Text())
		if value == "" {
			return nil
		}
		return []Node{textNode(value, marks)}
	case "br":
		return []Node{{Type: NodeHardBreak}}
	case "strong", "b":
		return htmlInlines(s, withMark(marks, Mark{Type: MarkBold}))
	case "em", "i":
		return htmlInlines(s, withMark(marks, Mark{Type: MarkItalic}))
	case "u":
		return htmlInlines(s, withMark(marks, Mark{Type: MarkUnderline}))
	case "s", "strike", "del":
		return htmlInlines(s, withMark(marks, Mark{Type: MarkStrike}))
	case "code":
		return []Node{textNode(s.Text(), withMark(marks, Mark{Type: MarkCode}))}
	case "a":
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return htmlInlines(s, marks)
		}
		return htmlInlines(s, withMark(marks, Mark{Type: MarkLink, Attrs: map[string]any{"href": href}}))
	case "script", "style", "#comment":
		return nil
	default:
		return htmlInlines(s, marks)
	}
}

func collapseSpace(value string) string {
	if strings.TrimSpace(value) == "" {
		if value == "" {
			return ""
		}
		return " "
	}
	fields := strings.Fields(value)
	out := strings.Join(fields, " ")
	if strings.TrimLeft(value[:1], " \t\n\r") == "" {
		out = " " + out
	}
	if strings.TrimRight(value[len(value)-1:], " \t\n\r") == "" {
		out += " "
	}
	return out
}

// trimInline drops leading and trailing whitespace-only text left over from markup indentation.
func trimInline(nodes []Node) []Node {
	for len(nodes) > 0 && nodes[0].Type == NodeText && strings.TrimSpace(nodes[0].Text) == "" {
		nodes = nodes[1:]
	}
	for len(nodes) > 0 && nodes[len(nodes)-1].Type == NodeText && strings.TrimSpace(nodes[len(nodes)-1].Text) == "" {
		nodes = nodes[:len(nodes)-1]
	}
	if len(nodes) == 0 {
		return nil
	}
	if nodes[0].Type == NodeText {
		nodes[0].Text = strings.TrimLeft(nodes[0].Text, " ")
	}
	last := len(nodes) - 1
	if nodes[last].Type == NodeText {
		nodes[last].Text = strings.TrimRight(nodes[last].Text, " ")
	}
	return nodes
}
