// Package richtext converts provider-native descriptions into the canonical rich-text document
// stored on local records. The document uses the ProseMirror JSON shape the editor reads.
package richtext

import "strings"

// Format is the encoding of a provider body.
type Format string

const (
	FormatPlain    Format = "plain"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

const (
	NodeDoc            = "doc"
	NodeParagraph      = "paragraph"
	NodeHeading        = "heading"
	NodeText           = "text"
	NodeHardBreak      = "hardBreak"
	NodeBulletList     = "bulletList"
	NodeOrderedList    = "orderedList"
	NodeListItem       = "listItem"
	NodeTaskList       = "taskList"
	NodeTaskItem       = "taskItem"
	NodeCodeBlock      = "codeBlock"
	NodeBlockquote     = "blockquote"
	NodeHorizontalRule = "horizontalRule"

	MarkBold      = "bold"
	MarkItalic    = "italic"
	MarkStrike    = "strike"
	MarkUnderline = "underline"
	MarkCode      = "code"
	MarkLink      = "link"
)

type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Document is the root node.
type Document struct {
	Type    string `json:"type"`
	Content []Node `json:"content"`
}

// Normalizer turns a provider body into a Document. A blank body yields a nil document.
type Normalizer func(body string, format Format) (*Document, error)

// Normalize dispatches on format. Unknown formats are treated as plain text.
func Normalize(body string, format Format) (*Document, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}

	switch format {
	case FormatMarkdown:
		return FromMarkdown(body)
	case FormatHTML:
		return FromHTML(body)
	default:
		return FromPlain(body), nil
	}
}

// FromPlain splits on blank lines into paragraphs and keeps single newlines as hard breaks.
func FromPlain(body string) *Document {
	doc := &Document{Type: NodeDoc}
	body = strings.ReplaceAll(body, "\r\n", "\n")

	for _, block := range strings.Split(body, "\n\n") {
		block = strings.Trim(block, "\n")
		if strings.TrimSpace(block) == "" {
			continue
		}

		para := Node{Type: NodeParagraph}
		for i, line := range strings.Split(block, "\n") {
			if i > 0 {
				para.Content = append(para.Content, Node{Type: NodeHardBreak})
			}
			if line != "" {
				para.Content = append(para.Content, textNode(line, nil))
			}
		}
		doc.Content = append(doc.Content, para)
	}

	return doc
}

// PlainText flattens a document back to text, mostly for logs and search.
func (d *Document) PlainText() string {
	if d == nil {
		return ""
	}
	var b strings.Builder
	for i, n := range d.Content {
		if i > 0 {
			b.WriteString("\n")
		}
		writePlain(&b, n)
	}
	return b.String()
}

func writePlain(b *strings.Builder, n Node) {
	switch n.Type {
	case NodeText:
		b.WriteString(n.Text)
	case NodeHardBreak:
		b.WriteString("\n")
	}
	for i, c := range n.Content {
		if i > 0 && isBlock(c.Type) {
			b.WriteString("\n")
		}
		writePlain(b, c)
	}
}

func isBlock(t string) bool {
	switch t {
	case NodeText, NodeHardBreak:
		return false
	default:
		return true
	}
}

func textNode(text string, marks []Mark) Node {
	n := Node{Type: NodeText, Text: text}
	if len(marks) > 0 {
		n.Marks = append([]Mark(nil), marks...)
	}
	return n
}

func withMark(marks []Mark, mark Mark) []Mark {
	out := make([]Mark, 0, len(marks)+1)
	out = append(out, marks...)
	return append(out, mark)
}
