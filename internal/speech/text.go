package speech

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockElements = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.Br:         true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Li:         true,
	atom.Blockquote: true,
	atom.Section:    true,
}

var (
	markupTag   = regexp.MustCompile(`(?i)</?(p|div|br|h[1-6]|li|ul|ol|blockquote|section|strong|em|b|i|u|span)\b[^<>]*>`)
	hiddenBlock = regexp.MustCompile(`(?is)<(?:script|style)\b[^>]*>.*?</(?:script|style)\s*>`)
)

// PlainText reduces model output to display-ready plain text. Small local models
// sometimes wrap the speech in HTML or a fenced block; tags are dropped while block
// boundaries become paragraph breaks. Text that carries no recognised markup is
// only tidied, so a bare "<" in prose survives.
func PlainText(content string) string {
	content = stripCodeFence(strings.TrimSpace(content))
	if !markupTag.MatchString(content) && !hiddenBlock.MatchString(content) {
		return tidyParagraphs(content)
	}

	stripped := stripMarkup(content)
	parsed, err := parseMarkup(content)
	if err != nil || len(strings.Fields(parsed)) < len(strings.Fields(stripped)) {
		// The parser swallowed prose it took for a tag.
		return stripped
	}

	return parsed
}

func parseMarkup(content string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(content), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for _, node := range nodes {
		collectText(&builder, node)
	}

	return tidyParagraphs(builder.String()), nil
}

// stripMarkup removes only the recognised tags and keeps every other character.
func stripMarkup(content string) string {
	content = hiddenBlock.ReplaceAllString(content, "")
	content = markupTag.ReplaceAllStringFunc(content, func(tag string) string {
		name := markupTag.FindStringSubmatch(tag)[1]
		if blockElements[atom.Lookup([]byte(strings.ToLower(name)))] {
			return "\n\n"
		}
		return ""
	})
	return tidyParagraphs(html.UnescapeString(content))
}

func collectText(builder *strings.Builder, node *html.Node) {
	switch node.Type {
	case html.TextNode:
		builder.WriteString(node.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if node.DataAtom == atom.Script || node.DataAtom == atom.Style {
			return
		}
	}

	block := node.Type == html.ElementNode && blockElements[node.DataAtom]
	if block {
		builder.WriteString("\n\n")
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(builder, child)
	}

	if block {
		builder.WriteString("\n\n")
	}
}

// tidyParagraphs trims every line and collapses runs of blank lines into one.
func tidyParagraphs(content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) > 0 && !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
