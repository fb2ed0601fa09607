// Package markdown turns raw note text into structured data: review
// prompts, hashtags and link destinations. The rest of the system treats
// it as a pure function over content text.
package markdown

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PromptKind discriminates the supported prompt shapes.
type PromptKind string

const (
	// PromptKindCloze is a fill-in-the-blank prompt written as a link
	// whose preceding text ends with a question mark: `?[hint](answer)`.
	PromptKindCloze PromptKind = "cloze"
	// PromptKindQA is a whole-paragraph question/answer prompt written
	// as `Q: ... A: ...`.
	PromptKindQA PromptKind = "qa"
)

// Prompt is one reviewable item extracted from content text.
type Prompt struct {
	Kind     PromptKind
	Question string
	Answer   string
	Context  string
}

var (
	markdownParser = goldmark.New()
	hashtagPattern = regexp.MustCompile(`(?:^|[\s(])#([\pL\pN_][\pL\pN_/-]*)`)
	qaPattern      = regexp.MustCompile(`(?s)^Q:\s*(.+?)\s*A:\s*(.+?)\s*$`)
)

// Parse returns the markdown syntax tree for the provided source.
func Parse(source []byte) ast.Node {
	return markdownParser.Parser().Parse(text.NewReader(source))
}

// ExtractPrompts walks the source and returns the ordered prompts it
// contains. Paragraphs carrying cloze links yield one prompt per link;
// a paragraph without cloze links yields a single Q/A prompt when it
// matches the `Q: ... A: ...` shape.
func ExtractPrompts(source []byte) []Prompt {
	var prompts []Prompt
	doc := Parse(source)
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		paragraph, ok := node.(*ast.Paragraph)
		if !ok {
			return ast.WalkContinue, nil
		}
		prompts = append(prompts, paragraphPrompts(paragraph, source)...)
		return ast.WalkSkipChildren, nil
	})
	return prompts
}

func paragraphPrompts(paragraph *ast.Paragraph, source []byte) []Prompt {
	context := blockText(paragraph, source)

	var clozes []Prompt
	_ = ast.Walk(paragraph, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := node.(*ast.Link)
		if !ok || !isClozeLink(link, source) {
			return ast.WalkContinue, nil
		}
		clozes = append(clozes, Prompt{
			Kind:     PromptKindCloze,
			Question: inlineText(link, source),
			Answer:   string(link.Destination),
			Context:  context,
		})
		return ast.WalkSkipChildren, nil
	})
	if len(clozes) > 0 {
		return clozes
	}

	if match := qaPattern.FindStringSubmatch(context); match != nil {
		return []Prompt{{
			Kind:     PromptKindQA,
			Question: strings.TrimSpace(match[1]),
			Answer:   strings.TrimSpace(match[2]),
			Context:  context,
		}}
	}
	return nil
}

// isClozeLink reports whether the link is immediately preceded by text
// ending in a question mark, the cloze marker.
func isClozeLink(link *ast.Link, source []byte) bool {
	previous, ok := link.PreviousSibling().(*ast.Text)
	if !ok {
		return false
	}
	value := previous.Segment.Value(source)
	return len(value) > 0 && value[len(value)-1] == '?'
}

// ExtractHashtags returns the ordered, distinct hashtags found in text
// runs of the source.
func ExtractHashtags(source []byte) []string {
	var tags []string
	seen := make(map[string]struct{})
	doc := Parse(source)
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		textNode, ok := node.(*ast.Text)
		if !ok {
			return ast.WalkContinue, nil
		}
		for _, match := range hashtagPattern.FindAllStringSubmatch(string(textNode.Segment.Value(source)), -1) {
			tag := "#" + match[1]
			if _, duplicate := seen[tag]; duplicate {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
		return ast.WalkContinue, nil
	})
	return tags
}

// ExtractLinks returns the ordered, distinct link destinations in the
// source. Cloze links are skipped: their destinations are answers, not
// references.
func ExtractLinks(source []byte) []string {
	var links []string
	seen := make(map[string]struct{})
	appendLink := func(destination string) {
		if destination == "" {
			return
		}
		if _, duplicate := seen[destination]; duplicate {
			return
		}
		seen[destination] = struct{}{}
		links = append(links, destination)
	}

	doc := Parse(source)
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch typed := node.(type) {
		case *ast.Link:
			if !isClozeLink(typed, source) {
				appendLink(string(typed.Destination))
			}
		case *ast.AutoLink:
			appendLink(string(typed.URL(source)))
		}
		return ast.WalkContinue, nil
	})
	return links
}

func blockText(node ast.Node, source []byte) string {
	lines := node.Lines()
	var builder strings.Builder
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		builder.Write(segment.Value(source))
	}
	return strings.TrimSpace(builder.String())
}

func inlineText(node ast.Node, source []byte) string {
	var builder strings.Builder
	_ = ast.Walk(node, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if textNode, ok := child.(*ast.Text); ok {
			builder.Write(textNode.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return builder.String()
}
