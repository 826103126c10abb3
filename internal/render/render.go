// Package render turns stored message content into what the chat view shows:
// the collapsed reasoning block, the primary answer as HTML, a live preview
// for markup snippets and a downloadable artifact for code-bearing replies.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"sentientos/internal/model"
)

const (
	openReasoning  = "<thinking>"
	closeReasoning = "</thinking>"

	ArtifactContentType = "text/markdown"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type Preview struct {
	Language string `json:"language"`
	Source   string `json:"source"`
}

type View struct {
	MsgID        string        `json:"msg_id"`
	Role         string        `json:"role"`
	Reasoning    string        `json:"reasoning,omitempty"`
	HasReasoning bool          `json:"has_reasoning"`
	Primary      string        `json:"primary"`
	PrimaryHTML  template.HTML `json:"primary_html"`
	Preview      *Preview      `json:"preview,omitempty"`
	ArtifactName string        `json:"artifact_name,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// SplitReasoning separates "<thinking>...</thinking>answer". Without the
// opening tag the whole content is primary; without the closing tag the
// whole content is reasoning.
func SplitReasoning(content string) (reasoning, primary string, ok bool) {
	if !strings.Contains(content, openReasoning) {
		return "", content, false
	}
	before, after, closed := strings.Cut(content, closeReasoning)
	reasoning = strings.TrimSpace(strings.ReplaceAll(before, openReasoning, ""))
	if !closed {
		return reasoning, "", true
	}
	return reasoning, after, true
}

// ArtifactName is the download file name for a message created at t.
func ArtifactName(t time.Time) string {
	return "log_" + t.Format("2006-01-02") + ".md"
}

// Message builds the view of one stored message.
func Message(m model.Message) (View, error) {
	v := View{MsgID: m.MsgID, Role: m.Role, CreatedAt: m.CreatedAt}
	v.Reasoning, v.Primary, v.HasReasoning = SplitReasoning(m.Content)

	html, err := ToHTML(v.Primary)
	if err != nil {
		return View{}, err
	}
	v.PrimaryHTML = html

	source := []byte(m.Content)
	blocks := codeBlocks(source)
	for _, b := range blocks {
		if b.Language == "html" || b.Language == "svg" {
			preview := b
			v.Preview = &preview
			break
		}
	}
	if m.Role == model.RoleAssistant && len(blocks) > 0 {
		v.ArtifactName = ArtifactName(m.CreatedAt)
	}
	return v, nil
}

// Transcript renders messages in order.
func Transcript(messages []model.Message) ([]View, error) {
	out := make([]View, 0, len(messages))
	for _, m := range messages {
		v, err := Message(m)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// HasArtifact reports whether m is offered for download.
func HasArtifact(m model.Message) bool {
	return m.Role == model.RoleAssistant && len(codeBlocks([]byte(m.Content))) > 0
}

// ToHTML converts Markdown to HTML. Raw HTML in the source is not passed
// through.
func ToHTML(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown failed: %w", err)
	}
	return template.HTML(buf.String()), nil
}

func codeBlocks(source []byte) []Preview {
	doc := markdown.Parser().Parse(text.NewReader(source))
	var out []Preview
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var body strings.Builder
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			body.Write(seg.Value(source))
		}
		out = append(out, Preview{
			Language: strings.ToLower(string(block.Language(source))),
			Source:   body.String(),
		})
		return ast.WalkSkipChildren, nil
	})
	return out
}
