// Copyright (c) 2026 Chris Bergstrom
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package template renders outbound email bodies: the assistant's Markdown
// replies as inline-styled dark-theme HTML (email clients ignore stylesheets,
// so every element carries its own style attribute), plus the branded error
// and acknowledgment notices.
package template

import (
	"regexp"
	"strings"
)

// Inline styles for rendered Markdown elements.
const (
	preStyle  = `background:#111118;color:#E8E8E8;padding:16px;border-radius:6px;overflow-x:auto;font-family:'Courier New',Courier,monospace;font-size:13px;margin:16px 0;border:1px solid #1a1a2e;`
	codeStyle = `background:#1a1a2e;padding:2px 6px;border-radius:4px;font-family:monospace;font-size:14px;color:#6B9BD1;`
	listStyle = `margin:12px 0;padding-left:24px;`
	itemStyle = `margin:4px 0;`
	paraStyle = `margin:16px 0;`
	h1Style   = `margin:28px 0 10px;font-size:20px;color:#E8E8E8;font-weight:600;`
	h2Style   = `margin:24px 0 8px;font-size:18px;color:#E8E8E8;font-weight:600;`
	h3Style   = `margin:20px 0 6px;font-size:16px;color:#E8E8E8;font-weight:600;`
)

var (
	inlineCode = regexp.MustCompile("`([^`]+)`")
	boldText   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicText = regexp.MustCompile(`\*([^*]+)\*`)
	orderedRe  = regexp.MustCompile(`^\d+\. (.+)$`)
)

// RenderMarkdown converts the assistant's Markdown-flavored reply into a
// sequence of styled HTML blocks. It understands fenced code blocks, inline
// code, bold, italic, three heading levels, bullet and numbered lists, and
// blank-line paragraph breaks. Lines within a paragraph join with <br>.
//
// A single pass over lines keeps list handling correct: consecutive bullets
// land in one <ul>, and a paragraph break or a different block type closes it.
func RenderMarkdown(text string) string {
	var (
		out      strings.Builder
		para     []string
		listTag  string // "ul", "ol", or ""
		inFence  bool
		fenceBuf []string
	)

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		out.WriteString(`<p style="` + paraStyle + `">`)
		out.WriteString(strings.Join(para, "<br>"))
		out.WriteString("</p>")
		para = para[:0]
	}
	closeList := func() {
		if listTag != "" {
			out.WriteString("</" + listTag + ">")
			listTag = ""
		}
	}
	openList := func(tag string) {
		if listTag == tag {
			return
		}
		closeList()
		out.WriteString(`<` + tag + ` style="` + listStyle + `">`)
		listTag = tag
	}

	for _, line := range strings.Split(escapeHTML(text), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inFence {
				out.WriteString(`<pre style="` + preStyle + `"><code>`)
				out.WriteString(strings.TrimSpace(strings.Join(fenceBuf, "\n")))
				out.WriteString("</code></pre>")
				fenceBuf = nil
				inFence = false
			} else {
				flushPara()
				closeList()
				inFence = true
			}
			continue
		}
		if inFence {
			fenceBuf = append(fenceBuf, line)
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flushPara()
			closeList()

		case strings.HasPrefix(trimmed, "### "):
			flushPara()
			closeList()
			out.WriteString(`<h3 style="` + h3Style + `">` + renderInline(trimmed[4:]) + `</h3>`)

		case strings.HasPrefix(trimmed, "## "):
			flushPara()
			closeList()
			out.WriteString(`<h2 style="` + h2Style + `">` + renderInline(trimmed[3:]) + `</h2>`)

		case strings.HasPrefix(trimmed, "# "):
			flushPara()
			closeList()
			out.WriteString(`<h1 style="` + h1Style + `">` + renderInline(trimmed[2:]) + `</h1>`)

		case strings.HasPrefix(trimmed, "- "):
			flushPara()
			openList("ul")
			out.WriteString(`<li style="` + itemStyle + `">` + renderInline(trimmed[2:]) + `</li>`)

		case strings.HasPrefix(trimmed, "• "):
			flushPara()
			openList("ul")
			out.WriteString(`<li style="` + itemStyle + `">` + renderInline(strings.TrimPrefix(trimmed, "• ")) + `</li>`)

		case orderedRe.MatchString(trimmed):
			flushPara()
			openList("ol")
			item := orderedRe.FindStringSubmatch(trimmed)[1]
			out.WriteString(`<li style="` + itemStyle + `">` + renderInline(item) + `</li>`)

		default:
			closeList()
			para = append(para, renderInline(line))
		}
	}

	// Unterminated fence: render what we have as code anyway.
	if inFence {
		out.WriteString(`<pre style="` + preStyle + `"><code>`)
		out.WriteString(strings.TrimSpace(strings.Join(fenceBuf, "\n")))
		out.WriteString("</code></pre>")
	}
	flushPara()
	closeList()

	return out.String()
}

// renderInline applies span-level formatting to already-escaped text.
func renderInline(s string) string {
	s = inlineCode.ReplaceAllString(s, `<code style="`+codeStyle+`">$1</code>`)
	s = boldText.ReplaceAllString(s, `<strong style="color:#EBEBEB;">$1</strong>`)
	s = italicText.ReplaceAllString(s, "<em>$1</em>")
	return s
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
