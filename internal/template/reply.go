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

package template

import (
	"fmt"
	"strings"
	"time"
)

// ReplyOptions carries everything the branded reply layout needs: the
// assistant's Markdown response plus the inbound message being answered, which
// renders as a quoted section under the response.
type ReplyOptions struct {
	Response        string
	OriginalMessage string
	OriginalFrom    string
	OriginalSubject string
	OriginalDate    time.Time
}

// RenderReplyHTML wraps the rendered response in the dark-theme email shell:
// branded header, response body, quoted original, and footer.
func RenderReplyHTML(opts ReplyOptions) string {
	body := RenderMarkdown(opts.Response)

	var quoted string
	if opts.OriginalMessage != "" {
		date := "earlier"
		if !opts.OriginalDate.IsZero() {
			date = opts.OriginalDate.Format("Mon, Jan 2, 2006 3:04 PM")
		}
		from := opts.OriginalFrom
		if from == "" {
			from = "you"
		}
		subjectNote := ""
		if opts.OriginalSubject != "" {
			subjectNote = fmt.Sprintf(" (%s)", escapeHTML(opts.OriginalSubject))
		}
		quotedText := strings.ReplaceAll(escapeHTML(opts.OriginalMessage), "\n", "<br>")

		quoted = fmt.Sprintf(`
          <!-- Quoted Original Message -->
          <tr>
            <td style="padding:24px 32px;border-top:1px solid #1a1a2e;">
              <p style="margin:0 0 12px;color:#E8E8E8;font-size:13px;">
                On %s, <strong style="color:#6B9BD1;">%s</strong> wrote%s:
              </p>
              <div style="border-left:3px solid #6B9BD1;padding-left:16px;color:#E8E8E8;font-size:14px;line-height:1.6;">
                %s
              </div>
            </td>
          </tr>`, date, escapeHTML(from), subjectNote, quotedText)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Byte Email</title>
</head>
<body style="margin:0;padding:0;background-color:#000000;font-family:'Segoe UI',Tahoma,Geneva,Verdana,sans-serif;font-size:15px;">
  <table role="presentation" style="width:100%%;border-collapse:collapse;background-color:#000000;">
    <tr>
      <td style="padding:0;">
        <table role="presentation" style="max-width:600px;margin:0 auto;background:#0a0a0a;">
          <!-- Header -->
          <tr>
            <td style="background:linear-gradient(135deg,#1a1a2e 0%%,#16213e 100%%);padding:28px 32px;">
              <span style="font-size:24px;margin-right:12px;filter:brightness(0) invert(1);">⚡</span>
              <span style="color:#ffffff;font-size:20px;font-weight:600;letter-spacing:-0.5px;">Byte</span>
            </td>
          </tr>

          <!-- Response -->
          <tr>
            <td style="padding:32px 32px 28px;color:#E8E8E8;font-size:15px;line-height:1.7;">
              %s
            </td>
          </tr>
%s
          <!-- Footer -->
          <tr>
            <td style="padding:20px 32px;background:#050505;border-top:1px solid #1a1a2e;">
              <p style="margin:0;color:#555;font-size:12px;line-height:1.5;">
                Reply to this email to continue the conversation with Byte.
              </p>
            </td>
          </tr>
        </table>

        <!-- Sub-footer -->
        <table role="presentation" style="max-width:600px;margin:0 auto;">
          <tr>
            <td style="text-align:center;padding:16px 8px;">
              <p style="margin:0;color:#333;font-size:11px;">
                Powered by Byte AI • chrisleebergstrom.com
              </p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`, body, quoted)
}

// RenderReplyText appends a plain-text quote of the original message to the
// response, for clients that prefer the text part.
func RenderReplyText(response, originalMessage string, date time.Time) string {
	quoted := "> " + strings.ReplaceAll(originalMessage, "\n", "\n> ")
	return fmt.Sprintf("%s\n\n---\nOn %s, you wrote:\n%s",
		response, date.Format("1/2/2006"), quoted)
}
