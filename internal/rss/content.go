package rss

import (
	"fmt"
	"html"
	"strings"

	"podscribe/internal/transcript"
)

// EpisodeContent renders a transcript document as the HTML fragment
// embedded in a feed item: summary, chapter overview, Q&A recap, and the
// full timestamped transcript.
func EpisodeContent(doc *transcript.Document) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(doc.Title))

	if doc.Annotations.Summary != "" {
		b.WriteString("<h1>节目摘要</h1>\n")
		fmt.Fprintf(&b, "<div class=\"summary\">%s</div><br>\n", html.EscapeString(doc.Annotations.Summary))
	}

	if len(doc.Annotations.Chapters) > 0 {
		b.WriteString("<h1>章节速览</h1>\n")
		b.WriteString("<div class=\"chapters\">\n")
		for _, chapter := range doc.Annotations.Chapters {
			b.WriteString("<div class=\"chapter-item\">\n")
			fmt.Fprintf(&b, "<span class=\"time\"><strong>[%s]</strong> </span>\n", chapter.Time)
			fmt.Fprintf(&b, "<span class=\"chapter-title\"><strong>%s</strong></span>\n", html.EscapeString(chapter.Title))
			fmt.Fprintf(&b, "<div class=\"chapter-summary\">%s</div>\n", html.EscapeString(chapter.Summary))
			b.WriteString("</div>\n")
		}
		b.WriteString("</div>\n")
	}

	if len(doc.Annotations.QAPairs) > 0 {
		b.WriteString("<h1>问题回顾</h1>\n")
		for _, pair := range doc.Annotations.QAPairs {
			b.WriteString("<div class=\"qa-item\">\n")
			fmt.Fprintf(&b, "<div class=\"question\"><strong>Q:</strong> %s</div>\n", html.EscapeString(pair.Question))
			fmt.Fprintf(&b, "<div class=\"answer\"><strong>A:</strong> %s</div>\n", html.EscapeString(pair.Answer))
			b.WriteString("</div>\n")
		}
	}

	b.WriteString("<h2>节目文稿</h2>\n")
	for _, utterance := range doc.Utterances {
		b.WriteString("<p class=\"transcript-line\">\n")
		fmt.Fprintf(&b, "<span class=\"time\"><strong>[%s]</strong> </span>\n", utterance.Time)
		fmt.Fprintf(&b, "<span class=\"speaker\"><strong>%s: </strong></span>\n", html.EscapeString(utterance.Speaker))
		fmt.Fprintf(&b, "%s\n", html.EscapeString(utterance.Text))
		b.WriteString("</p>\n")
	}

	if doc.TaskID != "" {
		fmt.Fprintf(&b, "<p class=\"provenance\"><a href=\"%s\">转写来源</a></p>\n", html.EscapeString(doc.SourceLink()))
	}

	return b.String()
}
