// Package formatter 把模型输出的类 markdown 文本转成带内联样式的 HTML
package formatter

import (
	"html"
	"math"
	"regexp"
	"strings"
)

const (
	paragraphStyle = `margin:0 0 1.25em;line-height:1.8;`
	boldStyle      = `font-weight:600;color:#c4b5fd;`
	italicStyle    = `font-style:italic;color:#e9d5ff;`

	// WordsPerMinute 阅读时长估算速度
	WordsPerMinute = 200
)

var (
	blankLineRe = regexp.MustCompile(`\n[ \t]*\n+`)
	boldRe      = regexp.MustCompile(`\*\*([^*]+?)\*\*`)
	italicRe    = regexp.MustCompile(`\*([^*\n]+?)\*`)
	brRe        = regexp.MustCompile(`(?i)<br\s*/?>`)
	paraEndRe   = regexp.MustCompile(`(?i)</p>`)
	tagRe       = regexp.MustCompile(`<[^>]*>`)
)

// Paragraphs 按空行切分并去掉空段
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := blankLineRe.Split(strings.TrimSpace(text), -1)

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ToHTML 先转义再替换 **bold** / *italic*，每段包成 <p>
func ToHTML(text string) string {
	var b strings.Builder
	for _, p := range Paragraphs(text) {
		escaped := html.EscapeString(p)
		escaped = boldRe.ReplaceAllString(escaped, `<span style="`+boldStyle+`">$1</span>`)
		escaped = italicRe.ReplaceAllString(escaped, `<span style="`+italicStyle+`">$1</span>`)
		escaped = strings.ReplaceAll(escaped, "\n", "<br>")

		b.WriteString(`<p style="` + paragraphStyle + `">`)
		b.WriteString(escaped)
		b.WriteString("</p>\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// StripTags 去标签并反转义，段落之间保留一个空行
func StripTags(s string) string {
	s = brRe.ReplaceAllString(s, "\n")
	s = paraEndRe.ReplaceAllString(s, "\n\n")
	s = tagRe.ReplaceAllString(s, "")
	return joinParagraphs(html.UnescapeString(s))
}

// PlainText 去掉强调标记后的纯文本，与 StripTags(ToHTML(text)) 一致
func PlainText(text string) string {
	paras := Paragraphs(text)
	for i, p := range paras {
		p = boldRe.ReplaceAllString(p, "$1")
		paras[i] = italicRe.ReplaceAllString(p, "$1")
	}
	return joinParagraphs(strings.Join(paras, "\n\n"))
}

// joinParagraphs 去掉标记后可能出现空段或段首尾空白，重新切分一次
func joinParagraphs(text string) string {
	return strings.Join(Paragraphs(text), "\n\n")
}

// WordCount 按空白分词
func WordCount(text string) int {
	return len(strings.Fields(PlainText(text)))
}

// ReadTime 按每分钟 200 词估算，至少 1 分钟
func ReadTime(words int) int {
	minutes := int(math.Ceil(float64(words) / WordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}
