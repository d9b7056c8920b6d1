package formatter

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParagraphs(t *testing.T) {
	got := Paragraphs("first line\r\nstill first\r\n\r\n\n  second  \n \t \nthird\n\n\n")
	assert.Equal(t, []string{"first line\nstill first", "second", "third"}, got)
}

func TestToHTML_Paragraphs(t *testing.T) {
	out := ToHTML("one\n\ntwo")
	assert.Equal(t, 2, strings.Count(out, "<p "))
	assert.Equal(t, 2, strings.Count(out, "</p>"))
}

func TestToHTML_Emphasis(t *testing.T) {
	out := ToHTML("You are **already** on the *path*.")
	assert.Contains(t, out, `<span style="`+boldStyle+`">already</span>`)
	assert.Contains(t, out, `<span style="`+italicStyle+`">path</span>`)
	assert.NotContains(t, out, "*")
}

func TestToHTML_EscapesBeforeFormatting(t *testing.T) {
	out := ToHTML(`<script>alert("x")</script> & **bold <b>**`)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "&amp;")
	assert.Contains(t, out, `">bold &lt;b&gt;</span>`)
}

func TestToHTML_LineBreaks(t *testing.T) {
	out := ToHTML("line one\nline two")
	assert.Contains(t, out, "line one<br>line two")
}

func TestToHTML_Empty(t *testing.T) {
	assert.Equal(t, "", ToHTML("  \n\n  "))
}

func TestRoundTrip(t *testing.T) {
	tests := []string{
		"A single paragraph.",
		"Your dream is **real**.\n\nAnd your plan is *almost* ready.",
		"Quotes \"matter\" & so do <angles>.\n\nSecond **para** here.\nWith a soft break.",
		"Ünïcödé ✨ stays intact.\n\n\n\nExtra blank lines collapse.",
		"'</p></p>**\n\n**&** b'",
		"x**\n**\n\n** **y",
		"a*\n\n*b",
	}

	for i, in := range tests {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			out := StripTags(ToHTML(in))
			assert.Equal(t, PlainText(in), out)
		})
	}
}

func TestRoundTrip_Generated(t *testing.T) {
	alphabet := []string{"a", "b", " ", "*", "**", "\n", "\n\n", "&", "<", ">", "\"", "'", "é", "\t", "</p>", "<br>"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 20000; i++ {
		var b strings.Builder
		for n := rng.Intn(24); n > 0; n-- {
			b.WriteString(alphabet[rng.Intn(len(alphabet))])
		}
		in := b.String()

		if out := StripTags(ToHTML(in)); out != PlainText(in) {
			t.Fatalf("round trip mismatch for %q:\nstripped %q\nplain    %q", in, out, PlainText(in))
		}
	}
}

func TestPlainText_EmphasisStaysInsideParagraph(t *testing.T) {
	assert.Equal(t, "x**\n\n** y", PlainText("x**\n\n** y"))
	assert.Equal(t, "a\n\nb", PlainText("**a**\n\n*b*"))
	assert.Equal(t, 3, WordCount("x**\n\n** y"))
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "a\nb\n\nc", StripTags(`<p>a<br/>b</p><p class="x">c</p>`))
	assert.Equal(t, `5 < 6 & "ok"`, StripTags(`5 &lt; 6 &amp; &quot;ok&quot;`))
}

func TestWordCountAndReadTime(t *testing.T) {
	assert.Equal(t, 4, WordCount("**one** two\n\nthree *four*"))
	assert.Equal(t, 0, WordCount(""))

	assert.Equal(t, 1, ReadTime(0))
	assert.Equal(t, 1, ReadTime(200))
	assert.Equal(t, 2, ReadTime(201))

	long := strings.Repeat("word ", 450)
	words := WordCount(long)
	require.Equal(t, 450, words)
	assert.Equal(t, 3, ReadTime(words))
}
