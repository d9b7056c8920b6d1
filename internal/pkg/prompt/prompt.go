// Package prompt 组装发给模型的 system / user 提示词
package prompt

import (
	"fmt"
	"strings"
	"time"
)

// Tone 反思的语气
const (
	ToneGentle  = "gentle"
	ToneIntense = "intense"
	ToneFusion  = "fusion"
)

var toneTemplates = map[string]string{
	ToneGentle: `You are the Mirror of Truth, a gentle and luminous presence.
You reflect a person's dream back to them with warmth and patience.
Speak softly and directly to them in the second person. Honor what they already carry.
Name what is true in their answers before you name what is missing.
Never diagnose, never lecture, never promise outcomes.`,

	ToneIntense: `You are the Mirror of Truth, a fierce and unflinching presence.
You reflect a person's dream back to them without cushioning.
Speak directly to them in the second person. Point at the gap between what they say they want and what they are doing.
Be precise rather than harsh. Challenge the story, never the person.
Never diagnose, never lecture, never promise outcomes.`,

	ToneFusion: `You are the Mirror of Truth, a presence that holds tenderness and clarity at once.
You reflect a person's dream back to them with both warmth and honesty.
Speak directly to them in the second person. Begin by recognizing what is alive in their answers,
then name plainly what they may be avoiding, and end by returning them to their own power.
Never diagnose, never lecture, never promise outcomes.`,
}

const creatorContext = `

The person in front of you built this mirror. They know how it works.
Skip any explanation of the process and speak to them as a peer who wants the truth about their own dream.`

const premiumSuffix = `

Go deeper than usual. Trace how the four answers pull on each other:
where the plan contradicts the dream, where the relationship with the dream reveals an old belief,
and what the offering says about what they think they are worth.
Write in flowing paragraphs, use **bold** for the one sentence they most need to hear,
and close with a single question they can carry for the next month.`

const formatInstructions = `

Write 4 to 7 paragraphs separated by blank lines. No headings, no lists.
You may use **bold** and *italic* sparingly.`

// Answers 问卷的四个回答
type Answers struct {
	Dream        string
	Plan         string
	Relationship string
	Offering     string
}

// Options 提示词构建参数
type Options struct {
	Tone    string
	Premium bool
	Creator bool
}

// NormalizeTone 未知或空语气回落到 fusion
func NormalizeTone(tone string) string {
	tone = strings.ToLower(strings.TrimSpace(tone))
	if _, ok := toneTemplates[tone]; ok {
		return tone
	}
	return ToneFusion
}

// System 语气模板 + 创作者上下文 + 高级版后缀
func System(opts Options) string {
	var b strings.Builder
	b.WriteString(toneTemplates[NormalizeTone(opts.Tone)])
	if opts.Creator {
		b.WriteString(creatorContext)
	}
	if opts.Premium {
		b.WriteString(premiumSuffix)
	}
	b.WriteString(formatInstructions)
	return b.String()
}

// User 把四个回答填入固定模板
func User(name string, a Answers) string {
	if name = strings.TrimSpace(name); name == "" {
		name = "Friend"
	}

	return fmt.Sprintf(`%s has come to the mirror with a dream.

What is the dream?
%s

What is the plan to bring it into the world?
%s

What is their relationship with this dream right now?
%s

What are they willing to offer, give up or risk for it?
%s

Reflect this back to %s.`, name, a.Dream, a.Plan, a.Relationship, a.Offering, name)
}

// Entry 进化报告里的一条历史反思
type Entry struct {
	CreatedAt time.Time
	Answers
}

const evolutionSystem = `You are the Mirror of Truth looking back across time.
You will receive a person's past reflections in chronological order.
Describe how their dream, their plan, their relationship with the dream and what they were willing to offer
changed from the earliest entry to the latest. Name the patterns that repeat, the shifts that happened,
and the growth they may not have noticed. Speak directly to them in the second person.`

const evolutionPremiumSuffix = `

Be thorough. Quote short fragments of their own words to anchor each observation,
and end with the single most important invitation for the next chapter.`

// Evolution 进化报告的 system / user 提示词
func Evolution(name string, entries []Entry, premium bool) (system, user string) {
	system = evolutionSystem
	if premium {
		system += evolutionPremiumSuffix
	}
	system += formatInstructions

	if name = strings.TrimSpace(name); name == "" {
		name = "Friend"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s has written %d reflections over time.\n", name, len(entries))
	b.WriteString(SerializeEntries(entries))
	b.WriteString("\nDescribe how they have evolved.")
	return system, b.String()
}

// SerializeEntries 每条反思输出日期和四个字段
func SerializeEntries(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "\n--- Reflection %d (%s) ---\n", i+1, e.CreatedAt.UTC().Format("2006-01-02"))
		fmt.Fprintf(&b, "Dream: %s\n", e.Dream)
		fmt.Fprintf(&b, "Plan: %s\n", e.Plan)
		fmt.Fprintf(&b, "Relationship: %s\n", e.Relationship)
		fmt.Fprintf(&b, "Offering: %s\n", e.Offering)
	}
	return b.String()
}
