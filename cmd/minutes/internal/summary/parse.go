package summary

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// headingAliases maps normalized heading text to a section. Matching is by
// name, so sections may arrive in any order and at any heading level.
var headingAliases = map[string]Key{
	"overview":                  KeyOverview,
	"summary":                   KeyOverview,
	"executive summary":         KeyOverview,
	"概要":                        KeyOverview,
	"discussion points":         KeyDiscussionPoints,
	"discussion":                KeyDiscussionPoints,
	"discussion topics":         KeyDiscussionPoints,
	"key points":                KeyDiscussionPoints,
	"主なポイント":                    KeyDiscussionPoints,
	"議論されたトピック":                 KeyDiscussionPoints,
	"decisions":                 KeyDecisions,
	"decisions made":            KeyDecisions,
	"key decisions":             KeyDecisions,
	"決定事項":                      KeyDecisions,
	"決定事項・結論":                   KeyDecisions,
	"action items":              KeyActionItems,
	"action item":               KeyActionItems,
	"todo":                      KeyActionItems,
	"to-do":                     KeyActionItems,
	"アクションアイテム":                 KeyActionItems,
	"next steps":                KeyNextSteps,
	"next step":                 KeyNextSteps,
	"follow-up":                 KeyNextSteps,
	"follow-ups":                KeyNextSteps,
	"次のステップ":                    KeyNextSteps,
	"corrected full transcript": KeyTranscript,
	"full transcript":           KeyTranscript,
	"corrected transcript":      KeyTranscript,
	"transcript":                KeyTranscript,
	"文字起こし全文（修正済み）": KeyTranscript,
	"文字起こし全文":       KeyTranscript,
}

var (
	bulletRe   = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)])\s+`)
	checkboxRe = regexp.MustCompile(`^\[[ xX]?\]\s*`)
	thinkRe    = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

var noneMarkers = map[string]bool{
	"_none._": true, "none": true, "none.": true, "nothing": true, "n/a": true,
	"-": true, "なし": true, "特になし": true,
}

var missingMarkers = map[string]bool{
	"_not available._": true, "not available": true, "not available.": true,
}

// normalizeHeading lowercases heading text and strips markup, numbering and
// a trailing colon.
func normalizeHeading(title string) string {
	t := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(title), "#"))
	t = strings.Trim(t, "*_ ")
	t = strings.TrimRight(t, ":：")
	t = strings.TrimLeftFunc(t, func(r rune) bool { return unicode.IsDigit(r) || r == '.' || r == ')' || r == ' ' })
	return strings.ToLower(strings.Join(strings.Fields(t), " "))
}

// isHeading 判断是否为 Markdown 标题行（最多 6 级，# 后需空格）
func isHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	for i, ch := range trimmed {
		if ch != '#' {
			return ch == ' '
		}
		if i >= 6 {
			return false
		}
	}
	return true
}

// headingLevel 获取标题等级
func headingLevel(line string) int {
	n := 0
	for _, ch := range strings.TrimSpace(line) {
		if ch != '#' {
			break
		}
		n++
	}
	return n
}

// boldHeading matches a line that is only a bold label, e.g. "**Decisions:**".
func boldHeading(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if len(t) > 4 && strings.HasPrefix(t, "**") && strings.HasSuffix(strings.TrimRight(t, ":："), "**") {
		return strings.Trim(t, "*:： "), true
	}
	return "", false
}

type rawSection struct {
	key   Key
	level int
	lines []string
}

// ParseMarkdown normalizes backend Markdown into a Document. Sections are
// matched by heading name; headings the parser does not know nest into the
// current section when deeper, and end it otherwise. Headings inside code
// fences are content. Inside the transcript section only a known heading at
// the transcript's level or above ends it.
// Sections not found stay Missing.
func ParseMarkdown(md string) *Document {
	doc := NewDocument()
	md = strings.ReplaceAll(thinkRe.ReplaceAllString(md, ""), "\r\n", "\n")

	var (
		sections []*rawSection
		current  *rawSection
		inFence  bool
	)
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if current != nil && current.key == KeyTranscript {
			if key, ok := transcriptBoundary(line, current.level); ok {
				current = &rawSection{key: key, level: headingLevel(line)}
				sections = append(sections, current)
			} else {
				current.lines = append(current.lines, line)
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			if current != nil {
				current.lines = append(current.lines, line)
			}
			continue
		}
		if !inFence {
			title, level, ok := "", 0, false
			if isHeading(line) {
				title, level, ok = trimmed, headingLevel(line), true
			} else if label, bold := boldHeading(line); bold {
				if _, known := headingAliases[normalizeHeading(label)]; known {
					title, level, ok = label, 7, true
				}
			}
			if ok {
				if key, known := headingAliases[normalizeHeading(title)]; known {
					current = &rawSection{key: key, level: level}
					sections = append(sections, current)
					continue
				}
				if current != nil && level > current.level {
					current.lines = append(current.lines, line)
					continue
				}
				current = nil
				continue
			}
		}
		if current != nil {
			current.lines = append(current.lines, line)
		}
	}

	for _, rs := range sections {
		fillSection(doc.Section(rs.key), rs.lines)
	}
	return doc
}

func transcriptBoundary(line string, level int) (Key, bool) {
	if !isHeading(line) || headingLevel(line) > level {
		return "", false
	}
	key, ok := headingAliases[normalizeHeading(line)]
	return key, ok
}

// fillSection merges parsed lines into s. A heading repeated by the backend
// appends to the content already collected.
func fillSection(s *Section, lines []string) {
	body := strings.TrimSpace(strings.Join(lines, "\n"))
	lower := strings.ToLower(body)
	if missingMarkers[lower] {
		return
	}
	s.Missing = false
	if body == "" || noneMarkers[lower] {
		return
	}

	if !s.Key.isList() {
		if s.Body != "" {
			s.Body += "\n\n"
		}
		s.Body += body
		return
	}

	var items, prose []string
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" || isHeading(line) {
			continue
		}
		if loc := bulletRe.FindStringIndex(line); loc != nil {
			item := strings.TrimSpace(checkboxRe.ReplaceAllString(strings.TrimSpace(line[loc[1]:]), ""))
			if item != "" && !noneMarkers[strings.ToLower(item)] {
				items = append(items, item)
			}
			continue
		}
		if len(items) > 0 {
			items[len(items)-1] += " " + t
			continue
		}
		prose = append(prose, t)
	}
	if len(items) == 0 {
		if p := strings.Join(prose, "\n"); p != "" && !noneMarkers[strings.ToLower(p)] {
			s.Body = strings.TrimSpace(s.Body + "\n" + p)
		}
		return
	}
	s.Items = append(s.Items, append(prose, items...)...)
}

// ParseJSON accepts a JSON object answer, optionally wrapped in a code
// fence. Values may be strings or string lists.
func ParseJSON(text string) (*Document, error) {
	raw := extractJSONObject(thinkRe.ReplaceAllString(text, ""))
	if raw == "" {
		return nil, errors.New("no JSON object in output")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}

	doc := NewDocument()
	for name, value := range fields {
		key, ok := jsonKey(name)
		if !ok {
			continue
		}
		s := doc.Section(key)
		var str string
		var list []string
		switch {
		case json.Unmarshal(value, &str) == nil:
			fillSection(s, strings.Split(str, "\n"))
		case json.Unmarshal(value, &list) == nil:
			if !key.isList() {
				fillSection(s, []string{strings.Join(list, "\n")})
				continue
			}
			s.Missing = false
			for _, item := range list {
				if t := strings.TrimSpace(item); t != "" && !noneMarkers[strings.ToLower(t)] {
					s.Items = append(s.Items, singleLine(t))
				}
			}
		case string(value) == "null":
			s.Missing = false
		}
	}
	return doc, nil
}

func jsonKey(name string) (Key, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "key_points", "discussion_topics", "discussion":
		return KeyDiscussionPoints, true
	case "summary":
		return KeyOverview, true
	case "transcript":
		return KeyTranscript, true
	}
	for _, k := range Keys {
		if string(k) == n {
			return k, true
		}
	}
	key, ok := headingAliases[strings.ReplaceAll(n, "_", " ")]
	return key, ok
}

func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// Parse normalizes any backend answer: a JSON object when the output looks
// like one and decodes, Markdown otherwise.
func Parse(text string) *Document {
	t := strings.TrimSpace(thinkRe.ReplaceAllString(text, ""))
	if strings.HasPrefix(t, "{") || strings.HasPrefix(t, "```json") {
		if doc, err := ParseJSON(t); err == nil {
			return doc
		}
	}
	return ParseMarkdown(t)
}
