// Package text turns raw document text into bounded, synthesis-ready
// chunks. Normalization is a fixed, ordered rule pipeline; chunking is
// sentence-aware and never splits inside a word.
package text

import (
	"regexp"
	"strings"
)

// Substitution records one replacement a normalization rule made, so the
// cleanup can be surfaced to the user or re-checked manually.
type Substitution struct {
	Rule  string
	From  string
	To    string
	Count int
}

// Rules are applied in this order so later rules operate on already
// simplified text. The final whitespace collapse keeps the whole pipeline
// idempotent.
var (
	typographic = []struct{ from, to string }{
		{"‘", "'"}, {"’", "'"}, {"‚", "'"},
		{"“", `"`}, {"”", `"`}, {"„", `"`},
		{"–", "-"}, {"—", " - "},
		{"…", "..."},
		{"`", "'"}, {"´", "'"},
	}

	// Currency glyphs bind to the number that follows them, so they get no
	// padding; free-standing symbols are padded and collapsed later.
	symbolWords = []struct{ from, to string }{
		{"€", "euros"}, {"£", "pounds"}, {"¥", "yen"}, {"$", "dollars"},
		{"™", " trademark "}, {"®", " registered trademark "},
		{"©", " copyright "}, {"°", " degrees "},
		{"%", " percent "}, {"&", " and "},
		{"×", " times "}, {"÷", " divided by "}, {"±", " plus or minus "},
		{"²", " squared "}, {"³", " cubed "},
		{"½", " one half "}, {"¼", " one quarter "}, {"¾", " three quarters "},
	}

	// Unicode blocks that carry no speakable content. ASCII never appears
	// in these ranges.
	emojiRanges = [][2]rune{
		{0x1F600, 0x1F64F}, // emoticons
		{0x1F300, 0x1F5FF}, // misc symbols and pictographs
		{0x1F680, 0x1F6FF}, // transport and map
		{0x1F700, 0x1F77F}, // alchemical
		{0x1F780, 0x1F8FF}, // geometric shapes ext, arrows-C
		{0x1F900, 0x1F9FF}, // supplemental symbols
		{0x1FA00, 0x1FAFF}, // chess, ext-A
		{0x1F1E0, 0x1F1FF}, // regional indicators (flags)
		{0x2600, 0x27BF},   // misc symbols, dingbats
		{0x2190, 0x21FF},   // arrows
		{0x2300, 0x23FF},   // misc technical
		{0x2460, 0x24FF},   // enclosed alphanumerics
		{0x2500, 0x25FF},   // box drawing, blocks, geometric shapes
		{0x2000, 0x206F},   // general punctuation leftovers
		{0x20A0, 0x20CF},   // currency symbols leftovers
		{0x2100, 0x214F},   // letterlike leftovers
		{0xFE00, 0xFE0F},   // variation selectors
		{0x200D, 0x200D},   // zero width joiner
		{0x20E3, 0x20E3},   // combining keycap
	}

	urlRe   = regexp.MustCompile(`https?://[^\s<>"]+`)
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// Digit runs that read badly verbatim. Phone numbers collapse to a
	// placeholder; comma-grouped numbers lose the commas so "1,000" is not
	// read as two numbers.
	phoneRe         = regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)
	groupedNumberRe = regexp.MustCompile(`\b\d{1,3}(,\d{3})+\b`)

	// Whole-token, case-aware abbreviation expansions. Longer forms come
	// before their prefixes (Corp. before Co.). Tech acronyms are spelled
	// out letter by letter so engines pronounce them instead of guessing.
	abbreviations = []struct{ abbr, word string }{
		{"Dr.", "Doctor"}, {"Mr.", "Mister"}, {"Mrs.", "Missus"}, {"Ms.", "Miss"},
		{"Prof.", "Professor"}, {"St.", "Saint"},
		{"Inc.", "Incorporated"}, {"Ltd.", "Limited"},
		{"Corp.", "Corporation"}, {"Co.", "Company"},
		{"e.g.", "for example"}, {"i.e.", "that is"},
		{"etc.", "etcetera"}, {"vs.", "versus"},
		{"URL", "U R L"}, {"HTTP", "H T T P"}, {"HTML", "H T M L"},
		{"CSS", "C S S"}, {"JS", "JavaScript"}, {"API", "A P I"},
		{"UI", "U I"}, {"UX", "U X"},
	}

	abbrRes = buildAbbrPatterns()

	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	spacedEOLRe  = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

func buildAbbrPatterns() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(abbreviations))
	for i, a := range abbreviations {
		res[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(a.abbr) + `([^A-Za-z0-9]|$)`)
	}
	return res
}

// Normalize applies the full rule pipeline to raw text. It is a pure,
// deterministic, idempotent function: normalizing already-normalized text
// changes nothing. Undo is handled upstream by keeping the original text,
// never by inverting rules.
func Normalize(raw string) (string, []Substitution) {
	var log []Substitution
	text := raw

	text, log = normalizeLineEndings(text, log)
	text, log = replacePairs(text, "typographic", typographic, log)
	text, log = replacePairs(text, "symbol", symbolWords, log)
	text, log = removeNonSpeakable(text, log)
	text, log = replacePlaceholders(text, log)
	text, log = improveNumbers(text, log)
	text, log = expandAbbreviations(text, log)
	text = collapseWhitespace(text)

	return text, log
}

func normalizeLineEndings(text string, log []Substitution) (string, []Substitution) {
	if n := strings.Count(text, "\r\n"); n > 0 {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		log = append(log, Substitution{Rule: "line-endings", From: `\r\n`, To: `\n`, Count: n})
	}
	if n := strings.Count(text, "\r"); n > 0 {
		text = strings.ReplaceAll(text, "\r", "\n")
		log = append(log, Substitution{Rule: "line-endings", From: `\r`, To: `\n`, Count: n})
	}
	return text, log
}

func replacePairs(text, rule string, pairs []struct{ from, to string }, log []Substitution) (string, []Substitution) {
	for _, p := range pairs {
		n := strings.Count(text, p.from)
		if n == 0 {
			continue
		}
		text = strings.ReplaceAll(text, p.from, p.to)
		log = append(log, Substitution{Rule: rule, From: p.from, To: p.to, Count: n})
	}
	return text, log
}

func removeNonSpeakable(text string, log []Substitution) (string, []Substitution) {
	removed := 0
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isNonSpeakable(r) {
			removed++
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	if removed > 0 {
		log = append(log, Substitution{Rule: "emoji", From: "non-speakable rune", To: " ", Count: removed})
		return b.String(), log
	}
	return text, log
}

func isNonSpeakable(r rune) bool {
	if r < 0x20 && r != '\n' && r != '\t' {
		return true
	}
	for _, rng := range emojiRanges {
		if r >= rng[0] && r <= rng[1] {
			return true
		}
	}
	return false
}

func replacePlaceholders(text string, log []Substitution) (string, []Substitution) {
	if n := len(urlRe.FindAllString(text, -1)); n > 0 {
		text = urlRe.ReplaceAllString(text, "web link")
		log = append(log, Substitution{Rule: "url", From: "URL", To: "web link", Count: n})
	}
	if n := len(emailRe.FindAllString(text, -1)); n > 0 {
		text = emailRe.ReplaceAllString(text, "email address")
		log = append(log, Substitution{Rule: "email", From: "email", To: "email address", Count: n})
	}
	return text, log
}

func improveNumbers(text string, log []Substitution) (string, []Substitution) {
	if n := len(phoneRe.FindAllString(text, -1)); n > 0 {
		text = phoneRe.ReplaceAllString(text, " phone number ")
		log = append(log, Substitution{Rule: "phone", From: "phone number digits", To: "phone number", Count: n})
	}
	if n := len(groupedNumberRe.FindAllString(text, -1)); n > 0 {
		text = groupedNumberRe.ReplaceAllStringFunc(text, func(m string) string {
			return strings.ReplaceAll(m, ",", " ")
		})
		log = append(log, Substitution{Rule: "number-grouping", From: ",", To: " ", Count: n})
	}
	return text, log
}

func expandAbbreviations(text string, log []Substitution) (string, []Substitution) {
	for i, a := range abbreviations {
		re := abbrRes[i]
		n := len(re.FindAllString(text, -1))
		if n == 0 {
			continue
		}
		text = re.ReplaceAllString(text, a.word+"$1")
		log = append(log, Substitution{Rule: "abbreviation", From: a.abbr, To: a.word, Count: n})
	}
	return text, log
}

func collapseWhitespace(text string) string {
	text = spacedEOLRe.ReplaceAllString(text, "\n")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = newlineRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
