package medication

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	parentheticalRe = regexp.MustCompile(`\([^)]*\)`)

	// Units are ordered longest first. The right-hand boundary is checked in
	// stripDosage since RE2 has no lookahead and "%" is not a word character.
	dosageRe = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:mcg|µg|ug|mg|ml|meq|iu|units?|g|%)`)

	formRe = regexp.MustCompile(`(?i)\b(?:tablets?|tab|capsules?|cap|injection|solution|suspension|cream|ointment|patch|spray|drops?)\b`)

	routeRe = regexp.MustCompile(`(?i)\b(?:oral|po|iv|im|subcutaneous|sq|sc|topical|inh(?:aled)?|nasal)\b`)

	frequencyRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bonce\s+daily\b`),
		regexp.MustCompile(`(?i)\btwice\s+daily\b`),
		regexp.MustCompile(`(?i)\bthree\s+times\s+daily\b`),
		regexp.MustCompile(`(?i)\bdaily\b`),
		regexp.MustCompile(`(?i)\b(?:bid|tid|qid)\b`),
		regexp.MustCompile(`(?i)\bq\d+\s*h\b`),
		regexp.MustCompile(`(?i)\bevery\s+\d+\s*(?:hours?|days?|weeks?)\b`),
	}

	helperRe = regexp.MustCompile(`(?i)\b(?:treatment|therapy|medication)\b`)

	disallowedRe = regexp.MustCompile(`[^0-9A-Za-z\s/\-]`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// Normalize reduces a raw mention to a canonical drug name:
//
//	Normalize("Losartan 50 mg once daily (lifelong)") == "Losartan"
//	Normalize("sodium bicarbonate treatment")        == "Sodium Bicarbonate"
//
// It never fails: when nothing survives cleaning the trimmed input is
// returned. Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(raw string) string {
	name := clean(raw)
	if name == "" {
		return strings.TrimSpace(raw)
	}
	// Removing punctuation can join fragments into a strippable token
	// ("tab,let" → "Tab Let"), so repeat until stable.
	for {
		next := clean(name)
		if next == "" || next == name {
			return name
		}
		name = next
	}
}

// Key is the case-folded merge and lookup key for a mention name.
func Key(raw string) string {
	return strings.ToLower(strings.TrimSpace(Normalize(raw)))
}

// clean runs one pass of the stripping rules and returns the title-cased
// result, or "" when nothing is left.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	s = parentheticalRe.ReplaceAllString(s, " ")
	s = stripDosage(s)
	s = formRe.ReplaceAllString(s, " ")
	s = routeRe.ReplaceAllString(s, " ")
	for _, re := range frequencyRes {
		s = re.ReplaceAllString(s, " ")
	}
	s = helperRe.ReplaceAllString(s, " ")

	s = disallowedRe.ReplaceAllString(s, " ")
	words := strings.Fields(spaceRe.ReplaceAllString(s, " "))

	kept := words[:0]
	for _, w := range words {
		// separators orphaned by stripping ("500mg/5ml" → "/")
		if strings.Trim(w, "/-") == "" {
			continue
		}
		kept = append(kept, capitalize(w))
	}
	return strings.Join(kept, " ")
}

// stripDosage blanks number+unit tokens whose unit is not followed by another
// letter or digit, so "10 mg" goes but "10 grams" and "B12" stay.
func stripDosage(s string) string {
	matches := dosageRe.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if end < len(s) {
			next, _ := utf8.DecodeRuneInString(s[end:])
			if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '_' {
				continue
			}
		}
		b.WriteString(s[last:start])
		b.WriteByte(' ')
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

// capitalize upper-cases the first letter of w and lower-cases the rest.
func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}
