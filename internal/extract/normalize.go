package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Delimiter is the primary answer separator every alternate is rewritten to.
const Delimiter = ","

// defaultNameExceptions are hyphenated spellings of a name that would otherwise
// be split when hyphens become delimiters.
var defaultNameExceptions = map[string]string{
	"marc-andre fleury": "fleury",
	"marc-andré fleury": "fleury",
	"marc-andre fluery": "fleury",
	"marc-andré fluery": "fleury",
	"marc andre-fleury": "fleury",
	"marc andré-fleury": "fleury",
	"marc andre-fluery": "fleury",
	"marc andré-fluery": "fleury",
	"marc andre-feury":  "fleury",
	"marc-andre f":      "fleury",
	"marc andré-f":      "fleury",
	"marc andre-flurry": "fleury",
	"andre-fleury":      "fleury",
	"m-a fleury":        "fleury",
}

// DefaultNameExceptions returns a copy of the built-in hyphenated-name rewrites.
func DefaultNameExceptions() map[string]string {
	out := make(map[string]string, len(defaultNameExceptions))
	for k, v := range defaultNameExceptions {
		out[k] = v
	}
	return out
}

// alternateDelimiters are rewritten to Delimiter before a line is classified.
var alternateDelimiters = strings.NewReplacer(
	"&", Delimiter,
	";", Delimiter,
	"-", Delimiter,
	"/", Delimiter,
)

// nameException is one literal rewrite applied ahead of hyphen splitting.
// Matching ignores case.
type nameException struct {
	from string
	to   string
	re   *regexp.Regexp
}

// compileExceptions NFC-normalizes the table and orders it longest first so a
// full spelling wins over any of its prefixes ("marc-andre fleury" before
// "marc-andre f").
func compileExceptions(m map[string]string) []nameException {
	out := make([]nameException, 0, len(m))
	for from, to := range m {
		from = norm.NFC.String(strings.TrimSpace(from))
		if from == "" {
			continue
		}
		out = append(out, nameException{
			from: from,
			to:   norm.NFC.String(to),
			re:   regexp.MustCompile(`(?i)` + regexp.QuoteMeta(from)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].from) != len(out[j].from) {
			return len(out[i].from) > len(out[j].from)
		}
		return out[i].from < out[j].from
	})
	return out
}

// unifyDelimiters runs the steps that decide whether a line carries answers:
// NFC composition, non-breaking spaces, name exceptions, then &;-/ -> ",".
func unifyDelimiters(line string, exceptions []nameException) string {
	line = norm.NFC.String(line)
	line = strings.ReplaceAll(line, "\u00a0", " ")
	for _, ex := range exceptions {
		line = ex.re.ReplaceAllLiteralString(line, ex.to)
	}
	return alternateDelimiters.Replace(line)
}

var (
	commaAndRE = regexp.MustCompile(`(?i), and `)
	andRE      = regexp.MustCompile(`(?i) and `)
)

// unifyConjunctions rewrites "x, and y" and "x and y" to delimited form, in
// any letter case. The surrounding spaces keep names such as "andrei" intact.
func unifyConjunctions(line string) string {
	line = commaAndRE.ReplaceAllLiteralString(line, ", ")
	return andRE.ReplaceAllLiteralString(line, Delimiter)
}

// Normalize applies the full pre-split normalization to an answer line using
// the default name exceptions.
func Normalize(line string) string {
	return unifyConjunctions(unifyDelimiters(line, defaultCompiled))
}

var defaultCompiled = compileExceptions(defaultNameExceptions)

// markerTrailRE matches the punctuation and spacing that follows a marker.
var markerTrailRE = regexp.MustCompile(`^[\s.:)\]#*,]+`)

// compileMarker builds the leading-marker pattern for one category: an optional
// "#", "q" or "question" prefix and the ordinal, not followed by another digit.
// The bonus category also accepts the word "bonus". Group 1 spans the marker.
func compileMarker(category int) *regexp.Regexp {
	numbered := `(#?\s*(?:q(?:uestion)?\s*)?` + strconv.Itoa(category) + `)(?:[^0-9]|$)`
	if category == 10 {
		return regexp.MustCompile(`(?i)^(?:` + numbered + `|(bonus(?:\s+question)?)\b)`)
	}
	return regexp.MustCompile(`(?i)^` + numbered)
}

// stripMarker removes the category marker and its trailing punctuation. A line
// without the marker for this category is returned unchanged.
func stripMarker(re *regexp.Regexp, line string) string {
	loc := re.FindStringSubmatchIndex(line)
	if loc == nil {
		return line
	}
	end := -1
	for g := 1; g*2+1 < len(loc); g++ {
		if loc[g*2+1] > end {
			end = loc[g*2+1]
		}
	}
	if end < 0 {
		return line
	}
	return markerTrailRE.ReplaceAllString(line[end:], "")
}

// tokenize trims the line, drops one trailing delimiter or period and splits on
// Delimiter, trimming every candidate.
func tokenize(line string) []string {
	line = strings.TrimSpace(line)
	if strings.HasSuffix(line, Delimiter) || strings.HasSuffix(line, ".") {
		line = strings.TrimSpace(line[:len(line)-1])
	}
	parts := strings.Split(line, Delimiter)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// splitLines splits on any line break convention.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
