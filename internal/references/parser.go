// package references parses user supplied Drive links and ids into [models.Reference] values
package references

import (
	"regexp"
	"strings"

	"github.com/desertthunder/drivecopy/internal/models"
)

// MinIDLength is the shortest identifier accepted in any link shape.
const MinIDLength = 25

const idClass = `([A-Za-z0-9_-]{25,})`

type pattern struct {
	kind models.Kind
	re   *regexp.Regexp
}

// patterns are tried in order; the first match wins.
var patterns = []pattern{
	{models.KindFile, regexp.MustCompile(`/file/d/` + idClass)},
	{models.KindFile, regexp.MustCompile(`open\?(?:[^#\s]*&)?id=` + idClass)},
	{models.KindFile, regexp.MustCompile(`uc\?(?:[^#\s]*&)?id=` + idClass)},
	{models.KindFolder, regexp.MustCompile(`/folders/` + idClass)},
	{models.KindFile, regexp.MustCompile(`^` + idClass + `$`)},
}

// Parse converts raw into a [models.Reference].
//
// Surrounding whitespace is ignored. Input that matches no known shape yields a reference
// with [models.KindInvalid] that still carries the raw text, and false.
func Parse(raw string) (models.Reference, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return models.Reference{Kind: models.KindInvalid, Raw: raw}, false
	}

	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(s); m != nil {
			return models.Reference{Kind: p.kind, ID: m[1], Raw: raw}, true
		}
	}
	return models.Reference{Kind: models.KindInvalid, Raw: raw}, false
}

// ParseAll parses every entry of raws, preserving order. Invalid entries are kept so
// they surface as per item errors.
func ParseAll(raws []string) []models.Reference {
	refs := make([]models.Reference, len(raws))
	for i, raw := range raws {
		refs[i], _ = Parse(raw)
	}
	return refs
}

// SplitLines splits a block of pasted text into candidate references, one per non-empty line.
// Commas are treated as line breaks.
func SplitLines(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' || r == ',' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
