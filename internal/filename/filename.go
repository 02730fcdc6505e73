// Package filename maps source page names to names that are valid in the
// output vault, both as file stems and as link targets.
package filename

import (
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var journalRe = regexp.MustCompile(`^(\d{4})_(\d{2})_(\d{2})(.*)$`)

var (
	stemReplacer = strings.NewReplacer(":", "_", `\`, "_", "/", "_")
	linkReplacer = strings.NewReplacer(":", "_", `\`, "_")
)

// Decode replaces valid %XX escapes. Invalid escapes such as `50%` are kept
// literally. If decoding produces invalid UTF-8 the input is returned.
func Decode(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	out := b.String()
	if !utf8.ValidString(out) {
		return s
	}
	return out
}

// Stem converts a source file name (with or without the .md extension)
// into the output file stem. It doubles as the document identifier.
func Stem(name string) string {
	base := strings.TrimSuffix(path.Base(name), ".md")
	stem := norm.NFC.String(Decode(base))
	stem = stemReplacer.Replace(stem)
	if date, ok := JournalDate(stem); ok {
		return date
	}
	return stem
}

// Link normalises the display text of a page link. Slashes are kept since
// they denote namespaces in link targets.
func Link(target string) string {
	if strings.TrimSpace(target) == "" || strings.Contains(target, "[[") {
		return target
	}
	return linkReplacer.Replace(norm.NFC.String(Decode(target)))
}

// Asset returns the decoded file name of an attachment reference.
func Asset(name string) string {
	return norm.NFC.String(Decode(name))
}

// JournalDate converts a journal stem `YYYY_MM_DD[suffix]` to
// `YYYY-MM-DD[suffix]` when the date is a real calendar date.
func JournalDate(stem string) (string, bool) {
	m := journalRe.FindStringSubmatch(stem)
	if m == nil {
		return "", false
	}
	date := m[1] + "-" + m[2] + "-" + m[3]
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return "", false
	}
	return date + m[4], true
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
