// Package rtf encodes plain text as a minimal RTF document and extracts the
// visible text back out of RTF markup. It is not a renderer: formatting is
// dropped, destinations such as font and color tables are skipped.
package rtf

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf16"
)

const header = "{\\rtf1\\ansi\\ansicpg1252\\cocoartf2761\\deff0{\\fonttbl\\f0\\fswiss Helvetica;}\\f0\\fs24 "

// skipped destinations: their groups hold no body text.
var destinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "header": true, "footer": true, "object": true,
	"listtable": true, "listoverridetable": true, "rsidtbl": true,
	"expandedcolortbl": true, "generator": true, "themedata": true,
	"latentstyles": true, "datastore": true, "xmlnstbl": true,
}

// IsRTF reports whether data looks like an RTF document.
func IsRTF(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n\uFEFF")
	return bytes.HasPrefix(trimmed, []byte("{\\rtf"))
}

// Encode wraps text into an RTF document. Non-ASCII runes become \uN
// escapes with a "?" fallback.
func Encode(text string) []byte {
	var b strings.Builder
	b.Grow(len(header) + len(text) + 16)
	b.WriteString(header)
	for _, r := range text {
		switch {
		case r == '\\' || r == '{' || r == '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString("\\\n")
		case r == '\r':
		case r == '\t':
			b.WriteString("\\tab ")
		case r < 0x80:
			b.WriteRune(r)
		default:
			for _, u := range utf16.Encode([]rune{r}) {
				b.WriteString("\\u")
				b.WriteString(strconv.Itoa(int(int16(u))))
				b.WriteByte('?')
			}
		}
	}
	b.WriteByte('}')
	return []byte(b.String())
}

// EncodeIfPlain returns content unchanged when it already is RTF markup and
// wraps it otherwise.
func EncodeIfPlain(content string) []byte {
	if IsRTF([]byte(content)) {
		return []byte(content)
	}
	return Encode(content)
}

type group struct {
	skip bool
	uc   int
}

// PlainText extracts visible text from RTF markup.
func PlainText(data []byte) string {
	var (
		out     strings.Builder
		stack   = []group{{uc: 1}}
		pending int // fallback chars still to skip after \uN
		high    rune
		first   bool // next control word is the first token of its group
	)
	cur := func() *group { return &stack[len(stack)-1] }
	emit := func(r rune) {
		if pending > 0 {
			pending--
			return
		}
		if !cur().skip {
			out.WriteRune(r)
		}
	}

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch c {
		case '{':
			stack = append(stack, *cur())
			first = true
			continue
		case '}':
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			first = false
			continue
		case '\r', '\n':
			continue
		case '\\':
		default:
			first = false
			emit(rune(c))
			continue
		}

		// control sequence
		if i+1 >= len(data) {
			break
		}
		i++
		c = data[i]
		isFirst := first
		first = false

		if !isLetter(c) {
			switch c {
			case '\\', '{', '}':
				emit(rune(c))
			case '\n', '\r':
				emit('\n')
			case '~':
				emit(' ')
			case '_':
				emit('-')
			case '*':
				cur().skip = true
			case '\'':
				if i+2 < len(data) {
					if v, err := strconv.ParseUint(string(data[i+1:i+3]), 16, 8); err == nil {
						emit(rune(v))
					}
					i += 2
				}
			}
			continue
		}

		start := i
		for i < len(data) && isLetter(data[i]) {
			i++
		}
		word := string(data[start:i])
		pstart := i
		if i < len(data) && data[i] == '-' {
			i++
		}
		for i < len(data) && data[i] >= '0' && data[i] <= '9' {
			i++
		}
		param, hasParam := 0, false
		if i > pstart {
			if v, err := strconv.Atoi(string(data[pstart:i])); err == nil {
				param, hasParam = v, true
			}
		}
		if i >= len(data) || data[i] != ' ' {
			i-- // delimiter belongs to the next token
		}

		if isFirst && destinations[word] {
			cur().skip = true
			continue
		}
		switch word {
		case "par", "line":
			emit('\n')
		case "tab":
			emit('\t')
		case "uc":
			if hasParam {
				cur().uc = param
			}
		case "u":
			if !hasParam {
				continue
			}
			u := rune(uint16(int16(param)))
			pending = 0
			switch {
			case utf16.IsSurrogate(u) && u < 0xdc00:
				high = u
			case utf16.IsSurrogate(u) && high != 0:
				emit(utf16.DecodeRune(high, u))
				high = 0
			default:
				emit(u)
			}
			pending = cur().uc
		}
	}
	return out.String()
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
