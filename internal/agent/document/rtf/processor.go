package rtf

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document/txt"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

// destinations whose content is metadata, not body text.
var skipDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "header": true, "footer": true, "footnote": true,
	"listtable": true, "listoverridetable": true, "rsidtbl": true,
	"generator": true, "xmlnstbl": true, "themedata": true, "latentstyles": true,
}

// Processor extracts body text from RTF and writes a minimal RTF document.
type Processor struct{}

func NewProcessor() *Processor { return &Processor{} }

func (p *Processor) Format() models.Format { return models.FormatRTF }

func (p *Processor) Parse(ctx context.Context, raw []byte) (string, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte(`{\rtf`)) {
		return "", models.NewError(models.ErrCorrupt, "missing {\\rtf header")
	}

	text, err := parse(string(trimmed))
	if err != nil {
		return "", err
	}
	return normalize(text), nil
}

type group struct {
	skip   bool
	ucSkip int
}

// lineBreak marks \line inside a paragraph until normalize runs.
const lineBreak = '\v'

type parser struct {
	src     string
	out     strings.Builder
	stack   []group
	cur     group
	pending int  // ANSI fallback chars still to drop after \uN
	high    rune // pending UTF-16 high surrogate
}

func parse(s string) (string, error) {
	p := &parser{src: s, cur: group{ucSkip: 1}}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '{':
			p.stack = append(p.stack, p.cur)
			// "{\*\dest" marks an ignorable destination.
			if strings.HasPrefix(s[i+1:], `\*`) {
				p.cur.skip = true
			}
		case '}':
			if len(p.stack) == 0 {
				return "", models.NewError(models.ErrCorrupt, "unbalanced braces at offset %d", i)
			}
			p.cur = p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
		case '\\':
			i = p.control(i)
		case '\r', '\n':
			// raw newlines are not significant in RTF
		default:
			p.emitByte(c)
		}
	}
	if len(p.stack) != 0 {
		return "", models.NewError(models.ErrCorrupt, "unterminated group")
	}
	return p.out.String(), nil
}

// control handles the escape starting at s[i] and returns the index of its last byte.
func (p *parser) control(i int) int {
	s := p.src
	if i+1 >= len(s) {
		return i
	}
	next := s[i+1]
	switch {
	case next == '\\' || next == '{' || next == '}':
		p.emitByte(next)
		return i + 1
	case next == '\'':
		if i+4 > len(s) {
			return len(s)
		}
		if b, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
			p.emitRune(charmap.Windows1252.DecodeByte(byte(b)), true)
		}
		return i + 3
	case next == '~':
		p.emitRune('\u00a0', false)
		return i + 1
	case next == '\n' || next == '\r':
		p.emitRune('\n', false)
		return i + 1
	case isLetter(next):
		j := i + 1
		for j < len(s) && isLetter(s[j]) {
			j++
		}
		word := s[i+1 : j]
		k := j
		if k < len(s) && (s[k] == '-' || isDigit(s[k])) {
			k++
			for k < len(s) && isDigit(s[k]) {
				k++
			}
		}
		param := s[j:k]
		if k < len(s) && s[k] == ' ' {
			k++
		}
		p.word(word, param)
		return k - 1
	default:
		// other control symbols (\-, \_ ...) carry no text we keep
		return i + 1
	}
}

func (p *parser) emitByte(c byte) {
	if c >= 0x80 {
		p.emitRune(charmap.Windows1252.DecodeByte(c), true)
		return
	}
	p.emitRune(rune(c), true)
}

// emitRune writes r unless the group is skipped. Fallback characters that
// follow a \uN are swallowed.
func (p *parser) emitRune(r rune, fallback bool) {
	if p.cur.skip {
		return
	}
	if fallback && p.pending > 0 {
		p.pending--
		return
	}
	p.out.WriteRune(r)
}

func (p *parser) word(word, param string) {
	if skipDestinations[word] {
		p.cur.skip = true
		return
	}
	if p.cur.skip {
		return
	}
	switch word {
	case "par", "sect", "page":
		p.out.WriteByte('\n')
	case "line":
		p.out.WriteRune(lineBreak)
	case "tab":
		p.out.WriteByte('\t')
	case "emdash":
		p.out.WriteRune('\u2014')
	case "endash":
		p.out.WriteRune('\u2013')
	case "lquote":
		p.out.WriteRune('\u2018')
	case "rquote":
		p.out.WriteRune('\u2019')
	case "ldblquote":
		p.out.WriteRune('\u201c')
	case "rdblquote":
		p.out.WriteRune('\u201d')
	case "bullet":
		p.out.WriteRune('\u2022')
	case "uc":
		if n, err := strconv.Atoi(param); err == nil {
			p.cur.ucSkip = n
		}
	case "u":
		n, err := strconv.Atoi(param)
		if err != nil {
			return
		}
		if n < 0 {
			n += 65536
		}
		r := rune(n)
		switch {
		case utf16.IsSurrogate(r) && r < 0xDC00:
			p.high = r
		case utf16.IsSurrogate(r) && p.high != 0:
			p.out.WriteRune(utf16.DecodeRune(p.high, r))
			p.high = 0
		default:
			p.out.WriteRune(r)
		}
		p.pending = p.cur.ucSkip
	}
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

// normalize turns \par-separated lines into canonical paragraphs: a single
// \par starts a new paragraph, matching how word processors export RTF.
func normalize(text string) string {
	var paragraphs []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(line, " \t\v")
		if line != "" {
			paragraphs = append(paragraphs, strings.ReplaceAll(line, string(lineBreak), "\n"))
		}
	}
	return document.JoinParagraphs(paragraphs)
}

// Render writes one \par-terminated paragraph per canonical paragraph, with
// line breaks inside a paragraph as \line.
func (p *Processor) Render(ctx context.Context, text string) ([]byte, error) {
	var b strings.Builder
	b.WriteString(`{\rtf1\ansi\deff0{\fonttbl{\f0\fswiss Helvetica;}}\f0\fs22` + "\n")
	for _, para := range document.SplitParagraphs(txt.StripBOM(text)) {
		for i, line := range strings.Split(para, "\n") {
			if i > 0 {
				b.WriteString(`\line `)
			}
			writeEscaped(&b, line)
		}
		b.WriteString("\\par\n")
	}
	b.WriteString("}")
	return []byte(b.String()), nil
}

func writeEscaped(b *strings.Builder, s string) {
	for _, r := range s {
		switch {
		case r == '\\' || r == '{' || r == '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\t':
			b.WriteString(`\tab `)
		case r < 0x80:
			b.WriteRune(r)
		case r > 0xFFFF:
			for _, u := range utf16.Encode([]rune{r}) {
				b.WriteString(`\u` + strconv.Itoa(int(int16(u))) + "?")
			}
		default:
			b.WriteString(`\u` + strconv.Itoa(int(int16(r))) + "?")
		}
	}
}
