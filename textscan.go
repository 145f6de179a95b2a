package calcify

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

type TextKind uint8

const (
	TextNull TextKind = iota
	TextBool
	TextNumber
	TextString
	TextArray
	TextObject
)

var textKindNames = [...]string{"null", "bool", "number", "string", "array", "object"}

func (k TextKind) String() string {
	if int(k) < len(textKindNames) {
		return textKindNames[k]
	}
	return fmt.Sprintf("TextKind(%d)", int(k))
}

// TextValue is a parsed JSON value. Containers and composite records decode
// themselves by walking TextValues rather than by splitting raw strings, so
// commas and braces nested inside values never confuse the decoder.
//
// For objects, Keys and Elems are parallel and keep source order.
type TextValue struct {
	Kind  TextKind
	Raw   string // number literal, decoded string, or "true"/"false"
	Off   int
	Keys  []string
	Elems []*TextValue
}

// ParseText parses a complete JSON document.
func ParseText(s string) (*TextValue, error) {
	p := textParser{src: s}
	p.skipSpace()
	v, err := p.value(0)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, textErrf(p.pos, nil, nil, "unexpected %q after value", p.peekRune())
	}
	return v, nil
}

const maxTextDepth = 512

type textParser struct {
	src string
	pos int
}

func (p *textParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *textParser) peekRune() rune {
	if p.pos >= len(p.src) {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	return r
}

func (p *textParser) value(depth int) (*TextValue, error) {
	if depth > maxTextDepth {
		return nil, textErrf(p.pos, nil, nil, "nesting too deep")
	}
	if p.pos >= len(p.src) {
		return nil, textErrf(p.pos, nil, nil, "unexpected end of input")
	}
	start := p.pos
	switch c := p.src[p.pos]; {
	case c == '{':
		return p.object(depth)
	case c == '[':
		return p.array(depth)
	case c == '"':
		s, err := p.str()
		if err != nil {
			return nil, err
		}
		return &TextValue{Kind: TextString, Raw: s, Off: start}, nil
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	case strings.HasPrefix(p.src[p.pos:], "true"):
		p.pos += 4
		return &TextValue{Kind: TextBool, Raw: "true", Off: start}, nil
	case strings.HasPrefix(p.src[p.pos:], "false"):
		p.pos += 5
		return &TextValue{Kind: TextBool, Raw: "false", Off: start}, nil
	case strings.HasPrefix(p.src[p.pos:], "null"):
		p.pos += 4
		return &TextValue{Kind: TextNull, Off: start}, nil
	default:
		return nil, textErrf(p.pos, nil, nil, "unexpected %q", p.peekRune())
	}
}

func (p *textParser) object(depth int) (*TextValue, error) {
	v := &TextValue{Kind: TextObject, Off: p.pos}
	p.pos++ // {
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '}' {
		p.pos++
		return v, nil
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '"' {
			return nil, textErrf(p.pos, nil, nil, "expected object key")
		}
		keyOff := p.pos
		key, err := p.str()
		if err != nil {
			return nil, err
		}
		for _, k := range v.Keys {
			if k == key {
				return nil, textErrf(keyOff, nil, nil, "duplicate key %q", key)
			}
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return nil, textErrf(p.pos, nil, nil, "expected ':' after key %q", key)
		}
		p.pos++
		p.skipSpace()
		elem, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		v.Keys = append(v.Keys, key)
		v.Elems = append(v.Elems, elem)

		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, textErrf(p.pos, nil, nil, "unterminated object")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return v, nil
		default:
			return nil, textErrf(p.pos, nil, nil, "expected ',' or '}', got %q", p.peekRune())
		}
	}
}

func (p *textParser) array(depth int) (*TextValue, error) {
	v := &TextValue{Kind: TextArray, Off: p.pos}
	p.pos++ // [
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ']' {
		p.pos++
		return v, nil
	}
	for {
		p.skipSpace()
		elem, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		v.Elems = append(v.Elems, elem)

		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, textErrf(p.pos, nil, nil, "unterminated array")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return v, nil
		default:
			return nil, textErrf(p.pos, nil, nil, "expected ',' or ']', got %q", p.peekRune())
		}
	}
}

func (p *textParser) number() (*TextValue, error) {
	start := p.pos
	if p.src[p.pos] == '-' {
		p.pos++
	}
	digits := func() int {
		n := 0
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
			n++
		}
		return n
	}
	intStart := p.pos
	if n := digits(); n == 0 {
		return nil, textErrf(start, nil, nil, "invalid number")
	} else if n > 1 && p.src[intStart] == '0' {
		return nil, textErrf(start, nil, nil, "invalid number %q: leading zero", p.src[start:p.pos])
	}
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		if digits() == 0 {
			return nil, textErrf(start, nil, nil, "invalid number %q", p.src[start:p.pos])
		}
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.src) && (p.src[p.pos] == '+' || p.src[p.pos] == '-') {
			p.pos++
		}
		if digits() == 0 {
			return nil, textErrf(start, nil, nil, "invalid number %q", p.src[start:p.pos])
		}
	}
	return &TextValue{Kind: TextNumber, Raw: p.src[start:p.pos], Off: start}, nil
}

func (p *textParser) str() (string, error) {
	start := p.pos
	p.pos++ // "

	// fast path: no escapes
	for i := p.pos; i < len(p.src); i++ {
		c := p.src[i]
		if c == '"' {
			s := p.src[p.pos:i]
			p.pos = i + 1
			return s, nil
		}
		if c == '\\' || c < 0x20 {
			break
		}
	}

	var buf strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '"':
			p.pos++
			return buf.String(), nil
		case c < 0x20:
			return "", textErrf(p.pos, nil, nil, "control character in string")
		case c != '\\':
			buf.WriteByte(c)
			p.pos++
			continue
		}
		p.pos++ // backslash
		if p.pos >= len(p.src) {
			break
		}
		esc := p.src[p.pos]
		p.pos++
		switch esc {
		case '"', '\\', '/':
			buf.WriteByte(esc)
		case 'b':
			buf.WriteByte('\b')
		case 'f':
			buf.WriteByte('\f')
		case 'n':
			buf.WriteByte('\n')
		case 'r':
			buf.WriteByte('\r')
		case 't':
			buf.WriteByte('\t')
		case 'u':
			r, err := p.hex4()
			if err != nil {
				return "", err
			}
			if utf16.IsSurrogate(r) {
				next := p.pos
				r = utf8.RuneError
				if strings.HasPrefix(p.src[p.pos:], `\u`) {
					p.pos += 2
					r2, err := p.hex4()
					if err != nil {
						return "", err
					}
					if r = utf16.DecodeRune(r, r2); r == utf8.RuneError {
						// not a pair; decode the second escape on its own
						p.pos = next
					}
				}
			}
			buf.WriteRune(r)
		default:
			return "", textErrf(p.pos-2, nil, nil, "invalid escape \\%c", esc)
		}
	}
	return "", textErrf(start, nil, nil, "unterminated string")
}

func (p *textParser) hex4() (rune, error) {
	if p.pos+4 > len(p.src) {
		return 0, textErrf(p.pos, nil, nil, "truncated \\u escape")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 16)
	if err != nil {
		return 0, textErrf(p.pos, nil, nil, "invalid \\u escape %q", p.src[p.pos:p.pos+4])
	}
	p.pos += 4
	return rune(v), nil
}

// Float returns the value of a number. null decodes to NaN, mirroring how
// non-finite floats are written.
func (v *TextValue) Float() (float64, error) {
	switch v.Kind {
	case TextNumber:
		f, err := strconv.ParseFloat(v.Raw, 64)
		if err != nil {
			return 0, textErrf(v.Off, nil, err, "invalid float %q", v.Raw)
		}
		return f, nil
	case TextNull:
		return math.NaN(), nil
	default:
		return 0, v.kindErr(TextNumber)
	}
}

// Uint returns the value of a non-negative integral number. Integral values
// written in float notation ("3.0", "1e3") are accepted.
func (v *TextValue) Uint() (uint64, error) {
	if v.Kind != TextNumber {
		return 0, v.kindErr(TextNumber)
	}
	u, err := strconv.ParseUint(v.Raw, 10, 64)
	if err == nil {
		return u, nil
	}
	f, ferr := strconv.ParseFloat(v.Raw, 64)
	if ferr != nil || f < 0 || f != math.Trunc(f) || f >= 1<<64 {
		return 0, textErrf(v.Off, nil, err, "invalid unsigned integer %q", v.Raw)
	}
	return uint64(f), nil
}

func (v *TextValue) Str() (string, error) {
	if v.Kind != TextString {
		return "", v.kindErr(TextString)
	}
	return v.Raw, nil
}

// Field returns the member of an object with the given key.
func (v *TextValue) Field(key string) (*TextValue, bool) {
	if v.Kind != TextObject {
		return nil, false
	}
	for i, k := range v.Keys {
		if k == key {
			return v.Elems[i], true
		}
	}
	return nil, false
}

// Fields returns the members with exactly the given keys, in the order of
// keys. Objects with missing or extra members fail with ErrLength or
// ErrParse.
func (v *TextValue) Fields(keys ...string) ([]*TextValue, error) {
	if v.Kind != TextObject {
		return nil, v.kindErr(TextObject)
	}
	if len(v.Keys) != len(keys) {
		return nil, textErrf(v.Off, ErrLength, nil, "object has %d fields, wanted %d (%s)", len(v.Keys), len(keys), strings.Join(keys, ","))
	}
	out := make([]*TextValue, len(keys))
	for i, k := range keys {
		f, ok := v.Field(k)
		if !ok {
			return nil, textErrf(v.Off, nil, nil, "missing field %q", k)
		}
		out[i] = f
	}
	return out, nil
}

// Items returns the elements of an array that must have exactly n elements.
// Pass n < 0 to accept any length.
func (v *TextValue) Items(n int) ([]*TextValue, error) {
	if v.Kind != TextArray {
		return nil, v.kindErr(TextArray)
	}
	if n >= 0 && len(v.Elems) != n {
		return nil, textErrf(v.Off, ErrLength, nil, "array has %d elements, wanted %d", len(v.Elems), n)
	}
	return v.Elems, nil
}

func (v *TextValue) kindErr(want TextKind) error {
	return textErrf(v.Off, nil, nil, "got %v, wanted %v", v.Kind, want)
}

func floatsFromText(v *TextValue, out ...*float64) error {
	items, err := v.Items(len(out))
	if err != nil {
		return err
	}
	for i, item := range items {
		f, err := item.Float()
		if err != nil {
			return err
		}
		*out[i] = f
	}
	return nil
}

// namedFloatsFromText decodes either {"k0":a,"k1":b,...} or the compact [a,b,...].
func namedFloatsFromText(v *TextValue, keys []string, out ...*float64) error {
	if v.Kind == TextArray {
		return floatsFromText(v, out...)
	}
	fields, err := v.Fields(keys...)
	if err != nil {
		return err
	}
	for i, f := range fields {
		x, err := f.Float()
		if err != nil {
			return err
		}
		*out[i] = x
	}
	return nil
}
