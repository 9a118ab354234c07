package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// ErrInvalidPattern is returned for a key pattern that cannot be parsed
var ErrInvalidPattern = errors.New("invalid key pattern")

// maxClassRunes caps how far a character class is expanded into a rune list
const maxClassRunes = 256

// CompilePattern compiles a Redis KEYS pattern into a matcher.
//
// Redis and gobwas/glob agree on * and ? but not on the rest: Redis negates a
// class with ^ and has no {a,b} alternation, while gobwas negates with ! and
// only allows one range or one rune list per class. The pattern is rewritten
// into gobwas syntax before compiling. An unterminated class is rejected
// rather than matched loosely.
func CompilePattern(pattern string) (glob.Glob, error) {
	translated, ok, err := translatePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, pattern, err)
	}
	if !ok {
		return matchNothing{}, nil
	}

	g, err := glob.Compile(translated)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, pattern, err)
	}
	return g, nil
}

// matchNothing stands in for a pattern containing an empty class
type matchNothing struct{}

func (matchNothing) Match(string) bool { return false }

// translatePattern returns the gobwas form of a Redis pattern. ok is false
// when the pattern can never match.
func translatePattern(pattern string) (out string, ok bool, err error) {
	runes := []rune(pattern)
	var b strings.Builder
	b.Grow(len(pattern))

	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '*', '?':
			b.WriteRune(r)
		case '\\':
			// a trailing backslash matches itself
			if i+1 < len(runes) {
				i++
			}
			writeLiteral(&b, runes[i])
		case '[':
			class, end, err := parseClass(runes, i+1)
			if err != nil {
				return "", false, err
			}
			i = end
			s, ok, err := class.glob()
			if err != nil || !ok {
				return "", false, err
			}
			b.WriteString(s)
		default:
			writeLiteral(&b, r)
		}
	}
	return b.String(), true, nil
}

func writeLiteral(b *strings.Builder, r rune) {
	switch r {
	case '*', '?', '\\', '[', ']', '{', '}', ',':
		b.WriteByte('\\')
	}
	b.WriteRune(r)
}

type runeRange struct{ lo, hi rune }

type charClass struct {
	negated bool
	ranges  []runeRange
}

// parseClass reads a class body starting just after '[' and returns the
// index of the closing ']'.
func parseClass(runes []rune, i int) (charClass, int, error) {
	var c charClass
	if i < len(runes) && runes[i] == '^' {
		c.negated = true
		i++
	}

	for ; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == ']':
			return c, i, nil
		case r == '\\' && i+1 < len(runes):
			i++
			c.ranges = append(c.ranges, runeRange{runes[i], runes[i]})
		case i+2 < len(runes) && runes[i+1] == '-' && runes[i+2] != ']':
			lo, hi := r, runes[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			c.ranges = append(c.ranges, runeRange{lo, hi})
			i += 2
		default:
			c.ranges = append(c.ranges, runeRange{r, r})
		}
	}
	return c, 0, errors.New("unterminated character class")
}

func (c charClass) glob() (string, bool, error) {
	not := ""
	if c.negated {
		not = "!"
	}

	switch {
	case len(c.ranges) == 0 && c.negated:
		return "?", true, nil
	case len(c.ranges) == 0:
		return "", false, nil
	case len(c.ranges) == 1 && c.ranges[0].hi-c.ranges[0].lo >= maxClassRunes:
		// gobwas reads range bounds raw: NUL ends its input and a leading !
		// negates
		lo, hi := c.ranges[0].lo, c.ranges[0].hi
		if lo == 0 || (lo == '!' && !c.negated) {
			return "", false, fmt.Errorf("range %q-%q is not supported", lo, hi)
		}
		return "[" + not + string(lo) + "-" + string(hi) + "]", true, nil
	}

	set := make(map[rune]bool)
	for _, rg := range c.ranges {
		for r := rg.lo; r <= rg.hi; r++ {
			set[r] = true
			if len(set) > maxClassRunes {
				return "", false, fmt.Errorf("character class wider than %d runes", maxClassRunes)
			}
		}
	}

	dash := set['-']
	delete(set, '-')
	chars := make([]rune, 0, len(set))
	for r := range set {
		chars = append(chars, r)
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })

	var b strings.Builder
	b.WriteString("[" + not)
	if len(chars) == 0 {
		// a lone dash is read as text
		b.WriteString("-]")
		return b.String(), true, nil
	}
	for _, r := range chars {
		if !isASCIIAlnum(r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	// escaped and last, since a dash right after the first rune opens a range
	if dash {
		b.WriteString(`\-`)
	}
	b.WriteByte(']')
	return b.String(), true, nil
}

func isASCIIAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}
