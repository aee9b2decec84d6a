// Package moderation masks forbidden words in chat texts.
//
// Words and texts are folded the same way before matching: lower case,
// common leet substitutions undone and separators dropped, so "B.4.d-g€r"
// still matches "badger". Matches are mapped back onto the original runes
// and masked there, leaving spacing and punctuation untouched.
package moderation

import (
	"log/slog"
	"unicode"

	"team-chat/errors"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

type Moderator struct {
	machine *goahocorasick.Machine
	mask    rune
	log     *slog.Logger
}

// folded keeps, for every folded rune, its index in the original text.
type folded struct {
	runes     []rune
	positions []int
}

// NewModerator builds the automaton. Words folding to nothing are skipped,
// ErrEmptyWords is returned when none is left.
func NewModerator(words []string, mask rune, log *slog.Logger) (*Moderator, error) {
	patterns := lo.FilterMap(words, func(word string, _ int) ([]rune, bool) {
		f := fold([]rune(word))
		return f.runes, len(f.runes) > 0
	})
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	log.Debug("Moderator ready", "patterns", len(patterns))
	return &Moderator{machine: machine, mask: mask, log: log}, nil
}

// Censor returns the masked text and the distinct words found, in order of appearance.
// A match only counts when it is not glued to letters of a longer word,
// so "class" is left alone by a dictionary holding "ass".
func (m *Moderator) Censor(text string) (string, []string) {
	original := []rune(text)
	f := fold(original)
	if len(f.runes) == 0 {
		return text, nil
	}

	var found []string
	for _, term := range m.machine.MultiPatternSearch(f.runes, false) {
		end := term.Pos + len(term.Word)
		if term.Pos < 0 || end > len(f.positions) {
			continue
		}
		from, to := f.positions[term.Pos], f.positions[end-1]+1
		if gluedToWord(original, from, to) {
			continue
		}
		for i := from; i < to; i++ {
			original[i] = m.mask
		}
		found = append(found, string(term.Word))
	}
	if len(found) == 0 {
		return text, nil
	}
	return string(original), lo.Uniq(found)
}

func fold(text []rune) folded {
	f := folded{runes: make([]rune, 0, len(text)), positions: make([]int, 0, len(text))}
	for i, r := range text {
		r = unleet(r)
		if isSeparator(r) {
			continue
		}
		f.runes = append(f.runes, unicode.ToLower(r))
		f.positions = append(f.positions, i)
	}
	return f
}

func gluedToWord(text []rune, from, to int) bool {
	return (from > 0 && unicode.IsLetter(text[from-1])) ||
		(to < len(text) && unicode.IsLetter(text[to]))
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isSeparator(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
