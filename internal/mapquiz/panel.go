package mapquiz

import (
	"strings"
	"unicode"
)

// Panel models the riddle input: one slot per character of the canonical
// answer. A panel opened with a previously accepted answer is locked.
type Panel struct {
	slots  []string
	locked bool
}

func NewPanel(r Riddle, previous string) *Panel {
	p := &Panel{
		slots:  make([]string, r.AnswerLength()),
		locked: previous != "",
	}
	prev := []rune(previous)
	for i := range p.slots {
		if i < len(prev) {
			p.slots[i] = string(prev[i])
		}
	}
	return p
}

func (p *Panel) Len() int     { return len(p.slots) }
func (p *Panel) Locked() bool { return p.locked }

// Type sets slot idx from raw keyboard input, keeping only the last ASCII
// letter or digit. It returns the slot that should receive focus next.
func (p *Panel) Type(idx int, raw string) int {
	if p.locked || !p.inRange(idx) {
		return idx
	}
	var last rune
	for _, r := range raw {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			last = unicode.ToUpper(r)
		}
	}
	if last == 0 {
		p.slots[idx] = ""
		return idx
	}
	p.slots[idx] = string(last)
	if idx < len(p.slots)-1 {
		return idx + 1
	}
	return idx
}

// Paste normalizes text and spreads it over the slots starting at idx.
func (p *Panel) Paste(idx int, text string) int {
	if p.locked || !p.inRange(idx) {
		return idx
	}
	chars := []rune(Normalize(text))
	if len(chars) == 0 {
		return idx
	}
	n := 0
	for i := 0; i < len(chars) && idx+i < len(p.slots); i++ {
		p.slots[idx+i] = string(chars[i])
		n++
	}
	return min(idx+n, len(p.slots)-1)
}

// Backspace clears slot idx, or moves focus left when it is already empty.
func (p *Panel) Backspace(idx int) int {
	if p.locked || !p.inRange(idx) {
		return idx
	}
	if p.slots[idx] != "" {
		p.slots[idx] = ""
		return idx
	}
	if idx > 0 {
		return idx - 1
	}
	return idx
}

// Input joins the slots.
func (p *Panel) Input() string {
	return strings.Join(p.slots, "")
}

func (p *Panel) inRange(idx int) bool {
	return idx >= 0 && idx < len(p.slots)
}
