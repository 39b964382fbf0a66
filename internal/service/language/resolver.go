// Package language decides the lang field of outbound chat frames.
package language

import (
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

const (
	// Auto lets the server detect the language.
	Auto = "auto"
	// Detect guesses the language locally and falls back to Auto when unsure.
	Detect = "detect"
)

// Resolver maps message text to a language hint.
type Resolver struct {
	hint string
}

// NewResolver accepts "auto", "detect" or a BCP-47 tag, which is canonicalised.
func NewResolver(hint string) (*Resolver, error) {
	hint = strings.TrimSpace(hint)
	switch strings.ToLower(hint) {
	case "", Auto:
		return &Resolver{hint: Auto}, nil
	case Detect:
		return &Resolver{hint: Detect}, nil
	}

	tag, err := language.Parse(hint)
	if err != nil {
		return nil, fmt.Errorf("invalid language hint %q: %w", hint, err)
	}
	return &Resolver{hint: tag.String()}, nil
}

func (r *Resolver) Hint() string {
	if r == nil {
		return Auto
	}
	return r.hint
}

// Resolve returns the lang value to send with text.
func (r *Resolver) Resolve(text string) string {
	if r == nil {
		return Auto
	}
	if r.hint != Detect {
		return r.hint
	}

	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return Auto
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return Auto
}
