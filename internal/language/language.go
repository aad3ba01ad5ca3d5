package language

import (
	"errors"
	"fmt"
)

// ErrUnknownLanguage is returned when a code is not part of the language set
var ErrUnknownLanguage = errors.New("unknown language")

// Language is an ISO 639-1 language code
type Language uint8

const (
	DE Language = iota + 1
	EN
	FR
	ES
)

var codes = map[Language]string{
	DE: "de",
	EN: "en",
	FR: "fr",
	ES: "es",
}

var byCode = func() map[string]Language {
	m := make(map[string]Language, len(codes))
	for l, code := range codes {
		m[code] = l
	}
	return m
}()

// All returns every supported language in declaration order
func All() []Language {
	return []Language{DE, EN, FR, ES}
}

func (l Language) String() string {
	if code, ok := codes[l]; ok {
		return code
	}
	return fmt.Sprintf("Language(%d)", uint8(l))
}

// Parse returns the language for a lowercase ISO 639-1 code
func Parse(code string) (Language, error) {
	l, ok := byCode[code]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}
	return l, nil
}

func (l Language) MarshalText() ([]byte, error) {
	code, ok := codes[l]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLanguage, uint8(l))
	}
	return []byte(code), nil
}

func (l *Language) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// I18nString holds one text per language
type I18nString map[Language]string
