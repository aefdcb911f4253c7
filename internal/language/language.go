package language

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultLocale is used when neither config nor environment name one.
const DefaultLocale = "en-US"

// Language is a locale offered by the configure wizard.
type Language struct {
	Code       string // BCP 47 tag, e.g. "en-US"
	Name       string // English name
	NativeName string // name in the language itself
}

// common locales offered for coaching sessions; any valid tag is accepted
var commonCodes = []string{
	"en-US", "en-GB", "en-AU", "en-IN",
	"es-ES", "es-MX", "fr-FR", "fr-CA", "de-DE", "it-IT",
	"pt-BR", "pt-PT", "nl-NL", "sv-SE", "da-DK", "nb-NO", "fi-FI",
	"pl-PL", "cs-CZ", "ru-RU", "uk-UA", "tr-TR", "el-GR",
	"ar-SA", "he-IL", "hi-IN", "ja-JP", "ko-KR", "zh-CN", "zh-TW",
	"id-ID", "vi-VN", "th-TH",
}

// Parse accepts BCP 47 and POSIX style locales ("it_IT.UTF-8").
func Parse(locale string) (language.Tag, error) {
	s := strings.TrimSpace(locale)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "_", "-")
	if s == "" {
		return language.Und, fmt.Errorf("empty locale")
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	return tag, nil
}

// Normalize returns the canonical tag, or "" for an empty or invalid locale.
func Normalize(locale string) string {
	tag, err := Parse(locale)
	if err != nil {
		return ""
	}
	return tag.String()
}

// IsValid reports whether locale parses. Empty means "use default" and is valid.
func IsValid(locale string) bool {
	if strings.TrimSpace(locale) == "" {
		return true
	}
	_, err := Parse(locale)
	return err == nil
}

// Base returns the primary language subtag ("en" for "en-GB").
func Base(locale string) string {
	tag, err := Parse(locale)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// Region returns the region subtag only if it was written explicitly.
func Region(locale string) string {
	tag, err := Parse(locale)
	if err != nil {
		return ""
	}
	region, conf := tag.Region()
	if conf != language.Exact {
		return ""
	}
	return region.String()
}

// SameLocale reports an exact, region-aware match ("en-GB" vs "en_GB").
func SameLocale(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && strings.EqualFold(na, nb)
}

// SameBase reports a match on the primary language only.
func SameBase(a, b string) bool {
	ba, bb := Base(a), Base(b)
	return ba != "" && ba == bb
}

// FromEnv derives a locale from LC_ALL, LC_MESSAGES or LANG.
func FromEnv() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(key)
		if v == "" || v == "C" || v == "POSIX" || strings.HasPrefix(v, "C.") {
			continue
		}
		if n := Normalize(v); n != "" {
			return n
		}
	}
	return DefaultLocale
}

// Label returns a human readable label, e.g. "English (United Kingdom) (en-GB)".
func Label(locale string) string {
	if locale == "" {
		return ""
	}
	tag, err := Parse(locale)
	if err != nil {
		return fmt.Sprintf("language '%s'", locale)
	}
	name := display.English.Tags().Name(tag)
	if name == "" || strings.EqualFold(name, locale) {
		return fmt.Sprintf("language '%s'", locale)
	}
	return fmt.Sprintf("%s (%s)", name, tag.String())
}

// FromCode describes a locale. Invalid codes yield the default locale.
func FromCode(code string) Language {
	tag, err := Parse(code)
	if err != nil {
		tag = language.MustParse(DefaultLocale)
	}
	return Language{
		Code:       tag.String(),
		Name:       display.English.Tags().Name(tag),
		NativeName: display.Self.Name(tag),
	}
}

// List returns the common locales in wizard order.
func List() []Language {
	out := make([]Language, len(commonCodes))
	for i, code := range commonCodes {
		out[i] = FromCode(code)
	}
	return out
}
