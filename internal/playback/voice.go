package playback

import (
	"strings"

	"github.com/leonardotrapani/hyprcoach/internal/language"
)

// DefaultVoiceHints are name fragments of voices that sound like a tutor.
var DefaultVoiceHints = []string{"teacher", "tutor", "natural", "google", "samantha", "daniel"}

// SelectVoice picks the voice for locale, in order of preference:
// an exact-locale voice named like a hint, any exact-locale voice, a voice
// sharing the base language, the default voice, the first voice.
func SelectVoice(voices []Voice, locale string, hints []string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}

	var exact []Voice
	for _, v := range voices {
		if language.SameLocale(v.Lang, locale) {
			exact = append(exact, v)
		}
	}
	for _, v := range exact {
		if matchesHint(v.Name, hints) {
			return v, true
		}
	}
	if len(exact) > 0 {
		return exact[0], true
	}

	for _, v := range voices {
		if language.SameBase(v.Lang, locale) {
			return v, true
		}
	}

	for _, v := range voices {
		if v.Default {
			return v, true
		}
	}
	return voices[0], true
}

func matchesHint(name string, hints []string) bool {
	name = strings.ToLower(name)
	for _, h := range hints {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" && strings.Contains(name, h) {
			return true
		}
	}
	return false
}
