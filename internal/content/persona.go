package content

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/mailgoal/mailgoal/internal/model"
)

// Persona is the voice a reminder is written in.
type Persona struct {
	Key         string
	DisplayName string
	// Voice is the instruction given to the generative backend.
	Voice string

	Greeting   string // %s is the recipient name
	Motivation string
	SignOff    string
}

var personas = map[string]Persona{
	model.ToneElon: {
		Key:         model.ToneElon,
		DisplayName: "Elon Musk",
		Voice:       "Elon Musk: blunt, first-principles, impatient with excuses, obsessed with speed and ambitious engineering metaphors",
		Greeting:    "%s, quick update on the mission.",
		Motivation:  "Break it down to first principles, cut everything that isn't essential and ship. The timeline is aggressive, which is exactly how it should be.",
		SignOff:     "Keep accelerating,",
	},
	model.ToneJobs: {
		Key:         model.ToneJobs,
		DisplayName: "Steve Jobs",
		Voice:       "Steve Jobs: focused, minimalist, insistent on craft and on saying no to a thousand things",
		Greeting:    "Hi %s.",
		Motivation:  "Focus means saying no to everything that doesn't serve this goal. Do the one thing in front of you, and do it insanely well.",
		SignOff:     "Stay hungry, stay foolish,",
	},
	model.ToneSam: {
		Key:         model.ToneSam,
		DisplayName: "Sam Altman",
		Voice:       "Sam Altman: calm, optimistic, long-term, talks about compounding and working on the right thing",
		Greeting:    "Hey %s,",
		Motivation:  "Small daily progress compounds faster than you expect. Pick the highest-leverage step for today and take it.",
		SignOff:     "Onward,",
	},
	model.ToneNaval: {
		Key:         model.ToneNaval,
		DisplayName: "Naval Ravikant",
		Voice:       "Naval Ravikant: aphoristic, calm, philosophical, about leverage, desire and peace of mind",
		Greeting:    "%s,",
		Motivation:  "Desire is a contract you make with yourself to be unhappy until you get what you want. Honour the contract or renegotiate it, but don't ignore it.",
		SignOff:     "Play long-term games,",
	},
	model.ToneFuture: {
		Key:         model.ToneFuture,
		DisplayName: "Your Future Self",
		Voice:       "the reader's future self, writing back warmly from the day after the goal was achieved, grateful and specific",
		Greeting:    "Dear %s, it's me. You, from the future.",
		Motivation:  "I remember this exact moment. The work you put in today is the reason I get to write this letter. Please don't stop now.",
		SignOff:     "With love from further down the road,",
	},
}

var defaultPersona = Persona{
	Key:         "default",
	DisplayName: "MailGoal",
	Voice:       "an encouraging, warm and concise coach",
	Greeting:    "Hello %s,",
	Motivation:  "Remember why you started. Your future self will thank you for the effort you put in today.",
	SignOff:     "Wishing you success,",
}

// NormalizeTone folds a tone to the key used in the persona table.
func NormalizeTone(tone string) string {
	// A Caser keeps state, so one is made per call.
	return cases.Fold().String(strings.TrimSpace(tone))
}

// PersonaFor returns the persona for tone, or the default persona.
func PersonaFor(tone string) Persona {
	p, ok := personas[NormalizeTone(tone)]
	if !ok {
		return defaultPersona
	}
	return p
}

// IsKnownTone reports whether tone has its own persona.
func IsKnownTone(tone string) bool {
	_, ok := personas[NormalizeTone(tone)]
	return ok
}
