// Package intent classifies inbound user text into a fixed, ordered set of
// rules. Each rule is pure: classification never touches storage or the
// network, so the dialog service can evaluate it inside a transaction.
package intent

import (
	"strings"
)

// Kind tags the outcome of rule evaluation.
type Kind string

const (
	KindBookingAffirmation Kind = "booking_affirmation"
	KindBookingRequest     Kind = "booking_request"
	KindHelpEscalation     Kind = "help_escalation"
	KindAvailabilityQuery  Kind = "availability_query"
	KindDefault            Kind = "default"
)

// Result is the outcome of classifying one message.
type Result struct {
	Kind Kind
	// DateRange is set only for KindAvailabilityQuery.
	DateRange *DateRange
}

// Classifier evaluates rules in a fixed priority order.
type Classifier struct {
	locale string
}

// NewClassifier builds a classifier for the given locale ("en" or "es").
// Unknown locales fall back to English keyword sets.
func NewClassifier(locale string) *Classifier {
	return &Classifier{locale: normalizeLocale(locale)}
}

// Classify runs the ordered rule pipeline. hasOpenBookingIntent gates the
// affirmation rule: "yes" only confirms when there is something to confirm.
func (c *Classifier) Classify(text string, hasOpenBookingIntent bool) Result {
	normalized := normalize(text)

	if hasOpenBookingIntent && matchAny(normalized, affirmations[c.locale]) {
		return Result{Kind: KindBookingAffirmation}
	}
	if matchAny(normalized, bookingRequests[c.locale]) {
		return Result{Kind: KindBookingRequest}
	}
	if matchAny(normalized, helpEscalations[c.locale]) {
		return Result{Kind: KindHelpEscalation}
	}
	if rng, ok := ExtractDateRange(normalized, c.locale); ok {
		return Result{Kind: KindAvailabilityQuery, DateRange: &rng}
	}
	return Result{Kind: KindDefault}
}

// Locale returns the classifier's active locale.
func (c *Classifier) Locale() string {
	return c.locale
}

func normalizeLocale(locale string) string {
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case "es", "es-es", "es-mx":
		return "es"
	default:
		return "en"
	}
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// matchAny reports whether any keyword occurs in the text. Short keywords
// (under 5 runes) must match the whole message so "yes" does not fire on
// "yesterday was fine".
func matchAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if len([]rune(kw)) < 5 {
			if text == kw || strings.HasPrefix(text, kw+" ") || strings.HasSuffix(text, " "+kw) {
				return true
			}
			continue
		}
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

var affirmations = map[string][]string{
	"en": {"yes", "yeah", "yep", "sure", "ok", "okay", "proceed", "go ahead", "sounds good", "book it"},
	"es": {"si", "sí", "claro", "dale", "adelante", "por supuesto", "resérvalo", "está bien"},
}

var bookingRequests = map[string][]string{
	"en": {"book a room", "make a booking", "make a reservation", "i'd like to book", "i want to book", "reserve a room", "reservation please"},
	"es": {"reservar una habitación", "hacer una reserva", "quiero reservar", "me gustaría reservar", "quisiera reservar"},
}

var helpEscalations = map[string][]string{
	"en": {"help", "agent", "human", "speak to someone", "talk to a person", "representative", "operator"},
	"es": {"ayuda", "agente", "humano", "hablar con alguien", "una persona", "representante"},
}
