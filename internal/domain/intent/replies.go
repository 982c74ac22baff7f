package intent

import (
	"fmt"
	"strings"
)

// Canned replies keyed by locale. These are the only texts the system ever
// sends on its own authority; everything else comes from the responder.
var (
	handoffReplies = map[string]string{
		"en": "Thanks! A member of our team will be with you shortly to complete your booking.",
		"es": "¡Gracias! Un miembro de nuestro equipo te atenderá en breve para completar tu reserva.",
	}
	escalationReplies = map[string]string{
		"en": "Of course, connecting you with a team member now.",
		"es": "Por supuesto, te estamos conectando con un miembro del equipo.",
	}
	fallbackReplies = map[string]string{
		"en": "Sorry, I'm having trouble right now. I'm connecting you with a team member.",
		"es": "Lo siento, estoy teniendo problemas en este momento. Te conecto con un miembro del equipo.",
	}
	affirmationAckReplies = map[string]string{
		"en": "Great! Our team will confirm your booking for %s shortly.",
		"es": "¡Perfecto! Nuestro equipo confirmará tu reserva para %s en breve.",
	}
	availabilityPrompts = map[string]string{
		"en": "Good news: we have availability for %s. Would you like to book?",
		"es": "Buenas noticias: tenemos disponibilidad para %s. ¿Te gustaría reservar?",
	}
	unavailableReplies = map[string]string{
		"en": "Unfortunately we are fully booked for %s. Would another date work?",
		"es": "Lamentablemente estamos completos para %s. ¿Te serviría otra fecha?",
	}
)

// handoffMarkers are phrases in responder output that signal an implicit
// handoff: the model apologizing or referring the user to a human.
var handoffMarkers = map[string][]string{
	"en": {"i'm sorry", "i am sorry", "i apologize", "team member", "human agent", "our staff will", "cannot help with"},
	"es": {"lo siento", "lo lamento", "disculpa", "miembro del equipo", "un agente", "nuestro personal"},
}

// HandoffReply is the fixed reply for a detected booking request.
func HandoffReply(locale string) string {
	return localized(handoffReplies, locale)
}

// EscalationReply is the fixed reply for an explicit help keyword.
func EscalationReply(locale string) string {
	return localized(escalationReplies, locale)
}

// FallbackReply is the degraded reply used whenever the responder fails.
func FallbackReply(locale string) string {
	return localized(fallbackReplies, locale)
}

// AffirmationAckReply acknowledges a confirmed booking intent.
func AffirmationAckReply(locale, bookingIntent string) string {
	return fmt.Sprintf(localized(affirmationAckReplies, locale), bookingIntent)
}

// AvailabilityPrompt offers the resolved range and asks to book.
func AvailabilityPrompt(locale string, rng DateRange) string {
	return fmt.Sprintf(localized(availabilityPrompts, locale), rng.String())
}

// UnavailableReply reports a fully-booked range.
func UnavailableReply(locale string, rng DateRange) string {
	return fmt.Sprintf(localized(unavailableReplies, locale), rng.String())
}

// ContainsHandoffMarker scans responder output for apology/escalation
// phrases in the active locale.
func ContainsHandoffMarker(reply, locale string) bool {
	lowered := strings.ToLower(reply)
	for _, marker := range handoffMarkers[normalizeLocale(locale)] {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func localized(m map[string]string, locale string) string {
	if v, ok := m[normalizeLocale(locale)]; ok {
		return v
	}
	return m["en"]
}
