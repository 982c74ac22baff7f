package intent

import "testing"

func TestClassifyOrdering(t *testing.T) {
	tests := []struct {
		name        string
		locale      string
		text        string
		openBooking bool
		want        Kind
	}{
		{
			name: "booking request",
			text: "Hi, I'd like to book a room for next week",
			want: KindBookingRequest,
		},
		{
			name: "booking request spanish",
			text: "Hola, quiero reservar para el finde",

			locale: "es",
			want:   KindBookingRequest,
		},
		{
			name:        "affirmation with open intent",
			text:        "yes",
			openBooking: true,
			want:        KindBookingAffirmation,
		},
		{
			name: "affirmation without open intent falls through",
			text: "yes",
			want: KindDefault,
		},
		{
			name:        "short keyword must match whole message",
			text:        "yesterday was fine",
			openBooking: true,
			want:        KindDefault,
		},
		{
			name: "help escalation",
			text: "can I speak to someone please",
			want: KindHelpEscalation,
		},
		{
			name:   "help escalation spanish",
			locale: "es",
			text:   "necesito ayuda con mi cuenta",
			want:   KindHelpEscalation,
		},
		{
			name: "availability query with date range",
			text: "any rooms available march 10 to march 12",
			want: KindAvailabilityQuery,
		},
		{
			name: "unparseable dates fall through to default",
			text: "any rooms available sometime soonish",
			want: KindDefault,
		},
		{
			name: "plain chit chat",
			text: "what time is breakfast served",
			want: KindDefault,
		},
		{
			name:        "booking request outranks affirmation keywords inside it",
			text:        "ok I want to book a room",
			openBooking: false,
			want:        KindBookingRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(tt.locale)
			got := c.Classify(tt.text, tt.openBooking)
			if got.Kind != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.text, got.Kind, tt.want)
			}
			if tt.want == KindAvailabilityQuery && got.DateRange == nil {
				t.Errorf("Classify(%q) returned no date range", tt.text)
			}
		})
	}
}

func TestNormalizeLocale(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"ES", "es"},
		{"es-MX", "es"},
		{"fr", "en"},
		{"", "en"},
	}
	for _, tt := range tests {
		if got := normalizeLocale(tt.in); got != tt.want {
			t.Errorf("normalizeLocale(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContainsHandoffMarker(t *testing.T) {
	tests := []struct {
		name   string
		locale string
		reply  string
		want   bool
	}{
		{"apology english", "en", "I'm sorry, I can't assist with that request.", true},
		{"refers to staff", "en", "A Team Member will reach out to you.", true},
		{"normal answer", "en", "Breakfast is served from 7 to 10.", false},
		{"apology spanish", "es", "Lo siento, no puedo ayudarte con eso.", true},
		{"normal answer spanish", "es", "El desayuno es de 7 a 10.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsHandoffMarker(tt.reply, tt.locale); got != tt.want {
				t.Errorf("ContainsHandoffMarker(%q) = %v, want %v", tt.reply, got, tt.want)
			}
		})
	}
}

func TestLocalizedRepliesFallBackToEnglish(t *testing.T) {
	if got := FallbackReply("fr"); got != fallbackReplies["en"] {
		t.Errorf("FallbackReply(fr) = %q, want english fallback", got)
	}
	if got := HandoffReply("es"); got != handoffReplies["es"] {
		t.Errorf("HandoffReply(es) = %q, want spanish handoff", got)
	}
}
