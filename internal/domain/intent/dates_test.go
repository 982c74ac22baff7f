package intent

import (
	"testing"
	"time"
)

func TestExtractDateRange(t *testing.T) {
	tests := []struct {
		name   string
		locale string
		text   string
		ok     bool
		from   string // "01-02" month-day; year is resolved relative to now
		to     string
	}{
		{
			name: "month day to month day",
			text: "rooms available march 10 to march 12",
			ok:   true,
			from: "03-10",
			to:   "03-12",
		},
		{
			name: "month day dash day",
			text: "march 10 - 12 please",
			ok:   true,
			from: "03-10",
			to:   "03-12",
		},
		{
			name:   "spanish day de month al day",
			locale: "es",
			text:   "10 de marzo al 12 de marzo",
			ok:     true,
			from:   "03-10",
			to:     "03-12",
		},
		{
			name:   "numeric day/month spanish order",
			locale: "es",
			text:   "10/03 - 12/03",
			ok:     true,
			from:   "03-10",
			to:     "03-12",
		},
		{
			name:   "numeric month/day english order",
			locale: "en",
			text:   "3/10 to 3/12",
			ok:     true,
			from:   "03-10",
			to:     "03-12",
		},
		{
			name: "reversed range rejected",
			text: "march 12 to march 10",
			ok:   false,
		},
		{
			name: "unknown month rejected",
			text: "florp 10 to florp 12",
			ok:   false,
		},
		{
			name: "day out of range rejected",
			text: "april 28 to april 31",
			ok:   false,
		},
		{
			name: "no dates at all",
			text: "do you have any rooms",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locale := tt.locale
			if locale == "" {
				locale = "en"
			}
			got, ok := ExtractDateRange(tt.text, locale)
			if ok != tt.ok {
				t.Fatalf("ExtractDateRange(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if !ok {
				return
			}
			if md := got.From.Format("01-02"); md != tt.from {
				t.Errorf("from = %s, want %s", md, tt.from)
			}
			if md := got.To.Format("01-02"); md != tt.to {
				t.Errorf("to = %s, want %s", md, tt.to)
			}
			if got.From.Before(time.Now().Truncate(24 * time.Hour)) {
				t.Errorf("resolved range %s is in the past", got)
			}
		})
	}
}

func TestExtractDateRangeExplicitYear(t *testing.T) {
	got, ok := ExtractDateRange("10/03/2031 to 12/03/2031", "es")
	if !ok {
		t.Fatal("expected a range")
	}
	want := DateRange{
		From: time.Date(2031, time.March, 10, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2031, time.March, 12, 0, 0, 0, 0, time.UTC),
	}
	if !got.From.Equal(want.From) || !got.To.Equal(want.To) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestDateRangeString(t *testing.T) {
	r := DateRange{
		From: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC),
	}
	if got, want := r.String(), "2025-03-10 to 2025-03-12"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
