package narrative

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRenderVolume(t *testing.T) {
	got, err := Render(VolumeDetails{
		CustomerID:       "C1",
		TransactionCount: 12,
		Date:             "2024-01-05",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Customer C1 conducted 12 transactions on 2024-01-05, which exceeds the typical volume threshold. " +
		"This activity could indicate structuring to avoid detection."
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestRenderAmount(t *testing.T) {
	got, err := Render(AmountDetails{
		CustomerID: "C9",
		Amount:     decimal.RequireFromString("15000.50"),
		Currency:   "GBP",
		Date:       "2024-02-11",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "15000.5 GBP") && !strings.Contains(got, "15000.50 GBP") {
		t.Errorf("narrative missing amount and currency: %q", got)
	}
	if !strings.Contains(got, "Customer C9") {
		t.Errorf("narrative missing customer: %q", got)
	}
}

func TestRenderRapidAndLocation(t *testing.T) {
	rapid, err := Render(RapidDetails{CustomerID: "C2", TransactionCount: 6, TimeInterval: 30, Date: "2024-04-01"})
	if err != nil {
		t.Fatalf("rapid: unexpected error: %v", err)
	}
	if !strings.Contains(rapid, "6 transactions within 30 minutes on 2024-04-01") {
		t.Errorf("rapid narrative malformed: %q", rapid)
	}

	loc, err := Render(LocationDetails{
		CustomerID:   "C3",
		Location1:    "51.5, -0.12",
		Location2:    "40.7, -74",
		TimeInterval: 6,
	})
	if err != nil {
		t.Fatalf("location: unexpected error: %v", err)
	}
	if !strings.Contains(loc, "(51.5, -0.12 and 40.7, -74)") {
		t.Errorf("location narrative malformed: %q", loc)
	}
}

func TestRenderFallback(t *testing.T) {
	// Unusual Transaction Patterns has no template by design.
	got, err := Render(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Fallback {
		t.Errorf("got %q, want fallback", got)
	}
}

func TestRenderMissingField(t *testing.T) {
	tests := []struct {
		name      string
		details   Details
		wantField string
	}{
		{"volume without date", VolumeDetails{CustomerID: "C1", TransactionCount: 4}, "Date"},
		{"amount without currency", AmountDetails{CustomerID: "C1", Date: "2024-01-05"}, "Currency"},
		{"international without country", InternationalDetails{CustomerID: "C1", InternationalCount: 3}, "ReceiverCountry"},
		{"location without second point", LocationDetails{CustomerID: "C1", Location1: "51.5, -0.12", TimeInterval: 6}, "Location2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(tt.details)
			var renderErr *RenderError
			if !errors.As(err, &renderErr) {
				t.Fatalf("expected *RenderError, got %v", err)
			}
			if renderErr.Field != tt.wantField {
				t.Errorf("missing field = %s, want %s", renderErr.Field, tt.wantField)
			}
			if renderErr.AlertType != tt.details.AlertType() {
				t.Errorf("alert type = %s, want %s", renderErr.AlertType, tt.details.AlertType())
			}
		})
	}
}
