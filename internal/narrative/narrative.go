// Package narrative renders the natural-language explanation attached to an
// alert. Each alert type has a fixed parameterized template; the detail
// payload is a tagged variant carrying exactly the fields its template
// needs, so a missing field is caught at render time for that one alert
// instead of failing the whole run.
package narrative

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Fallback is rendered for alert types without a template, including all
// custom scenarios.
const Fallback = "No narrative available for this alert type."

// RenderError reports a detail payload missing a field its template requires.
type RenderError struct {
	AlertType domain.AlertType
	Field     string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("narrative for %q: missing required field %s", e.AlertType, e.Field)
}

// Details is one alert type's narrative payload.
type Details interface {
	// AlertType names the template used to render the payload.
	AlertType() domain.AlertType

	// missing returns the first required field that is absent, or "".
	missing() string
}

// VolumeDetails feeds the High Transaction Volume template.
type VolumeDetails struct {
	CustomerID       string
	TransactionCount int
	Date             string
}

func (VolumeDetails) AlertType() domain.AlertType { return domain.AlertHighVolume }

func (d VolumeDetails) missing() string {
	switch {
	case d.CustomerID == "":
		return "CustomerID"
	case d.TransactionCount == 0:
		return "TransactionCount"
	case d.Date == "":
		return "Date"
	}
	return ""
}

// AmountDetails feeds the High Transaction Amount template.
type AmountDetails struct {
	CustomerID string
	Amount     decimal.Decimal
	Currency   string
	Date       string
}

func (AmountDetails) AlertType() domain.AlertType { return domain.AlertHighAmount }

func (d AmountDetails) missing() string {
	switch {
	case d.CustomerID == "":
		return "CustomerID"
	case d.Currency == "":
		return "Currency"
	case d.Date == "":
		return "Date"
	}
	return ""
}

// InternationalDetails feeds the Frequent International Transactions template.
type InternationalDetails struct {
	CustomerID         string
	InternationalCount int
	ReceiverCountry    string
}

func (InternationalDetails) AlertType() domain.AlertType {
	return domain.AlertFrequentInternational
}

func (d InternationalDetails) missing() string {
	switch {
	case d.CustomerID == "":
		return "CustomerID"
	case d.InternationalCount == 0:
		return "InternationalCount"
	case d.ReceiverCountry == "":
		return "ReceiverCountry"
	}
	return ""
}

// RapidDetails feeds the Rapid Consecutive Transactions template.
type RapidDetails struct {
	CustomerID       string
	TransactionCount int
	TimeInterval     int // minutes
	Date             string
}

func (RapidDetails) AlertType() domain.AlertType { return domain.AlertRapidConsecutive }

func (d RapidDetails) missing() string {
	switch {
	case d.CustomerID == "":
		return "CustomerID"
	case d.TransactionCount == 0:
		return "TransactionCount"
	case d.TimeInterval == 0:
		return "TimeInterval"
	case d.Date == "":
		return "Date"
	}
	return ""
}

// LocationDetails feeds the Location Mismatch template.
type LocationDetails struct {
	CustomerID   string
	Location1    string
	Location2    string
	TimeInterval int // hours
}

func (LocationDetails) AlertType() domain.AlertType { return domain.AlertLocationMismatch }

func (d LocationDetails) missing() string {
	switch {
	case d.CustomerID == "":
		return "CustomerID"
	case d.Location1 == "":
		return "Location1"
	case d.Location2 == "":
		return "Location2"
	case d.TimeInterval == 0:
		return "TimeInterval"
	}
	return ""
}

// templates is the fixed table mapping alert types to their narrative text.
// Unusual Transaction Patterns deliberately has no template and renders the
// fallback, matching the published scenario set.
var templates = map[domain.AlertType]*template.Template{
	domain.AlertHighVolume: mustParse("high_volume",
		"Customer {{.CustomerID}} conducted {{.TransactionCount}} transactions on {{.Date}}, "+
			"which exceeds the typical volume threshold. This activity could indicate structuring to avoid detection."),
	domain.AlertHighAmount: mustParse("high_amount",
		"A single transaction of {{.Amount}} {{.Currency}} was flagged for Customer {{.CustomerID}} on {{.Date}}. "+
			"This amount exceeds the high-value threshold and warrants further investigation."),
	domain.AlertFrequentInternational: mustParse("frequent_international",
		"Customer {{.CustomerID}} conducted {{.InternationalCount}} international transactions to {{.ReceiverCountry}} "+
			"within a short period. This frequent cross-border activity may indicate potential involvement in money "+
			"laundering or evasion of currency controls."),
	domain.AlertRapidConsecutive: mustParse("rapid_consecutive",
		"Customer {{.CustomerID}} initiated {{.TransactionCount}} transactions within {{.TimeInterval}} minutes on {{.Date}}. "+
			"Rapid consecutive transactions may suggest structuring or smurfing activity."),
	domain.AlertLocationMismatch: mustParse("location_mismatch",
		"Customer {{.CustomerID}} conducted transactions from different locations ({{.Location1}} and {{.Location2}}) "+
			"within {{.TimeInterval}} hours. This discrepancy may indicate possible account compromise or unauthorized access."),
}

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

// Render produces the narrative for the given detail payload. A nil payload
// or one whose type has no template renders the fallback string. A payload
// missing a required field returns a *RenderError; the caller attaches it to
// the alert and continues with the rest of the batch.
func Render(d Details) (string, error) {
	if d == nil {
		return Fallback, nil
	}

	tmpl, ok := templates[d.AlertType()]
	if !ok {
		return Fallback, nil
	}

	if field := d.missing(); field != "" {
		return "", &RenderError{AlertType: d.AlertType(), Field: field}
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, d); err != nil {
		return "", fmt.Errorf("narrative for %q: %w", d.AlertType(), err)
	}
	return sb.String(), nil
}
