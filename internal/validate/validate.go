// Package validate holds the pure field validators shared by the step
// controllers: date validation with a per-field message catalog, word-count
// limits and sputum sample completeness checks.
package validate

import (
	"fmt"
	"strings"

	"petscreen/internal/domain"
)

// FieldError ties a validation message to the form control it belongs to,
// so error summaries can link to the offending field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors collects per-field validation failures in display order.
type Errors []FieldError

func (es *Errors) Add(field, message string) {
	*es = append(*es, FieldError{Field: field, Message: message})
}

func (es Errors) Has(field string) bool {
	for _, e := range es {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Date contexts. Each selects the human-readable messages and the
// past/future rule for one date field.
const (
	CtxCompletionDate     = "completionDate"
	CtxDateOfBirth        = "dateOfBirth"
	CtxPassportIssueDate  = "passportIssueDate"
	CtxPassportExpiryDate = "passportExpiryDate"
	CtxCertificateDate    = "certificateDate"
	CtxSputumSampleDate   = "sputumSampleDate"
	CtxDateXrayTaken      = "dateXrayTaken"
)

type dateMessages struct {
	empty        string
	invalidChar  string
	invalidDate  string
	mustBePast   string
	mustBeFuture string
}

var dateMessageCatalog = map[string]dateMessages{
	CtxCompletionDate: {
		empty:       "The date the medical screening took place must include a day, month and year",
		invalidChar: "The date the medical screening took place day, month and year must contain only numbers",
		invalidDate: "The date the medical screening took place must be a real date",
		mustBePast:  "The date the medical screening took place must be today or in the past",
	},
	CtxDateOfBirth: {
		empty:       "Date of birth must include a day, month and year",
		invalidChar: "Date of birth day, month and year must contain only numbers",
		invalidDate: "Date of birth must be a real date",
		mustBePast:  "Date of birth date must be in the past",
	},
	CtxPassportIssueDate: {
		empty:       "Passport issue date must include a day, month and year",
		invalidChar: "Passport issue day, month and year must contain only numbers",
		invalidDate: "Passport issue date must be a real date",
		mustBePast:  "Passport issue date must be today or in the past",
	},
	CtxPassportExpiryDate: {
		empty:        "Passport expiry date must include a day, month and year",
		invalidChar:  "Passport expiry day, month and year must contain only numbers",
		invalidDate:  "Passport expiry date must be a real date",
		mustBeFuture: "Passport expiry date must be in the future",
	},
	CtxCertificateDate: {
		empty:       "TB clearance certificate date must include a day, month and year",
		invalidChar: "TB clearance certificate day, month and year must contain only numbers",
		invalidDate: "TB clearance certificate date must be a real date",
		mustBePast:  "TB clearance certificate date must be today or in the past",
	},
	CtxSputumSampleDate: {
		empty:       "Sputum sample {sampleNumber} date must include a day, month and year",
		invalidChar: "Sputum sample {sampleNumber} day, month and year must contain only numbers",
		invalidDate: "Sputum sample {sampleNumber} date must be a real date",
		mustBePast:  "Sputum sample {sampleNumber} date must be today or in the past",
	},
	CtxDateXrayTaken: {
		empty:       "Enter the date the X-ray was taken",
		invalidChar: "The date the X-ray was taken day, month and year must contain only numbers",
		invalidDate: "The date the X-ray was taken must be a real date",
		mustBePast:  "The date the X-ray was taken must be today or in the past",
	},
}

var dateEntryNames = map[string]string{
	CtxCompletionDate:     "The date the medical screening took place",
	CtxDateOfBirth:        "Date of birth",
	CtxPassportIssueDate:  "Passport issue date",
	CtxPassportExpiryDate: "Passport expiry date",
	CtxCertificateDate:    "TB clearance certificate date",
	CtxSputumSampleDate:   "Sputum sample {sampleNumber} date",
	CtxDateXrayTaken:      "The date the X-ray was taken",
}

var dateMustBeInPast = map[string]bool{
	CtxCompletionDate:    true,
	CtxDateOfBirth:       true,
	CtxPassportIssueDate: true,
	CtxCertificateDate:   true,
	CtxSputumSampleDate:  true,
	CtxDateXrayTaken:     true,
}

var dateMustBeInFuture = map[string]bool{
	CtxPassportExpiryDate: true,
}

// Date checks one day/month/year triplet against the rules for the given
// context and returns the failure message, or "" when the value is valid.
// An all-empty value is valid; optionality is the caller's decision.
// today anchors the past/future checks.
func Date(value domain.DateValue, context string, today domain.DateValue) string {
	msgs, ok := dateMessageCatalog[context]
	if !ok {
		msgs = dateMessageCatalog[CtxCompletionDate]
	}

	missing := missingParts(value)
	if len(missing) == 3 {
		return ""
	}
	if len(missing) > 0 {
		return missingFieldsMessage(context, missing)
	}
	if hasInvalidCharacters(value) {
		return msgs.invalidChar
	}
	day, month, year, _ := value.Numeric()
	if !isRealDate(day, month, year) {
		return msgs.invalidDate
	}
	if dateMustBeInPast[context] && !onOrBefore(value, today) {
		return msgs.mustBePast
	}
	if dateMustBeInFuture[context] && onOrBefore(value, today) {
		return msgs.mustBeFuture
	}
	return ""
}

// RequiredDate behaves like Date but also rejects an all-empty value with
// the context's empty-field message.
func RequiredDate(value domain.DateValue, context string, today domain.DateValue) string {
	if value.IsEmpty() {
		msgs, ok := dateMessageCatalog[context]
		if !ok {
			msgs = dateMessageCatalog[CtxCompletionDate]
		}
		return msgs.empty
	}
	return Date(value, context, today)
}

// SampleDate validates a sputum sample date and substitutes the sample
// number into the returned message.
func SampleDate(value domain.DateValue, sampleNumber int, today domain.DateValue) string {
	msg := Date(value, CtxSputumSampleDate, today)
	return SubstituteSampleNumber(msg, sampleNumber)
}

// SubstituteSampleNumber replaces the {sampleNumber} token in a catalog
// message.
func SubstituteSampleNumber(message string, sampleNumber int) string {
	return strings.ReplaceAll(message, "{sampleNumber}", fmt.Sprintf("%d", sampleNumber))
}

func missingParts(value domain.DateValue) []string {
	var missing []string
	if strings.TrimSpace(value.Day) == "" {
		missing = append(missing, "day")
	}
	if strings.TrimSpace(value.Month) == "" {
		missing = append(missing, "month")
	}
	if strings.TrimSpace(value.Year) == "" {
		missing = append(missing, "year")
	}
	return missing
}

func missingFieldsMessage(context string, missing []string) string {
	name, ok := dateEntryNames[context]
	if !ok {
		name = dateEntryNames[CtxCompletionDate]
	}
	text := missing[0]
	if len(missing) == 2 {
		text = missing[0] + " and " + missing[1]
	}
	return fmt.Sprintf("%s must include a %s", name, text)
}

func hasInvalidCharacters(value domain.DateValue) bool {
	return !numericOnly(value.Day) || !numericOnly(value.Month) || !numericOnly(value.Year)
}

func numericOnly(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isRealDate bounds the year to (1900, 2100) exclusive and rejects day
// and month combinations that do not occur on the calendar.
func isRealDate(day, month, year int) bool {
	if year <= 1900 || year >= 2100 {
		return false
	}
	if month < 1 || month > 12 {
		return false
	}
	if day < 1 || day > domain.DaysInMonth(month, year) {
		return false
	}
	return true
}

// onOrBefore compares two complete dates at day granularity.
func onOrBefore(value, today domain.DateValue) bool {
	vt, ok := value.Time()
	if !ok {
		return false
	}
	tt, ok := today.Time()
	if !ok {
		return false
	}
	return !vt.After(tt)
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// WordsRemaining returns max minus the current word count; negative when
// over the limit.
func WordsRemaining(text string, max int) int {
	return max - WordCount(text)
}

// WordCountMessage renders the hint shown under a bounded text area.
// Submission is rejected only when remaining is negative.
func WordCountMessage(remaining int) string {
	if remaining < 0 {
		over := -remaining
		if over == 1 {
			return "1 word too many"
		}
		return fmt.Sprintf("%d words too many", over)
	}
	if remaining == 1 {
		return "1 word remaining"
	}
	return fmt.Sprintf("%d words remaining", remaining)
}

// SampleFilled reports whether a sample's collection facts are complete:
// the date fully set and a collection method chosen.
func SampleFilled(date domain.DateValue, method domain.CollectionMethod) bool {
	return date.IsComplete() && method != domain.MethodUnset
}

// Control ids for the sputum form, used as FieldError.Field values.
func SampleDateControl(sampleNumber int) string {
	return fmt.Sprintf("date-sample-%d-taken", sampleNumber)
}

func SampleMethodControl(sampleNumber int) string {
	return fmt.Sprintf("collection-method-sample-%d", sampleNumber)
}

func SampleSmearControl(sampleNumber int) string {
	return fmt.Sprintf("sample%d-smear-result", sampleNumber)
}

func SampleCultureControl(sampleNumber int) string {
	return fmt.Sprintf("sample%d-culture-result", sampleNumber)
}

// Required-field messages for the sputum workflow.
func EnterSampleDateMessage(sampleNumber int) string {
	return fmt.Sprintf("Enter the date sample %d was taken on", sampleNumber)
}

func EnterSampleMethodMessage(sampleNumber int) string {
	return fmt.Sprintf("Enter Sputum sample %d collection method", sampleNumber)
}

const (
	SmearResultRequiredMessage   = "Select result of smear test"
	CultureResultRequiredMessage = "Select result of culture test"
)
