package validate

import (
	"testing"

	"petscreen/internal/domain"
)

var testToday = domain.DateValue{Day: "15", Month: "06", Year: "2025"}

func date(d, m, y string) domain.DateValue {
	return domain.DateValue{Day: d, Month: m, Year: y}
}

func TestDateAcceptsEmptyValue(t *testing.T) {
	if msg := Date(date("", "", ""), CtxCompletionDate, testToday); msg != "" {
		t.Fatalf("empty date should be valid, got %q", msg)
	}
}

func TestRequiredDateRejectsEmptyValue(t *testing.T) {
	msg := RequiredDate(date("", "", ""), CtxCompletionDate, testToday)
	want := "The date the medical screening took place must include a day, month and year"
	if msg != want {
		t.Fatalf("got %q want %q", msg, want)
	}
}

func TestDatePartialValueListsMissingParts(t *testing.T) {
	cases := []struct {
		value domain.DateValue
		want  string
	}{
		{date("12", "", ""), "Date of birth must include a month and year"},
		{date("", "3", ""), "Date of birth must include a day and year"},
		{date("", "", "1990"), "Date of birth must include a day and month"},
		{date("12", "3", ""), "Date of birth must include a year"},
		{date("", "3", "1990"), "Date of birth must include a day"},
	}
	for _, tc := range cases {
		if msg := Date(tc.value, CtxDateOfBirth, testToday); msg != tc.want {
			t.Errorf("Date(%+v) = %q, want %q", tc.value, msg, tc.want)
		}
	}
}

func TestDateRejectsNonNumericInput(t *testing.T) {
	msg := Date(date("1x", "3", "2024"), CtxCompletionDate, testToday)
	want := "The date the medical screening took place day, month and year must contain only numbers"
	if msg != want {
		t.Fatalf("got %q want %q", msg, want)
	}
}

func TestDateCalendarRules(t *testing.T) {
	invalid := "The date the medical screening took place must be a real date"
	cases := []struct {
		value domain.DateValue
		want  string
	}{
		{date("31", "4", "2024"), invalid}, // April has 30 days
		{date("30", "2", "2024"), invalid}, // February never has 30
		{date("29", "2", "2023"), invalid}, // not a leap year
		{date("29", "2", "2024"), ""},      // leap year
		{date("1", "13", "2024"), invalid}, // month out of range
		{date("32", "1", "2024"), invalid}, // day out of range
		{date("1", "1", "1900"), invalid},  // year lower bound exclusive
		{date("1", "1", "2100"), invalid},  // year upper bound exclusive
		{date("31", "12", "2024"), ""},
	}
	for _, tc := range cases {
		if msg := Date(tc.value, CtxCompletionDate, testToday); msg != tc.want {
			t.Errorf("Date(%+v) = %q, want %q", tc.value, msg, tc.want)
		}
	}
}

func TestDatePastAndFutureContexts(t *testing.T) {
	tomorrow := date("16", "6", "2025")
	yesterday := date("14", "6", "2025")

	if msg := Date(tomorrow, CtxCompletionDate, testToday); msg != "The date the medical screening took place must be today or in the past" {
		t.Fatalf("future completion date: got %q", msg)
	}
	if msg := Date(testToday, CtxCompletionDate, testToday); msg != "" {
		t.Fatalf("today should satisfy a past context, got %q", msg)
	}
	if msg := Date(yesterday, CtxPassportExpiryDate, testToday); msg != "Passport expiry date must be in the future" {
		t.Fatalf("past expiry date: got %q", msg)
	}
	if msg := Date(tomorrow, CtxPassportExpiryDate, testToday); msg != "" {
		t.Fatalf("future expiry date should be valid, got %q", msg)
	}
}

func TestSampleDateSubstitutesSampleNumber(t *testing.T) {
	msg := SampleDate(date("30", "2", "2024"), 2, testToday)
	if msg != "Sputum sample 2 date must be a real date" {
		t.Fatalf("got %q", msg)
	}
}

func TestWordsRemaining(t *testing.T) {
	if got := WordsRemaining("", 150); got != 150 {
		t.Fatalf("empty text: got %d", got)
	}
	if got := WordsRemaining("one  two\n three", 150); got != 147 {
		t.Fatalf("three words: got %d", got)
	}
	if got := WordsRemaining("a b c", 2); got != -1 {
		t.Fatalf("over limit: got %d", got)
	}
}

func TestWordCountMessage(t *testing.T) {
	cases := []struct {
		remaining int
		want      string
	}{
		{150, "150 words remaining"},
		{1, "1 word remaining"},
		{0, "0 words remaining"},
		{-1, "1 word too many"},
		{-4, "4 words too many"},
	}
	for _, tc := range cases {
		if got := WordCountMessage(tc.remaining); got != tc.want {
			t.Errorf("WordCountMessage(%d) = %q, want %q", tc.remaining, got, tc.want)
		}
	}
}

func TestSampleFilled(t *testing.T) {
	full := date("1", "2", "2024")
	if !SampleFilled(full, domain.Induced) {
		t.Fatal("complete date with method should be filled")
	}
	if SampleFilled(full, domain.MethodUnset) {
		t.Fatal("missing method should not be filled")
	}
	if SampleFilled(date("1", "2", ""), domain.Induced) {
		t.Fatal("partial date should not be filled")
	}
}

func TestControlIds(t *testing.T) {
	if got := SampleDateControl(1); got != "date-sample-1-taken" {
		t.Fatalf("got %q", got)
	}
	if got := SampleMethodControl(2); got != "collection-method-sample-2" {
		t.Fatalf("got %q", got)
	}
	if got := SampleSmearControl(3); got != "sample3-smear-result" {
		t.Fatalf("got %q", got)
	}
	if got := SampleCultureControl(1); got != "sample1-culture-result" {
		t.Fatalf("got %q", got)
	}
}

func TestRequiredDateUnknownContextFallsBack(t *testing.T) {
	msg := RequiredDate(date("", "", ""), "no-such-context", testToday)
	want := "The date the medical screening took place must include a day, month and year"
	if msg != want {
		t.Fatalf("got %q want %q", msg, want)
	}
}

func TestErrorsHas(t *testing.T) {
	var errs Errors
	errs.Add(SampleDateControl(2), EnterSampleDateMessage(2))
	if !errs.Has(SampleDateControl(2)) {
		t.Fatal("added field should be reported")
	}
	if errs.Has(SampleDateControl(1)) {
		t.Fatal("unrelated field should not be reported")
	}
}
