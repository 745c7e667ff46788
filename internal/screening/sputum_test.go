package screening_test

import (
	"errors"
	"testing"

	"petscreen/internal/domain"
	"petscreen/internal/repo"
	"petscreen/internal/screening"
	"petscreen/internal/validate"
)

func sampleInput(d, m, y string, method domain.CollectionMethod) screening.SampleCollectionInput {
	return screening.SampleCollectionInput{
		DateOfSample:     domain.DateValue{Day: d, Month: m, Year: y},
		CollectionMethod: method,
	}
}

func fieldSet(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *screening.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	set := map[string]string{}
	for _, f := range verr.Fields {
		set[f.Field] = f.Message
	}
	return set
}

func TestSaveProgressAllSamplesEmptyFails(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SaveCollection(env.Ctx, env.AppID, "tester", screening.IntentSaveProgress, screening.CollectionInput{})
	fields := fieldSet(t, err)
	if len(fields) != 6 {
		t.Fatalf("expected 3 error pairs, got %d: %v", len(fields), fields)
	}
	for n := 1; n <= 3; n++ {
		if fields[validate.SampleDateControl(n)] == "" {
			t.Errorf("missing date error for sample %d", n)
		}
		if fields[validate.SampleMethodControl(n)] == "" {
			t.Errorf("missing method error for sample %d", n)
		}
	}
}

func TestSaveProgressOneFilledSampleSucceeds(t *testing.T) {
	env := newTestEnv(t)
	in := screening.CollectionInput{}
	in.Samples[0] = sampleInput("3", "6", "2025", domain.CoughedUp)

	route, err := env.Engine.SaveCollection(env.Ctx, env.AppID, "tester", screening.IntentSaveProgress, in)
	if err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if route != screening.RouteCheckSputum {
		t.Fatalf("route = %q", route)
	}

	app := env.App(t)
	if app.Sputum.Status != domain.InProgress {
		t.Fatalf("status = %q", app.Sputum.Status)
	}
	if got := app.Sputum.Sample1.Collection; !got.Filled() || got.SubmittedToDatabase {
		t.Fatalf("sample1 should be staged unsubmitted, got %+v", got)
	}
	if !app.Sputum.Sample2.Empty() || !app.Sputum.Sample3.Empty() {
		t.Fatal("untouched samples should stay empty")
	}
}

func TestContinueToResultsRequiresEverySample(t *testing.T) {
	env := newTestEnv(t)
	in := screening.CollectionInput{}
	in.Samples[0] = sampleInput("3", "6", "2025", domain.Induced)
	in.Samples[1] = sampleInput("4", "6", "2025", domain.MethodUnset) // method missing

	_, err := env.Engine.SaveCollection(env.Ctx, env.AppID, "tester", screening.IntentContinueToResults, in)
	fields := fieldSet(t, err)
	if _, ok := fields[validate.SampleDateControl(1)]; ok {
		t.Error("sample 1 is complete and should not error")
	}
	if fields[validate.SampleMethodControl(2)] != "Enter Sputum sample 2 collection method" {
		t.Errorf("sample 2 method error = %q", fields[validate.SampleMethodControl(2)])
	}
	if fields[validate.SampleDateControl(3)] != "Enter the date sample 3 was taken on" {
		t.Errorf("sample 3 date error = %q", fields[validate.SampleDateControl(3)])
	}
	if fields[validate.SampleMethodControl(3)] == "" {
		t.Error("sample 3 should carry a method error")
	}
}

func TestCollectionRejectsImpossibleDate(t *testing.T) {
	env := newTestEnv(t)
	in := screening.CollectionInput{}
	in.Samples[0] = sampleInput("31", "4", "2024", domain.Induced)

	_, err := env.Engine.SaveCollection(env.Ctx, env.AppID, "tester", screening.IntentSaveProgress, in)
	fields := fieldSet(t, err)
	if got := fields[validate.SampleDateControl(1)]; got != "Sputum sample 1 date must be a real date" {
		t.Fatalf("got %q", got)
	}
}

func TestCollectionRejectsFutureDate(t *testing.T) {
	env := newTestEnv(t)
	in := screening.CollectionInput{}
	in.Samples[0] = sampleInput("16", "6", "2025", domain.Induced) // Now is frozen at 15 June 2025

	_, err := env.Engine.SaveCollection(env.Ctx, env.AppID, "tester", screening.IntentSaveProgress, in)
	fields := fieldSet(t, err)
	if got := fields[validate.SampleDateControl(1)]; got != "Sputum sample 1 date must be today or in the past" {
		t.Fatalf("got %q", got)
	}
}

func stageAllCollections(t *testing.T, env testEnv) {
	t.Helper()
	in := screening.CollectionInput{}
	in.Samples[0] = sampleInput("1", "6", "2025", domain.CoughedUp)
	in.Samples[1] = sampleInput("2", "6", "2025", domain.Induced)
	in.Samples[2] = sampleInput("3", "6", "2025", domain.GastricLavage)
	if _, err := env.Engine.SaveCollection(env.Ctx, env.AppID, "tester", screening.IntentContinueToResults, in); err != nil {
		t.Fatalf("stage collections: %v", err)
	}
}

func TestResultsRequireAtLeastOneValueAcrossInPlaySamples(t *testing.T) {
	env := newTestEnv(t)
	stageAllCollections(t, env)

	_, err := env.Engine.SaveResults(env.Ctx, env.AppID, "tester", screening.ResultsInput{})
	fields := fieldSet(t, err)
	if len(fields) != 6 {
		t.Fatalf("expected errors on all editable fields, got %v", fields)
	}
	if fields[validate.SampleSmearControl(1)] != "Select result of smear test" {
		t.Errorf("smear message = %q", fields[validate.SampleSmearControl(1)])
	}
	if fields[validate.SampleCultureControl(2)] != "Select result of culture test" {
		t.Errorf("culture message = %q", fields[validate.SampleCultureControl(2)])
	}
}

func TestResultsIgnoreSamplesWithoutCollectionDate(t *testing.T) {
	env := newTestEnv(t)
	in := screening.CollectionInput{}
	in.Samples[0] = sampleInput("1", "6", "2025", domain.CoughedUp)
	if _, err := env.Engine.SaveCollection(env.Ctx, env.AppID, "tester", screening.IntentSaveProgress, in); err != nil {
		t.Fatalf("stage collection: %v", err)
	}

	_, err := env.Engine.SaveResults(env.Ctx, env.AppID, "tester", screening.ResultsInput{})
	fields := fieldSet(t, err)
	for n := 2; n <= 3; n++ {
		if _, ok := fields[validate.SampleSmearControl(n)]; ok {
			t.Errorf("sample %d has no collection date and should be excluded", n)
		}
	}
	if len(fields) != 2 {
		t.Fatalf("expected errors only for sample 1, got %v", fields)
	}
}

func TestResultsStageOnlyEnteredValues(t *testing.T) {
	env := newTestEnv(t)
	stageAllCollections(t, env)

	in := screening.ResultsInput{}
	in.Samples[0] = screening.SampleResultInput{Smear: domain.Negative}
	route, err := env.Engine.SaveResults(env.Ctx, env.AppID, "tester", in)
	if err != nil {
		t.Fatalf("save results: %v", err)
	}
	if route != screening.RouteCheckSputum {
		t.Fatalf("route = %q", route)
	}

	app := env.App(t)
	if app.Sputum.Sample1.SmearResults.Result != domain.Negative {
		t.Fatalf("smear = %q", app.Sputum.Sample1.SmearResults.Result)
	}
	if app.Sputum.Sample1.CultureResults.Result.Entered() {
		t.Fatal("culture should remain not yet entered")
	}
	if app.Sputum.Sample1.SmearResults.SubmittedToDatabase {
		t.Fatal("staged result must not be marked submitted")
	}
}

func TestSubmitMarksFieldsAndBumpsVersion(t *testing.T) {
	env := newTestEnv(t)
	stageAllCollections(t, env)

	out, err := env.Engine.Submit(env.Ctx, env.AppID, "tester", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.NoOp {
		t.Fatal("staged data should not be a no-op")
	}
	if out.Version != 1 {
		t.Fatalf("version = %d", out.Version)
	}
	if out.Status != domain.InProgress {
		t.Fatalf("status = %q", out.Status)
	}
	if out.Route != screening.RouteConfirmation {
		t.Fatalf("route = %q", out.Route)
	}

	app := env.App(t)
	for i, s := range []domain.SputumSample{app.Sputum.Sample1, app.Sputum.Sample2, app.Sputum.Sample3} {
		if !s.Collection.SubmittedToDatabase {
			t.Errorf("sample %d collection not marked submitted", i+1)
		}
		if s.LastUpdatedDate.Wire() != "2025-06-15" {
			t.Errorf("sample %d dateUpdated = %q", i+1, s.LastUpdatedDate.Wire())
		}
	}
	if app.Sputum.Version == nil || *app.Sputum.Version != 1 {
		t.Fatalf("rehydrated version = %v", app.Sputum.Version)
	}
}

func TestSubmitBuildsPartialPayload(t *testing.T) {
	env := newTestEnv(t)
	stageAllCollections(t, env)

	// First submission persists the three collections plus sample1's culture.
	in := screening.ResultsInput{}
	in.Samples[0] = screening.SampleResultInput{Culture: domain.Negative}
	if _, err := env.Engine.SaveResults(env.Ctx, env.AppID, "tester", in); err != nil {
		t.Fatalf("stage culture: %v", err)
	}
	first, err := env.Engine.Submit(env.Ctx, env.AppID, "tester", nil)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// A new smear for sample1 is the only unsubmitted fact.
	in = screening.ResultsInput{}
	in.Samples[0] = screening.SampleResultInput{Smear: domain.Positive}
	if _, err := env.Engine.SaveResults(env.Ctx, env.AppID, "tester", in); err != nil {
		t.Fatalf("stage smear: %v", err)
	}
	out, err := env.Engine.Submit(env.Ctx, env.AppID, "tester", &first.Version)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if len(out.Submitted) != 1 {
		t.Fatalf("payload should contain only sample1, got %v", out.Submitted)
	}
	fields := out.Submitted["sample1"]
	want := map[string]bool{"smearResult": true, "dateUpdated": true}
	if len(fields) != len(want) {
		t.Fatalf("sample1 fields = %v", fields)
	}
	for _, f := range fields {
		if !want[f] {
			t.Fatalf("unexpected field %q in payload", f)
		}
	}
	if out.Version != first.Version+1 {
		t.Fatalf("version = %d", out.Version)
	}
}

func TestSubmitWithNothingNewIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	stageAllCollections(t, env)
	first, err := env.Engine.Submit(env.Ctx, env.AppID, "tester", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	out, err := env.Engine.Submit(env.Ctx, env.AppID, "tester", &first.Version)
	if err != nil {
		t.Fatalf("no-op submit: %v", err)
	}
	if !out.NoOp {
		t.Fatal("expected a no-op")
	}
	if out.Version != first.Version {
		t.Fatalf("version must not change on no-op, got %d", out.Version)
	}
	if out.Route != screening.RouteConfirmation {
		t.Fatalf("route = %q", out.Route)
	}
}

func TestSubmitRejectsStaleVersion(t *testing.T) {
	env := newTestEnv(t)
	stageAllCollections(t, env)
	if _, err := env.Engine.Submit(env.Ctx, env.AppID, "tester", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	in := screening.ResultsInput{}
	in.Samples[1] = screening.SampleResultInput{Smear: domain.Negative}
	if _, err := env.Engine.SaveResults(env.Ctx, env.AppID, "tester", in); err != nil {
		t.Fatalf("stage smear: %v", err)
	}
	stale := int64(0)
	_, err := env.Engine.Submit(env.Ctx, env.AppID, "tester", &stale)
	if !errors.Is(err, repo.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestSubmitDerivesCompleteWhenAllSamplesFilled(t *testing.T) {
	env := newTestEnv(t)
	stageAllCollections(t, env)
	in := screening.ResultsInput{}
	for i := range in.Samples {
		in.Samples[i] = screening.SampleResultInput{Smear: domain.Negative, Culture: domain.Negative}
	}
	if _, err := env.Engine.SaveResults(env.Ctx, env.AppID, "tester", in); err != nil {
		t.Fatalf("stage results: %v", err)
	}

	out, err := env.Engine.Submit(env.Ctx, env.AppID, "tester", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Status != domain.Complete {
		t.Fatalf("status = %q", out.Status)
	}
}

func TestSubmittedCollectionIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	stageAllCollections(t, env)
	if _, err := env.Engine.Submit(env.Ctx, env.AppID, "tester", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	in := screening.CollectionInput{}
	in.Samples[0] = sampleInput("9", "6", "2025", domain.MethodNotKnown)
	if _, err := env.Engine.SaveCollection(env.Ctx, env.AppID, "tester", screening.IntentSaveProgress, in); err != nil {
		t.Fatalf("save over submitted sample: %v", err)
	}

	app := env.App(t)
	got := app.Sputum.Sample1.Collection
	if got.DateOfSample.Wire() != "2025-06-01" || got.CollectionMethod != domain.CoughedUp {
		t.Fatalf("submitted collection was edited: %+v", got)
	}
	if !got.SubmittedToDatabase {
		t.Fatal("submitted flag must survive")
	}
}

func TestSputumResultsAreReadOnlyOnceSubmitted(t *testing.T) {
	env := newTestEnv(t)
	stageAllCollections(t, env)
	in := screening.ResultsInput{}
	in.Samples[0] = screening.SampleResultInput{Smear: domain.Negative}
	if _, err := env.Engine.SaveResults(env.Ctx, env.AppID, "tester", in); err != nil {
		t.Fatalf("stage smear: %v", err)
	}
	if _, err := env.Engine.Submit(env.Ctx, env.AppID, "tester", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	in = screening.ResultsInput{}
	in.Samples[0] = screening.SampleResultInput{Smear: domain.Positive}
	if _, err := env.Engine.SaveResults(env.Ctx, env.AppID, "tester", in); err != nil {
		t.Fatalf("save over submitted result: %v", err)
	}
	app := env.App(t)
	if app.Sputum.Sample1.SmearResults.Result != domain.Negative {
		t.Fatalf("submitted smear was edited: %q", app.Sputum.Sample1.SmearResults.Result)
	}
}
