package screening

import (
	"context"
	"fmt"
	"time"

	"petscreen/internal/domain"
	"petscreen/internal/events"
	"petscreen/internal/repo"
	"petscreen/internal/validate"
)

// CollectionIntent says which button drove a collection submission. The two
// intents share one form but differ in how strictly they validate.
type CollectionIntent string

const (
	// IntentSaveProgress stores whatever complete samples exist and lets
	// the clinician come back later. It fails only when every sample is
	// completely empty.
	IntentSaveProgress CollectionIntent = "save-progress"
	// IntentContinueToResults moves on to results entry and therefore
	// requires every sample's collection facts to be complete.
	IntentContinueToResults CollectionIntent = "save-and-continue-to-results"
)

func (i CollectionIntent) Valid() bool {
	return i == IntentSaveProgress || i == IntentContinueToResults
}

// Client routes the steps hand back on success.
const (
	RouteCheckSputum  = "/check-sputum-sample-information"
	RouteEnterResults = "/enter-sputum-sample-results"
	RouteConfirmation = "/sputum-confirmation"
)

// SampleCollectionInput is one sample's collection facts as entered.
type SampleCollectionInput struct {
	DateOfSample     domain.DateValue
	CollectionMethod domain.CollectionMethod
}

func (in SampleCollectionInput) empty() bool {
	return in.DateOfSample.IsEmpty() && in.CollectionMethod == domain.MethodUnset
}

// CollectionInput carries all three samples of the collection form.
type CollectionInput struct {
	Samples [3]SampleCollectionInput
}

// SampleResultInput is one sample's smear and culture entries. Unset fields
// are left untouched.
type SampleResultInput struct {
	Smear   domain.TestResult
	Culture domain.TestResult
}

// ResultsInput carries all three samples of the results form.
type ResultsInput struct {
	Samples [3]SampleResultInput
}

// SaveCollection validates and stages the collection step. Staged samples
// keep submittedToDatabase=false until the summary submission; samples whose
// collection was already submitted are read-only and left untouched. On
// success it returns the client route for the chosen intent.
func (e Engine) SaveCollection(ctx context.Context, applicationID, actorID string, intent CollectionIntent, in CollectionInput) (string, error) {
	if !intent.Valid() {
		return "", fmt.Errorf("unknown intent %q", intent)
	}
	now := e.now().UTC().Format(time.RFC3339)
	today := e.today()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	agg, _, err := e.Repo.GetSputumTx(ctx, tx, applicationID)
	if err != nil {
		return "", err
	}
	samples := agg.Samples()

	var errs validate.Errors
	allEmpty := true
	for i, input := range in.Samples {
		if samples[i].Collection.SubmittedToDatabase || !input.empty() {
			allEmpty = false
		}
	}

	if allEmpty {
		// Nothing entered anywhere: both intents demand at least one sample.
		for n := 1; n <= 3; n++ {
			errs.Add(validate.SampleDateControl(n), validate.EnterSampleDateMessage(n))
			errs.Add(validate.SampleMethodControl(n), validate.EnterSampleMethodMessage(n))
		}
		return "", &ValidationError{Fields: errs}
	}

	for i, input := range in.Samples {
		n := i + 1
		if samples[i].Collection.SubmittedToDatabase {
			// Submitted collection facts are immutable; ignore any edits.
			continue
		}
		if input.empty() {
			if intent == IntentContinueToResults {
				errs.Add(validate.SampleDateControl(n), validate.EnterSampleDateMessage(n))
				errs.Add(validate.SampleMethodControl(n), validate.EnterSampleMethodMessage(n))
			}
			continue
		}
		if !input.CollectionMethod.Valid() {
			errs.Add(validate.SampleMethodControl(n), validate.EnterSampleMethodMessage(n))
		}
		switch {
		case input.DateOfSample.IsEmpty():
			errs.Add(validate.SampleDateControl(n), validate.EnterSampleDateMessage(n))
		default:
			if msg := validate.SampleDate(input.DateOfSample, n, today); msg != "" {
				errs.Add(validate.SampleDateControl(n), msg)
			}
		}
		if input.CollectionMethod == domain.MethodUnset {
			errs.Add(validate.SampleMethodControl(n), validate.EnterSampleMethodMessage(n))
		}
	}
	if len(errs) > 0 {
		return "", &ValidationError{Fields: errs}
	}

	staged := 0
	for i, input := range in.Samples {
		if samples[i].Collection.SubmittedToDatabase {
			continue
		}
		if !validate.SampleFilled(input.DateOfSample, input.CollectionMethod) {
			continue
		}
		samples[i].Collection.DateOfSample = input.DateOfSample
		samples[i].Collection.CollectionMethod = input.CollectionMethod
		staged++
	}
	agg.Status = domain.InProgress

	if err := e.Repo.SaveSputumTx(ctx, tx, applicationID, agg, now); err != nil {
		return "", err
	}
	if err := e.Repo.TouchApplicationTx(ctx, tx, applicationID, now); err != nil {
		return "", err
	}
	if err := e.Events.Append(ctx, tx, "sputum.collection.saved", applicationID, repo.StepSputum, actorID, events.EventPayload{
		"intent": string(intent), "staged": staged,
	}); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	if intent == IntentContinueToResults {
		return RouteEnterResults, nil
	}
	return RouteCheckSputum, nil
}

// SaveResults validates and stages the smear/culture entries. Only samples
// with a collection date are in play; submitted results are read-only and
// excluded from both editing and validation.
func (e Engine) SaveResults(ctx context.Context, applicationID, actorID string, in ResultsInput) (string, error) {
	for i, input := range in.Samples {
		if !input.Smear.Valid() || !input.Culture.Valid() {
			return "", fmt.Errorf("sample %d has an unknown result value", i+1)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	agg, _, err := e.Repo.GetSputumTx(ctx, tx, applicationID)
	if err != nil {
		return "", err
	}
	samples := agg.Samples()

	if errs := resultsRequiredErrors(samples, in); len(errs) > 0 {
		return "", &ValidationError{Fields: errs}
	}

	staged := 0
	for i, input := range in.Samples {
		if !samples[i].Collection.DateOfSample.IsComplete() {
			continue
		}
		if input.Smear.Entered() && !samples[i].SmearResults.SubmittedToDatabase {
			samples[i].SmearResults = domain.SampleResult{Result: input.Smear}
			staged++
		}
		if input.Culture.Entered() && !samples[i].CultureResults.SubmittedToDatabase {
			samples[i].CultureResults = domain.SampleResult{Result: input.Culture}
			staged++
		}
	}

	if err := e.Repo.SaveSputumTx(ctx, tx, applicationID, agg, now); err != nil {
		return "", err
	}
	if err := e.Repo.TouchApplicationTx(ctx, tx, applicationID, now); err != nil {
		return "", err
	}
	if err := e.Events.Append(ctx, tx, "sputum.results.saved", applicationID, repo.StepSputum, actorID, events.EventPayload{
		"staged": staged,
	}); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return RouteCheckSputum, nil
}

// resultsRequiredErrors applies the results-step rule: when the in-play
// samples still have editable fields and not a single smear or culture value
// exists anywhere, every editable field gets a required error.
func resultsRequiredErrors(samples [3]*domain.SputumSample, in ResultsInput) validate.Errors {
	hasEditable := false
	hasAnySmear := false
	hasAnyCulture := false
	inPlay := [3]bool{}
	for i, s := range samples {
		if !s.Collection.DateOfSample.IsComplete() {
			continue
		}
		inPlay[i] = true
		if !s.SmearResults.SubmittedToDatabase || !s.CultureResults.SubmittedToDatabase {
			hasEditable = true
		}
		if s.SmearResults.SubmittedToDatabase || s.SmearResults.Result.Entered() || in.Samples[i].Smear.Entered() {
			hasAnySmear = true
		}
		if s.CultureResults.SubmittedToDatabase || s.CultureResults.Result.Entered() || in.Samples[i].Culture.Entered() {
			hasAnyCulture = true
		}
	}
	if !hasEditable || hasAnySmear || hasAnyCulture {
		return nil
	}
	var errs validate.Errors
	for i, s := range samples {
		if !inPlay[i] {
			continue
		}
		n := i + 1
		if !s.SmearResults.SubmittedToDatabase {
			errs.Add(validate.SampleSmearControl(n), validate.SmearResultRequiredMessage)
		}
		if !s.CultureResults.SubmittedToDatabase {
			errs.Add(validate.SampleCultureControl(n), validate.CultureResultRequiredMessage)
		}
	}
	return errs
}

// SubmitOutcome reports what a summary submission did.
type SubmitOutcome struct {
	// Version is the concurrency token after the submission; unchanged on
	// a no-op.
	Version int64
	// NoOp is true when nothing new was staged, so nothing was written.
	NoOp bool
	// Status is the derived aggregate status after submission.
	Status domain.LifecycleStatus
	// Submitted lists, per included sample ("sample1".."sample3"), the
	// fields that were persisted by this submission.
	Submitted map[string][]string
	// Route is where the client goes next.
	Route string
}

// Submit persists every staged fact, stamping each contributed sample's
// dateUpdated with today's date and bumping the version counter. The caller
// echoes the version from its last read; a mismatch fails with
// repo.ErrVersionConflict. When no sample holds new data the call is an
// idempotent no-op: no write, no version bump.
func (e Engine) Submit(ctx context.Context, applicationID, actorID string, version *int64) (SubmitOutcome, error) {
	now := e.now().UTC().Format(time.RFC3339)
	today := e.today()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SubmitOutcome{}, err
	}
	defer tx.Rollback()

	agg, storedVersion, err := e.Repo.GetSputumTx(ctx, tx, applicationID)
	if err != nil {
		return SubmitOutcome{}, err
	}
	samples := agg.Samples()

	submitted := map[string][]string{}
	for i, s := range samples {
		if !s.HasNewData() {
			continue
		}
		key := fmt.Sprintf("sample%d", i+1)
		var fields []string
		if !s.Collection.Empty() && !s.Collection.SubmittedToDatabase {
			s.Collection.SubmittedToDatabase = true
			fields = append(fields, "dateOfSample", "collectionMethod")
		}
		if s.SmearResults.Result.Entered() && !s.SmearResults.SubmittedToDatabase {
			s.SmearResults.SubmittedToDatabase = true
			fields = append(fields, "smearResult")
		}
		if s.CultureResults.Result.Entered() && !s.CultureResults.SubmittedToDatabase {
			s.CultureResults.SubmittedToDatabase = true
			fields = append(fields, "cultureResult")
		}
		s.LastUpdatedDate = today
		fields = append(fields, "dateUpdated")
		submitted[key] = fields
	}

	if len(submitted) == 0 {
		return SubmitOutcome{
			Version: storedVersion,
			NoOp:    true,
			Status:  agg.DeriveStatus(),
			Route:   RouteConfirmation,
		}, nil
	}

	expected := int64(0)
	if version != nil {
		expected = *version
	}
	if expected != storedVersion {
		return SubmitOutcome{}, repo.ErrVersionConflict
	}

	agg.Status = agg.DeriveStatus()
	newVersion, err := e.Repo.SubmitSputumTx(ctx, tx, applicationID, agg, expected, now)
	if err != nil {
		return SubmitOutcome{}, err
	}
	if err := e.Repo.TouchApplicationTx(ctx, tx, applicationID, now); err != nil {
		return SubmitOutcome{}, err
	}
	payload := events.EventPayload{"version": newVersion}
	for key, fields := range submitted {
		payload[key] = fields
	}
	if err := e.Events.Append(ctx, tx, "sputum.submitted", applicationID, repo.StepSputum, actorID, payload); err != nil {
		return SubmitOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return SubmitOutcome{}, err
	}

	return SubmitOutcome{
		Version:   newVersion,
		Status:    agg.Status,
		Submitted: submitted,
		Route:     RouteConfirmation,
	}, nil
}
