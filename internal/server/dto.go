package server

import (
	"petscreen/internal/domain"
	"petscreen/internal/repo"
	"petscreen/internal/screening"
)

// CreateApplicationRequest optionally pins the application ID; one is
// generated when absent.
type CreateApplicationRequest struct {
	ID string `json:"id,omitempty"`
}

// ApplicationSummary is the list view of an application.
type ApplicationSummary struct {
	ID        string `json:"id"`
	ClinicID  string `json:"clinicId,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// SampleCollectionRequest is one sample's collection facts as entered on
// the form; blank date parts and an empty method mean "not entered".
type SampleCollectionRequest struct {
	DateOfSample     domain.DateValue        `json:"dateOfSample,omitempty"`
	CollectionMethod domain.CollectionMethod `json:"collectionMethod,omitempty"`
}

// CollectionRequest carries the whole collection form plus the button that
// drove the submission.
type CollectionRequest struct {
	Intent  string                  `json:"intent" enum:"save-progress,save-and-continue-to-results"`
	Sample1 SampleCollectionRequest `json:"sample1,omitempty"`
	Sample2 SampleCollectionRequest `json:"sample2,omitempty"`
	Sample3 SampleCollectionRequest `json:"sample3,omitempty"`
}

func (r CollectionRequest) collectionInput() screening.CollectionInput {
	return screening.CollectionInput{
		Samples: [3]screening.SampleCollectionInput{
			{DateOfSample: r.Sample1.DateOfSample, CollectionMethod: r.Sample1.CollectionMethod},
			{DateOfSample: r.Sample2.DateOfSample, CollectionMethod: r.Sample2.CollectionMethod},
			{DateOfSample: r.Sample3.DateOfSample, CollectionMethod: r.Sample3.CollectionMethod},
		},
	}
}

// SampleResultsRequest is one sample's smear and culture entries; omitted
// fields leave the stored values untouched.
type SampleResultsRequest struct {
	SmearResult   domain.TestResult `json:"smearResult,omitempty"`
	CultureResult domain.TestResult `json:"cultureResult,omitempty"`
}

// ResultsRequest carries the whole results form.
type ResultsRequest struct {
	Sample1 SampleResultsRequest `json:"sample1,omitempty"`
	Sample2 SampleResultsRequest `json:"sample2,omitempty"`
	Sample3 SampleResultsRequest `json:"sample3,omitempty"`
}

func (r ResultsRequest) resultsInput() screening.ResultsInput {
	return screening.ResultsInput{
		Samples: [3]screening.SampleResultInput{
			{Smear: r.Sample1.SmearResult, Culture: r.Sample1.CultureResult},
			{Smear: r.Sample2.SmearResult, Culture: r.Sample2.CultureResult},
			{Smear: r.Sample3.SmearResult, Culture: r.Sample3.CultureResult},
		},
	}
}

// SubmitRequest carries the concurrency token the client last saw. A nil
// version means the client has never submitted.
type SubmitRequest struct {
	Version *int64 `json:"version,omitempty"`
}

// SubmitResponse reports what a submission persisted.
type SubmitResponse struct {
	Version   int64                  `json:"version"`
	Status    domain.LifecycleStatus `json:"status"`
	NoOp      bool                   `json:"noOp"`
	Submitted map[string][]string    `json:"submitted,omitempty"`
	Next      string                 `json:"next"`
}

// NextResponse carries the client route a step hands back on success.
type NextResponse struct {
	Next string `json:"next"`
}

// ConsentRequest records a cookie consent decision.
type ConsentRequest struct {
	Decision string `json:"decision" enum:"accepted,rejected"`
}

// ConsentResponse echoes the stored decision.
type ConsentResponse struct {
	ActorID  string `json:"actor_id"`
	Decision string `json:"decision"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func applicationSummary(row repo.ApplicationRow) ApplicationSummary {
	return ApplicationSummary{
		ID:        row.ID,
		ClinicID:  row.ClinicID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func submitResponse(out screening.SubmitOutcome) SubmitResponse {
	return SubmitResponse{
		Version:   out.Version,
		Status:    out.Status,
		NoOp:      out.NoOp,
		Submitted: out.Submitted,
		Next:      out.Route,
	}
}
