package domain

// LifecycleStatus is the derived progress state of one screening step.
// It is never set directly by a caller; each aggregate derives it from
// field completeness.
type LifecycleStatus string

const (
	NotYetStarted LifecycleStatus = "Not yet started"
	InProgress    LifecycleStatus = "In progress"
	Complete      LifecycleStatus = "Complete"
	NotRequired   LifecycleStatus = "Not required"
)

// YesNo is a closed answer type for Yes/No radio questions.
type YesNo string

const (
	Yes         YesNo = "Yes"
	No          YesNo = "No"
	NotAnswered YesNo = ""
)

// CollectionMethod describes how a sputum sample was obtained.
type CollectionMethod string

const (
	MethodUnset    CollectionMethod = ""
	CoughedUp      CollectionMethod = "Coughed up"
	Induced        CollectionMethod = "Induced"
	GastricLavage  CollectionMethod = "Gastric lavage"
	MethodNotKnown CollectionMethod = "Not known"
)

// CollectionMethods lists the selectable methods in display order.
var CollectionMethods = []CollectionMethod{CoughedUp, Induced, GastricLavage, MethodNotKnown}

func (m CollectionMethod) Valid() bool {
	if m == MethodUnset {
		return true
	}
	for _, known := range CollectionMethods {
		if m == known {
			return true
		}
	}
	return false
}

// TestResult is the outcome of a smear or culture test.
type TestResult string

const (
	NotYetEntered TestResult = "Not yet entered"
	Positive      TestResult = "Positive"
	Negative      TestResult = "Negative"
	Inconclusive  TestResult = "Inconclusive"
)

// Entered reports whether a laboratory value has actually been recorded.
func (r TestResult) Entered() bool { return r != NotYetEntered && r != "" }

func (r TestResult) Valid() bool {
	switch r {
	case "", NotYetEntered, Positive, Negative, Inconclusive:
		return true
	}
	return false
}

// XrayNotRequiredReason explains why no chest X-ray was required.
type XrayNotRequiredReason string

const (
	NoReasonGiven    XrayNotRequiredReason = ""
	UnderElevenYears XrayNotRequiredReason = "Child under 11"
	Pregnancy        XrayNotRequiredReason = "Pregnant"
	OtherReason      XrayNotRequiredReason = "Other"
)

// CookieConsent is the stored cookie banner decision for an actor.
type CookieConsent string

const (
	ConsentUnset    CookieConsent = ""
	ConsentAccepted CookieConsent = "accepted"
	ConsentRejected CookieConsent = "rejected"
)

// SampleCollection holds the collection facts for one sputum sample.
// Once SubmittedToDatabase is true the date and method are immutable.
type SampleCollection struct {
	DateOfSample        DateValue        `json:"dateOfSample"`
	CollectionMethod    CollectionMethod `json:"collectionMethod"`
	SubmittedToDatabase bool             `json:"submittedToDatabase,omitempty"`
}

// Filled reports whether both the date and the method are present.
func (c SampleCollection) Filled() bool {
	return c.DateOfSample.IsComplete() && c.CollectionMethod != MethodUnset
}

// Empty reports whether nothing has been entered for this collection.
func (c SampleCollection) Empty() bool {
	return c.DateOfSample.IsEmpty() && c.CollectionMethod == MethodUnset
}

// SampleResult holds one smear or culture result for a sample.
type SampleResult struct {
	Result              TestResult `json:"result"`
	SubmittedToDatabase bool       `json:"submittedToDatabase,omitempty"`
}

// SputumSample is one of the up-to-three specimens tracked per application.
type SputumSample struct {
	Collection      SampleCollection `json:"collection"`
	SmearResults    SampleResult     `json:"smearResults"`
	CultureResults  SampleResult     `json:"cultureResults"`
	LastUpdatedDate DateValue        `json:"lastUpdatedDate"`
}

// Filled reports whether collection, smear and culture are all present.
func (s SputumSample) Filled() bool {
	return s.Collection.Filled() && s.SmearResults.Result.Entered() && s.CultureResults.Result.Entered()
}

// Empty reports whether no data at all has been captured for the sample.
func (s SputumSample) Empty() bool {
	return s.Collection.Empty() && !s.SmearResults.Result.Entered() && !s.CultureResults.Result.Entered()
}

// Status derives the per-sample lifecycle state.
func (s SputumSample) Status() LifecycleStatus {
	switch {
	case s.Filled():
		return Complete
	case s.Empty():
		return NotYetStarted
	default:
		return InProgress
	}
}

// HasNewData reports whether any entered field has not yet been persisted,
// so the sample belongs in the next submission payload.
func (s SputumSample) HasNewData() bool {
	if !s.Collection.Empty() && !s.Collection.SubmittedToDatabase {
		return true
	}
	if s.SmearResults.Result.Entered() && !s.SmearResults.SubmittedToDatabase {
		return true
	}
	if s.CultureResults.Result.Entered() && !s.CultureResults.SubmittedToDatabase {
		return true
	}
	return false
}

// SputumAggregate is the full sputum state for one application. Version is
// the optimistic-concurrency token issued on each successful submission and
// echoed back on the next one.
type SputumAggregate struct {
	Status  LifecycleStatus `json:"status,omitempty"`
	Version *int64          `json:"version,omitempty"`
	Sample1 SputumSample    `json:"sample1"`
	Sample2 SputumSample    `json:"sample2"`
	Sample3 SputumSample    `json:"sample3"`
}

// Samples returns pointers to the three samples in order.
func (a *SputumAggregate) Samples() [3]*SputumSample {
	return [3]*SputumSample{&a.Sample1, &a.Sample2, &a.Sample3}
}

// DeriveStatus recomputes the aggregate status from sample completeness.
func (a *SputumAggregate) DeriveStatus() LifecycleStatus {
	all, none := true, true
	for _, s := range a.Samples() {
		if !s.Filled() {
			all = false
		}
		if !s.Empty() {
			none = false
		}
	}
	switch {
	case all:
		return Complete
	case none:
		return NotYetStarted
	default:
		return InProgress
	}
}

// AllCollectionsSubmitted reports whether every sample's collection facts
// have been persisted, which routes the tracker to results entry.
func (a *SputumAggregate) AllCollectionsSubmitted() bool {
	for _, s := range a.Samples() {
		if !s.Collection.SubmittedToDatabase {
			return false
		}
	}
	return true
}

// Applicant is the visa applicant details step.
type Applicant struct {
	Status               LifecycleStatus `json:"status,omitempty"`
	FullName             string          `json:"fullName,omitempty"`
	Sex                  string          `json:"sex,omitempty"`
	DateOfBirth          DateValue       `json:"dateOfBirth,omitempty"`
	CountryOfNationality string          `json:"countryOfNationality,omitempty"`
	PassportNumber       string          `json:"passportNumber,omitempty"`
	CountryOfIssue       string          `json:"countryOfIssue,omitempty"`
	PassportIssueDate    DateValue       `json:"passportIssueDate,omitempty"`
	PassportExpiryDate   DateValue       `json:"passportExpiryDate,omitempty"`
	HomeAddress1         string          `json:"applicantHomeAddress1,omitempty"`
	HomeAddress2         string          `json:"applicantHomeAddress2,omitempty"`
	TownOrCity           string          `json:"townOrCity,omitempty"`
	ProvinceOrState      string          `json:"provinceOrState,omitempty"`
	Country              string          `json:"country,omitempty"`
	Postcode             string          `json:"postcode,omitempty"`
}

// Travel is the UK travel information step.
type Travel struct {
	Status         LifecycleStatus `json:"status,omitempty"`
	VisaCategory   string          `json:"visaCategory,omitempty"`
	UKAddress1     string          `json:"applicantUkAddress1,omitempty"`
	UKAddress2     string          `json:"applicantUkAddress2,omitempty"`
	UKMobileNumber string          `json:"ukMobileNumber,omitempty"`
	UKEmail        string          `json:"ukEmail,omitempty"`
}

// MedicalScreening is the medical history and TB symptoms step.
type MedicalScreening struct {
	Status              LifecycleStatus `json:"status,omitempty"`
	CompletionDate      DateValue       `json:"completionDate,omitempty"`
	TbSymptoms          YesNo           `json:"tbSymptoms,omitempty"`
	TbSymptomsList      []string        `json:"tbSymptomsList,omitempty"`
	PreviousTb          YesNo           `json:"previousTb,omitempty"`
	PreviousTbDetail    string          `json:"previousTbDetail,omitempty"`
	CloseContactWithTb  YesNo           `json:"closeContactWithTb,omitempty"`
	CloseContactDetail  string          `json:"closeContactWithTbDetail,omitempty"`
	PhysicalExamNotes   string          `json:"physicalExamNotes,omitempty"`
	ChestXrayTaken      YesNo           `json:"chestXrayTaken,omitempty"`
	ReasonXrayNotTaken  string          `json:"reasonXrayWasNotTaken,omitempty"`
	SubmittedToDatabase bool            `json:"submittedToDatabase,omitempty"`
}

// ChestXray is the chest X-ray findings step.
type ChestXray struct {
	Status                LifecycleStatus       `json:"status,omitempty"`
	DateXrayTaken         DateValue             `json:"dateXrayTaken,omitempty"`
	XrayResult            string                `json:"xrayResult,omitempty"`
	XrayResultDetail      string                `json:"xrayResultDetail,omitempty"`
	ReasonXrayNotRequired XrayNotRequiredReason `json:"reasonXrayNotRequired,omitempty"`
	ReasonFurtherDetails  string                `json:"reasonXrayNotRequiredFurtherDetails,omitempty"`
	SubmittedToDatabase   bool                  `json:"submittedToDatabase,omitempty"`
}

// SputumDecision records whether sputum collection is required at all.
type SputumDecision struct {
	Status           LifecycleStatus `json:"status,omitempty"`
	IsSputumRequired YesNo           `json:"isSputumRequired,omitempty"`
}

// TbCertificate is the final certificate outcome step.
type TbCertificate struct {
	Status                 LifecycleStatus `json:"status,omitempty"`
	IsIssued               YesNo           `json:"isIssued,omitempty"`
	Comments               string          `json:"comments,omitempty"`
	CertificateDate        DateValue       `json:"certificateDate,omitempty"`
	CertificateExpiryDate  DateValue       `json:"certificateExpiryDate,omitempty"`
	CertificateNumber      string          `json:"certificateNumber,omitempty"`
	ReasonNotIssued        string          `json:"reasonNotIssued,omitempty"`
	DeclaringPhysicianName string          `json:"declaringPhysicianName,omitempty"`
}

// Application is the aggregate root for one screening session. The service
// is the system of record; clients rehydrate this on reload.
type Application struct {
	ID               string           `json:"id"`
	ClinicID         string           `json:"clinicId,omitempty"`
	CreatedAt        string           `json:"created_at" format:"date-time"`
	UpdatedAt        string           `json:"updated_at" format:"date-time"`
	Applicant        Applicant        `json:"applicant"`
	Travel           Travel           `json:"travel"`
	MedicalScreening MedicalScreening `json:"medicalScreening"`
	ChestXray        ChestXray        `json:"chestXray"`
	SputumDecision   SputumDecision   `json:"sputumDecision"`
	Sputum           SputumAggregate  `json:"sputum"`
	TbCertificate    TbCertificate    `json:"tbCertificate"`
}

// NewSputumAggregate returns the zero-valued sputum state for a fresh
// application, with result fields explicitly Not yet entered.
func NewSputumAggregate() SputumAggregate {
	empty := SputumSample{
		SmearResults:   SampleResult{Result: NotYetEntered},
		CultureResults: SampleResult{Result: NotYetEntered},
	}
	return SputumAggregate{
		Status:  NotYetStarted,
		Sample1: empty,
		Sample2: empty,
		Sample3: empty,
	}
}

// NewApplication returns an empty application with initial statuses.
func NewApplication(id, clinicID, createdAt string) Application {
	return Application{
		ID:               id,
		ClinicID:         clinicID,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
		Applicant:        Applicant{Status: NotYetStarted},
		Travel:           Travel{Status: NotYetStarted},
		MedicalScreening: MedicalScreening{Status: NotYetStarted},
		ChestXray:        ChestXray{Status: NotYetStarted},
		SputumDecision:   SputumDecision{Status: NotYetStarted},
		Sputum:           NewSputumAggregate(),
		TbCertificate:    TbCertificate{Status: NotYetStarted},
	}
}

// Event is one audit log entry for a screening application.
type Event struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts" format:"date-time"`
	Type          string `json:"type"`
	ApplicationID string `json:"application_id,omitempty"`
	Step          string `json:"step"`
	ActorID       string `json:"actor_id"`
	Payload       string `json:"payload_json"`
}

// APIKey authenticates a non-interactive caller of the REST API.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
