// Package screening implements the step controllers for one pre-entry TB
// screening application: applicant and travel details, medical screening,
// chest X-ray, the two-phase sputum workflow and the final certificate.
package screening

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"petscreen/internal/config"
	"petscreen/internal/domain"
	"petscreen/internal/events"
	"petscreen/internal/repo"
	"petscreen/internal/validate"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) today() domain.DateValue {
	return domain.DateFromTime(e.now().UTC())
}

// ValidationError carries the per-field failures of one step submission.
type ValidationError struct {
	Fields validate.Errors
}

func (v *ValidationError) Error() string {
	if len(v.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// CreateApplication opens a new screening session for the configured clinic.
func (e Engine) CreateApplication(ctx context.Context, id, actorID string) (domain.Application, error) {
	now := e.now().UTC().Format(time.RFC3339)
	if id == "" {
		id = uuid.NewString()
	}
	clinicID := ""
	if e.Config != nil {
		clinicID = e.Config.Clinic.ID
	}
	app := domain.NewApplication(id, clinicID, now)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertApplicationTx(ctx, tx, repo.ApplicationRow{
		ID: app.ID, ClinicID: app.ClinicID, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return domain.Application{}, fmt.Errorf("insert application: %w", err)
	}
	if err := e.Repo.InsertSputumTx(ctx, tx, app.ID, app.Sputum, now); err != nil {
		return domain.Application{}, fmt.Errorf("seed sputum state: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "application.created", app.ID, "", actorID, events.EventPayload{"clinic_id": clinicID}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

// GetApplication rehydrates the full aggregate root. Steps never saved come
// back in their zero Not yet started state, so clients can rebuild their
// view from this alone.
func (e Engine) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	row, err := e.Repo.GetApplicationRow(ctx, id)
	if err != nil {
		return domain.Application{}, err
	}
	app := domain.NewApplication(row.ID, row.ClinicID, row.CreatedAt)
	app.UpdatedAt = row.UpdatedAt

	steps := []struct {
		name string
		doc  any
	}{
		{repo.StepApplicant, &app.Applicant},
		{repo.StepTravel, &app.Travel},
		{repo.StepMedicalScreening, &app.MedicalScreening},
		{repo.StepChestXray, &app.ChestXray},
		{repo.StepSputumDecision, &app.SputumDecision},
		{repo.StepTbCertificate, &app.TbCertificate},
	}
	for _, s := range steps {
		if err := e.Repo.GetStepDoc(ctx, id, s.name, s.doc); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return domain.Application{}, fmt.Errorf("load %s: %w", s.name, err)
		}
	}

	sputum, version, err := e.Repo.GetSputum(ctx, id)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Application{}, fmt.Errorf("load sputum: %w", err)
	}
	if err == nil {
		if version > 0 {
			sputum.Version = &version
		}
		app.Sputum = sputum
	}
	if app.SputumDecision.IsSputumRequired == domain.No {
		app.Sputum.Status = domain.NotRequired
	}
	return app, nil
}

// saveStep runs the shared persist path for the non-sputum steps.
func (e Engine) saveStep(ctx context.Context, applicationID, actorID, step string, doc any, payload events.EventPayload) error {
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetApplicationRowTx(ctx, tx, applicationID); err != nil {
		return err
	}
	if err := e.Repo.UpsertStepDocTx(ctx, tx, applicationID, step, doc, now); err != nil {
		return fmt.Errorf("save %s: %w", step, err)
	}
	if err := e.Repo.TouchApplicationTx(ctx, tx, applicationID, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "step.saved", applicationID, step, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveApplicant validates and stores the applicant details step.
func (e Engine) SaveApplicant(ctx context.Context, applicationID, actorID string, a domain.Applicant) (domain.Applicant, error) {
	var errs validate.Errors
	today := e.today()
	if a.FullName == "" {
		errs.Add("name", "Enter the applicant's full name")
	}
	if msg := validate.RequiredDate(a.DateOfBirth, validate.CtxDateOfBirth, today); msg != "" {
		errs.Add("birth-date", msg)
	}
	if msg := validate.Date(a.PassportIssueDate, validate.CtxPassportIssueDate, today); msg != "" {
		errs.Add("passport-issue-date", msg)
	}
	if msg := validate.Date(a.PassportExpiryDate, validate.CtxPassportExpiryDate, today); msg != "" {
		errs.Add("passport-expiry-date", msg)
	}
	if len(errs) > 0 {
		return domain.Applicant{}, &ValidationError{Fields: errs}
	}

	a.Status = deriveApplicantStatus(a)
	if err := e.saveStep(ctx, applicationID, actorID, repo.StepApplicant, a, events.EventPayload{"status": a.Status}); err != nil {
		return domain.Applicant{}, err
	}
	return a, nil
}

func deriveApplicantStatus(a domain.Applicant) domain.LifecycleStatus {
	complete := a.FullName != "" && a.Sex != "" && a.DateOfBirth.IsComplete() &&
		a.CountryOfNationality != "" && a.PassportNumber != "" && a.CountryOfIssue != "" &&
		a.PassportIssueDate.IsComplete() && a.PassportExpiryDate.IsComplete() &&
		a.HomeAddress1 != "" && a.TownOrCity != "" && a.Country != ""
	if complete {
		return domain.Complete
	}
	empty := a.FullName == "" && a.Sex == "" && a.DateOfBirth.IsEmpty() &&
		a.CountryOfNationality == "" && a.PassportNumber == "" &&
		a.PassportIssueDate.IsEmpty() && a.PassportExpiryDate.IsEmpty() &&
		a.HomeAddress1 == "" && a.TownOrCity == "" && a.Country == ""
	if empty {
		return domain.NotYetStarted
	}
	return domain.InProgress
}

// SaveTravel stores the UK travel details step.
func (e Engine) SaveTravel(ctx context.Context, applicationID, actorID string, t domain.Travel) (domain.Travel, error) {
	var errs validate.Errors
	if t.VisaCategory == "" {
		errs.Add("visa-category", "Select the applicant's visa category")
	}
	if t.UKAddress1 == "" {
		errs.Add("address-1", "Enter the first line of the applicant's UK address")
	}
	if len(errs) > 0 {
		return domain.Travel{}, &ValidationError{Fields: errs}
	}
	t.Status = domain.Complete
	if err := e.saveStep(ctx, applicationID, actorID, repo.StepTravel, t, events.EventPayload{"status": t.Status}); err != nil {
		return domain.Travel{}, err
	}
	return t, nil
}

// SaveMedicalScreening validates and stores the medical history step. The
// physical exam notes are bounded by the configured word limit.
func (e Engine) SaveMedicalScreening(ctx context.Context, applicationID, actorID string, m domain.MedicalScreening) (domain.MedicalScreening, error) {
	var errs validate.Errors
	today := e.today()
	if msg := validate.RequiredDate(m.CompletionDate, validate.CtxCompletionDate, today); msg != "" {
		errs.Add("medical-screening-completion-date", msg)
	}
	if m.TbSymptoms == domain.NotAnswered {
		errs.Add("tb-symptoms", "Select if the applicant has any symptoms of TB")
	}
	if limit := e.notesWordLimit(); validate.WordsRemaining(m.PhysicalExamNotes, limit) < 0 {
		errs.Add("physical-exam-notes",
			fmt.Sprintf("Physical examination notes must be %d words or fewer", limit))
	}
	if len(errs) > 0 {
		return domain.MedicalScreening{}, &ValidationError{Fields: errs}
	}

	m.Status = domain.Complete
	m.SubmittedToDatabase = true
	if err := e.saveStep(ctx, applicationID, actorID, repo.StepMedicalScreening, m, events.EventPayload{"status": m.Status}); err != nil {
		return domain.MedicalScreening{}, err
	}
	return m, nil
}

func (e Engine) notesWordLimit() int {
	if e.Config != nil && e.Config.Screening.PhysicalExamNotesWordLimit > 0 {
		return e.Config.Screening.PhysicalExamNotesWordLimit
	}
	return 150
}

func (e Engine) commentsWordLimit() int {
	if e.Config != nil && e.Config.Screening.CertificateCommentsWordLimit > 0 {
		return e.Config.Screening.CertificateCommentsWordLimit
	}
	return 150
}

// SaveChestXray stores the chest X-ray step. When a not-required reason is
// recorded the step completes without an X-ray date or result.
func (e Engine) SaveChestXray(ctx context.Context, applicationID, actorID string, x domain.ChestXray) (domain.ChestXray, error) {
	var errs validate.Errors
	today := e.today()
	if x.ReasonXrayNotRequired == domain.NoReasonGiven {
		if msg := validate.RequiredDate(x.DateXrayTaken, validate.CtxDateXrayTaken, today); msg != "" {
			errs.Add("date-xray-taken", msg)
		}
		if x.XrayResult == "" {
			errs.Add("xray-result", "Select the result of the chest X-ray")
		}
	} else if x.ReasonXrayNotRequired == domain.OtherReason && x.ReasonFurtherDetails == "" {
		errs.Add("conditional-reason-xray-not-required-other-detail", "Enter the reason an X-ray is not required")
	}
	if len(errs) > 0 {
		return domain.ChestXray{}, &ValidationError{Fields: errs}
	}

	if x.ReasonXrayNotRequired != domain.NoReasonGiven {
		x.Status = domain.NotRequired
	} else {
		x.Status = domain.Complete
	}
	x.SubmittedToDatabase = true
	if err := e.saveStep(ctx, applicationID, actorID, repo.StepChestXray, x, events.EventPayload{"status": x.Status}); err != nil {
		return domain.ChestXray{}, err
	}
	return x, nil
}

// SaveSputumDecision records whether sputum samples are required. Answering
// No marks the whole sputum step not required on the tracker.
func (e Engine) SaveSputumDecision(ctx context.Context, applicationID, actorID string, d domain.SputumDecision) (domain.SputumDecision, error) {
	if d.IsSputumRequired != domain.Yes && d.IsSputumRequired != domain.No {
		return domain.SputumDecision{}, &ValidationError{Fields: validate.Errors{
			{Field: "sputum-required", Message: "Select if sputum samples are required"},
		}}
	}
	d.Status = domain.Complete
	if err := e.saveStep(ctx, applicationID, actorID, repo.StepSputumDecision, d, events.EventPayload{
		"status": d.Status, "required": d.IsSputumRequired,
	}); err != nil {
		return domain.SputumDecision{}, err
	}
	return d, nil
}

// SaveTbCertificate validates and stores the certificate outcome. The issue
// date defaults from the X-ray or screening completion dates and the expiry
// is derived from the configured validity period, shortened when the
// applicant reported close contact with TB.
func (e Engine) SaveTbCertificate(ctx context.Context, applicationID, actorID string, c domain.TbCertificate) (domain.TbCertificate, error) {
	var errs validate.Errors
	today := e.today()
	if c.IsIssued != domain.Yes && c.IsIssued != domain.No {
		errs.Add("tb-clearance-issued", "Select if a TB clearance certificate is issued")
	}
	if c.IsIssued == domain.No && c.ReasonNotIssued == "" {
		errs.Add("reason-not-issued", "Enter the reason a certificate is not issued")
	}
	if msg := validate.Date(c.CertificateDate, validate.CtxCertificateDate, today); msg != "" {
		errs.Add("tb-certificate-date", msg)
	}
	if limit := e.commentsWordLimit(); validate.WordsRemaining(c.Comments, limit) < 0 {
		errs.Add("physician-comments",
			fmt.Sprintf("Comments must be %d words or fewer", limit))
	}
	if len(errs) > 0 {
		return domain.TbCertificate{}, &ValidationError{Fields: errs}
	}

	// The derivations and the write share one tx so the certificate cannot
	// be computed from steps that change mid-save.
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TbCertificate{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetApplicationRowTx(ctx, tx, applicationID); err != nil {
		return domain.TbCertificate{}, err
	}
	if c.IsIssued == domain.Yes {
		if c.CertificateDate.IsEmpty() {
			c.CertificateDate = e.deriveCertificateIssueDate(ctx, tx, applicationID)
		}
		c.CertificateExpiryDate = e.deriveCertificateExpiry(ctx, tx, applicationID, c.CertificateDate)
	}
	c.Status = domain.Complete
	if err := e.Repo.UpsertStepDocTx(ctx, tx, applicationID, repo.StepTbCertificate, c, now); err != nil {
		return domain.TbCertificate{}, fmt.Errorf("save %s: %w", repo.StepTbCertificate, err)
	}
	if err := e.Repo.TouchApplicationTx(ctx, tx, applicationID, now); err != nil {
		return domain.TbCertificate{}, err
	}
	if err := e.Events.Append(ctx, tx, "step.saved", applicationID, repo.StepTbCertificate, actorID, events.EventPayload{
		"status": c.Status, "issued": c.IsIssued,
	}); err != nil {
		return domain.TbCertificate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TbCertificate{}, err
	}
	return c, nil
}

// deriveCertificateIssueDate prefers the X-ray date when one was taken,
// then the screening completion date, then today.
func (e Engine) deriveCertificateIssueDate(ctx context.Context, tx *sql.Tx, applicationID string) domain.DateValue {
	var xray domain.ChestXray
	if err := e.Repo.GetStepDocTx(ctx, tx, applicationID, repo.StepChestXray, &xray); err == nil {
		if xray.ReasonXrayNotRequired == domain.NoReasonGiven && xray.DateXrayTaken.IsComplete() {
			return xray.DateXrayTaken
		}
	}
	var med domain.MedicalScreening
	if err := e.Repo.GetStepDocTx(ctx, tx, applicationID, repo.StepMedicalScreening, &med); err == nil {
		if med.CompletionDate.IsComplete() {
			return med.CompletionDate
		}
	}
	return e.today()
}

func (e Engine) deriveCertificateExpiry(ctx context.Context, tx *sql.Tx, applicationID string, issue domain.DateValue) domain.DateValue {
	issued, ok := issue.Time()
	if !ok {
		return domain.DateValue{}
	}
	months := 6
	closeContactMonths := 3
	if e.Config != nil {
		if e.Config.Screening.CertificateExpiryMonths > 0 {
			months = e.Config.Screening.CertificateExpiryMonths
		}
		if e.Config.Screening.CertificateExpiryMonthsCloseContact > 0 {
			closeContactMonths = e.Config.Screening.CertificateExpiryMonthsCloseContact
		}
	}
	var med domain.MedicalScreening
	if err := e.Repo.GetStepDocTx(ctx, tx, applicationID, repo.StepMedicalScreening, &med); err == nil {
		if med.CloseContactWithTb == domain.Yes {
			months = closeContactMonths
		}
	}
	return domain.DateFromTime(domain.AddMonths(issued, months))
}
