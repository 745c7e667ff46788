package screening_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"petscreen/internal/config"
	"petscreen/internal/db"
	"petscreen/internal/domain"
	"petscreen/internal/migrate"
	"petscreen/internal/repo"
	"petscreen/internal/screening"
)

type testEnv struct {
	Engine screening.Engine
	Ctx    context.Context
	AppID  string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("clinic-1")
	eng := screening.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	app, err := eng.CreateApplication(ctx, "", "tester")
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, AppID: app.ID}
}

func (env testEnv) App(t *testing.T) domain.Application {
	t.Helper()
	app, err := env.Engine.GetApplication(env.Ctx, env.AppID)
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	return app
}

func TestNewApplicationStartsEmpty(t *testing.T) {
	env := newTestEnv(t)
	app := env.App(t)
	if app.ClinicID != "clinic-1" {
		t.Fatalf("clinic = %q", app.ClinicID)
	}
	for name, status := range map[string]domain.LifecycleStatus{
		"applicant":         app.Applicant.Status,
		"travel":            app.Travel.Status,
		"medical screening": app.MedicalScreening.Status,
		"chest x-ray":       app.ChestXray.Status,
		"sputum decision":   app.SputumDecision.Status,
		"sputum":            app.Sputum.Status,
		"certificate":       app.TbCertificate.Status,
	} {
		if status != domain.NotYetStarted {
			t.Errorf("%s status = %q", name, status)
		}
	}
	if app.Sputum.Sample1.SmearResults.Result != domain.NotYetEntered {
		t.Fatalf("smear = %q", app.Sputum.Sample1.SmearResults.Result)
	}
	if app.Sputum.Version != nil {
		t.Fatal("fresh application must not carry a version token")
	}
}

func TestGetApplicationUnknownID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GetApplication(env.Ctx, "no-such-id")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func completeApplicant() domain.Applicant {
	return domain.Applicant{
		FullName:             "Amara Okafor",
		Sex:                  "Female",
		DateOfBirth:          domain.DateValue{Day: "4", Month: "11", Year: "1991"},
		CountryOfNationality: "NG",
		PassportNumber:       "A1234567",
		CountryOfIssue:       "NG",
		PassportIssueDate:    domain.DateValue{Day: "1", Month: "2", Year: "2020"},
		PassportExpiryDate:   domain.DateValue{Day: "1", Month: "2", Year: "2030"},
		HomeAddress1:         "12 Broad Street",
		TownOrCity:           "Lagos",
		Country:              "NG",
	}
}

func TestSaveApplicantRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	saved, err := env.Engine.SaveApplicant(env.Ctx, env.AppID, "tester", completeApplicant())
	if err != nil {
		t.Fatalf("save applicant: %v", err)
	}
	if saved.Status != domain.Complete {
		t.Fatalf("status = %q", saved.Status)
	}
	app := env.App(t)
	if app.Applicant.FullName != "Amara Okafor" || app.Applicant.Status != domain.Complete {
		t.Fatalf("rehydrated applicant = %+v", app.Applicant)
	}
}

func TestSaveApplicantRejectsBadDates(t *testing.T) {
	env := newTestEnv(t)
	a := completeApplicant()
	a.DateOfBirth = domain.DateValue{Day: "30", Month: "2", Year: "1991"}
	a.PassportExpiryDate = domain.DateValue{Day: "1", Month: "2", Year: "2020"} // in the past

	_, err := env.Engine.SaveApplicant(env.Ctx, env.AppID, "tester", a)
	fields := fieldSet(t, err)
	if fields["birth-date"] != "Date of birth must be a real date" {
		t.Errorf("birth-date error = %q", fields["birth-date"])
	}
	if fields["passport-expiry-date"] != "Passport expiry date must be in the future" {
		t.Errorf("expiry error = %q", fields["passport-expiry-date"])
	}
}

func TestSaveMedicalScreeningWordLimit(t *testing.T) {
	env := newTestEnv(t)
	m := domain.MedicalScreening{
		CompletionDate: domain.DateValue{Day: "1", Month: "6", Year: "2025"},
		TbSymptoms:     domain.No,
		PhysicalExamNotes: strings.TrimSpace(
			strings.Repeat("note ", 151)),
	}
	_, err := env.Engine.SaveMedicalScreening(env.Ctx, env.AppID, "tester", m)
	fields := fieldSet(t, err)
	if fields["physical-exam-notes"] != "Physical examination notes must be 150 words or fewer" {
		t.Fatalf("notes error = %q", fields["physical-exam-notes"])
	}

	m.PhysicalExamNotes = strings.TrimSpace(strings.Repeat("note ", 150))
	saved, err := env.Engine.SaveMedicalScreening(env.Ctx, env.AppID, "tester", m)
	if err != nil {
		t.Fatalf("save at the limit: %v", err)
	}
	if saved.Status != domain.Complete || !saved.SubmittedToDatabase {
		t.Fatalf("saved = %+v", saved)
	}
}

func TestSputumDecisionNoMarksSputumNotRequired(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SaveSputumDecision(env.Ctx, env.AppID, "tester", domain.SputumDecision{
		IsSputumRequired: domain.No,
	}); err != nil {
		t.Fatalf("save decision: %v", err)
	}
	app := env.App(t)
	if app.Sputum.Status != domain.NotRequired {
		t.Fatalf("sputum status = %q", app.Sputum.Status)
	}
}

func TestSputumDecisionRequiresAnswer(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SaveSputumDecision(env.Ctx, env.AppID, "tester", domain.SputumDecision{})
	fields := fieldSet(t, err)
	if fields["sputum-required"] == "" {
		t.Fatalf("expected sputum-required error, got %v", fields)
	}
}

func TestChestXrayNotRequiredBranch(t *testing.T) {
	env := newTestEnv(t)
	saved, err := env.Engine.SaveChestXray(env.Ctx, env.AppID, "tester", domain.ChestXray{
		ReasonXrayNotRequired: domain.Pregnancy,
	})
	if err != nil {
		t.Fatalf("save chest x-ray: %v", err)
	}
	if saved.Status != domain.NotRequired {
		t.Fatalf("status = %q", saved.Status)
	}

	_, err = env.Engine.SaveChestXray(env.Ctx, env.AppID, "tester", domain.ChestXray{
		ReasonXrayNotRequired: domain.OtherReason,
	})
	fields := fieldSet(t, err)
	if fields["conditional-reason-xray-not-required-other-detail"] == "" {
		t.Fatalf("other reason needs detail, got %v", fields)
	}
}

func TestCertificateExpiryDerivation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SaveMedicalScreening(env.Ctx, env.AppID, "tester", domain.MedicalScreening{
		CompletionDate:     domain.DateValue{Day: "1", Month: "6", Year: "2025"},
		TbSymptoms:         domain.No,
		CloseContactWithTb: domain.Yes,
	}); err != nil {
		t.Fatalf("save screening: %v", err)
	}
	if _, err := env.Engine.SaveChestXray(env.Ctx, env.AppID, "tester", domain.ChestXray{
		DateXrayTaken: domain.DateValue{Day: "10", Month: "6", Year: "2025"},
		XrayResult:    "Normal",
	}); err != nil {
		t.Fatalf("save x-ray: %v", err)
	}

	saved, err := env.Engine.SaveTbCertificate(env.Ctx, env.AppID, "tester", domain.TbCertificate{
		IsIssued: domain.Yes,
	})
	if err != nil {
		t.Fatalf("save certificate: %v", err)
	}
	if saved.CertificateDate.Wire() != "2025-06-10" {
		t.Fatalf("issue date = %q", saved.CertificateDate.Wire())
	}
	// Close TB contact shortens validity to three months.
	if saved.CertificateExpiryDate.Wire() != "2025-09-10" {
		t.Fatalf("expiry date = %q", saved.CertificateExpiryDate.Wire())
	}
}

func TestCertificateNotIssuedNeedsReason(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SaveTbCertificate(env.Ctx, env.AppID, "tester", domain.TbCertificate{
		IsIssued: domain.No,
	})
	fields := fieldSet(t, err)
	if fields["reason-not-issued"] == "" {
		t.Fatalf("expected reason error, got %v", fields)
	}
}

func TestConsentRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	if err := env.Engine.Repo.UpsertConsent(env.Ctx, "tester", domain.ConsentAccepted, now); err != nil {
		t.Fatalf("upsert consent: %v", err)
	}
	got, err := env.Engine.Repo.GetConsent(env.Ctx, "tester")
	if err != nil || got != domain.ConsentAccepted {
		t.Fatalf("get consent: %v %q", err, got)
	}
	if err := env.Engine.Repo.UpsertConsent(env.Ctx, "tester", domain.ConsentRejected, now); err != nil {
		t.Fatalf("update consent: %v", err)
	}
	if got, _ = env.Engine.Repo.GetConsent(env.Ctx, "tester"); got != domain.ConsentRejected {
		t.Fatalf("consent = %q", got)
	}
	if _, err := env.Engine.Repo.GetConsent(env.Ctx, "someone-else"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
