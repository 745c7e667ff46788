// Package tracker derives the task-list view of one application. The
// derivation is pure: it is recomputed from the aggregate root on every
// request and has no side effects.
package tracker

import "petscreen/internal/domain"

// Row is one task on the tracker.
type Row struct {
	Description string                 `json:"description"`
	Status      domain.LifecycleStatus `json:"status"`
	// Label is the display tag: the status verbatim, "Cannot start yet"
	// when blocked, or the certificate issue outcome.
	Label string `json:"label"`
	// Href is empty when the task cannot be opened.
	Href    string `json:"href,omitempty"`
	Blocked bool   `json:"blocked"`
}

// Step entry and check routes.
const (
	routeApplicantEntry   = "/enter-applicant-information"
	routeApplicantCheck   = "/check-visa-applicant-details"
	routeTravelEntry      = "/proposed-visa-category"
	routeTravelCheck      = "/check-travel-information"
	routeScreeningEntry   = "/record-medical-history-tb-symptoms"
	routeScreeningCheck   = "/check-medical-history-and-tb-symptoms"
	routeXrayEntry        = "/chest-x-ray-results"
	routeXrayCheck        = "/check-chest-x-ray-results-findings"
	routeDecisionEntry    = "/is-sputum-collection-required"
	routeDecisionCheck    = "/check-sputum-decision-information"
	routeCollectionEntry  = "/sputum-collection-details"
	routeResultsEntry     = "/enter-sputum-sample-results"
	routeSputumCheck      = "/check-sputum-sample-information"
	routeCertificateEntry = "/will-you-issue-tb-clearance-certificate"
	routeCertificateCheck = "/tb-screening-complete"
)

// Derive maps the aggregate root to the tracker rows in display order.
func Derive(app domain.Application) []Row {
	applicant := app.Applicant.Status
	travel := app.Travel.Status
	screening := app.MedicalScreening.Status

	xray := app.ChestXray.Status
	if app.MedicalScreening.ChestXrayTaken == domain.No {
		xray = domain.NotRequired
	}

	decision := app.SputumDecision.Status

	sputum := app.Sputum.Status
	if app.SputumDecision.IsSputumRequired == domain.No {
		sputum = domain.NotRequired
	}

	certificate := app.TbCertificate.Status

	rows := []Row{
		task("Visa applicant details", applicant, routeApplicantEntry, routeApplicantCheck),
		task("UK travel information", travel, routeTravelEntry, routeTravelCheck, applicant),
		task("Medical history and TB symptoms", screening, routeScreeningEntry, routeScreeningCheck, applicant, travel),
		task("Chest X-ray and radiological outcome", xray, routeXrayEntry, routeXrayCheck, applicant, travel, screening),
		task("Make a sputum decision", decision, routeDecisionEntry, routeDecisionCheck, applicant, travel, screening, xray),
		sputumTask(app, sputum, applicant, travel, screening, xray, decision),
		certificateTask(app, certificate, applicant, travel, screening, xray, decision, sputum),
	}
	return rows
}

func prerequisitesMet(statuses []domain.LifecycleStatus) bool {
	for _, s := range statuses {
		if s != domain.Complete && s != domain.NotRequired {
			return false
		}
	}
	return true
}

func task(description string, status domain.LifecycleStatus, entryHref, checkHref string, prereqs ...domain.LifecycleStatus) Row {
	row := Row{Description: description, Status: status, Label: string(status)}
	switch {
	case status == domain.NotRequired:
		// static row, no link
	case status == domain.Complete:
		row.Label = "Completed"
		row.Href = checkHref
	case !prerequisitesMet(prereqs):
		row.Blocked = true
		if status == domain.NotYetStarted {
			row.Label = "Cannot start yet"
		}
	default:
		row.Href = entryHref
	}
	return row
}

// sputumTask picks the link from how far the workflow has progressed: the
// check page once complete, results entry once every collection is
// submitted, the collection form otherwise.
func sputumTask(app domain.Application, status domain.LifecycleStatus, prereqs ...domain.LifecycleStatus) Row {
	href := routeCollectionEntry
	if status == domain.Complete {
		href = routeSputumCheck
	} else if app.Sputum.AllCollectionsSubmitted() {
		href = routeResultsEntry
	}
	row := task("Sputum collection and results", status, href, href, prereqs...)
	return row
}

// certificateTask replaces the Completed tag with the issue outcome.
func certificateTask(app domain.Application, status domain.LifecycleStatus, prereqs ...domain.LifecycleStatus) Row {
	row := task("TB certificate outcome", status, routeCertificateEntry, routeCertificateCheck, prereqs...)
	if status == domain.Complete {
		if app.TbCertificate.IsIssued == domain.Yes {
			row.Label = "Certificate issued"
		} else {
			row.Label = "Certificate not issued"
		}
	}
	return row
}
