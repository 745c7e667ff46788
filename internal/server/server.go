package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"petscreen/internal/domain"
	"petscreen/internal/repo"
	"petscreen/internal/screening"
	"petscreen/internal/tracker"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   screening.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"Enter the date sample 1 was taken on"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope every failure response carries.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the pre-entry screening API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request;
			// 422 is reserved for field validation out of the engine.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Pre-entry TB Screening API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerApplications(group, cfg.Engine)
	registerSteps(group, cfg.Engine)
	registerSputum(group, cfg.Engine)
	registerTracker(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerConsent(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve *screening.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", ve.Error(), map[string]any{"fields": ve.Fields})
	}
	if errors.Is(err, repo.ErrVersionConflict) {
		return newAPIError(http.StatusConflict, "version_conflict", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Pre-entry TB Screening API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerApplications(api huma.API, e screening.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-application",
		Method:        http.MethodPost,
		Path:          "/applications",
		Summary:       "Create application",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateApplicationRequest `json:"body"`
	}) (*struct {
		Body domain.Application `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		app, err := e.CreateApplication(ctx, input.Body.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Application `json:"body"`
		}{Body: app}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-applications",
		Method:      http.MethodGet,
		Path:        "/applications",
		Summary:     "List applications",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ClinicID string `query:"clinic_id"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body []ApplicationSummary `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		rows, err := e.Repo.ListApplications(ctx, input.ClinicID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]ApplicationSummary, 0, len(rows))
		for _, row := range rows {
			items = append(items, applicationSummary(row))
		}
		return &struct {
			Body []ApplicationSummary `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-application",
		Method:      http.MethodGet,
		Path:        "/applications/{application_id}",
		Summary:     "Get application",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ApplicationID string `path:"application_id"`
	}) (*struct {
		Body domain.Application `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		app, err := e.GetApplication(ctx, input.ApplicationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Application `json:"body"`
		}{Body: app}, nil
	})
}

func registerSteps(api huma.API, e screening.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "save-applicant",
		Method:      http.MethodPut,
		Path:        "/applications/{application_id}/applicant",
		Summary:     "Save visa applicant details",
		Errors:      stepErrors(),
	}, func(ctx context.Context, input *struct {
		ApplicationID string           `path:"application_id"`
		Body          domain.Applicant `json:"body"`
	}) (*struct {
		Body domain.Applicant `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		saved, err := e.SaveApplicant(ctx, input.ApplicationID, actorID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Applicant `json:"body"`
		}{Body: saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-travel",
		Method:      http.MethodPut,
		Path:        "/applications/{application_id}/travel",
		Summary:     "Save UK travel information",
		Errors:      stepErrors(),
	}, func(ctx context.Context, input *struct {
		ApplicationID string        `path:"application_id"`
		Body          domain.Travel `json:"body"`
	}) (*struct {
		Body domain.Travel `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		saved, err := e.SaveTravel(ctx, input.ApplicationID, actorID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Travel `json:"body"`
		}{Body: saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-medical-screening",
		Method:      http.MethodPost,
		Path:        "/applications/{application_id}/medical-screening",
		Summary:     "Save medical history and TB symptoms",
		Errors:      stepErrors(),
	}, func(ctx context.Context, input *struct {
		ApplicationID string                  `path:"application_id"`
		Body          domain.MedicalScreening `json:"body"`
	}) (*struct {
		Body domain.MedicalScreening `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		saved, err := e.SaveMedicalScreening(ctx, input.ApplicationID, actorID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MedicalScreening `json:"body"`
		}{Body: saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-chest-xray",
		Method:      http.MethodPost,
		Path:        "/applications/{application_id}/chest-xray",
		Summary:     "Save chest X-ray and radiological outcome",
		Errors:      stepErrors(),
	}, func(ctx context.Context, input *struct {
		ApplicationID string           `path:"application_id"`
		Body          domain.ChestXray `json:"body"`
	}) (*struct {
		Body domain.ChestXray `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		saved, err := e.SaveChestXray(ctx, input.ApplicationID, actorID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChestXray `json:"body"`
		}{Body: saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-sputum-decision",
		Method:      http.MethodPost,
		Path:        "/applications/{application_id}/sputum-decision",
		Summary:     "Save sputum decision",
		Errors:      stepErrors(),
	}, func(ctx context.Context, input *struct {
		ApplicationID string                `path:"application_id"`
		Body          domain.SputumDecision `json:"body"`
	}) (*struct {
		Body domain.SputumDecision `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		saved, err := e.SaveSputumDecision(ctx, input.ApplicationID, actorID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SputumDecision `json:"body"`
		}{Body: saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-tb-certificate",
		Method:      http.MethodPost,
		Path:        "/applications/{application_id}/tb-certificate",
		Summary:     "Save TB certificate outcome",
		Errors:      stepErrors(),
	}, func(ctx context.Context, input *struct {
		ApplicationID string               `path:"application_id"`
		Body          domain.TbCertificate `json:"body"`
	}) (*struct {
		Body domain.TbCertificate `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		saved, err := e.SaveTbCertificate(ctx, input.ApplicationID, actorID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TbCertificate `json:"body"`
		}{Body: saved}, nil
	})
}

func registerSputum(api huma.API, e screening.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "save-sputum-collection",
		Method:      http.MethodPost,
		Path:        "/applications/{application_id}/sputum/collection",
		Summary:     "Save sputum collection details",
		Errors:      stepErrors(),
	}, func(ctx context.Context, input *struct {
		ApplicationID string            `path:"application_id"`
		Body          CollectionRequest `json:"body"`
	}) (*struct {
		Body NextResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		intent := screening.CollectionIntent(input.Body.Intent)
		if !intent.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown intent", map[string]any{"intent": input.Body.Intent})
		}
		next, err := e.SaveCollection(ctx, input.ApplicationID, actorID, intent, input.Body.collectionInput())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NextResponse `json:"body"`
		}{Body: NextResponse{Next: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-sputum-results",
		Method:      http.MethodPost,
		Path:        "/applications/{application_id}/sputum/results",
		Summary:     "Save sputum sample results",
		Errors:      stepErrors(),
	}, func(ctx context.Context, input *struct {
		ApplicationID string         `path:"application_id"`
		Body          ResultsRequest `json:"body"`
	}) (*struct {
		Body NextResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		next, err := e.SaveResults(ctx, input.ApplicationID, actorID, input.Body.resultsInput())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NextResponse `json:"body"`
		}{Body: NextResponse{Next: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-sputum",
		Method:      http.MethodPut,
		Path:        "/applications/{application_id}/sputum",
		Summary:     "Submit staged sputum information",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ApplicationID string        `path:"application_id"`
		Body          SubmitRequest `json:"body"`
	}) (*struct {
		Body SubmitResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		outcome, err := e.Submit(ctx, input.ApplicationID, actorID, input.Body.Version)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmitResponse `json:"body"`
		}{Body: submitResponse(outcome)}, nil
	})
}

func registerTracker(api huma.API, e screening.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-tracker",
		Method:      http.MethodGet,
		Path:        "/applications/{application_id}/tracker",
		Summary:     "Progress tracker",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ApplicationID string `path:"application_id"`
	}) (*struct {
		Body []tracker.Row `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		app, err := e.GetApplication(ctx, input.ApplicationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []tracker.Row `json:"body"`
		}{Body: tracker.Derive(app)}, nil
	})
}

func registerEvents(api huma.API, e screening.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ApplicationID string `query:"application_id"`
		Type          string `query:"type"`
		Step          string `query:"step"`
		Limit         int    `query:"limit" default:"50"`
		Cursor        string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.ApplicationID, input.Type, input.Step)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []domain.Event{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerConsent(api huma.API, e screening.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "put-consent",
		Method:      http.MethodPut,
		Path:        "/consent",
		Summary:     "Record cookie consent for the caller",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ConsentRequest `json:"body"`
	}) (*struct {
		Body ConsentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		decision := domain.CookieConsent(input.Body.Decision)
		if decision != domain.ConsentAccepted && decision != domain.ConsentRejected {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown consent decision", map[string]any{"decision": input.Body.Decision})
		}
		now := e.Now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpsertConsent(ctx, actorID, decision, now); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsentResponse `json:"body"`
		}{Body: ConsentResponse{ActorID: actorID, Decision: string(decision)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-consent",
		Method:      http.MethodGet,
		Path:        "/consent",
		Summary:     "Read the caller's cookie consent",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ConsentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		decision, err := e.Repo.GetConsent(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsentResponse `json:"body"`
		}{Body: ConsentResponse{ActorID: actorID, Decision: string(decision)}}, nil
	})
}

func stepErrors() []int {
	return []int{
		http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusUnprocessableEntity,
		http.StatusInternalServerError,
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}
