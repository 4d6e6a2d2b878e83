package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"glowdesk/backend/internal/domain"
	"glowdesk/backend/internal/service/scheduling"
	"glowdesk/backend/internal/store"
)

type fakeService struct {
	createFn          func(ctx context.Context, in scheduling.CreateInput) (scheduling.BookingResult, error)
	createRecurringFn func(ctx context.Context, in scheduling.RecurringInput) (scheduling.SeriesResult, error)
	rescheduleFn      func(ctx context.Context, in scheduling.RescheduleInput) (scheduling.BookingResult, error)
	cancelFn          func(ctx context.Context, in scheduling.CancelInput) (scheduling.BookingResult, error)
	transitionFn      func(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error)
	availabilityFn    func(ctx context.Context, q scheduling.AvailabilityQuery) (domain.DayAvailability, error)
	availRangeFn      func(ctx context.Context, q scheduling.AvailabilityRangeQuery) ([]domain.DayAvailability, error)
	getFn             func(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error)
}

func (f *fakeService) CreateAppointment(ctx context.Context, in scheduling.CreateInput) (scheduling.BookingResult, error) {
	if f.createFn == nil {
		panic("CreateAppointment not configured")
	}
	return f.createFn(ctx, in)
}

func (f *fakeService) CreateRecurringSeries(ctx context.Context, in scheduling.RecurringInput) (scheduling.SeriesResult, error) {
	if f.createRecurringFn == nil {
		panic("CreateRecurringSeries not configured")
	}
	return f.createRecurringFn(ctx, in)
}

func (f *fakeService) RescheduleAppointment(ctx context.Context, in scheduling.RescheduleInput) (scheduling.BookingResult, error) {
	if f.rescheduleFn == nil {
		panic("RescheduleAppointment not configured")
	}
	return f.rescheduleFn(ctx, in)
}

func (f *fakeService) CancelAppointment(ctx context.Context, in scheduling.CancelInput) (scheduling.BookingResult, error) {
	if f.cancelFn == nil {
		panic("CancelAppointment not configured")
	}
	return f.cancelFn(ctx, in)
}

func (f *fakeService) ConfirmAppointment(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error) {
	if f.transitionFn == nil {
		panic("ConfirmAppointment not configured")
	}
	return f.transitionFn(ctx, tenantID, id)
}

func (f *fakeService) CheckInAppointment(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error) {
	if f.transitionFn == nil {
		panic("CheckInAppointment not configured")
	}
	return f.transitionFn(ctx, tenantID, id)
}

func (f *fakeService) StartAppointment(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error) {
	if f.transitionFn == nil {
		panic("StartAppointment not configured")
	}
	return f.transitionFn(ctx, tenantID, id)
}

func (f *fakeService) CompleteAppointment(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error) {
	if f.transitionFn == nil {
		panic("CompleteAppointment not configured")
	}
	return f.transitionFn(ctx, tenantID, id)
}

func (f *fakeService) MarkNoShow(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error) {
	if f.transitionFn == nil {
		panic("MarkNoShow not configured")
	}
	return f.transitionFn(ctx, tenantID, id)
}

func (f *fakeService) Availability(ctx context.Context, q scheduling.AvailabilityQuery) (domain.DayAvailability, error) {
	if f.availabilityFn == nil {
		panic("Availability not configured")
	}
	return f.availabilityFn(ctx, q)
}

func (f *fakeService) AvailabilityRange(ctx context.Context, q scheduling.AvailabilityRangeQuery) ([]domain.DayAvailability, error) {
	if f.availRangeFn == nil {
		panic("AvailabilityRange not configured")
	}
	return f.availRangeFn(ctx, q)
}

func (f *fakeService) GetAppointment(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("GetAppointment not configured")
	}
	return f.getFn(ctx, tenantID, id)
}

func newTestEcho(svc *fakeService) *echo.Echo {
	e := echo.New()
	NewServer(svc, nil).Routes(e)
	return e
}

func doJSON(e *echo.Echo, method, path, tenant, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tenant != "" {
		req.Header.Set(tenantHeader, tenant)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateAppointment_RequiresTenantHeader(t *testing.T) {
	e := newTestEcho(&fakeService{})

	rec := doJSON(e, http.MethodPost, "/v1/appointments", "", `{"client_id":"c1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateAppointment_PassesInputThrough(t *testing.T) {
	var got scheduling.CreateInput
	e := newTestEcho(&fakeService{
		createFn: func(ctx context.Context, in scheduling.CreateInput) (scheduling.BookingResult, error) {
			got = in
			return scheduling.BookingResult{Appointment: domain.Appointment{ID: uuid.New()}}, nil
		},
	})

	serviceID := uuid.New()
	body := `{
		"client_id": "c1",
		"professional_id": "p1",
		"services": [{"service_id": "` + serviceID.String() + `", "quantity": 1}],
		"scheduled_at": "2026-03-02T10:00:00Z",
		"idempotency_key": "k1"
	}`
	rec := doJSON(e, http.MethodPost, "/v1/appointments", "t1", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}

	if got.TenantID != "t1" || got.ClientID != "c1" || got.ProfessionalID != "p1" {
		t.Fatalf("input = %+v, identity fields wrong", got)
	}
	if got.IdempotencyKey != "k1" {
		t.Fatalf("idempotency_key = %q, want k1", got.IdempotencyKey)
	}
	if len(got.Services) != 1 || got.Services[0].ServiceID != serviceID {
		t.Fatalf("services = %+v", got.Services)
	}
	if !got.ScheduledAt.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("scheduled_at = %v", got.ScheduledAt)
	}
}

func TestCreateAppointment_MapsValidationError(t *testing.T) {
	e := newTestEcho(&fakeService{
		createFn: func(ctx context.Context, in scheduling.CreateInput) (scheduling.BookingResult, error) {
			return scheduling.BookingResult{}, &scheduling.ValidationError{}
		},
	})

	rec := doJSON(e, http.MethodPost, "/v1/appointments", "t1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateAppointment_MapsConflictWithStructuredBody(t *testing.T) {
	conflicting := uuid.New()
	e := newTestEcho(&fakeService{
		createFn: func(ctx context.Context, in scheduling.CreateInput) (scheduling.BookingResult, error) {
			return scheduling.BookingResult{}, &scheduling.BookingConflictError{
				OccurrenceIndex: -1,
				Result: domain.ConflictResult{
					HasConflict: true,
					Conflicts: []domain.Conflict{{
						Type:                domain.ConflictOverlap,
						Severity:            domain.SeverityError,
						ConflictingEntityID: conflicting.String(),
					}},
				},
			}
		},
	})

	rec := doJSON(e, http.MethodPost, "/v1/appointments", "t1", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var body conflictResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(body.Conflicts.Conflicts) != 1 || body.Conflicts.Conflicts[0].ConflictingEntityID != conflicting.String() {
		t.Fatalf("conflict body = %+v, want the conflicting entity id", body)
	}
}

func TestGetAppointment_MapsNotFound(t *testing.T) {
	e := newTestEcho(&fakeService{
		getFn: func(ctx context.Context, tenantID string, id uuid.UUID) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrNotFound
		},
	})

	rec := doJSON(e, http.MethodGet, "/v1/appointments/"+uuid.NewString(), "t1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetAppointment_RejectsBadID(t *testing.T) {
	e := newTestEcho(&fakeService{})

	rec := doJSON(e, http.MethodGet, "/v1/appointments/not-a-uuid", "t1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTransition_MapsInvalidTransition(t *testing.T) {
	e := newTestEcho(&fakeService{
		transitionFn: func(ctx context.Context, tenantID string, id uuid.UUID) (scheduling.BookingResult, error) {
			return scheduling.BookingResult{}, &domain.InvalidStatusTransitionError{
				From: domain.StatusPending,
				To:   domain.StatusCompleted,
			}
		},
	})

	rec := doJSON(e, http.MethodPost, "/v1/appointments/"+uuid.NewString()+"/complete", "t1", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreateAppointment_MapsQuotaExceeded(t *testing.T) {
	e := newTestEcho(&fakeService{
		createFn: func(ctx context.Context, in scheduling.CreateInput) (scheduling.BookingResult, error) {
			return scheduling.BookingResult{}, &scheduling.QuotaExceededError{TenantID: in.TenantID, Limit: "appointments_per_month"}
		},
	})

	rec := doJSON(e, http.MethodPost, "/v1/appointments", "t1", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestCreateRecurringSeries_MapsCeilingError(t *testing.T) {
	e := newTestEcho(&fakeService{
		createRecurringFn: func(ctx context.Context, in scheduling.RecurringInput) (scheduling.SeriesResult, error) {
			return scheduling.SeriesResult{}, &domain.RecurrenceTooLargeError{Limit: 52}
		},
	})

	body := `{"recurrence_pattern": {"frequency": "daily", "interval": 1, "end_type": "count", "count": 5}}`
	rec := doJSON(e, http.MethodPost, "/v1/appointments/recurring", "t1", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateRecurringSeries_RequiresPattern(t *testing.T) {
	e := newTestEcho(&fakeService{})

	rec := doJSON(e, http.MethodPost, "/v1/appointments/recurring", "t1", `{"client_id":"c1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetAvailability_SingleDay(t *testing.T) {
	var got scheduling.AvailabilityQuery
	e := newTestEcho(&fakeService{
		availabilityFn: func(ctx context.Context, q scheduling.AvailabilityQuery) (domain.DayAvailability, error) {
			got = q
			return domain.DayAvailability{ProfessionalID: q.ProfessionalID, IsWorkingDay: true}, nil
		},
	})

	rec := doJSON(e, http.MethodGet, "/v1/availability?professional_id=p1&date=2026-03-02&duration_minutes=60", "t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if got.ProfessionalID != "p1" || got.Duration != time.Hour {
		t.Fatalf("query = %+v", got)
	}
	if !got.Date.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v", got.Date)
	}
}

func TestGetAvailability_RangeQuery(t *testing.T) {
	var got scheduling.AvailabilityRangeQuery
	e := newTestEcho(&fakeService{
		availRangeFn: func(ctx context.Context, q scheduling.AvailabilityRangeQuery) ([]domain.DayAvailability, error) {
			got = q
			return nil, nil
		},
	})

	rec := doJSON(e, http.MethodGet,
		"/v1/availability?professional_id=p1&professional_id=p2&from=2026-03-02&to=2026-03-04&duration_minutes=30", "t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if len(got.ProfessionalIDs) != 2 {
		t.Fatalf("professionals = %v, want two", got.ProfessionalIDs)
	}
	if got.Duration != 30*time.Minute {
		t.Fatalf("duration = %v, want 30m", got.Duration)
	}
}

func TestGetAvailability_RejectsBadDuration(t *testing.T) {
	e := newTestEcho(&fakeService{})

	for _, q := range []string{"duration_minutes=0", "duration_minutes=abc", ""} {
		rec := doJSON(e, http.MethodGet, "/v1/availability?professional_id=p1&date=2026-03-02&"+q, "t1", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("query %q: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestCancelAppointment_PassesReason(t *testing.T) {
	var got scheduling.CancelInput
	e := newTestEcho(&fakeService{
		cancelFn: func(ctx context.Context, in scheduling.CancelInput) (scheduling.BookingResult, error) {
			got = in
			return scheduling.BookingResult{Appointment: domain.Appointment{ID: in.AppointmentID, Status: domain.StatusCancelled}}, nil
		},
	})

	id := uuid.New()
	rec := doJSON(e, http.MethodPost, "/v1/appointments/"+id.String()+"/cancel", "t1", `{"reason":"client request"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if got.AppointmentID != id || got.Reason != "client request" {
		t.Fatalf("input = %+v", got)
	}
}

func TestRescheduleAppointment_PassesNewTime(t *testing.T) {
	var got scheduling.RescheduleInput
	e := newTestEcho(&fakeService{
		rescheduleFn: func(ctx context.Context, in scheduling.RescheduleInput) (scheduling.BookingResult, error) {
			got = in
			return scheduling.BookingResult{Appointment: domain.Appointment{ID: in.AppointmentID}}, nil
		},
	})

	id := uuid.New()
	rec := doJSON(e, http.MethodPost, "/v1/appointments/"+id.String()+"/reschedule", "t1",
		`{"new_scheduled_at":"2026-03-09T14:00:00Z","override_warnings":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if !got.NewScheduledAt.Equal(time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)) || !got.OverrideWarnings {
		t.Fatalf("input = %+v", got)
	}
}
