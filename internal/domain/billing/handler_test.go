package billing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	api := e.Group("/api/v1", auth.DevAuthMiddleware(nil))
	NewHandler(newTestService(t)).RegisterRoutes(api)
	return e
}

func serve(e *echo.Echo, method, target, role, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(auth.DevRoleHeader, role)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const newBill = `{"id":"bill-9","patientId":"pat-1","items":[{"description":"Consultation","quantity":2,"unitPrice":250}]}`

func TestHandler_CreateAndPay(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, http.MethodPost, "/api/v1/bills", auth.RoleBilling, newBill)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var b Bill
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Total != 1100 || b.Status != StatusPending {
		t.Errorf("unexpected bill %+v", b)
	}

	rec = serve(e, http.MethodPost, "/api/v1/bills/bill-9/payments", auth.RoleBilling, `{"amount":1100,"method":"card"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"paid"`) {
		t.Fatalf("expected paid bill, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = serve(e, http.MethodPost, "/api/v1/bills/bill-9/payments", auth.RoleBilling, `{"amount":1,"method":"card"}`)
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusConflict {
		t.Errorf("expected payment on a paid bill to be refused, got %d", rec.Code)
	}
}

func TestHandler_ExplicitTaxRate(t *testing.T) {
	e := newTestServer(t)
	body := `{"patientId":"pat-1","taxRate":0,"items":[{"description":"X-ray","quantity":1,"unitPrice":400}]}`
	rec := serve(e, http.MethodPost, "/api/v1/bills", auth.RoleBilling, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"total":400`) {
		t.Errorf("expected untaxed total, got %s", rec.Body.String())
	}
}

func TestHandler_Roles(t *testing.T) {
	e := newTestServer(t)
	if rec := serve(e, http.MethodPost, "/api/v1/bills", auth.RoleReceptionist, newBill); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for receptionist create, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/v1/bills/summary", auth.RoleReceptionist, ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for receptionist summary, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/v1/bills", auth.RoleNurse, ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for nurse, got %d", rec.Code)
	}
}

func TestHandler_PatchRejectsComputedFields(t *testing.T) {
	e := newTestServer(t)
	serve(e, http.MethodPost, "/api/v1/bills", auth.RoleBilling, newBill)
	rec := serve(e, http.MethodPatch, "/api/v1/bills/bill-9", auth.RoleBilling, `{"total":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 patching total, got %d", rec.Code)
	}
	rec = serve(e, http.MethodPatch, "/api/v1/bills/bill-9", auth.RoleBilling, `{"discount":100}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":990`) {
		t.Errorf("expected recomputed total 990, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_MineOnlyForPatients(t *testing.T) {
	e := newTestServer(t)
	rec := serve(e, http.MethodGet, "/api/v1/me/bills", auth.RolePatient, "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := serve(e, http.MethodGet, "/api/v1/me/bills", auth.RoleBilling, ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for billing, got %d", rec.Code)
	}
}
