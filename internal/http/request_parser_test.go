package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"adquisiciones/internal/core"
)

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"proveedor": "Papelería Central", "cantidad": 3, "valorUnitario": 42.5, "activo": true}`
	req := httptest.NewRequest(http.MethodPost, "/adquisiciones", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !parser.IsJSON() {
		t.Error("expected a JSON body")
	}

	for key, want := range map[string]string{
		"proveedor":     "Papelería Central",
		"cantidad":      "3",
		"valorUnitario": "42.5",
		"activo":        "true",
	} {
		if got := parser.Get(key); got != want {
			t.Errorf("Get(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	form := url.Values{"proveedor": {"  Tecnología SAS "}, "categoria": {"Equipos"}}
	req := httptest.NewRequest(http.MethodPost, "/adquisiciones", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parser.IsJSON() {
		t.Error("form data parsed as JSON")
	}
	if got := parser.Get("proveedor"); got != "Tecnología SAS" {
		t.Errorf("Get(proveedor) = %q", got)
	}
	if got := parser.Get("categoria"); got != "Equipos" {
		t.Errorf("Get(categoria) = %q", got)
	}
}

func TestRequestBodyParser_RejectsOversizedBody(t *testing.T) {
	body := "documentacion=" + strings.Repeat("x", maxBodyBytes)
	req := httptest.NewRequest(http.MethodPost, "/adquisiciones", strings.NewReader(body))

	if err := NewRequestBodyParser(req).Parse(); err != errBodyTooLarge {
		t.Errorf("Parse() error = %v, want %v", err, errBodyTooLarge)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequestBodyParser_SanitizesControlCharacters(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("proveedor=%20ACME%00%07+Ltda%20"))
	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := parser.Get("proveedor"); got != "ACME Ltda" {
		t.Errorf("Get('proveedor') = %q, want 'ACME Ltda'", got)
	}
}

func validForm() RecordForm {
	return RecordForm{
		Budget:             "1.500.000",
		AdministrativeUnit: "Rectoría",
		Category:           "Tecnología",
		Quantity:           "3",
		UnitValue:          "250000,50",
		AcquisitionDate:    "2025-03-01",
		Supplier:           "ACME Ltda",
	}
}

func TestRecordForm_Valid(t *testing.T) {
	r, errs := validForm().Record()
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !r.Budget.Equal(decimal.NewFromInt(1_500_000)) {
		t.Errorf("Budget = %s", r.Budget)
	}
	if !r.TotalValue.Equal(decimal.RequireFromString("750001.5")) {
		t.Errorf("TotalValue = %s, want quantity x unit value", r.TotalValue)
	}
	if r.AcquisitionDate.String() != "2025-03-01" {
		t.Errorf("AcquisitionDate = %s", r.AcquisitionDate)
	}
	if !r.Active {
		t.Error("new records start active")
	}
}

func TestRecordForm_ExplicitTotalIsKept(t *testing.T) {
	f := validForm()
	f.TotalValue = "100"
	r, errs := f.Record()
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !r.TotalValue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("TotalValue = %s, want 100", r.TotalValue)
	}
}

func TestRecordForm_Errors(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*RecordForm)
		field string
	}{
		{"negative budget", func(f *RecordForm) { f.Budget = "-1" }, core.FieldBudget},
		{"blank budget", func(f *RecordForm) { f.Budget = "" }, core.FieldBudget},
		{"zero quantity", func(f *RecordForm) { f.Quantity = "0" }, core.FieldQuantity},
		{"text unit value", func(f *RecordForm) { f.UnitValue = "abc" }, core.FieldUnitValue},
		{"bad total", func(f *RecordForm) { f.TotalValue = "x" }, core.FieldTotalValue},
		{"missing date", func(f *RecordForm) { f.AcquisitionDate = "" }, core.FieldAcquisitionDate},
		{"bad date", func(f *RecordForm) { f.AcquisitionDate = "31/02/2025" }, core.FieldAcquisitionDate},
		{"missing supplier", func(f *RecordForm) { f.Supplier = "  " }, core.FieldSupplier},
		{"missing unit", func(f *RecordForm) { f.AdministrativeUnit = "" }, core.FieldAdministrativeUnit},
		{"missing category", func(f *RecordForm) { f.Category = "" }, core.FieldCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.edit(&f)
			_, errs := f.Record()
			if _, ok := errs[tt.field]; !ok {
				t.Errorf("expected an error on %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestFormFromRecord_RoundTrips(t *testing.T) {
	r, errs := validForm().Record()
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	f := FormFromRecord(r)
	if f.AcquisitionDate != "2025-03-01" || f.Quantity != "3" || f.Budget != "1500000" {
		t.Errorf("unexpected form %+v", f)
	}
	again, errs := f.Record()
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !again.TotalValue.Equal(r.TotalValue) {
		t.Errorf("TotalValue changed: %s != %s", again.TotalValue, r.TotalValue)
	}
}

func TestQueryInt(t *testing.T) {
	q := url.Values{"page": {"3"}, "neg": {"-2"}, "bad": {"x"}}
	if got := queryInt(q, "page"); got != 3 {
		t.Errorf("queryInt(page) = %d", got)
	}
	for _, key := range []string{"neg", "bad", "missing"} {
		if got := queryInt(q, key); got != 0 {
			t.Errorf("queryInt(%s) = %d, want 0", key, got)
		}
	}
}
