// This file implements utilities for parsing and validating HTTP request data:
// body decoding for form and JSON submissions, the record form and query
// parameters.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"adquisiciones/internal/core"
)

// maxBodyBytes bounds a record submission; the form has ten short fields.
const maxBodyBytes = 64 << 10

var errBodyTooLarge = errors.New("request body too large")

// RequestBodyParser reads a record submission sent either as an HTMX form
// or as JSON.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' || p.body[0] == '[' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an any value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// RecordForm is the raw content of the record form. It is kept as typed so
// a rejected submission renders back unchanged.
type RecordForm struct {
	Budget             string
	AdministrativeUnit string
	Category           string
	Quantity           string
	UnitValue          string
	TotalValue         string
	AcquisitionDate    string
	Supplier           string
	Documentation      string
}

// ParseRecordForm reads the record fields from a parsed body.
func ParseRecordForm(p *RequestBodyParser) RecordForm {
	return RecordForm{
		Budget:             p.Get(core.FieldBudget),
		AdministrativeUnit: p.Get(core.FieldAdministrativeUnit),
		Category:           p.Get(core.FieldCategory),
		Quantity:           p.Get(core.FieldQuantity),
		UnitValue:          p.Get(core.FieldUnitValue),
		TotalValue:         p.Get(core.FieldTotalValue),
		AcquisitionDate:    p.Get(core.FieldAcquisitionDate),
		Supplier:           p.Get(core.FieldSupplier),
		Documentation:      p.Get(core.FieldDocumentation),
	}
}

// FormFromRecord pre-fills the edit form. Dates render as yyyy-MM-dd. The
// total is left blank when it equals quantity × unit value so an edited
// quantity recomputes it.
func FormFromRecord(r core.Record) RecordForm {
	total := r.TotalValue.String()
	if r.TotalValue.Equal(r.ComputedTotal()) {
		total = ""
	}
	return RecordForm{
		Budget:             r.Budget.String(),
		AdministrativeUnit: r.AdministrativeUnit,
		Category:           r.Category,
		Quantity:           strconv.FormatInt(r.Quantity, 10),
		UnitValue:          r.UnitValue.String(),
		TotalValue:         total,
		AcquisitionDate:    r.AcquisitionDate.String(),
		Supplier:           r.Supplier,
		Documentation:      r.Documentation,
	}
}

// Record converts the form into a record. Parse failures and rule
// violations are reported together, keyed by field name. A blank total is
// derived from quantity and unit value.
func (f RecordForm) Record() (core.Record, core.ValidationErrors) {
	errs := core.ValidationErrors{}
	r := core.Record{
		AdministrativeUnit: f.AdministrativeUnit,
		Category:           f.Category,
		Supplier:           f.Supplier,
		Documentation:      f.Documentation,
		Active:             true,
	}

	var err error
	if r.Budget, err = core.ParseAmount(f.Budget); err != nil {
		errs[core.FieldBudget] = "El presupuesto debe ser un valor numérico mayor o igual a 0"
	}
	if r.Quantity, err = core.ParseQuantity(f.Quantity); err != nil {
		errs[core.FieldQuantity] = "La cantidad debe ser un número entero mayor o igual a 1"
	}
	if r.UnitValue, err = core.ParseAmount(f.UnitValue); err != nil {
		errs[core.FieldUnitValue] = "El valor unitario debe ser un valor numérico mayor o igual a 0"
	}
	if strings.TrimSpace(f.TotalValue) != "" {
		if r.TotalValue, err = core.ParseAmount(f.TotalValue); err != nil {
			errs[core.FieldTotalValue] = "El valor total debe ser un valor numérico mayor o igual a 0"
		}
	}
	if strings.TrimSpace(f.AcquisitionDate) != "" {
		if r.AcquisitionDate, err = core.ParseDate(f.AcquisitionDate); err != nil {
			errs[core.FieldAcquisitionDate] = "La fecha de adquisición no es válida"
		}
	}

	r = r.WithComputedTotal()
	if verr, ok := r.Validate().(core.ValidationErrors); ok {
		for field, msg := range verr {
			if _, seen := errs[field]; !seen {
				errs[field] = msg
			}
		}
	}
	if len(errs) > 0 {
		return r, errs
	}
	return r, nil
}

// queryInt returns the positive integer query parameter key, or 0.
func queryInt(q url.Values, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(q.Get(key)))
	if err != nil || n < 1 {
		return 0
	}
	return n
}
