package http

import (
	"fmt"
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"adquisiciones/internal/core"
)

// Relative times in Spanish; "%s" receives "hace" or "dentro de".
var relTimeMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "ahora", DivBy: time.Second},
	{D: time.Minute, Format: "%s unos segundos", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "%s 1 minuto", DivBy: 1},
	{D: time.Hour, Format: "%s %d minutos", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "%s 1 hora", DivBy: 1},
	{D: humanize.Day, Format: "%s %d horas", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "%s 1 día", DivBy: 1},
	{D: humanize.Month, Format: "%s %d días", DivBy: humanize.Day},
	{D: 2 * humanize.Month, Format: "%s 1 mes", DivBy: 1},
	{D: humanize.Year, Format: "%s %d meses", DivBy: humanize.Month},
	{D: 2 * humanize.Year, Format: "%s 1 año", DivBy: 1},
	{D: math.MaxInt64, Format: "%s %d años", DivBy: humanize.Year},
}

// relativeTime renders t relative to now, e.g. "hace 3 días".
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.CustomRelTime(t, now, "hace", "dentro de", relTimeMagnitudes)
}

func (s *Server) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money":  s.formatter.FormatMoney,
		"amount": s.formatter.FormatAmount,
		"number": func(n int) string { return s.formatter.FormatNumber(int64(n)) },
		"percent": func(p float64) string {
			return fmt.Sprintf("%.1f%%", p)
		},
		"barWidth": func(p float64) int {
			return int(math.Round(math.Max(0, math.Min(100, p))))
		},
		"ago": func(ts core.Timestamp) string {
			return relativeTime(ts.Time, s.now())
		},
		"stamp": func(ts core.Timestamp) string {
			if ts.IsZero() {
				return ""
			}
			return ts.Format("2006-01-02 15:04")
		},
		"fieldLabel": fieldLabel,
		"add":        func(a, b int) int { return a + b },
	}
}

func parseTemplates(fsys fs.FS, funcs template.FuncMap) (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(fsys, "templates/*.html")
}

var fieldLabels = map[string]string{
	core.FieldBudget:             "Presupuesto",
	core.FieldAdministrativeUnit: "Unidad administrativa",
	core.FieldCategory:           "Tipo de bien o servicio",
	core.FieldQuantity:           "Cantidad",
	core.FieldUnitValue:          "Valor unitario",
	core.FieldTotalValue:         "Valor total",
	core.FieldAcquisitionDate:    "Fecha de adquisición",
	core.FieldSupplier:           "Proveedor",
	core.FieldDocumentation:      "Documentación",
	core.FieldActive:             "Activo",
}

// fieldLabel maps a history field name to its form label.
func fieldLabel(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return field
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}
