package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"adquisiciones/internal/core"
	"adquisiciones/internal/listing"
	applog "adquisiciones/internal/log"
	"adquisiciones/internal/services"
)

const maxFormBytes = 64 << 10

const (
	msgLoadFailed      = "No se pudieron cargar las adquisiciones"
	msgNotFound        = "La adquisición solicitada no existe"
	msgSaveFailed      = "Error al guardar la adquisición"
	msgDeactivated     = "Adquisición desactivada exitosamente"
	msgReactivated     = "Adquisición reactivada exitosamente"
	msgDeactivateError = "Error al desactivar la adquisición"
	msgReactivateError = "Error al reactivar la adquisición"
	msgExportDisabled  = "La exportación a Google Sheets no está configurada"
	msgExportFailed    = "Error al exportar las adquisiciones"

	noticeNotFound = "no-encontrada"
)

type dashboardPage struct {
	Title     string
	Stats     core.DashboardStatistics
	Preview   []core.Record
	Error     string
	CanExport bool
}

type statusOption struct {
	Value    listing.Status
	Label    string
	Selected bool
}

type pageLink struct {
	Number  int
	URL     string
	Current bool
}

type listPage struct {
	Title    string
	Result   services.ListResult
	Search   string
	Statuses []statusOption
	Pages    []pageLink
	SelfURL  string
	PrevURL  string
	NextURL  string
	Notice   string
	Error    string
}

type formPage struct {
	Title  string
	Action string
	ID     int64
	Form   RecordForm
	Errors core.ValidationErrors
	Error  string
}

type historyPage struct {
	Title string
	View  services.HistoryView
}

type errorPage struct {
	Title   string
	Message string
}

// render executes a template into a buffer so a failing template never
// leaves a half-written page behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.WithComponent(applog.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			"template", name,
			applog.FieldOperation, applog.OpRender)
		http.Error(w, "Error al generar la página", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.render(w, r, status, "error.html", errorPage{Title: "Error", Message: message})
}

func (s *Server) backendFailed(r *http.Request, op string, err error) {
	s.appMetrics.backendFails.Add(1)
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
		"Backend operation failed", err, applog.ComponentAPI, op,
		applog.LogFields{applog.FieldPath: r.URL.Path})
}

func (s *Server) dashboardData(r *http.Request) dashboardPage {
	d, err := s.svc.Dashboard(r.Context(), s.now())
	page := dashboardPage{
		Title:     "Panel de adquisiciones",
		Stats:     d.Stats,
		Preview:   d.Preview,
		CanExport: s.svc.CanExport(),
	}
	if err != nil {
		s.backendFailed(r, applog.OpList, err)
		page.Error = msgLoadFailed
	}
	return page
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "dashboard.html", s.dashboardData(r))
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "stats_partial.html", s.dashboardData(r))
}

func (s *Server) handleStatsJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	d, err := s.svc.Dashboard(r.Context(), s.now())
	if err != nil {
		s.backendFailed(r, applog.OpList, err)
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": msgLoadFailed})
		return
	}
	_ = json.NewEncoder(w).Encode(d.Stats)
}

func listURL(search string, status listing.Status, page int) string {
	v := url.Values{}
	if search != "" {
		v.Set("q", search)
	}
	if status != listing.StatusActive {
		v.Set("estado", string(status))
	}
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}
	if len(v) == 0 {
		return "/adquisiciones"
	}
	return "/adquisiciones?" + v.Encode()
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := services.ListQuery{
		Search: sanitizeInput(q.Get("q")),
		Page:   queryInt(q, "page"),
		Status: listing.ParseStatus(q.Get("estado")),
	}

	res, err := s.svc.Listing(r.Context(), query, s.now())
	page := listPage{
		Title:  "Adquisiciones",
		Result: res,
		Search: query.Search,
	}
	if err != nil {
		s.backendFailed(r, applog.OpList, err)
		page.Error = msgLoadFailed
	}
	if q.Get("aviso") == noticeNotFound {
		page.Notice = msgNotFound
	}

	for _, opt := range []statusOption{
		{Value: listing.StatusActive, Label: "Activas"},
		{Value: listing.StatusInactive, Label: "Inactivas"},
		{Value: listing.StatusAll, Label: "Todas"},
	} {
		opt.Selected = opt.Value == res.Status
		page.Statuses = append(page.Statuses, opt)
	}
	for _, n := range res.State.Pages() {
		page.Pages = append(page.Pages, pageLink{
			Number:  n,
			URL:     listURL(query.Search, res.Status, n),
			Current: n == res.State.CurrentPage,
		})
	}
	page.SelfURL = listURL(query.Search, res.Status, res.State.CurrentPage)
	if res.State.HasPrev() {
		page.PrevURL = listURL(query.Search, res.Status, res.State.Prev().CurrentPage)
	}
	if res.State.HasNext() {
		page.NextURL = listURL(query.Search, res.Status, res.State.Next().CurrentPage)
	}

	name := "list.html"
	if isHTMX(r) && r.Header.Get("HX-Target") == "record-list" {
		name = "list_partial.html"
	}
	s.render(w, r, http.StatusOK, name, page)
}

func (s *Server) handleNewForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "form.html", formPage{
		Title:  "Nueva adquisición",
		Action: "/adquisiciones",
		Form: RecordForm{
			Quantity:        "1",
			AcquisitionDate: s.now().Format(core.DateLayout),
		},
	})
}

// redirectNotFound sends the user back to the list with an error notice.
func (s *Server) redirectNotFound(w http.ResponseWriter, r *http.Request) {
	target := "/adquisiciones?aviso=" + noticeNotFound
	if isHTMX(r) {
		NewHTMXResponse().
			TriggerErrorNotification(msgNotFound).
			Redirect(target).
			Write(w)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseID(r.PathValue("id"))
	if err != nil {
		s.redirectNotFound(w, r)
		return
	}
	rec, err := s.svc.Get(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		s.redirectNotFound(w, r)
		return
	}
	if err != nil {
		s.backendFailed(r, applog.OpRead, err)
		s.renderError(w, r, http.StatusBadGateway, msgLoadFailed)
		return
	}
	s.render(w, r, http.StatusOK, "form.html", formPage{
		Title:  "Editar adquisición",
		Action: fmt.Sprintf("/adquisiciones/%d", id),
		ID:     id,
		Form:   FormFromRecord(rec),
	})
}

func (s *Server) readRecordForm(w http.ResponseWriter, r *http.Request) (RecordForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.logger.WarnContext(r.Context(), "Parse form error", applog.FieldError, err, applog.FieldPath, r.URL.Path)
		BadRequestError("Formato de solicitud no válido").Write(w)
		return RecordForm{}, false
	}
	return ParseRecordForm(p), true
}

// rejectForm renders the form again with the field problems.
func (s *Server) rejectForm(w http.ResponseWriter, r *http.Request, page formPage, errs core.ValidationErrors) {
	page.Errors = errs
	s.render(w, r, http.StatusUnprocessableEntity, "form.html", page)
}

func (s *Server) saved(w http.ResponseWriter, r *http.Request, rec core.Record, action, message string) {
	NewHTMXResponse().
		TriggerRecordsChanged(rec.ID, action).
		TriggerSuccessNotification(message).
		Redirect("/adquisiciones").
		Write(w)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	form, ok := s.readRecordForm(w, r)
	if !ok {
		return
	}
	page := formPage{Title: "Nueva adquisición", Action: "/adquisiciones", Form: form}

	rec, errs := form.Record()
	if errs != nil {
		s.rejectForm(w, r, page, errs)
		return
	}

	created, err := s.svc.Create(r.Context(), rec)
	var verr core.ValidationErrors
	if errors.As(err, &verr) {
		s.rejectForm(w, r, page, verr)
		return
	}
	if err != nil {
		s.backendFailed(r, applog.OpCreate, err)
		page.Error = msgSaveFailed
		s.render(w, r, http.StatusBadGateway, "form.html", page)
		return
	}

	s.appMetrics.created.Add(1)
	s.recordChanged(r, applog.OpCreate, created)
	if !isHTMX(r) {
		http.Redirect(w, r, "/adquisiciones", http.StatusSeeOther)
		return
	}
	s.saved(w, r, created, "creada", "Adquisición creada exitosamente")
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseID(r.PathValue("id"))
	if err != nil {
		s.redirectNotFound(w, r)
		return
	}
	form, ok := s.readRecordForm(w, r)
	if !ok {
		return
	}
	page := formPage{
		Title:  "Editar adquisición",
		Action: fmt.Sprintf("/adquisiciones/%d", id),
		ID:     id,
		Form:   form,
	}

	rec, errs := form.Record()
	if errs != nil {
		s.rejectForm(w, r, page, errs)
		return
	}

	existing, err := s.svc.Get(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		s.redirectNotFound(w, r)
		return
	}
	if err != nil {
		s.backendFailed(r, applog.OpRead, err)
		page.Error = msgSaveFailed
		s.render(w, r, http.StatusBadGateway, "form.html", page)
		return
	}
	rec.ID = existing.ID
	rec.Active = existing.Active
	rec.CreatedAt = existing.CreatedAt

	updated, err := s.svc.Update(r.Context(), rec)
	var verr core.ValidationErrors
	if errors.As(err, &verr) {
		s.rejectForm(w, r, page, verr)
		return
	}
	if err != nil {
		s.backendFailed(r, applog.OpUpdate, err)
		page.Error = msgSaveFailed
		s.render(w, r, http.StatusBadGateway, "form.html", page)
		return
	}

	s.appMetrics.updated.Add(1)
	s.recordChanged(r, applog.OpUpdate, updated)
	if !isHTMX(r) {
		http.Redirect(w, r, "/adquisiciones", http.StatusSeeOther)
		return
	}
	s.saved(w, r, updated, "actualizada", "Adquisición actualizada exitosamente")
}

func (s *Server) recordChanged(r *http.Request, op string, rec core.Record) {
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogRecordChange(r.Context(), op,
		rec.ID, rec.Supplier, rec.Category, rec.TotalValue.String(),
		core.ActorFrom(r.Context(), ""))
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, false)
}

func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, true)
}

// toggle flips the active flag and answers with a notification; the list
// reloads itself on records:changed.
func (s *Server) toggle(w http.ResponseWriter, r *http.Request, activate bool) {
	op, action, okMsg, failMsg := applog.OpDeactivate, "desactivada", msgDeactivated, msgDeactivateError
	apply := s.svc.Deactivate
	counter := &s.appMetrics.deactivated
	if activate {
		op, action, okMsg, failMsg = applog.OpReactivate, "reactivada", msgReactivated, msgReactivateError
		apply = s.svc.Reactivate
		counter = &s.appMetrics.reactivated
	}

	id, err := core.ParseID(r.PathValue("id"))
	if err == nil {
		err = apply(r.Context(), id)
	}
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrInvalidID) {
			status = http.StatusNotFound
		} else {
			s.backendFailed(r, op, err)
		}
		Failure(status, failMsg).Write(w)
		return
	}

	counter.Add(1)
	s.logger.InfoContext(r.Context(), "Record active flag changed",
		applog.FieldRecordID, id,
		applog.FieldOperation, op,
		applog.FieldActor, core.ActorFrom(r.Context(), ""))

	if !isHTMX(r) {
		http.Redirect(w, r, "/adquisiciones", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerRecordsChanged(id, action).
		TriggerSuccessNotification(okMsg).
		Write(w)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseID(r.PathValue("id"))
	if err != nil {
		s.renderError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	view, err := s.svc.History(r.Context(), id, s.now())
	if errors.Is(err, core.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		s.backendFailed(r, applog.OpHistory, err)
		s.renderError(w, r, http.StatusBadGateway, "No se pudo cargar el historial")
		return
	}
	s.render(w, r, http.StatusOK, "history.html", historyPage{
		Title: fmt.Sprintf("Historial de la adquisición #%d", id),
		View:  view,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Export(r.Context())
	if errors.Is(err, services.ErrExportDisabled) {
		Failure(http.StatusConflict, msgExportDisabled).Write(w)
		return
	}
	if err != nil {
		s.backendFailed(r, applog.OpExport, err)
		Failure(http.StatusBadGateway, msgExportFailed).Write(w)
		return
	}

	s.appMetrics.exports.Add(1)
	s.logger.InfoContext(r.Context(), "Records exported", applog.FieldRecordCount, n, applog.FieldOperation, applog.OpExport)
	Success(fmt.Sprintf("Se exportaron %d adquisiciones", n)).Write(w)
}
