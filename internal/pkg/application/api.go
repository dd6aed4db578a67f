package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/dashboard"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/editor"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/registry"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/workflow"
)

//decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}

	err := render.DecodeJSON(r.Body, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (api *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	renderer := httpErr(err)
	if resp, ok := renderer.(*HttpErrResponse); ok && resp.HTTPStatusCode == http.StatusInternalServerError {
		api.log.Errorf("Request %s %s failed: %s", r.Method, r.URL.Path, err.Error())
	}
	render.Render(w, r, renderer)
}

func (api *API) session(w http.ResponseWriter, r *http.Request) (*workflow.Workflow, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "session"))
	if err == nil {
		if wf, ok := api.sessions.Get(id); ok {
			return wf, true
		}
	}

	api.fail(w, r, fmt.Errorf("%w: %s", errSessionNotFound, chi.URLParam(r, "session")))
	return nil, false
}

func (api *API) listSites(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, api.store.Sites())
}

func (api *API) listSensors(w http.ResponseWriter, r *http.Request) {
	siteID := r.URL.Query().Get("site")
	if siteID == "" {
		render.JSON(w, r, api.store.ListAll())
		return
	}

	if siteID == domain.NoSiteID {
		api.fail(w, r, domain.ErrNoSiteSelected)
		return
	}

	if _, ok := api.store.Site(siteID); !ok {
		api.fail(w, r, fmt.Errorf("%w: %s", domain.ErrUnknownSite, siteID))
		return
	}

	sensors := []domain.SensorRecord{}
	for sensor := range registry.Visible(api.store.ListAll(), siteID, r.URL.Query().Get("q")) {
		sensors = append(sensors, sensor)
	}
	render.JSON(w, r, sensors)
}

func (api *API) removeSensor(w http.ResponseWriter, r *http.Request) {
	if err := api.store.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type startSessionRequest struct {
	Technician string `json:"technician"`
}

func (api *API) startSession(w http.ResponseWriter, r *http.Request) {
	req := startSessionRequest{}
	if err := decodeBody(r, &req); err != nil {
		render.Render(w, r, httpErrInvalidRequest(err))
		return
	}

	if req.Technician == "" {
		req.Technician = api.technician
	}

	wf := api.sessions.Start(req.Technician)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, wf.Snapshot())
}

func (api *API) getSession(w http.ResponseWriter, r *http.Request) {
	if wf, ok := api.session(w, r); ok {
		render.JSON(w, r, wf.Snapshot())
	}
}

func (api *API) endSession(w http.ResponseWriter, r *http.Request) {
	if wf, ok := api.session(w, r); ok {
		api.sessions.End(wf.ID())
		w.WriteHeader(http.StatusNoContent)
	}
}

type selectSiteRequest struct {
	SiteID string `json:"siteId"`
}

func (api *API) selectSite(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	req := selectSiteRequest{SiteID: domain.NoSiteID}
	if err := decodeBody(r, &req); err != nil {
		render.Render(w, r, httpErrInvalidRequest(err))
		return
	}

	if err := wf.SelectSite(req.SiteID); err != nil {
		api.fail(w, r, err)
		return
	}

	render.JSON(w, r, wf.Snapshot())
}

type searchRequest struct {
	Query string `json:"query"`
}

func (api *API) search(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	req := searchRequest{}
	if err := decodeBody(r, &req); err != nil {
		render.Render(w, r, httpErrInvalidRequest(err))
		return
	}

	wf.Search(req.Query)
	render.JSON(w, r, wf.Snapshot())
}

func (api *API) listing(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	listing, err := wf.Listing()
	if err != nil {
		api.fail(w, r, err)
		return
	}

	render.JSON(w, r, listing)
}

func (api *API) removeSessionSensor(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	if err := wf.RemoveSensor(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type editorView struct {
	State string               `json:"state"`
	Draft *domain.SensorRecord `json:"draft,omitempty"`
}

func viewOf(e *editor.Editor) editorView {
	view := editorView{State: e.State().String()}
	if draft, ok := e.Draft(); ok {
		view.Draft = &draft
	}
	return view
}

type openEditorRequest struct {
	SensorID string `json:"sensorId"`
}

func (api *API) openEditor(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	req := openEditorRequest{}
	if err := decodeBody(r, &req); err != nil {
		render.Render(w, r, httpErrInvalidRequest(err))
		return
	}

	var err error
	if req.SensorID == "" {
		err = wf.OpenNewSensor()
	} else {
		err = wf.EditSensor(req.SensorID)
	}

	if err != nil {
		api.fail(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, viewOf(wf.Editor()))
}

func (api *API) getEditor(w http.ResponseWriter, r *http.Request) {
	if wf, ok := api.session(w, r); ok {
		render.JSON(w, r, viewOf(wf.Editor()))
	}
}

func (api *API) updateDraft(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	patch := editor.Patch{}
	if err := decodeBody(r, &patch); err != nil {
		render.Render(w, r, httpErrInvalidRequest(err))
		return
	}

	if err := wf.Editor().Apply(patch); err != nil {
		if errors.Is(err, domain.ErrEditorClosed) {
			api.fail(w, r, err)
		} else {
			render.Render(w, r, httpErrInvalidRequest(err))
		}
		return
	}

	render.JSON(w, r, viewOf(wf.Editor()))
}

func (api *API) cancelEditor(w http.ResponseWriter, r *http.Request) {
	if wf, ok := api.session(w, r); ok {
		wf.CancelEdit()
		w.WriteHeader(http.StatusNoContent)
	}
}

//positionReport is the outcome of a position request made on the technician's device
type positionReport struct {
	Position    *editor.Position `json:"position"`
	Error       string           `json:"error"`
	Unsupported bool             `json:"unsupported"`
}

func (api *API) captureGPS(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	report := positionReport{}
	if err := decodeBody(r, &report); err != nil {
		render.Render(w, r, httpErrInvalidRequest(err))
		return
	}

	geo := editor.ReportedGeolocator{
		Position:    report.Position,
		Failure:     report.Error,
		Unsupported: report.Unsupported,
	}

	fix, err := wf.CaptureGPS(r.Context(), geo)
	if err != nil {
		api.fail(w, r, err)
		return
	}

	render.JSON(w, r, fix)
}

func (api *API) clearGPS(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	if err := wf.Editor().ClearGPS(); err != nil {
		api.fail(w, r, err)
		return
	}

	render.JSON(w, r, viewOf(wf.Editor()))
}

func (api *API) saveDraft(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	saved, err := wf.SaveSensor(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}

	render.JSON(w, r, saved)
}

type basketView struct {
	Selected []string `json:"selected"`
	Remarks  string   `json:"remarks"`
}

func basketOf(wf *workflow.Workflow) basketView {
	return basketView{Selected: wf.Selected(), Remarks: wf.Remarks()}
}

func (api *API) getBasket(w http.ResponseWriter, r *http.Request) {
	if wf, ok := api.session(w, r); ok {
		render.JSON(w, r, basketOf(wf))
	}
}

type pickRequest struct {
	SensorID string `json:"sensorId"`
}

func (api *API) pick(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	req := pickRequest{}
	if err := decodeBody(r, &req); err != nil {
		render.Render(w, r, httpErrInvalidRequest(err))
		return
	}

	if err := wf.Pick(req.SensorID); err != nil {
		api.fail(w, r, err)
		return
	}

	render.JSON(w, r, basketOf(wf))
}

func (api *API) unpick(w http.ResponseWriter, r *http.Request) {
	if wf, ok := api.session(w, r); ok {
		wf.Unpick(chi.URLParam(r, "id"))
		render.JSON(w, r, basketOf(wf))
	}
}

type remarksRequest struct {
	Remarks *string `json:"remarks"`
}

func (api *API) setRemarks(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	req := remarksRequest{}
	if err := decodeBody(r, &req); err != nil {
		render.Render(w, r, httpErrInvalidRequest(err))
		return
	}

	if req.Remarks != nil {
		wf.SetRemarks(*req.Remarks)
	}

	render.JSON(w, r, basketOf(wf))
}

func (api *API) commit(w http.ResponseWriter, r *http.Request) {
	wf, ok := api.session(w, r)
	if !ok {
		return
	}

	req := remarksRequest{}
	if err := decodeBody(r, &req); err != nil {
		render.Render(w, r, httpErrInvalidRequest(err))
		return
	}

	if req.Remarks != nil {
		wf.SetRemarks(*req.Remarks)
	}

	visit, err := wf.CommitVisit(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, visit)
}

func (api *API) getDashboard(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, api.dashboard.View())
}

func (api *API) refreshDashboard(w http.ResponseWriter, r *http.Request) {
	api.dashboard.Refresh()
	render.JSON(w, r, api.dashboard.View())
}

func (api *API) downloadReport(w http.ResponseWriter, r *http.Request) {
	now := api.now()

	buf := &bytes.Buffer{}
	if err := dashboard.WriteReport(buf, api.dashboard.Zones(), now); err != nil {
		api.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", dashboard.ReportContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dashboard.ReportFilename(now)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
