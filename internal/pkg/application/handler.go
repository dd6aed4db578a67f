package application

import (
	"compress/flate"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/dashboard"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/registry"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/workflow"
)

type RequestRouter struct {
	impl *chi.Mux
}

//Get accepts a pattern that should be routed to the handlerFn on a GET request
func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

//Patch accepts a pattern that should be routed to the handlerFn on a PATCH request
func (router *RequestRouter) Patch(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Patch(pattern, handlerFn)
}

//Post accepts a pattern that should be routed to the handlerFn on a POST request
func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

//Put accepts a pattern that should be routed to the handlerFn on a PUT request
func (router *RequestRouter) Put(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Put(pattern, handlerFn)
}

//Delete accepts a pattern that should be routed to the handlerFn on a DELETE request
func (router *RequestRouter) Delete(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Delete(pattern, handlerFn)
}

func (router *RequestRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router.impl.ServeHTTP(w, r)
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json", "text/csv")
	router.impl.Use(compressor.Handler)
	router.impl.Use(middleware.Logger)
	router.impl.Use(render.SetContentType(render.ContentTypeJSON))

	return router
}

func (router *RequestRouter) addRegistryHandlers(api *API) {
	router.Get("/api/sites", api.listSites)
	router.Get("/api/sensors", api.listSensors)
	router.Delete("/api/sensors/{id}", api.removeSensor)
}

func (router *RequestRouter) addSessionHandlers(api *API) {
	router.Post("/api/sessions", api.startSession)
	router.Get("/api/sessions/{session}", api.getSession)
	router.Delete("/api/sessions/{session}", api.endSession)
	router.Put("/api/sessions/{session}/site", api.selectSite)
	router.Put("/api/sessions/{session}/search", api.search)
	router.Get("/api/sessions/{session}/sensors", api.listing)
	router.Delete("/api/sessions/{session}/sensors/{id}", api.removeSessionSensor)

	router.Post("/api/sessions/{session}/editor", api.openEditor)
	router.Get("/api/sessions/{session}/editor", api.getEditor)
	router.Patch("/api/sessions/{session}/editor", api.updateDraft)
	router.Delete("/api/sessions/{session}/editor", api.cancelEditor)
	router.Post("/api/sessions/{session}/editor/gps", api.captureGPS)
	router.Delete("/api/sessions/{session}/editor/gps", api.clearGPS)
	router.Post("/api/sessions/{session}/editor/save", api.saveDraft)

	router.Get("/api/sessions/{session}/basket", api.getBasket)
	router.Post("/api/sessions/{session}/basket", api.pick)
	router.Delete("/api/sessions/{session}/basket/{id}", api.unpick)
	router.Put("/api/sessions/{session}/remarks", api.setRemarks)
	router.Post("/api/sessions/{session}/basket/commit", api.commit)
}

func (router *RequestRouter) addDashboardHandlers(api *API) {
	router.Get("/api/dashboard", api.getDashboard)
	router.Post("/api/dashboard/refresh", api.refreshDashboard)
	router.Get("/api/dashboard/report.csv", api.downloadReport)
}

func createRequestRouter(api *API, gatherer prometheus.Gatherer) *RequestRouter {
	router := newRequestRouter()

	router.addRegistryHandlers(api)
	router.addSessionHandlers(api)
	router.addDashboardHandlers(api)
	router.addNGSIHandlers(createContextRegistry(api.log, api.store))

	if gatherer != nil {
		router.impl.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return router
}

//MessagingContext is an interface that allows mocking of messaging.Context parameters
type MessagingContext interface {
	PublishOnTopic(message messaging.TopicMessage) error
}

//API serves the registry, the technician sessions and the dashboard over HTTP
type API struct {
	store      *registry.Store
	sessions   *workflow.Sessions
	dashboard  *dashboard.Dashboard
	technician string
	log        logging.Logger
	now        func() time.Time
}

//NewAPI wires the HTTP handlers to their components. technician names sessions started without one.
func NewAPI(store *registry.Store, sessions *workflow.Sessions, board *dashboard.Dashboard, technician string, log logging.Logger) *API {
	return &API{
		store:      store,
		sessions:   sessions,
		dashboard:  board,
		technician: technician,
		log:        log,
		now:        time.Now,
	}
}

//CreateRouterAndStartServing sets up the router and serves incoming requests until ctx is done
func CreateRouterAndStartServing(ctx context.Context, log logging.Logger, port string, api *API, gatherer prometheus.Gatherer) error {
	router := createRequestRouter(api, gatherer)

	if port == "" {
		port = "8880"
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Failed to shut down http server: %s", err.Error())
		}
	}()

	log.Infof("Starting iot-sensor-service on port %s.", port)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
