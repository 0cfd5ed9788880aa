package router

import (
	"github.com/erp/kksync/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// API holds the handlers and the two authentication middlewares of the
// public surface
type API struct {
	Sync   *handler.SyncHandler
	Events *handler.EventHandler
	Health *handler.HealthHandler

	// Auth guards operator endpoints, typically the JWT middleware
	Auth gin.HandlerFunc
	// EventAuth guards inbound event endpoints, typically the shared secret
	EventAuth gin.HandlerFunc
}

// Groups builds the route groups of the API
func (a API) Groups() []*DomainGroup {
	health := NewDomainGroup("health", "").
		GET("/health", a.Health.Health)

	sync := NewDomainGroup("sync", "/sync").
		Use(a.Auth).
		POST("/tasks/:task/run", a.Sync.RunTask).
		GET("/tasks", a.Sync.ListTasks).
		GET("/runs", a.Sync.ListRuns).
		POST("/runs/reconcile", a.Sync.ReconcileRuns)

	events := NewDomainGroup("events", "/events").
		Use(a.EventAuth).
		POST("/customer", a.Events.CustomerEvent).
		POST("/product", a.Events.ProductEvent)

	actions := NewDomainGroup("actions", "/actions").
		Use(a.Auth).
		POST("/shipment-updated", a.Events.ShipmentUpdated)

	return []*DomainGroup{health, sync, events, actions}
}

// Mount registers the API on engine. /health is also served at the root
// for load balancer probes.
func (a API) Mount(engine *gin.Engine, opts ...RouterOption) *Router {
	r := NewRouter(engine, opts...)
	for _, g := range a.Groups() {
		r.Register(g)
	}
	r.Setup()
	engine.GET("/health", a.Health.Health)
	return r
}
