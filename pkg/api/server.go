package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/workdesk/accessd/pkg/audit"
	"github.com/workdesk/accessd/pkg/auth"
	"github.com/workdesk/accessd/pkg/authz"
	"github.com/workdesk/accessd/pkg/middleware"
	"github.com/workdesk/accessd/pkg/observability"
)

// Dependencies are the collaborators of the API server. Audit, Metrics,
// Health and LoginLimiter may be nil.
type Dependencies struct {
	Manager       *authz.Manager
	Auth          *auth.Service
	Authenticator *middleware.Authenticator
	Audit         audit.Logger
	Metrics       *observability.Metrics
	Health        *observability.HealthChecker
	LoginLimiter  middleware.Limiter
	Logger        *observability.Logger

	// TrustedProxies may forward the client address to the login throttle
	TrustedProxies middleware.TrustedProxies
}

// Server represents our API server
type Server struct {
	router   *mux.Router
	resolver *authz.Resolver
	ledger   *authz.Ledger
	catalog  *authz.Catalog
	auth     *auth.Service
	gates    *middleware.Authorizer
	audit    audit.Logger
	logger   *observability.Logger
}

// NewServer creates the API server and registers every route
func NewServer(deps Dependencies) *Server {
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		router:   mux.NewRouter(),
		resolver: deps.Manager.Resolver(),
		ledger:   deps.Manager.Ledger(),
		catalog:  deps.Manager.Catalog(),
		auth:     deps.Auth,
		gates:    middleware.NewAuthorizer(deps.Manager.Resolver(), deps.Audit, deps.Logger),
		audit:    deps.Audit,
		logger:   deps.Logger,
	}
	s.setupRoutes(deps)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(deps Dependencies) {
	s.router.Use(middleware.RequestID(s.logger), middleware.AccessLog, observability.RecoveryMiddleware(s.logger))
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	if deps.Health != nil {
		observability.RegisterHealthRoutes(s.router, deps.Health)
	}

	var login http.Handler = http.HandlerFunc(s.login)
	if deps.LoginLimiter != nil {
		login = middleware.RateLimit(deps.LoginLimiter, "login", deps.TrustedProxies, s.logger)(login)
	}
	s.router.Handle("/auth/login", login).Methods("POST")

	// Authenticated identity routes
	me := s.router.PathPrefix("/auth").Subrouter()
	me.Use(deps.Authenticator.Handler)
	me.HandleFunc("/me", s.getCurrentUser).Methods("GET")
	me.HandleFunc("/permissions", s.getOwnPermissions).Methods("GET")
	me.HandleFunc("/screens", s.getAllowedScreens).Methods("GET")

	// Permission queries: self, or any user for a live admin
	perms := s.router.PathPrefix("/permissions").Subrouter()
	perms.Use(deps.Authenticator.Handler)
	perms.HandleFunc("/check/{userId}", s.checkPermission).Methods("GET")
	perms.HandleFunc("/user/{userId}", s.getUserPermissions).Methods("GET")
	perms.HandleFunc("/field-permission/{userId}", s.getFieldPermission).Methods("GET")
	perms.HandleFunc("/can-edit/{userId}", s.canEditField).Methods("GET")
	perms.HandleFunc("/is-admin/{userId}", s.isAdmin).Methods("GET")

	// Administration, gated on the token's ROLE_<admin> authority
	admin := perms.NewRoute().Subrouter()
	admin.Use(s.gates.RequireRole(s.resolver.Options().AdminProfileCode))

	admin.HandleFunc("/profiles", s.listProfiles).Methods("GET")
	admin.HandleFunc("/profiles", s.createProfile).Methods("POST")
	admin.HandleFunc("/profiles/{id}", s.getProfile).Methods("GET")
	admin.HandleFunc("/profiles/{id}", s.updateProfile).Methods("PUT")
	admin.HandleFunc("/profiles/{id}", s.deleteProfile).Methods("DELETE")
	admin.HandleFunc("/profiles/{id}/grants", s.getProfileGrants).Methods("GET")
	admin.HandleFunc("/profiles/{id}/resource-permissions", s.setResourcePermission).Methods("PUT")
	admin.HandleFunc("/profiles/{id}/resource-permissions", s.revokeResourcePermission).Methods("DELETE")
	admin.HandleFunc("/profiles/{id}/field-permissions", s.setFieldPermission).Methods("PUT")
	admin.HandleFunc("/profiles/{id}/field-permissions", s.clearFieldPermission).Methods("DELETE")

	admin.HandleFunc("/resources", s.listResources).Methods("GET")
	admin.HandleFunc("/resources", s.createResource).Methods("POST")
	admin.HandleFunc("/operations", s.listOperations).Methods("GET")
	admin.HandleFunc("/operations", s.createOperation).Methods("POST")

	admin.HandleFunc("/users/profiles", s.assignProfile).Methods("POST")
	admin.HandleFunc("/users/{userId}/profiles", s.listUserProfiles).Methods("GET")
	admin.HandleFunc("/users/{userId}/profiles", s.removeAllProfiles).Methods("DELETE")
	admin.HandleFunc("/users/{userId}/profiles/{profileId}", s.removeProfile).Methods("DELETE")
}

// recordAudit logs an audit write that failed. The request has already
// taken effect, so the response is not changed.
func (s *Server) recordAudit(r *http.Request, err error) {
	if err != nil {
		s.logger.WithError(err).WithField("path", r.URL.Path).Warn("Failed to write audit event")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}
