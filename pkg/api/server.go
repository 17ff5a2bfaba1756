package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/auth"
	"github.com/platinummonkey/rowguard/pkg/batch"
	"github.com/platinummonkey/rowguard/pkg/httputil"
	"github.com/platinummonkey/rowguard/pkg/middleware"
	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/orgs"
	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/records"
)

// Sessions resolves and mutates bearer sessions
type Sessions interface {
	Lookup(ctx context.Context, token string) (*auth.Session, error)
	SetActiveOrganization(ctx context.Context, sess *auth.Session, organizationID string) (*auth.Session, error)
	Revoke(ctx context.Context, sess *auth.Session) error
}

// Tokens consumes one-time tokens
type Tokens interface {
	Consume(ctx context.Context, kind auth.TokenKind, token string) (*auth.OneTimeToken, error)
}

// Users looks up accounts
type Users interface {
	Find(ctx context.Context, id string) (*auth.User, error)
}

// Organizations manages organizations, members and invitations
type Organizations interface {
	CreateOrganization(ctx context.Context, creatorID string, req orgs.CreateOrgRequest) (*orgs.Organization, error)
	ListForUser(ctx context.Context, userID string) ([]*orgs.Organization, error)
	GetForMember(ctx context.Context, userID, organizationID string) (*orgs.Organization, error)
	ListMembers(ctx context.Context, actorID, organizationID string) ([]*orgs.Member, error)
	UpdateMemberRole(ctx context.Context, actorID, organizationID, userID, role string) (*orgs.Member, error)
	RemoveMember(ctx context.Context, actorID, organizationID, userID string) error
	Invite(ctx context.Context, actorID, organizationID string, req orgs.InviteRequest) (*orgs.Invitation, error)
	ListInvitations(ctx context.Context, actorID, organizationID string) ([]*orgs.Invitation, error)
	GetInvitation(ctx context.Context, actor orgs.Actor, id string) (*orgs.Invitation, error)
	Accept(ctx context.Context, actor orgs.Actor, id string) (*orgs.Member, error)
	Reject(ctx context.Context, actor orgs.Actor, id string) (*orgs.Invitation, error)
	Cancel(ctx context.Context, actorID, id string) (*orgs.Invitation, error)
}

// Records performs single-record operations on application tables
type Records interface {
	List(ctx context.Context, sess *rbac.SessionContext, tableName string, opts records.ListOptions) (*records.Page, error)
	Get(ctx context.Context, sess *rbac.SessionContext, tableName, id string) (records.Record, error)
	Create(ctx context.Context, sess *rbac.SessionContext, tableName string, input map[string]interface{}) (records.Record, error)
	Update(ctx context.Context, sess *rbac.SessionContext, tableName, id string, input map[string]interface{}) (records.Record, error)
	Delete(ctx context.Context, sess *rbac.SessionContext, tableName, id string) error
}

// Batches runs transactional batch operations
type Batches interface {
	Run(ctx context.Context, req batch.Request) (*batch.Result, error)
}

// Dependencies wires the server to its services. Limiter, Metrics and
// Health are optional.
type Dependencies struct {
	Sessions      Sessions
	Tokens        Tokens
	Users         Users
	Organizations Organizations
	Records       Records
	Batches       Batches

	Health       *observability.HealthChecker
	Limiter      middleware.Limiter
	Metrics      *observability.Metrics
	Logger       *observability.Logger
	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	router   *mux.Router
	handler  http.Handler
	deps     Dependencies
	validate *validator.Validate
}

// NewServer creates a new API server
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.FromContext(context.Background())
	}
	s := &Server{
		router:   mux.NewRouter(),
		deps:     deps,
		validate: validator.New(),
	}
	s.setupRoutes()

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.deps.Logger),
		httputil.RecoveryMiddleware,
	)
	s.handler = otelhttp.NewHandler(chain(s.router), "rowguard.api")
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "Route not found")
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})
	s.router.MethodNotAllowedHandler = methodNotAllowed

	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}

	if s.deps.Health != nil {
		s.router.HandleFunc("/health", s.deps.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/ready", s.deps.Health.Readiness).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	// Subrouters drop the parent's method mismatch, so they need their own
	api.MethodNotAllowedHandler = methodNotAllowed
	if s.deps.MaxBodyBytes > 0 {
		api.Use(httputil.MaxBytesMiddleware(s.deps.MaxBodyBytes))
	}
	api.Use(middleware.NewSessionMiddleware(s.deps.Sessions).Handler)
	if s.deps.Limiter != nil {
		api.Use(middleware.NewRateLimitMiddleware(s.deps.Limiter).Handler)
	}

	s.registerAuthRoutes(api)

	// Session and organization routes never serve anonymous callers
	authed := api.NewRoute().Subrouter()
	authed.MethodNotAllowedHandler = methodNotAllowed
	authed.Use(middleware.RequireSession)
	s.registerSessionRoutes(authed)
	s.registerOrganizationRoutes(authed)

	// Record routes resolve anonymous callers against the table rules
	s.registerRecordRoutes(api)
}

// Router exposes the mux router, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the full handler chain: tracing, request ids, recovery
// and request logging around the router
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// decode parses and validates a JSON body, writing 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if !httputil.ParseJSONOrError(w, r, dest) {
		return false
	}
	if err := s.validate.Struct(dest); err != nil {
		httputil.WriteAppError(w, r, validationError(err))
		return false
	}
	return true
}

// validationError names each failing field and the rule it broke
func validationError(err error) error {
	appErr := apperrors.Validation("Invalid request body")
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			appErr = appErr.WithDetail(fe.Field(), fe.Tag())
		}
	}
	return appErr
}
