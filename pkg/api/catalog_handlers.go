package api

import (
	"fmt"
	"net/http"

	"github.com/workdesk/accessd/pkg/audit"
	"github.com/workdesk/accessd/pkg/authz"
	"github.com/workdesk/accessd/pkg/httputil"
)

// CatalogEntryRequest is the body of POST /permissions/resources and /permissions/operations
type CatalogEntryRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// listResources handles GET /permissions/resources
func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.catalog.ListResources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if resources == nil {
		resources = []authz.Resource{}
	}
	_ = httputil.WriteSuccess(w, resources)
}

// createResource handles POST /permissions/resources
func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	var req CatalogEntryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	resource, err := s.catalog.CreateResource(r.Context(), req.Code, req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, audit.LogMutation(r.Context(), s.audit, r, audit.EventTypeResourceCreate, audit.ResourceTypeResource,
		resource.Code, &audit.ChangeDetails{After: resource}, fmt.Sprintf("Resource %s created", resource.Code)))
	_ = httputil.WriteCreated(w, resource)
}

// listOperations handles GET /permissions/operations
func (s *Server) listOperations(w http.ResponseWriter, r *http.Request) {
	operations, err := s.catalog.ListOperations(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if operations == nil {
		operations = []authz.Operation{}
	}
	_ = httputil.WriteSuccess(w, operations)
}

// createOperation handles POST /permissions/operations
func (s *Server) createOperation(w http.ResponseWriter, r *http.Request) {
	var req CatalogEntryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	operation, err := s.catalog.CreateOperation(r.Context(), req.Code, req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordAudit(r, audit.LogMutation(r.Context(), s.audit, r, audit.EventTypeOperationCreate, audit.ResourceTypeOperation,
		operation.Code, &audit.ChangeDetails{After: operation}, fmt.Sprintf("Operation %s created", operation.Code)))
	_ = httputil.WriteCreated(w, operation)
}
