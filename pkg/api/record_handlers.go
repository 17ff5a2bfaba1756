package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/rowguard/pkg/batch"
	"github.com/platinummonkey/rowguard/pkg/httputil"
	"github.com/platinummonkey/rowguard/pkg/middleware"
	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/records"
)

// BatchRequest is the body of the batch and upsert endpoints. Records is
// used by create, update and upsert; IDs by delete.
type BatchRequest struct {
	Records         []map[string]interface{} `json:"records"`
	IDs             []string                 `json:"ids"`
	FieldsToMergeOn []string                 `json:"fieldsToMergeOn"`

	// ReturnRecords defaults to true
	ReturnRecords *bool `json:"returnRecords"`
}

// BatchResponse reports the counts of a committed batch
type BatchResponse struct {
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Deleted int              `json:"deleted"`
	Records []records.Record `json:"records"`
}

func (s *Server) registerRecordRoutes(router *mux.Router) {
	// Batch routes first so "batch" and "upsert" never match {id}
	router.HandleFunc("/tables/{table}/records/batch", s.batchHandler(batch.OpCreate)).Methods("POST")
	router.HandleFunc("/tables/{table}/records/batch", s.batchHandler(batch.OpUpdate)).Methods("PATCH")
	router.HandleFunc("/tables/{table}/records/batch", s.batchHandler(batch.OpDelete)).Methods("DELETE")
	router.HandleFunc("/tables/{table}/records/upsert", s.batchHandler(batch.OpUpsert)).Methods("POST")

	router.HandleFunc("/tables/{table}/records", s.listRecords).Methods("GET")
	router.HandleFunc("/tables/{table}/records", s.createRecord).Methods("POST")
	router.HandleFunc("/tables/{table}/records/{id}", s.getRecord).Methods("GET")
	router.HandleFunc("/tables/{table}/records/{id}", s.updateRecord).Methods("PATCH")
	router.HandleFunc("/tables/{table}/records/{id}", s.deleteRecord).Methods("DELETE")
}

// sessionContext is nil for anonymous callers
func sessionContext(r *http.Request) *rbac.SessionContext {
	return middleware.SessionFromContext(r.Context()).Context()
}

// listRecords handles GET /api/tables/{table}/records?limit=&offset=
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", records.DefaultPageSize)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	page, err := s.deps.Records.List(r.Context(), sessionContext(r), httputil.PathVar(r, "table"),
		records.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// getRecord handles GET /api/tables/{table}/records/{id}
func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Records.Get(r.Context(), sessionContext(r),
		httputil.PathVar(r, "table"), httputil.PathVar(r, "id"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, rec)
}

// createRecord handles POST /api/tables/{table}/records
func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	var input map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}

	rec, err := s.deps.Records.Create(r.Context(), sessionContext(r), httputil.PathVar(r, "table"), input)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, rec)
}

// updateRecord handles PATCH /api/tables/{table}/records/{id}
func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	var input map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}

	rec, err := s.deps.Records.Update(r.Context(), sessionContext(r),
		httputil.PathVar(r, "table"), httputil.PathVar(r, "id"), input)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, rec)
}

// deleteRecord handles DELETE /api/tables/{table}/records/{id}
func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Records.Delete(r.Context(), sessionContext(r),
		httputil.PathVar(r, "table"), httputil.PathVar(r, "id"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// batchHandler returns the handler for one batch operation. Creates answer
// 201, everything else 200.
func (s *Server) batchHandler(op batch.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BatchRequest
		if !s.decode(w, r, &req) {
			return
		}

		result, err := s.deps.Batches.Run(r.Context(), batch.Request{
			Operation:       op,
			Table:           httputil.PathVar(r, "table"),
			Session:         sessionContext(r),
			Records:         req.Records,
			IDs:             req.IDs,
			FieldsToMergeOn: req.FieldsToMergeOn,
			ReturnRecords:   req.ReturnRecords == nil || *req.ReturnRecords,
		})
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}

		resp := BatchResponse{
			Created: result.Created,
			Updated: result.Updated,
			Deleted: result.Deleted,
			Records: result.Records,
		}
		if resp.Records == nil {
			resp.Records = []records.Record{}
		}

		if op == batch.OpCreate {
			httputil.WriteCreated(w, resp)
			return
		}
		httputil.WriteSuccess(w, resp)
	}
}
