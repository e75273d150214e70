package httpapi

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"cellscope/app"
	"cellscope/domain/core"
	"cellscope/domain/cycling"
	"cellscope/internal/errors"
	"cellscope/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyzeCell(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseCellID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, errors.InvalidInput(err.Error()))
		return
	}
	res, err := s.analyzer.AnalyzeCell(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.observeFlags(res.Flags)
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleLatestAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseCellID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, errors.InvalidInput(err.Error()))
		return
	}
	rec, err := s.analyzer.LatestAnalysis(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, rec)
}

func (s *Server) handleCellPorosity(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseCellID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, errors.InvalidInput(err.Error()))
		return
	}
	res, err := s.analyzer.Porosity(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

// handleAnalyzeCohort reads the scope from experiment_id / project_id query
// parameters; with neither, every known cell is one cohort
func (s *Server) handleAnalyzeCohort(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := ports.CohortScope{
		ProjectID:    core.ProjectID(q.Get("project_id")),
		ExperimentID: core.ExperimentID(q.Get("experiment_id")),
	}
	res, err := s.analyzer.AnalyzeCohort(r.Context(), scope)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.observeSummary(res.Summary)
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleAnalyzeData(w http.ResponseWriter, r *http.Request) {
	var data cycling.CellData
	if err := s.decodeBody(w, r, &data); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.analyzer.AnalyzeData(data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.observeFlags(res.Flags)
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handlePorosityRequest(w http.ResponseWriter, r *http.Request) {
	var req app.PorosityRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, app.EvaluatePorosity(req, nil))
}

// decodeBody reads a JSON body into v and checks its validate tags
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return errors.InvalidInput("invalid JSON body: " + err.Error())
	}
	if err := s.validate.Struct(v); err != nil {
		return errors.ValidationError(validationMessage(err))
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
