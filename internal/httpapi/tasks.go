package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ingestctl/ingestor/api/ingestion"
	"github.com/ingestctl/ingestor/internal/manager"
)

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if trigger := r.URL.Query().Get("trigger"); trigger != "" {
		tasks, err := s.opts.Manager.ListTasksByTrigger(ctx, ingestion.TriggerType(trigger))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)
		return
	}
	tasks, err := s.opts.Manager.ListTasks(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) scheduleTask(w http.ResponseWriter, r *http.Request) {
	var def ingestion.Task
	if !decodeJSON(w, r, &def) {
		return
	}
	task, err := s.opts.Manager.ScheduleTask(r.Context(), &def)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.opts.Manager.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// taskPatchBody mirrors manager.TaskPatch but with optional fields
// expressed as JSON pointers can be omitted entirely.
type taskPatchBody struct {
	Name        *string               `json:"name"`
	Enabled     *bool                 `json:"enabled"`
	Source      *ingestion.PluginRef  `json:"source"`
	Destination *ingestion.PluginRef  `json:"destination"`
	Trigger     *ingestion.Trigger    `json:"trigger"`
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var body taskPatchBody
	if !decodeJSON(w, r, &body) {
		return
	}
	patch := manager.TaskPatch{
		Name:        body.Name,
		Enabled:     body.Enabled,
		Source:      body.Source,
		Destination: body.Destination,
		Trigger:     body.Trigger,
	}
	task, err := s.opts.Manager.UpdateTask(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Manager.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) enableTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.opts.Manager.EnableTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) disableTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.opts.Manager.DisableTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) triggerManual(w http.ResponseWriter, r *http.Request) {
	var payload ingestion.Payload
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &payload) {
			return
		}
	}
	result, err := s.opts.Manager.TriggerManual(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getTaskHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	history := s.opts.Manager.GetTaskRunHistory(chi.URLParam(r, "id"), limit)
	writeJSON(w, http.StatusOK, history)
}
