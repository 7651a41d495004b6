package server

import (
	"encoding/json"
	"net/http"

	"github.com/dataflock/dataflock/pkg/analysis"
	"github.com/dataflock/dataflock/pkg/runner"
)

// EnvironmentRequest holds the request body for environment creation.
type EnvironmentRequest struct {
	Name string `json:"name"`
}

// EnvironmentsResponse lists the known environments.
type EnvironmentsResponse struct {
	Environments []string `json:"environments"`
}

// CellRequest holds the request body for cell creation and update. Live
// defaults to true when omitted.
type CellRequest struct {
	Code string `json:"code"`
	Live *bool  `json:"live,omitempty"`
}

// CellResponse is the JSON shape of one cell.
type CellResponse struct {
	ID      string   `json:"id"`
	Code    string   `json:"code"`
	Live    bool     `json:"live"`
	Reads   []string `json:"reads"`
	Writes  []string `json:"writes"`
	Dirty   bool     `json:"dirty"`
	Running bool     `json:"running"`
}

// VariableResponse carries a raw variable value.
type VariableResponse struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

func cellResponse(info runner.Info) CellResponse {
	return CellResponse{
		ID:      info.ID,
		Code:    info.Cell.Code,
		Live:    info.Live,
		Reads:   info.Cell.Reads.Sorted(),
		Writes:  info.Cell.Writes.Sorted(),
		Dirty:   info.Dirty,
		Running: info.Running,
	}
}

// writeJSON encodes the given value as JSON and writes it to the response writer.
func (s *Server) writeJSON(responseWriter http.ResponseWriter, status int, value any) {
	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(status)

	encodeErr := json.NewEncoder(responseWriter).Encode(value)
	if encodeErr != nil {
		s.log.Error("failed to encode JSON response", "error", encodeErr)
	}
}

func (s *Server) writeError(responseWriter http.ResponseWriter, err error) {
	s.writeJSON(responseWriter, statusFor(err), ErrorResponse{Error: err.Error()})
}

// environment resolves the {env} path value, writing the error response
// itself on failure.
func (s *Server) environment(responseWriter http.ResponseWriter, request *http.Request) (*runner.Runner, bool) {
	r, err := s.registry.Get(request.PathValue("env"))
	if err != nil {
		s.writeError(responseWriter, err)

		return nil, false
	}

	return r, true
}

func (s *Server) handleListEnvironments(responseWriter http.ResponseWriter, _ *http.Request) {
	s.writeJSON(responseWriter, http.StatusOK, EnvironmentsResponse{Environments: s.registry.List()})
}

func (s *Server) handleCreateEnvironment(responseWriter http.ResponseWriter, request *http.Request) {
	var req EnvironmentRequest

	decodeErr := json.NewDecoder(request.Body).Decode(&req)
	if decodeErr != nil || req.Name == "" {
		http.Error(responseWriter, "Invalid request body", http.StatusBadRequest)

		return
	}

	r, err := s.registry.Create(req.Name)
	if err != nil {
		s.writeError(responseWriter, err)

		return
	}

	r.SetCallback(s.metrics.Observe)
	s.metrics.EnvironmentCreated()

	s.writeJSON(responseWriter, http.StatusCreated, EnvironmentRequest{Name: req.Name})
}

func (s *Server) handleDeleteEnvironment(responseWriter http.ResponseWriter, request *http.Request) {
	err := s.registry.Delete(request.PathValue("env"))
	if err != nil {
		s.writeError(responseWriter, err)

		return
	}

	s.metrics.EnvironmentDeleted()
	responseWriter.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCells(responseWriter http.ResponseWriter, request *http.Request) {
	r, ok := s.environment(responseWriter, request)
	if !ok {
		return
	}

	infos := r.List()

	cells := make([]CellResponse, 0, len(infos))
	for _, info := range infos {
		cells = append(cells, cellResponse(info))
	}

	s.writeJSON(responseWriter, http.StatusOK, cells)
}

// decodeCell parses and analyzes a cell submission. The analyzer error is
// written for the caller.
func (s *Server) decodeCell(responseWriter http.ResponseWriter, request *http.Request) (analysis.Cell, bool, bool) {
	var req CellRequest

	decodeErr := json.NewDecoder(request.Body).Decode(&req)
	if decodeErr != nil || req.Code == "" {
		http.Error(responseWriter, "Invalid request body", http.StatusBadRequest)

		return analysis.Cell{}, false, false
	}

	live := true
	if req.Live != nil {
		live = *req.Live
	}

	cell, analyzeErr := analysis.Analyze(request.Context(), req.Code)
	if analyzeErr != nil {
		s.writeError(responseWriter, analyzeErr)

		return analysis.Cell{}, false, false
	}

	return cell, live, true
}

func (s *Server) handleCreateCell(responseWriter http.ResponseWriter, request *http.Request) {
	r, ok := s.environment(responseWriter, request)
	if !ok {
		return
	}

	cell, live, ok := s.decodeCell(responseWriter, request)
	if !ok {
		return
	}

	cellID, err := r.Create(cell, live)
	if err != nil {
		s.writeError(responseWriter, err)

		return
	}

	info, getErr := r.Get(cellID)
	if getErr != nil {
		s.writeError(responseWriter, getErr)

		return
	}

	s.writeJSON(responseWriter, http.StatusCreated, cellResponse(info))
}

func (s *Server) handleGetCell(responseWriter http.ResponseWriter, request *http.Request) {
	r, ok := s.environment(responseWriter, request)
	if !ok {
		return
	}

	info, err := r.Get(request.PathValue("id"))
	if err != nil {
		s.writeError(responseWriter, err)

		return
	}

	s.writeJSON(responseWriter, http.StatusOK, cellResponse(info))
}

func (s *Server) handleUpdateCell(responseWriter http.ResponseWriter, request *http.Request) {
	r, ok := s.environment(responseWriter, request)
	if !ok {
		return
	}

	cell, live, ok := s.decodeCell(responseWriter, request)
	if !ok {
		return
	}

	cellID := request.PathValue("id")

	err := r.Update(cellID, cell, live)
	if err != nil {
		s.writeError(responseWriter, err)

		return
	}

	info, getErr := r.Get(cellID)
	if getErr != nil {
		s.writeError(responseWriter, getErr)

		return
	}

	s.writeJSON(responseWriter, http.StatusOK, cellResponse(info))
}

func (s *Server) handleDeleteCell(responseWriter http.ResponseWriter, request *http.Request) {
	r, ok := s.environment(responseWriter, request)
	if !ok {
		return
	}

	err := r.Delete(request.PathValue("id"))
	if err != nil {
		s.writeError(responseWriter, err)

		return
	}

	responseWriter.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunCell(responseWriter http.ResponseWriter, request *http.Request) {
	r, ok := s.environment(responseWriter, request)
	if !ok {
		return
	}

	err := r.Run(request.PathValue("id"))
	if err != nil {
		s.writeError(responseWriter, err)

		return
	}

	responseWriter.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleGetVariable(responseWriter http.ResponseWriter, request *http.Request) {
	r, ok := s.environment(responseWriter, request)
	if !ok {
		return
	}

	name := request.PathValue("name")

	value, err := r.GetVariable(name)
	if err != nil {
		s.writeError(responseWriter, err)

		return
	}

	s.writeJSON(responseWriter, http.StatusOK, VariableResponse{Name: name, Value: value})
}
