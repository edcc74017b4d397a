package api

import "net/http"

type environmentResponse struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	FileExtension string `json:"file_extension"`
}

func (s *Server) handleEnvironments(w http.ResponseWriter, r *http.Request) {
	envs := s.service.Environments()
	out := make([]environmentResponse, 0, len(envs))
	for _, env := range envs {
		out = append(out, environmentResponse{
			Name:          env.Name,
			Description:   env.Description,
			FileExtension: env.FileExtension,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "code-executor",
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "code-executor",
		"version": "1.0.0",
		"health":  "/api/v1/health",
	})
}
