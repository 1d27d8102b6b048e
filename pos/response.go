package pos

import (
	"bytes"
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (p *Pos) jsonResponse(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		p.log.Errorf("Could not respond with JSON: %v", err)
	}
}

func (p *Pos) jsonError(w http.ResponseWriter, msg string, code int) {
	p.jsonResponse(w, &errorResponse{Error: msg}, code)
}

// htmlResponse renders the page completely before anything is written, so a
// failing template still results in a proper error status.
func (p *Pos) htmlResponse(w http.ResponseWriter, page string, data interface{}, code int) {
	var buf bytes.Buffer

	err := p.renderer.Render(&buf, page, data)
	if err != nil {
		p.log.Errorf("Could not render %v page: %v", page, err)
		http.Error(w, "Could not render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, err = buf.WriteTo(w)
	if err != nil {
		p.log.Debugf("Could not write %v page: %v", page, err)
	}
}
