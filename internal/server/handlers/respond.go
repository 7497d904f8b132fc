package handlers

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/iudanet/linkmesh/pkg/api"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, api.ErrorResponse{Error: msg})
}
