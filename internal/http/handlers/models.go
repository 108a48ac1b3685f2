package handlers

import (
	"net/http"

	"genstudio/internal/generation"
)

func (a *App) ListModels(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"models": generation.Models()})
}
