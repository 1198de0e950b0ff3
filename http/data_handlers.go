package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"bandersnatch/db"
	"bandersnatch/graph"
)

func (a *API) requireDatabase(w http.ResponseWriter) bool {
	if a.database == nil {
		respondError(w, http.StatusServiceUnavailable, "no document store configured")
		return false
	}
	return true
}

func (a *API) handleDataTable(w http.ResponseWriter, r *http.Request) {
	if !a.requireDatabase(w) {
		return
	}
	html, err := a.database.HTMLTable()
	if errors.Is(err, db.ErrEmpty) {
		respondError(w, http.StatusNotFound, "collection is empty")
		return
	}
	if err != nil {
		a.respondServerError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

type countResponse struct {
	Count int `json:"count"`
}

func (a *API) handleDataCount(w http.ResponseWriter, r *http.Request) {
	if !a.requireDatabase(w) {
		return
	}
	count, err := a.database.Count()
	if err != nil {
		a.respondServerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, countResponse{Count: count})
}

func (a *API) handleDataSeed(w http.ResponseWriter, r *http.Request) {
	if !a.requireDatabase(w) {
		return
	}
	n := defaultSeedSize
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	if err := a.database.Seed(n); err != nil {
		a.respondServerError(w, r, err)
		return
	}
	count, err := a.database.Count()
	if err != nil {
		a.respondServerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, countResponse{Count: count})
}

type resetResponse struct {
	Removed int64 `json:"removed"`
}

func (a *API) handleDataReset(w http.ResponseWriter, r *http.Request) {
	if !a.requireDatabase(w) {
		return
	}
	removed, err := a.database.Reset()
	if err != nil {
		a.respondServerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resetResponse{Removed: removed})
}

func queryOrDefault(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

func (a *API) handleChart(w http.ResponseWriter, r *http.Request) {
	if !a.requireDatabase(w) {
		return
	}
	x := queryOrDefault(r, "x", "Level")
	y := queryOrDefault(r, "y", "Health")
	target := queryOrDefault(r, "target", "Rarity")

	table, err := a.database.Table()
	if errors.Is(err, db.ErrEmpty) {
		respondError(w, http.StatusNotFound, "collection is empty")
		return
	}
	if err != nil {
		a.respondServerError(w, r, err)
		return
	}
	chart, err := graph.Chart(table, x, y, target)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := graph.Render(&buf, chart); err != nil {
		a.respondServerError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
