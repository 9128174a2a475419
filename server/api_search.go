package main

import "net/http"

// GET /api/search/cards?q=&labels=a,b&board=&status=&due_from=&due_to=
func (a *api) handleSearchCards(w http.ResponseWriter, r *http.Request) {
	q, err := parseCardQuery(r.URL.Query())
	if err != nil {
		a.fail(w, "search cards", err)
		return
	}
	hits, err := a.svc.SearchCards(r.Context(), currentUser(r).ID, q)
	if err != nil {
		a.fail(w, "search cards", err)
		return
	}
	writeJSON(w, 200, hits)
}
