package main

import "net/http"

// PATCH /api/auth/me { name }
func (a *api) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name *string `json:"name"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if req.Name == nil {
		writeError(w, 400, "nothing to update")
		return
	}
	u, err := a.svc.RenameUser(r.Context(), currentUser(r).ID, *req.Name)
	if err != nil {
		a.fail(w, "update me", err)
		return
	}
	writeJSON(w, 200, u)
}

// GET /api/users?q= lets the board UI resolve invitees by name or email.
func (a *api) handleFindUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.svc.FindUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.fail(w, "find users", err)
		return
	}
	writeJSON(w, 200, users)
}
