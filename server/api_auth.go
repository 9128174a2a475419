package main

import (
	"net/http"
)

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	res, err := a.svc.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		a.fail(w, "register", err)
		return
	}
	writeJSON(w, 201, res)
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	res, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(w, "login", err)
		return
	}
	writeJSON(w, 200, res)
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, currentUser(r))
}
