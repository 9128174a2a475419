package main

import "net/http"

func (a *api) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	c, err := a.svc.AddComment(r.Context(), currentUser(r).ID, r.PathValue("id"), req.Text)
	if err != nil {
		a.fail(w, "add comment", err)
		return
	}
	writeJSON(w, 200, c)
	a.bus.Publish(Event{Type: "comment.created", Entity: "comment", BoardID: c.Board, ListID: c.List, Payload: c.Comments[len(c.Comments)-1]})
}
