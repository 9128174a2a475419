package main

import (
	"net/http"
)

func (a *api) handleListBoards(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.BoardsForUser(r.Context(), currentUser(r).ID)
	if err != nil {
		a.fail(w, "list boards", err)
		return
	}
	writeJSON(w, 200, items)
}

func (a *api) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.log.Debug("decode create board", "err", err)
		writeError(w, 400, "invalid payload")
		return
	}
	b, err := a.svc.CreateBoard(r.Context(), currentUser(r).ID, req.Title, req.Description)
	if err != nil {
		a.fail(w, "create board", err)
		return
	}
	writeJSON(w, 201, b)
}

func (a *api) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	d, err := a.svc.BoardDetail(r.Context(), r.PathValue("id"), currentUser(r).ID)
	if err != nil {
		a.fail(w, "get board", err)
		return
	}
	writeJSON(w, 200, d)
}

func (a *api) handleUpdateBoard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	d, err := a.svc.UpdateBoard(r.Context(), r.PathValue("id"), currentUser(r).ID, req.Title, req.Description)
	if err != nil {
		a.fail(w, "update board", err)
		return
	}
	writeJSON(w, 200, d)
	a.bus.Publish(Event{Type: "board.updated", Entity: "board", BoardID: d.ID, Payload: map[string]any{"title": d.Title, "description": d.Description}})
}

func (a *api) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.svc.DeleteBoard(r.Context(), id, currentUser(r).ID); err != nil {
		a.fail(w, "delete board", err)
		return
	}
	writeMessage(w, "Board deleted")
	a.bus.Publish(Event{Type: "board.deleted", Entity: "board", BoardID: id})
}

type memberRequest struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (a *api) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	d, err := a.svc.InviteMember(r.Context(), r.PathValue("id"), currentUser(r).ID, req.UserID, req.Role)
	if err != nil {
		a.fail(w, "invite member", err)
		return
	}
	writeJSON(w, 200, d)
	a.bus.Publish(Event{Type: "member.invited", Entity: "member", BoardID: d.ID, Payload: map[string]any{"user_id": req.UserID}})
}

func (a *api) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	d, err := a.svc.ChangeRole(r.Context(), r.PathValue("id"), currentUser(r).ID, req.UserID, req.Role)
	if err != nil {
		a.fail(w, "change role", err)
		return
	}
	writeJSON(w, 200, d)
	a.bus.Publish(Event{Type: "member.role_changed", Entity: "member", BoardID: d.ID, Payload: map[string]any{"user_id": req.UserID, "role": req.Role}})
}

func (a *api) handleBoardEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, _, err := a.svc.boardAccess(r.Context(), id, currentUser(r).ID, levelMember); err != nil {
		a.fail(w, "board events", err)
		return
	}
	a.bus.ServeSSE(w, r, id)
}
