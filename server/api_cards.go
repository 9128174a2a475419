package main

import (
	"net/http"
)

func (a *api) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req CardInput
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	c, err := a.svc.CreateCard(r.Context(), currentUser(r).ID, req)
	if err != nil {
		a.fail(w, "create card", err)
		return
	}
	writeJSON(w, 201, c)
	a.bus.Publish(Event{Type: "card.created", Entity: "card", BoardID: c.Board, ListID: c.List, Payload: c})
}

func (a *api) handleGetCard(w http.ResponseWriter, r *http.Request) {
	c, err := a.svc.GetCard(r.Context(), currentUser(r).ID, r.PathValue("id"))
	if err != nil {
		a.fail(w, "get card", err)
		return
	}
	writeJSON(w, 200, c)
}

func (a *api) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req CardPatch
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	c, err := a.svc.UpdateCard(r.Context(), currentUser(r).ID, r.PathValue("id"), req)
	if err != nil {
		a.fail(w, "update card", err)
		return
	}
	writeJSON(w, 200, c)
	a.bus.Publish(Event{Type: "card.updated", Entity: "card", BoardID: c.Board, ListID: c.List, Payload: c})
}

func (a *api) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CardID   string `json:"card_id"`
		ToListID string `json:"to_list_id"`
		Position *int   `json:"position"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	pos := -1
	if req.Position != nil {
		pos = *req.Position
	}
	c, from, err := a.svc.MoveCard(r.Context(), currentUser(r).ID, req.CardID, req.ToListID, pos)
	if err != nil {
		a.fail(w, "move card", err)
		return
	}
	writeJSON(w, 200, c)
	payload := map[string]any{"id": c.ID, "from_list_id": from.ListID, "to_list_id": c.List, "position": c.Position}
	a.bus.Publish(Event{Type: "card.moved", Entity: "card", BoardID: c.Board, ListID: c.List, Payload: payload})
	if from.BoardID != c.Board {
		a.bus.Publish(Event{Type: "card.moved", Entity: "card", BoardID: from.BoardID, ListID: from.ListID, Payload: payload})
	}
}

func (a *api) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	c, err := a.svc.DeleteCard(r.Context(), currentUser(r).ID, r.PathValue("id"))
	if err != nil {
		a.fail(w, "delete card", err)
		return
	}
	writeMessage(w, "Card deleted")
	a.bus.Publish(Event{Type: "card.deleted", Entity: "card", BoardID: c.Board, ListID: c.List, Payload: map[string]any{"id": c.ID}})
}
