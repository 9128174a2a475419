package main

import (
	"bytes"
	"encoding/json"
	"net/http"
)

func (a *api) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BoardID string `json:"board_id"`
		Title   string `json:"title"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	l, err := a.svc.CreateList(r.Context(), currentUser(r).ID, req.BoardID, req.Title)
	if err != nil {
		a.fail(w, "create list", err)
		return
	}
	writeJSON(w, 201, l)
	a.bus.Publish(Event{Type: "list.created", Entity: "list", BoardID: l.Board, ListID: l.ID, Payload: l})
}

func (a *api) handleRenameList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	l, err := a.svc.RenameList(r.Context(), currentUser(r).ID, r.PathValue("id"), req.Title)
	if err != nil {
		a.fail(w, "rename list", err)
		return
	}
	writeJSON(w, 200, l)
	a.bus.Publish(Event{Type: "list.updated", Entity: "list", BoardID: l.Board, ListID: l.ID, Payload: l})
}

func (a *api) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	l, err := a.svc.DeleteList(r.Context(), currentUser(r).ID, r.PathValue("id"))
	if err != nil {
		a.fail(w, "delete list", err)
		return
	}
	writeMessage(w, "List deleted")
	a.bus.Publish(Event{Type: "list.deleted", Entity: "list", BoardID: l.Board, ListID: l.ID})
}

// listOrder accepts ["id", ...] as well as [{"list_id": "id"}, ...].
type listOrder []string

func (o *listOrder) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*o = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(listOrder, 0, len(raw))
	for _, item := range raw {
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			out = append(out, id)
			continue
		}
		var obj struct {
			ListID string `json:"list_id"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return err
		}
		out = append(out, obj.ListID)
	}
	*o = out
	return nil
}

func (a *api) handleReorderLists(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BoardID string    `json:"board_id"`
		Order   listOrder `json:"order"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	d, err := a.svc.ReorderLists(r.Context(), currentUser(r).ID, req.BoardID, req.Order)
	if err != nil {
		a.fail(w, "reorder lists", err)
		return
	}
	writeJSON(w, 200, d)
	order := make([]string, 0, len(d.Lists))
	for _, l := range d.Lists {
		order = append(order, l.ID)
	}
	a.bus.Publish(Event{Type: "lists.reordered", Entity: "board", BoardID: d.ID, Payload: map[string]any{"order": order}})
}
