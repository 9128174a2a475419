package main

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
)

// multipart overhead on top of the file bodies
const uploadSlack = 1 << 20

func (a *api) handleUploadAttachments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadFiles*maxUploadSize+uploadSlack)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, 400, "invalid upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]uploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			a.log.Error("open upload part", "err", err)
			writeError(w, 500, "internal error")
			return
		}
		defer f.Close()
		files = append(files, uploadFile{Name: fh.Filename, Size: fh.Size, MimeType: partType(fh, f), Body: f})
	}

	c, err := a.svc.AddAttachments(r.Context(), currentUser(r).ID, r.PathValue("cardId"), files)
	if err != nil {
		a.fail(w, "upload attachments", err)
		return
	}
	writeJSON(w, 201, c)
	added := c.Attachments[len(c.Attachments)-len(files):]
	a.bus.Publish(Event{Type: "attachment.created", Entity: "attachment", BoardID: c.Board, ListID: c.List, Payload: map[string]any{"card_id": c.ID, "attachments": added}})
}

// partType trusts the part header, falling back to sniffing the first bytes.
func partType(fh *multipart.FileHeader, f multipart.File) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(path.Ext(fh.Filename)); ct != "" {
		return ct
	}
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "application/octet-stream"
	}
	return http.DetectContentType(buf[:n])
}

func (a *api) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("attachmentId")
	c, err := a.svc.RemoveAttachment(r.Context(), currentUser(r).ID, r.PathValue("cardId"), ref)
	if err != nil {
		a.fail(w, "delete attachment", err)
		return
	}
	writeJSON(w, 200, c)
	a.bus.Publish(Event{Type: "attachment.deleted", Entity: "attachment", BoardID: c.Board, ListID: c.List, Payload: map[string]any{"card_id": c.ID, "attachment": ref}})
}

func (a *api) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	rc, err := a.svc.OpenUpload(r.Context(), r.PathValue("cardId"), name)
	if err != nil {
		a.fail(w, "serve upload", err)
		return
	}
	defer rc.Close()
	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		a.log.Debug("serve upload copy", "err", err)
	}
}
