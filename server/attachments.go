package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	maxUploadFiles = 6
	maxUploadSize  = 20 << 20
)

// uploadFile is one part of a multipart upload, already opened by the caller.
type uploadFile struct {
	Name     string
	Size     int64
	MimeType string
	Body     io.Reader
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func cardBlobDir(cardID string) string { return "cards/" + cardID }

// attachmentURL is the public path a stored file is served from. The
// filename keeps characters like '#' and '%', so it is escaped here.
func attachmentURL(cardID, filename string) string {
	return "/uploads/" + cardBlobDir(cardID) + "/" + url.PathEscape(filename)
}

// attachmentFilename makes a disk-safe name: "<unix ms>-<base name>" with
// whitespace runs turned into underscores.
func attachmentFilename(at time.Time, original string) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	base = whitespaceRun.ReplaceAllString(strings.TrimSpace(base), "_")
	if base == "" || base == "." || base == "/" || base == ".." {
		base = "file"
	}
	return fmt.Sprintf("%d-%s", at.UnixMilli(), base)
}

func (s *service) AddAttachments(ctx context.Context, userID, cardID string, files []uploadFile) (*Card, error) {
	if len(files) == 0 {
		return nil, invalidf("No files uploaded")
	}
	if len(files) > maxUploadFiles {
		return nil, invalidf("At most %d files per upload", maxUploadFiles)
	}
	for _, f := range files {
		if f.Size > maxUploadSize {
			return nil, invalidf("File %s exceeds %d MB", f.Name, maxUploadSize>>20)
		}
	}
	c, err := s.cardAccess(ctx, cardID, userID)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]bool, len(c.Attachments)+len(files))
	for _, a := range c.Attachments {
		taken[a.Filename] = true
	}
	now := s.now()
	var written []string
	for _, f := range files {
		at := now
		name := attachmentFilename(at, f.Name)
		for taken[name] {
			at = at.Add(time.Millisecond)
			name = attachmentFilename(at, f.Name)
		}
		taken[name] = true

		mime := f.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		key := cardBlobDir(c.ID) + "/" + name
		if err := s.blobs.Put(ctx, key, f.Body, f.Size, mime); err != nil {
			s.discardBlobs(ctx, c.ID, written)
			return nil, fmt.Errorf("failed to store attachment: %w", err)
		}
		written = append(written, key)
		c.Attachments = append(c.Attachments, Attachment{
			ID:           s.newID(),
			Filename:     name,
			OriginalName: f.Name,
			URL:          attachmentURL(c.ID, name),
			MimeType:     mime,
			Size:         f.Size,
			UploadedBy:   userID,
			CreatedAt:    now,
		})
	}
	c.UpdatedAt = now
	if err := s.store.SaveCard(ctx, c); err != nil {
		s.discardBlobs(ctx, c.ID, written)
		return nil, fmt.Errorf("failed to save card: %w", err)
	}
	return c, nil
}

// discardBlobs removes blobs from an upload that never reached the card.
func (s *service) discardBlobs(ctx context.Context, cardID string, keys []string) {
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			s.log.Warn("delete orphaned attachment blob", "card", cardID, "key", key, "err", err)
		}
	}
}

// RemoveAttachment drops the metadata entry matched by id or filename, then
// deletes the blob. A failed blob delete is logged and does not fail the call.
func (s *service) RemoveAttachment(ctx context.Context, userID, cardID, ref string) (*Card, error) {
	c, err := s.cardAccess(ctx, cardID, userID)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, a := range c.Attachments {
		if a.ID == ref || a.Filename == ref {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, notFound("Attachment not found")
	}
	removed := c.Attachments[idx]
	c.Attachments = append(c.Attachments[:idx:idx], c.Attachments[idx+1:]...)
	c.UpdatedAt = s.now()
	if err := s.store.SaveCard(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save card: %w", err)
	}
	if err := s.blobs.Delete(ctx, cardBlobDir(c.ID)+"/"+removed.Filename); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Debug("attachment blob already gone", "card", c.ID, "file", removed.Filename)
		} else {
			s.log.Warn("delete attachment blob", "card", c.ID, "file", removed.Filename, "err", err)
		}
	}
	return c, nil
}

// OpenUpload streams a stored attachment by its public path parts.
func (s *service) OpenUpload(ctx context.Context, cardID, filename string) (io.ReadCloser, error) {
	rc, err := s.blobs.Open(ctx, cardBlobDir(cardID)+"/"+filename)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalid) {
			return nil, notFound("File not found")
		}
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	return rc, nil
}
