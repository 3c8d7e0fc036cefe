package avatar

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const maxBytes = 5 * 1024 * 1024

var (
	ErrInvalidFormat   = errors.New("invalid image format")
	ErrInvalidEncoding = errors.New("invalid image encoding")
	ErrTooLarge        = errors.New("image too large (max 5MB)")
)

var dataURIRe = regexp.MustCompile(`^data:image/(png|jpeg|jpg|webp);base64,([A-Za-z0-9+/=\r\n]+)$`)

// Store writes profile photos to local disk and maps stored paths to
// public URLs.
type Store struct {
	dir     string
	baseURL string
}

func NewStore(dir, baseURL string) *Store {
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Save decodes a base64 data URI and writes it under the retreat's avatar
// directory. Returns the relative path to persist on the participant.
func (s *Store) Save(retreatID, participantID int64, dataURI string) (string, error) {
	matches := dataURIRe.FindStringSubmatch(dataURI)
	if matches == nil {
		return "", ErrInvalidFormat
	}

	cleaned := strings.NewReplacer("\r", "", "\n", "", " ", "").Replace(matches[2])
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", ErrInvalidEncoding
	}
	if len(raw) > maxBytes {
		return "", ErrTooLarge
	}

	ext := strings.ToLower(matches[1])
	if ext == "jpeg" {
		ext = "jpg"
	}

	rel := fmt.Sprintf("%d/participant-%d-%d.%s", retreatID, participantID, time.Now().Unix(), ext)
	full := filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, raw, 0o644); err != nil {
		return "", err
	}
	return rel, nil
}

// Remove deletes a previously stored avatar. Missing files are not errors:
// the goal is that the path no longer resolves.
func (s *Store) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, rel))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// URL maps a stored path to its public URL, nil for no avatar.
func (s *Store) URL(rel *string) *string {
	if rel == nil || *rel == "" {
		return nil
	}
	u := s.baseURL + "/" + *rel
	return &u
}
