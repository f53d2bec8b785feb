// Package upload validates and names client supplied image files.
package upload

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrInvalidFormat is returned for files that are not JPEG or PNG images.
var ErrInvalidFormat = errors.New("upload: invalid file format")

var allowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

var allowedMIME = []string{"image/jpeg", "image/png"}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// maxNameBytes caps a sanitized name so that prefixed storage keys stay
// well under the common 255 byte file name limit.
const maxNameBytes = 100

// maxExtBytes bounds the suffix kept when a long name is shortened.
const maxExtBytes = 8

// AllowedFilename reports whether the filename carries an accepted extension.
func AllowedFilename(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	_, ok := allowedExtensions[strings.ToLower(filename[idx+1:])]
	return ok
}

// CheckContent sniffs the leading bytes and rejects anything that is not an
// accepted image type, regardless of the extension.
func CheckContent(data []byte) error {
	mt := mimetype.Detect(data)
	for _, allowed := range allowedMIME {
		if mt.Is(allowed) {
			return nil
		}
	}
	return ErrInvalidFormat
}

// SanitizeFilename strips directories and characters unsafe for a file name
// and shortens long names, keeping the extension.
func SanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "._")
	if name == "" {
		return "image"
	}
	if len(name) > maxNameBytes {
		ext := filepath.Ext(name)
		if len(ext) > maxExtBytes {
			ext = ""
		}
		name = name[:maxNameBytes-len(ext)] + ext
	}
	return name
}

// StoredName returns a collision free storage key for an upload.
func StoredName(filename string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + SanitizeFilename(filename)
}
