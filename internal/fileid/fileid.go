// Package fileid derives document IDs and owners for files under the ingest root.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const prefix = "file:"

// FileDocID returns a stable document ID for a file indexed on behalf of clientID.
// The same client and path always yield the same ID, so re-indexing a file updates
// its document instead of creating a new one.
func FileDocID(clientID, absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(clientID + "\x00" + normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// IsFileDocID reports whether id was produced by FileDocID.
func IsFileDocID(id string) bool {
	return strings.HasPrefix(id, prefix)
}

// ClientFromPath returns the client that owns path under an ingest root laid out
// as <root>/<client id>/<files>. ok is false when path is not inside a client folder.
func ClientFromPath(root, path string) (clientID string, ok bool) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	parts := strings.SplitN(rel, string(filepath.Separator), 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0], true
}
