// Package chunkup - Utility functions and helpers
//
// This file contains small helpers used throughout the chunkup library:
// chunk math, client-side video detection and byte formatting.
package chunkup

import (
	"fmt"
	"path"
	"strings"
)

// videoExtensions is the client-side allow-list for the video hint.
// Matching is case-insensitive on the filename suffix. The hint only
// steers probing and display; the finalize response decides whether the
// backend actually transcodes.
var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".webm": {},
	".m4v": {}, ".wmv": {}, ".flv": {}, ".mpg": {}, ".mpeg": {},
	".3gp": {}, ".ts": {},
}

// calculateChunks returns the number of chunks needed for a file
func calculateChunks(fileSize, chunkSize int64) int {
	return int((fileSize + chunkSize - 1) / chunkSize)
}

// isVideoFile reports the client-side video hint for a file: extension
// allow-list match or a declared video media type, whichever is available.
func isVideoFile(filename, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "video/") {
		return true
	}
	ext := strings.ToLower(path.Ext(filename))
	_, ok := videoExtensions[ext]
	return ok
}

// formatBytes renders a byte count in a compact human form for messages.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// chunkBytesAcked converts an acknowledged chunk count into transferred
// bytes, capping the final partial chunk at the file size.
func chunkBytesAcked(acked int, chunkSize, fileSize int64) int64 {
	sent := int64(acked) * chunkSize
	if sent > fileSize {
		return fileSize
	}
	return sent
}
