package mcp

import "strings"

// formatMimeTypes maps media formats to MIME types.
var formatMimeTypes = map[string]string{
	"svg":  "image/svg+xml",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"avif": "image/avif",
	"ico":  "image/x-icon",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"json": "application/json",
	"ttf":  "font/ttf",
	"otf":  "font/otf",
	"woff": "font/woff",
}

// MimeTypeForFormat returns the MIME type of a media format such as "svg"
// or ".PNG". Unknown formats are "application/octet-stream".
func MimeTypeForFormat(format string) string {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	if mime, ok := formatMimeTypes[f]; ok {
		return mime
	}
	return "application/octet-stream"
}
