package utils

import "strings"

func GetExtensionFromMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "bin"
	}
}

// GetMimeFromDataURL extrai o MIME type de uma data URL (ex: "data:image/png;base64,...").
// Retorna vazio quando a string não é uma data URL.
func GetMimeFromDataURL(dataURL string) string {
	if !strings.HasPrefix(dataURL, "data:") {
		return ""
	}
	rest := dataURL[len("data:"):]
	if idx := strings.IndexAny(rest, ";,"); idx >= 0 {
		return rest[:idx]
	}
	return ""
}
