package download

import (
	"path/filepath"
	"regexp"
	"strings"

	"cninfoarch/internal/types"
)

var illegalFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

const maxTitleRunes = 200

// SanitizeTitle strips characters that are illegal in file names and
// truncates to 200 runes.
func SanitizeTitle(title string) string {
	clean := illegalFilenameChars.ReplaceAllString(title, "_")
	runes := []rune(clean)
	if len(runes) > maxTitleRunes {
		clean = string(runes[:maxTitleRunes])
	}
	return clean
}

// TargetPath builds the deterministic archive location
// {saveDir}/{code}/{code}_{date}_{title}.{ext}. The date segment is omitted
// when the record carries no usable time. Two records with identical code,
// date and truncated title collide and overwrite; acceptable because
// downloads are content-verified and idempotent.
func TargetPath(saveDir string, a types.Announcement) string {
	code := a.SecCode
	if code == "" {
		code = "unknown"
	}

	parts := []string{code}
	if date := a.PublishedDate(); date != "" {
		parts = append(parts, date)
	}
	title := a.Title
	if title == "" {
		title = "Unknown"
	}
	parts = append(parts, SanitizeTitle(title))

	ext := ".html"
	if a.Kind() == types.KindPDF {
		ext = ".pdf"
	}
	return filepath.Join(saveDir, code, strings.Join(parts, "_")+ext)
}
