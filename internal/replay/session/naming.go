package session

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultFileNameTemplate names recordings after their save time.
const DefaultFileNameTemplate = "Recording at %t"

const timestampLayout = "2006-01-02 at 15.04.05"

// FileName expands a file name template. %t becomes the local save time.
// Path separators are replaced so the result always stays in its directory.
func FileName(template string, now time.Time) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultFileNameTemplate
	}
	name := strings.ReplaceAll(template, "%t", now.Format(timestampLayout))
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == filepath.Separator {
			return '-'
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}
