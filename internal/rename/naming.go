package rename

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yourusername/paper-rename/internal/metadata"
)

var (
	unsafeChars   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// buildFileName は推定結果から `著者_年_タイトル.pdf` 形式の名前を組み立てます。
// 推定結果が無い場合は元のファイル名を安全化して返します。
func buildFileName(rec *metadata.Record, originalName string) string {
	if rec == nil {
		return sanitizeFileName(originalName)
	}
	base := sanitizeBase(fmt.Sprintf("%s_%s_%s", rec.AuthorLastName, rec.Year, rec.ShortTitle))
	if base == "" {
		return sanitizeFileName(originalName)
	}
	return base + ".pdf"
}

// sanitizeFileName は元のファイル名をファイルシステムに安全な形へ整えます。
func sanitizeFileName(name string) string {
	cleaned := strings.TrimSpace(filepath.Base(name))
	cleaned = unsafeChars.ReplaceAllString(cleaned, "")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, "_")
	cleaned = strings.TrimLeft(cleaned, ".")
	if cleaned == "" || strings.EqualFold(cleaned, "pdf") {
		return "paper.pdf"
	}
	if !strings.EqualFold(filepath.Ext(cleaned), ".pdf") {
		cleaned += ".pdf"
	}
	return cleaned
}

func sanitizeBase(base string) string {
	cleaned := unsafeChars.ReplaceAllString(base, "")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, "_")
	return strings.Trim(cleaned, "_.")
}

// resolveCollision は使用済みの名前と重なる場合、拡張子の前に _2, _3 … を
// 付けて一意にします。付番はバッチ内の入力順に確定します。
func resolveCollision(candidate string, used map[string]struct{}) string {
	if _, taken := used[candidate]; !taken {
		return candidate
	}
	ext := filepath.Ext(candidate)
	stem := strings.TrimSuffix(candidate, ext)
	for i := 2; ; i++ {
		next := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, taken := used[next]; !taken {
			return next
		}
	}
}
