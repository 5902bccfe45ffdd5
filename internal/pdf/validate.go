package pdf

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// IsPDFFilename はファイル名の拡張子が .pdf かどうかを返します。
func IsPDFFilename(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// SniffIsPDF はファイル先頭のバイト列からPDFかどうかを判定します。
func SniffIsPDF(header []byte) bool {
	return mimetype.Detect(header).Is("application/pdf")
}

// CountPages はPDFのページ数を返します。解析できない場合は 0 を返します。
func CountPages(path string) int {
	count, err := pdfapi.PageCountFile(path)
	if err != nil {
		return 0
	}
	return count
}
