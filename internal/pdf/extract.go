// Package pdf はPDFファイルの検証と本文テキストの抽出を提供します。
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	pdflib "github.com/ledongthuc/pdf"
)

// TextLimits は抽出するテキスト量の上限です。
// MaxPages と MaxChars のどちらかに達した時点で読み取りを打ち切ります。
type TextLimits struct {
	MaxPages int
	MaxChars int
}

// ErrorKind は抽出失敗の種別です。
type ErrorKind string

const (
	KindCorrupt   ErrorKind = "CORRUPT"
	KindEncrypted ErrorKind = "ENCRYPTED"
	KindEmpty     ErrorKind = "EMPTY"
)

// ExtractError はPDFからテキストを取り出せなかったことを表します。
type ExtractError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExtractError) Error() string {
	switch e.Kind {
	case KindEncrypted:
		return "パスワード保護されたPDFは処理できません。"
	case KindEmpty:
		return "PDFからテキストを抽出できませんでした。"
	default:
		return "PDFの解析に失敗しました。"
	}
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// ExtractText はPDFの先頭ページから順にテキストを抽出します。
// ページ上限・文字数上限・最終ページのいずれかに達した時点で止まり、
// それより後ろのページには触れません。
func ExtractText(data []byte, limits TextLimits) (text string, err error) {
	// 壊れたPDFでライブラリが panic することがあるため回復します。
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ExtractError{Kind: KindCorrupt, Err: fmt.Errorf("pdf parser panic: %v", r)}
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdflib.ErrInvalidPassword) {
			return "", &ExtractError{Kind: KindEncrypted, Err: err}
		}
		return "", &ExtractError{Kind: KindCorrupt, Err: err}
	}

	total := reader.NumPage()
	if total == 0 {
		return "", &ExtractError{Kind: KindEmpty}
	}

	maxPages := limits.MaxPages
	if maxPages <= 0 || maxPages > total {
		maxPages = total
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		if limits.MaxChars > 0 && builder.Len() >= limits.MaxChars {
			break
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			// 読めないページは飛ばして残りを処理します。
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}

	result := strings.TrimSpace(builder.String())
	if limits.MaxChars > 0 && len(result) > limits.MaxChars {
		cut := result[:limits.MaxChars]
		for len(cut) > 0 && !utf8.ValidString(cut) {
			cut = cut[:len(cut)-1]
		}
		result = strings.TrimSpace(cut)
	}
	if result == "" {
		return "", &ExtractError{Kind: KindEmpty}
	}
	return result, nil
}
