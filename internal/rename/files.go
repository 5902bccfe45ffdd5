package rename

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/yourusername/paper-rename/internal/pdf"
)

// sniffLen はMIME判定に読む先頭バイト数です。
const sniffLen = 3072

// storedFile は作業領域へ保存済みの入力ファイルです。
type storedFile struct {
	path         string
	originalName string
	size         int64
	pages        int
}

// storeMultipartFile はアップロードされたファイルを検証しつつ作業領域へ保存します。
// 拡張子だけでなく先頭バイトでもPDFであることを確かめます。
func (s *Service) storeMultipartFile(ctx context.Context, file *multipart.FileHeader, dir string, index int) (storedFile, error) {
	if err := ctx.Err(); err != nil {
		return storedFile{}, err
	}
	name := filepath.Base(file.Filename)

	src, err := file.Open()
	if err != nil {
		return storedFile{}, newError(CodeInvalidInput, "アップロードファイルを開けませんでした。", err)
	}
	defer src.Close()

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(src, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return storedFile{}, newError(CodeInvalidInput, fmt.Sprintf("%s を読み込めませんでした。", name), err)
	}
	header = header[:n]
	if !pdf.SniffIsPDF(header) {
		return storedFile{}, newError(CodeInvalidInput, fmt.Sprintf("%s はPDFファイルではありません。", name), nil)
	}

	path := filepath.Join(dir, fmt.Sprintf("src-%03d.pdf", index+1))
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return storedFile{}, newError(CodeAllocationFailed, "ファイルの保存に失敗しました。", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, io.MultiReader(bytes.NewReader(header), src))
	if err != nil {
		return storedFile{}, newError(CodeAllocationFailed, "ファイルの保存に失敗しました。", err)
	}

	return storedFile{
		path:         path,
		originalName: name,
		size:         size,
		pages:        pdf.CountPages(path),
	}, nil
}
