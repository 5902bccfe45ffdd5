package rename

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const archiveFilename = "renamed_papers.zip"

// packageResult は改名済みファイルを1つの成果物にまとめます。
// 1件ならPDFをそのまま、複数ならzipアーカイブで返します。
func (s *Service) packageResult(ws workspace, outcomes []FileOutcome) (*Result, error) {
	if len(outcomes) == 0 {
		return nil, newError(CodePackagingFailed, "返却できるファイルがありません。", nil)
	}

	result := &Result{
		BatchID:      ws.batchID,
		Files:        outcomes,
		workspaceDir: ws.dir,
	}

	if len(outcomes) == 1 {
		path := filepath.Join(ws.outDir, outcomes[0].FinalName)
		info, err := os.Stat(path)
		if err != nil {
			return nil, newError(CodePackagingFailed, "成果物の確認に失敗しました。", err)
		}
		result.OutputPath = path
		result.OutputFilename = outcomes[0].FinalName
		result.OutputSize = info.Size()
		result.Kind = ResultKindPDF
		return result, nil
	}

	paths := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		paths = append(paths, filepath.Join(ws.outDir, outcome.FinalName))
	}

	// zipは作業領域の直下に作ります。out/ に置くと自分自身を取り込んでしまいます。
	archivePath := filepath.Join(ws.dir, archiveFilename)
	if err := createZip(archivePath, paths); err != nil {
		return nil, err
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, newError(CodePackagingFailed, "成果物の確認に失敗しました。", err)
	}
	result.OutputPath = archivePath
	result.OutputFilename = archiveFilename
	result.OutputSize = info.Size()
	result.Kind = ResultKindZip
	return result, nil
}

// createZip は与えられた順番のままファイルをアーカイブに収めます。
// エントリはすべてアーカイブ直下に置きます。
func createZip(outputPath string, files []string) error {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return newError(CodePackagingFailed, "zipファイルの作成に失敗しました。", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	for _, path := range files {
		if err := addZipEntry(zipWriter, path); err != nil {
			_ = zipWriter.Close()
			return err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return newError(CodePackagingFailed, "zipファイルの書き込みに失敗しました。", err)
	}
	return nil
}

func addZipEntry(zw *zip.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return newError(CodePackagingFailed, fmt.Sprintf("%s を開けませんでした。", filepath.Base(path)), err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return newError(CodePackagingFailed, "ファイル情報の取得に失敗しました。", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return newError(CodePackagingFailed, "zipヘッダーの作成に失敗しました。", err)
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return newError(CodePackagingFailed, "zipエントリの作成に失敗しました。", err)
	}
	if _, err := io.Copy(writer, file); err != nil {
		return newError(CodePackagingFailed, "zipへの書き込みに失敗しました。", err)
	}
	return nil
}
