package rename

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const manifestFilename = "batch.json"

// batchManifest は作業領域に置くバッチ情報です。定期掃除がログ用に読み取ります。
type batchManifest struct {
	BatchID   string      `json:"batch_id"`
	Identity  string      `json:"identity_class"`
	Files     []batchFile `json:"files"`
	CreatedAt time.Time   `json:"created_at"`
}

type batchFile struct {
	StoredName   string `json:"stored_name"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	Pages        int    `json:"pages"`
}

func writeManifest(path string, manifest batchManifest) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("バッチ情報ファイルを作成できませんでした: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return fmt.Errorf("バッチ情報の書き込みに失敗しました: %w", err)
	}
	return nil
}

func loadManifest(path string) (batchManifest, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return batchManifest{}, err
	}
	var manifest batchManifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return batchManifest{}, fmt.Errorf("バッチ情報の解析に失敗しました: %w", err)
	}
	return manifest, nil
}

func toBatchFiles(stored []storedFile) []batchFile {
	files := make([]batchFile, 0, len(stored))
	for _, sf := range stored {
		files = append(files, batchFile{
			StoredName:   filepath.Base(sf.path),
			OriginalName: sf.originalName,
			Size:         sf.size,
			Pages:        sf.pages,
		})
	}
	return files
}
