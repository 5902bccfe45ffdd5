package rename

import "sync"

// ResultKind は成果物の形式です。
type ResultKind string

const (
	ResultKindPDF ResultKind = "pdf"
	ResultKindZip ResultKind = "zip"
)

// FileOutcome は1ファイル分の処理結果です。順序は入力順と一致します。
type FileOutcome struct {
	OriginalName string `json:"original_name"`
	FinalName    string `json:"final_name"`
	Renamed      bool   `json:"renamed"`
	Note         string `json:"note,omitempty"`
}

// Result はバッチ処理の成果物です。OutputPath の実体は作業領域内にあり、
// Cleanup を呼ぶと作業領域ごと削除されます。
type Result struct {
	BatchID        string
	OutputPath     string
	OutputFilename string
	OutputSize     int64
	Kind           ResultKind
	Files          []FileOutcome

	workspaceDir string
	cleanupOnce  sync.Once
	cleanupErr   error
}

// Cleanup は成果物を含む作業領域を削除します。何度呼んでも安全です。
func (r *Result) Cleanup() error {
	if r == nil {
		return nil
	}
	r.cleanupOnce.Do(func() {
		r.cleanupErr = removeDir(r.workspaceDir)
	})
	return r.cleanupErr
}

// RenamedCount は推定メタデータで改名できたファイル数を返します。
func (r *Result) RenamedCount() int {
	count := 0
	for _, f := range r.Files {
		if f.Renamed {
			count++
		}
	}
	return count
}

// FailedCount は元の名前のまま返したファイル数を返します。
func (r *Result) FailedCount() int {
	return len(r.Files) - r.RenamedCount()
}
