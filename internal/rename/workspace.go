package rename

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// workspace は1バッチ分の作業ディレクトリです。
// in には受け取ったままのファイル、out には改名後のファイルを置きます。
type workspace struct {
	batchID string
	dir     string
	inDir   string
	outDir  string
}

func (w workspace) manifestPath() string {
	return filepath.Join(w.dir, manifestFilename)
}

// createWorkspace は推測できないIDで新しい作業領域を確保します。
func (s *Service) createWorkspace() (workspace, error) {
	ws := s.workspaceFor(uuid.NewString())
	if err := os.MkdirAll(ws.inDir, 0o750); err != nil {
		return workspace{}, newError(CodeAllocationFailed, "作業領域の作成に失敗しました。", err)
	}
	if err := os.MkdirAll(ws.outDir, 0o750); err != nil {
		return workspace{}, newError(CodeAllocationFailed, "作業領域の作成に失敗しました。", err)
	}
	return ws, nil
}

func (s *Service) workspaceFor(batchID string) workspace {
	dir := filepath.Join(s.cfg.UploadDir, batchID)
	return workspace{
		batchID: batchID,
		dir:     dir,
		inDir:   filepath.Join(dir, "in"),
		outDir:  filepath.Join(dir, "out"),
	}
}

// removeDir は作業領域を削除します。既に無い場合は何もしません。
func removeDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}
