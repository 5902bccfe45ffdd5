// Package rename はアップロードされた論文PDFを書誌情報に基づいて改名し、
// 1つの成果物にまとめて返すまでの一連の処理を提供します。
package rename

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yourusername/paper-rename/internal/config"
	"github.com/yourusername/paper-rename/internal/metadata"
	"github.com/yourusername/paper-rename/internal/pdf"
	"github.com/yourusername/paper-rename/internal/quota"
)

// perFileWorkers は1バッチ内で並行処理するファイル数の上限です。
const perFileWorkers = 4

// Service は改名バッチの一連の処理を束ねます。
type Service struct {
	cfg    *config.Config
	quota  *quota.Tracker
	meta   metadata.Extractor
	logger *log.Logger
	now    func() time.Time
}

// NewService は Service を作成し、アップロード保存先を用意します。
func NewService(cfg *config.Config, tracker *quota.Tracker, extractor metadata.Extractor, logger *log.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if tracker == nil {
		return nil, errors.New("quota tracker is required")
	}
	if extractor == nil {
		return nil, errors.New("metadata extractor is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("アップロード保存先を作成できませんでした: %w", err)
	}
	return &Service{
		cfg:    cfg,
		quota:  tracker,
		meta:   extractor,
		logger: logger,
		now:    time.Now,
	}, nil
}

// fileResult は1ファイル分の抽出・推定の結果です。
type fileResult struct {
	record *metadata.Record
	note   string
}

// ProcessBatch はアップロードされたファイル一式を検証・改名し、成果物を返します。
// 返した Result の Cleanup が呼ばれるまで作業領域は残ります。
func (s *Service) ProcessBatch(ctx context.Context, identity quota.Identity, files []*multipart.FileHeader) (_ *Result, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := validateBatch(files, s.cfg.MaxFileSize); err != nil {
		return nil, err
	}

	// 受け入れと同時に送信1回分を記録します。以降の処理が失敗しても記録は戻しません。
	admission, err := s.quota.Admit(ctx, identity, len(files))
	if err != nil {
		return nil, err
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	// 成果物を返せない場合は作業領域ごと消します。
	defer func() {
		if err != nil {
			_ = removeDir(ws.dir)
		}
	}()

	stored := make([]storedFile, 0, len(files))
	for i, file := range files {
		sf, storeErr := s.storeMultipartFile(ctx, file, ws.inDir, i)
		if storeErr != nil {
			return nil, storeErr
		}
		stored = append(stored, sf)
	}

	manifest := batchManifest{
		BatchID:   ws.batchID,
		Identity:  string(identity.Class),
		Files:     toBatchFiles(stored),
		CreatedAt: s.now().UTC(),
	}
	if mErr := writeManifest(ws.manifestPath(), manifest); mErr != nil {
		return nil, fmt.Errorf("バッチ情報の保存に失敗しました: %w", mErr)
	}

	results, err := s.processFiles(ctx, stored)
	if err != nil {
		return nil, err
	}

	outcomes, err := s.applyNames(ws, stored, results)
	if err != nil {
		return nil, err
	}

	result, err := s.packageResult(ws, outcomes)
	if err != nil {
		return nil, err
	}

	s.logger.Printf("batch %s: %d files processed, %d renamed (remaining=%d)",
		ws.batchID, len(outcomes), result.RenamedCount(), admission.Remaining)
	return result, nil
}

// validateBatch はヘッダー情報だけで判定できる検証をまとめて行います。
// ここで弾かれたバッチは送信回数を消費しません。
func validateBatch(files []*multipart.FileHeader, maxFileSize int64) error {
	if len(files) == 0 {
		return newError(CodeInvalidInput, "アップロードされたPDFファイルが見つかりません。", nil)
	}
	seen := make(map[string]struct{}, len(files))
	for _, file := range files {
		name := filepath.Base(file.Filename)
		if name == "" || name == "." || name == string(filepath.Separator) {
			return newError(CodeInvalidInput, "ファイル名が不正です。", nil)
		}
		if !pdf.IsPDFFilename(name) {
			return newError(CodeInvalidInput, fmt.Sprintf("%s はPDFファイルではありません。", name), nil)
		}
		if _, dup := seen[name]; dup {
			return newError(CodeInvalidInput, fmt.Sprintf("同名のファイルが複数含まれています: %s", name), nil)
		}
		seen[name] = struct{}{}
		if maxFileSize > 0 && file.Size > maxFileSize {
			return newError(CodeLimitExceeded, fmt.Sprintf("%s のサイズが上限（%d MB）を超えています。", name, maxFileSize/(1<<20)), nil)
		}
	}
	return nil
}

// processFiles は各ファイルの抽出と推定を並行して行います。
// 結果は入力順のスライスに格納し、命名は後段で入力順に適用します。
func (s *Service) processFiles(ctx context.Context, stored []storedFile) ([]fileResult, error) {
	results := make([]fileResult, len(stored))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(perFileWorkers)
	for i, sf := range stored {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.processFile(ctx, sf)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// processFile は1ファイル分のテキスト抽出とメタデータ推定を行います。
// ここでの失敗はバッチ全体を止めず、元の名前のまま返す判断として記録します。
func (s *Service) processFile(ctx context.Context, sf storedFile) fileResult {
	data, err := os.ReadFile(sf.path)
	if err != nil {
		s.logger.Printf("batch file %s: read failed: %v", sf.originalName, err)
		return fileResult{note: "ファイルを読み込めませんでした。"}
	}

	text, err := pdf.ExtractText(data, pdf.TextLimits{
		MaxPages: s.cfg.ExtractMaxPages,
		MaxChars: s.cfg.ExtractMaxChars,
	})
	if err != nil {
		s.logger.Printf("batch file %s: extraction failed: %v", sf.originalName, err)
		return fileResult{note: err.Error()}
	}

	record, err := s.meta.Infer(ctx, text)
	if err != nil {
		s.logger.Printf("batch file %s: inference failed: %v", sf.originalName, err)
		return fileResult{note: err.Error()}
	}
	return fileResult{record: record}
}

// applyNames は入力順に名前を確定させ、ファイルを out/ へ移します。
func (s *Service) applyNames(ws workspace, stored []storedFile, results []fileResult) ([]FileOutcome, error) {
	outcomes := make([]FileOutcome, 0, len(stored))
	used := make(map[string]struct{}, len(stored))

	for i, sf := range stored {
		candidate := buildFileName(results[i].record, sf.originalName)
		final := resolveCollision(candidate, used)
		used[final] = struct{}{}

		if err := os.Rename(sf.path, filepath.Join(ws.outDir, final)); err != nil {
			return nil, newError(CodePackagingFailed, "ファイルの移動に失敗しました。", err)
		}
		outcomes = append(outcomes, FileOutcome{
			OriginalName: sf.originalName,
			FinalName:    final,
			Renamed:      results[i].record != nil,
			Note:         results[i].note,
		})
	}
	return outcomes, nil
}

// LimitsInfo は呼び出し元の利用枠の現在値です。
type LimitsInfo struct {
	Authenticated bool
	MaxFiles      int
	Remaining     int
	MaxPerYear    int
}

// Limits は呼び出し元の利用枠を返します。
func (s *Service) Limits(ctx context.Context, identity quota.Identity) (LimitsInfo, error) {
	lim := s.quota.Limits()
	if identity.Class == quota.ClassRegistered {
		return LimitsInfo{Authenticated: true, MaxFiles: lim.RegisteredMaxFiles}, nil
	}

	remaining, err := s.quota.Remaining(ctx, identity)
	if err != nil {
		return LimitsInfo{}, fmt.Errorf("利用状況の取得に失敗しました: %w", err)
	}
	return LimitsInfo{
		Authenticated: false,
		MaxFiles:      lim.AnonMaxFiles,
		Remaining:     remaining,
		MaxPerYear:    lim.AnonMaxSubmissions,
	}, nil
}
