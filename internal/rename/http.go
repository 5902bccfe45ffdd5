package rename

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/paper-rename/internal/auth"
	"github.com/yourusername/paper-rename/internal/quota"
)

// FingerprintHeader は匿名利用者の識別に使うブラウザ指紋ヘッダーです。
const FingerprintHeader = "X-Browser-Fingerprint"

// BatchService は改名バッチを実行するサービスです。
type BatchService interface {
	ProcessBatch(ctx context.Context, identity quota.Identity, files []*multipart.FileHeader) (*Result, error)
	Limits(ctx context.Context, identity quota.Identity) (LimitsInfo, error)
}

// CleanupScheduler は成果物送信後の遅延削除を予約します。
type CleanupScheduler interface {
	Schedule(result *Result)
}

// UploadHandler は論文PDFの一括アップロードを処理し、改名済みの成果物を返します。
func UploadHandler(svc BatchService, cleaner CleanupScheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			respondError(c, http.StatusBadRequest, "multipart/form-data でPDFファイルを送信してください。")
			return
		}
		defer form.RemoveAll()

		files := form.File["files[]"]
		if len(files) == 0 {
			files = form.File["files"]
		}
		if len(files) == 0 {
			respondError(c, http.StatusBadRequest, "アップロードされたPDFファイルが見つかりません。")
			return
		}

		result, err := svc.ProcessBatch(c.Request.Context(), identityFrom(c), files)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if err := streamResult(c, result, cleaner); err != nil {
			_ = result.Cleanup()
			respondWithError(c, err)
		}
	}
}

// LimitsHandler は呼び出し元の利用枠を返します。
func LimitsHandler(svc BatchService) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := svc.Limits(c.Request.Context(), identityFrom(c))
		if err != nil {
			respondWithError(c, err)
			return
		}

		payload := gin.H{
			"authenticated": info.Authenticated,
			"max_files":     info.MaxFiles,
		}
		if !info.Authenticated {
			payload["remaining_submissions"] = info.Remaining
			payload["max_submissions_per_year"] = info.MaxPerYear
		}
		c.JSON(http.StatusOK, payload)
	}
}

// identityFrom はリクエストから呼び出し元の識別情報を組み立てます。
func identityFrom(c *gin.Context) quota.Identity {
	class := quota.ClassAnonymous
	if c.GetString(auth.ContextUserKey) != "" {
		class = quota.ClassRegistered
	}
	fingerprint := strings.TrimSpace(c.GetHeader(FingerprintHeader))
	if fingerprint == "" {
		fingerprint = "unknown"
	}
	return quota.Identity{
		Class:       class,
		Origin:      c.ClientIP(),
		Fingerprint: fingerprint,
	}
}

// streamResult は成果物を応答としてストリーミングします。
// 削除タイマーは送信開始の直前に起動します。ファイルは既に開いてあるため、
// 転送が削除予定時刻を跨いでも送信は完了できます。
func streamResult(c *gin.Context, result *Result, cleaner CleanupScheduler) error {
	file, err := os.Open(result.OutputPath)
	if err != nil {
		return newError(CodePackagingFailed, "成果物の読み込みに失敗しました。", err)
	}
	defer file.Close()

	contentType := "application/pdf"
	if result.Kind == ResultKindZip {
		contentType = "application/zip"
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		result.OutputFilename, url.PathEscape(result.OutputFilename)))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Batch-Id", result.BatchID)
	c.Header("X-Files-Processed", strconv.Itoa(result.RenamedCount()))
	c.Header("X-Files-Errors", strconv.Itoa(result.FailedCount()))

	cleaner.Schedule(result)
	c.DataFromReader(http.StatusOK, result.OutputSize, contentType, file, nil)
	return nil
}

// respondWithError はエラー種別をHTTPステータスへ対応付けて返します。
func respondWithError(c *gin.Context, err error) {
	var quotaErr *quota.Error
	if errors.As(err, &quotaErr) {
		status := http.StatusBadRequest
		if quotaErr.Kind == quota.KindYearlyLimitExceeded {
			status = http.StatusTooManyRequests
		}
		respondError(c, status, quotaErr.Error())
		return
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		respondError(c, statusForCode(apiErr.Code), apiErr.Message)
		return
	}

	if errors.Is(err, context.Canceled) {
		respondError(c, http.StatusRequestTimeout, "リクエストがキャンセルされました。")
		return
	}

	respondError(c, http.StatusInternalServerError, "サーバー内部でエラーが発生しました。")
}

func statusForCode(code string) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeLimitExceeded:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// respondError は `{"error": メッセージ}` 形式で返します。
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
