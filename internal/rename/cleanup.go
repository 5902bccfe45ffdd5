package rename

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/paper-rename/internal/config"
)

const (
	defaultCleanupDelay  = 30 * time.Second
	defaultExpireCeiling = 10 * time.Minute
	defaultSweepInterval = time.Minute
)

// Scheduler は成果物送信後の遅延削除と、取りこぼした作業領域の定期掃除を行います。
type Scheduler struct {
	baseDir  string
	delay    time.Duration
	ceiling  time.Duration
	interval time.Duration
	logger   *log.Logger

	stop chan struct{}
	done chan struct{}
}

// NewScheduler は設定値から Scheduler を作成します。
func NewScheduler(cfg *config.Config, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	delay := time.Duration(cfg.CleanupDelaySeconds) * time.Second
	if delay <= 0 {
		delay = defaultCleanupDelay
	}
	ceiling := time.Duration(cfg.WorkspaceExpireMinutes) * time.Minute
	if ceiling <= 0 {
		ceiling = defaultExpireCeiling
	}
	interval := time.Duration(cfg.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Scheduler{
		baseDir:  cfg.UploadDir,
		delay:    delay,
		ceiling:  ceiling,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Schedule は成果物の送信開始時点から一定時間後に作業領域を削除します。
// 削除は Result.Cleanup 経由なので、手動で先に消されていても安全です。
func (s *Scheduler) Schedule(result *Result) {
	if result == nil {
		return
	}
	time.AfterFunc(s.delay, func() {
		if err := result.Cleanup(); err != nil {
			s.logger.Printf("delayed cleanup of batch %s failed: %v", result.BatchID, err)
		}
	})
}

// Start は定期掃除を開始します。
func (s *Scheduler) Start() {
	go s.run()
}

// Stop は定期掃除を止め、実行中の掃除が終わるまで待ちます。
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep は期限を過ぎた作業領域を削除します。一次タイマーが失われた場合や
// プロセス再起動後の取りこぼしを拾います。
func (s *Scheduler) sweep() {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Printf("sweep: failed to read %s: %v", s.baseDir, err)
		}
		return
	}

	cutoff := time.Now().Add(-s.ceiling)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(s.baseDir, entry.Name())
		if manifest, mErr := loadManifest(filepath.Join(dir, manifestFilename)); mErr == nil {
			s.logger.Printf("sweep: removing abandoned batch %s (%d files, created %s)",
				manifest.BatchID, len(manifest.Files), manifest.CreatedAt.Format(time.RFC3339))
		} else {
			s.logger.Printf("sweep: removing abandoned dir %s", entry.Name())
		}
		if err := removeDir(dir); err != nil {
			s.logger.Printf("sweep: failed to remove %s: %v", dir, err)
		}
	}
}
