// Package quota は匿名利用者の送信回数とバッチあたりのファイル数の上限を管理します。
package quota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Window は匿名利用者の送信回数を数える期間です。
const Window = 365 * 24 * time.Hour

// Class は呼び出し元の識別クラスを表します。
type Class string

const (
	ClassAnonymous  Class = "anonymous"
	ClassRegistered Class = "registered"
)

// Identity は利用制限の対象となる呼び出し元を表します。
// 匿名利用者は送信元アドレスとフィンガープリントの組で識別します。
// どちらか一方だけが一致しても同一の利用者とは見なしません。
type Identity struct {
	Class       Class
	Origin      string
	Fingerprint string
}

// Key は (送信元, フィンガープリント) から導出する記録用キーを返します。
func (id Identity) Key() string {
	sum := sha256.Sum256([]byte(id.Origin + ":" + id.Fingerprint))
	return hex.EncodeToString(sum[:])
}

// ErrorKind は利用制限違反の種別です。
type ErrorKind string

const (
	KindTooManyFiles        ErrorKind = "TOO_MANY_FILES"
	KindYearlyLimitExceeded ErrorKind = "YEARLY_LIMIT_EXCEEDED"
)

// Error は利用制限違反を表します。Limit には利用者へ伝える上限値が入ります。
type Error struct {
	Kind  ErrorKind
	Limit int
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTooManyFiles:
		return fmt.Sprintf("1回の送信で扱えるファイルは最大 %d 件です。", e.Limit)
	case KindYearlyLimitExceeded:
		return fmt.Sprintf("年間の送信回数上限（%d 回）に達しました。", e.Limit)
	default:
		return "利用制限を超えています。"
	}
}

// Limits は利用制限の設定値です。
type Limits struct {
	AnonMaxFiles       int
	RegisteredMaxFiles int
	AnonMaxSubmissions int
}

// Tracker はバッチ受け入れの可否判定と送信記録を行います。
type Tracker struct {
	limits Limits
	store  Store
	now    func() time.Time
}

// NewTracker は Tracker を作成します。
func NewTracker(limits Limits, store Store) *Tracker {
	return &Tracker{
		limits: limits,
		store:  store,
		now:    time.Now,
	}
}

// Limits は設定されている上限値を返します。
func (t *Tracker) Limits() Limits {
	return t.limits
}

// Admission は許可された送信の情報です。
type Admission struct {
	// Remaining は記録後に残っている送信可能回数です。
	// 回数制限のないログイン済み利用者では -1 になります。
	Remaining int
}

// Admit はバッチの受け入れ可否を判定します。
// 匿名利用者は許可と同時に送信1回分を記録します。後段の処理が失敗しても
// 記録は取り消しません（失敗した送信も回数を消費します）。
func (t *Tracker) Admit(ctx context.Context, id Identity, batchSize int) (*Admission, error) {
	if id.Class == ClassRegistered {
		if batchSize > t.limits.RegisteredMaxFiles {
			return nil, &Error{Kind: KindTooManyFiles, Limit: t.limits.RegisteredMaxFiles}
		}
		return &Admission{Remaining: -1}, nil
	}

	if batchSize > t.limits.AnonMaxFiles {
		return nil, &Error{Kind: KindTooManyFiles, Limit: t.limits.AnonMaxFiles}
	}

	used, ok, err := t.store.Reserve(ctx, id.Key(), t.now(), Window, t.limits.AnonMaxSubmissions)
	if err != nil {
		return nil, fmt.Errorf("送信記録の更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, &Error{Kind: KindYearlyLimitExceeded, Limit: t.limits.AnonMaxSubmissions}
	}

	remaining := t.limits.AnonMaxSubmissions - used
	if remaining < 0 {
		remaining = 0
	}
	return &Admission{Remaining: remaining}, nil
}

// Remaining は匿名利用者が窓内であと何回送信できるかを返します。
func (t *Tracker) Remaining(ctx context.Context, id Identity) (int, error) {
	used, err := t.store.Count(ctx, id.Key(), t.now(), Window)
	if err != nil {
		return 0, fmt.Errorf("送信記録の取得に失敗しました: %w", err)
	}
	remaining := t.limits.AnonMaxSubmissions - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
