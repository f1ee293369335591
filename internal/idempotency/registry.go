package idempotency

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// デフォルトTTL。成功結果はこの時間だけ同じレスポンスを再生する。
const DefaultTTL = 24 * time.Hour

type entry struct {
	value     any
	expiresAt time.Time
}

// 同じキーの同時リクエストを1回の実行に束ねるレジストリ。
//   - 実行中のキー: singleflight が同じ結果を待たせて共有する
//   - 成功済みのキー: TTL内なら再実行せずキャッシュを返す
//   - 失敗: 何も残さない（リトライは新規実行になる）
//
// プロセスローカルのキャッシュであり再起動・複数インスタンスでは効かない。
// 本番相当ではキーにユニーク制約を張った永続テーブルへ置き換える前提で、
// DB側の idempotency_key ユニーク制約が最後の防波堤になっている。
type Registry struct {
	g   singleflight.Group
	ttl time.Duration

	mu   sync.Mutex
	done map[string]entry
}

func New(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		ttl:  ttl,
		done: make(map[string]entry),
	}
}

// Do はキャッシュ命中なら即座に結果を返し、そうでなければfnを一度だけ実行する。
// replayed はキャッシュまたは同時実行の共有結果を返したとき true。
func (r *Registry) Do(key string, fn func() (any, error)) (v any, replayed bool, err error) {
	if key == "" {
		v, err = fn()
		return v, false, err
	}

	if v, ok := r.lookup(key); ok {
		return v, true, nil
	}

	v, err, shared := r.g.Do(key, func() (any, error) {
		// Do待ちの間に前の実行が完了していることがある
		if v, ok := r.lookup(key); ok {
			return v, nil
		}

		v, err := fn()
		if err != nil {
			// 失敗は残さない（次のリトライで再実行させる）
			return nil, err
		}
		r.store(key, v)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, shared, nil
}

func (r *Registry) lookup(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.done[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		// 期限切れは新規扱い
		delete(r.done, key)
		return nil, false
	}
	return e.value, true
}

func (r *Registry) store(key string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done[key] = entry{value: v, expiresAt: time.Now().Add(r.ttl)}
}
