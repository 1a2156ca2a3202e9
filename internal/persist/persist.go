// Package persist loads and encodes the whole-structure blobs kept in a
// store.KV. Loads never fail: anything unreadable becomes the empty value.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"rollcall/internal/logger"
	"rollcall/internal/metrics"
	"rollcall/internal/store"
)

// Keys of the two persisted structures.
const (
	KeyStudents   = "students"
	KeyAttendance = "attendance"
)

// Load decodes the blob under key. A missing key, a read error or a parse
// error all yield empty. ok is false only when stored data existed or might
// exist but could not be used, so callers can avoid acting on a fallback as
// if it were the real state.
func Load[T any](ctx context.Context, kv store.KV, key string, empty T) (v T, ok bool) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return empty, true
	}
	if err != nil {
		fallback(key, "unavailable", err)
		return empty, false
	}

	if err := json.Unmarshal(raw, &v); err != nil {
		fallback(key, "corrupt", err)
		return empty, false
	}
	return v, true
}

// Entry encodes v as the full replacement value for key.
func Entry(key string, v any) (store.Entry, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return store.Entry{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Entry{Key: key, Value: b}, nil
}

func fallback(key, reason string, err error) {
	metrics.LoadFallbacks.WithLabelValues(key, reason).Inc()
	logger.Logger.Warn().Err(err).Str("key", key).Str("reason", reason).Msg("load failed, starting empty")
}
