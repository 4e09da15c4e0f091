package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"subsync/internal/diag"
	"subsync/pkg/contract"
)

// CachedTranslator 以 contract.Cache 装饰翻译器。
// 键为 sha256(target + "\x00" + text)；缓存读写失败仅记录告警，不影响翻译。
type CachedTranslator struct {
	inner  contract.Translator
	cache  contract.Cache
	logger *diag.Logger
}

// NewCachedTranslator 在 cache 为 nil 时直接返回 inner。
func NewCachedTranslator(inner contract.Translator, cache contract.Cache, logger *diag.Logger) contract.Translator {
	if cache == nil || inner == nil {
		return inner
	}
	return &CachedTranslator{inner: inner, cache: cache, logger: logger}
}

// CacheKey 返回块级缓存键。
func CacheKey(targetLang, text string) string {
	sum := sha256.Sum256([]byte(targetLang + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func lineKey(targetLang, line string) string { return "l:" + CacheKey(targetLang, line) }

func (c *CachedTranslator) TranslateChunk(ctx context.Context, text, targetLang string) ([]contract.TranslatedSegment, error) {
	key := CacheKey(targetLang, text)
	if v, err := c.cache.Get(ctx, key); err == nil {
		var segs []contract.TranslatedSegment
		if json.Unmarshal([]byte(v), &segs) == nil && len(segs) > 0 {
			diag.IncOp("cache", "hit", "success")
			return segs, nil
		}
	} else if !errors.Is(err, contract.ErrCacheMiss) {
		c.warn("get failed", err)
	}
	diag.IncOp("cache", "miss", "success")

	segs, err := c.inner.TranslateChunk(ctx, text, targetLang)
	if err != nil {
		return nil, err
	}
	if len(segs) > 0 {
		if b, merr := json.Marshal(segs); merr == nil {
			if serr := c.cache.Set(ctx, key, string(b)); serr != nil {
				c.warn("set failed", serr)
			}
		}
	}
	return segs, nil
}

// TranslateLines 仅对未命中的行调用底层翻译器；底层不支持逐行翻译时返回 ErrInvalidInput。
func (c *CachedTranslator) TranslateLines(ctx context.Context, lines []string, targetLang string) ([]string, error) {
	lt, ok := c.inner.(contract.LineTranslator)
	if !ok {
		return nil, contract.ErrInvalidInput
	}
	out := make([]string, len(lines))
	var missIdx []int
	var miss []string
	for i, l := range lines {
		v, err := c.cache.Get(ctx, lineKey(targetLang, l))
		if err == nil && v != "" {
			out[i] = v
			continue
		}
		if err != nil && !errors.Is(err, contract.ErrCacheMiss) {
			c.warn("get failed", err)
		}
		missIdx = append(missIdx, i)
		miss = append(miss, l)
	}
	if len(miss) == 0 {
		return out, nil
	}
	got, err := lt.TranslateLines(ctx, miss, targetLang)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		if j >= len(got) || got[j] == "" {
			continue
		}
		out[i] = got[j]
		if serr := c.cache.Set(ctx, lineKey(targetLang, lines[i]), got[j]); serr != nil {
			c.warn("set failed", serr)
		}
	}
	return out, nil
}

func (c *CachedTranslator) warn(msg string, err error) {
	c.logger.Warn("cache", msg, map[string]string{"error": err.Error(), "code": string(diag.Classify(err))})
}

var (
	_ contract.Translator     = (*CachedTranslator)(nil)
	_ contract.LineTranslator = (*CachedTranslator)(nil)
)

// SupportsLines 报告 t（或其被装饰的底层翻译器）是否支持逐行翻译。
func SupportsLines(t contract.Translator) bool {
	if c, ok := t.(*CachedTranslator); ok {
		t = c.inner
	}
	_, ok := t.(contract.LineTranslator)
	return ok
}
