package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
)

// DeriveKeyFromProviderOptions 按 client + sha256(凭据) 构造限流分组键。
// llm 取 api_key / api_key_env；google 无凭据，按 base_url 分组；
// mock/flaky 缺省时使用内置调试键。llm 找不到凭据时返回错误。
func DeriveKeyFromProviderOptions(client string, raw json.RawMessage) (LimitKey, error) {
	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	pick := func(key string) string {
		if s, ok := obj[key].(string); ok {
			return s
		}
		return ""
	}
	secret := pick("api_key")
	if secret == "" {
		if env := pick("api_key_env"); env != "" {
			secret = os.Getenv(env)
		}
	}
	switch client {
	case "google":
		secret = pick("base_url")
		if secret == "" {
			secret = "translate.googleapis.com"
		}
	case "mock", "flaky":
		if secret == "" {
			secret = "MOCK_DEBUG_KEY"
		}
	}
	if secret == "" {
		return "", fmt.Errorf("rate: missing api key for client %s", client)
	}
	sum := sha256.Sum256([]byte(secret))
	return LimitKey(fmt.Sprintf("%s:%x", client, sum[:8])), nil
}
