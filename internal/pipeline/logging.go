package pipeline

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"subsync/internal/diag"
	"subsync/pkg/contract"
)

// logFailure 记录 error 事件并累计计数；上游 HTTP 错误附带状态码与消息摘要。
func logFailure(logger *diag.Logger, comp, msg string, err error, since *time.Time, fileID, chunk string) {
	code := diag.Classify(err)
	var ue contract.UpstreamError
	if errors.As(err, &ue) {
		kv := map[string]string{"http_status": strconv.Itoa(ue.UpstreamStatus())}
		if m := strings.TrimSpace(ue.UpstreamMessage()); m != "" {
			if len(m) > 200 {
				m = m[:200]
			}
			kv["upstream_msg"] = m
		}
		logger.ErrorWithKV(comp, string(code), msg, since, fileID, chunk, kv)
	} else {
		logger.ErrorWith(comp, string(code), msg, since, fileID, chunk)
	}
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func logSuccess(t *diag.Timer, comp, msg string, count int) {
	t.Finish(msg, int64(count))
	diag.IncOp(comp, "finish", "success")
}
