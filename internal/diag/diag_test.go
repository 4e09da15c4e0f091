package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"subsync/pkg/contract"
)

// 轮转：超过上限后出现历史文件，current 仍存在。
func TestRotatingFileRotate(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte("xxxxxxxxxxxxxxxxxx\n")); err != nil {
			t.Fatalf("写入失败: %v", err)
		}
	}
	defer w.Close()
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	hasCurrent, rotated := false, 0
	for _, e := range ents {
		switch {
		case e.Name() == currentName:
			hasCurrent = true
		case strings.HasPrefix(e.Name(), "subsync-") && strings.HasSuffix(e.Name(), ".txt"):
			rotated++
		}
	}
	if !hasCurrent || rotated == 0 {
		t.Fatalf("current=%v rotated=%d", hasCurrent, rotated)
	}
}

// 单条超过上限的记录仍写入（空文件不触发轮转）。
func TestRotatingFileOversizedLine(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 4)
	if _, err := w.Write([]byte("0123456789\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	_ = w.Close()
	b, _ := os.ReadFile(filepath.Join(dir, currentName))
	if string(b) != "0123456789\n" {
		t.Fatalf("got %q", b)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("重复关闭应无错误: %v", err)
	}
}

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerWithCore("corr-1", core), logs
}

func fieldMap(e observer.LoggedEntry) map[string]any { return e.ContextMap() }

// 事件字段：comp/stage/file_id/chunk_id/count/corr_id。
func TestLoggerEventFields(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)
	tm := l.StartWith("pipeline", "chunk", "a.srt", "c0001")
	tm.Finish("ok", 3)
	l.ErrorWithKV("translator", string(CodeNetwork), "boom", tm.Since(), "a.srt", "c0001", map[string]string{"http_status": "502", "api_key": "sk-1"})
	l.Debug("session", "stale", "drop", map[string]string{"context_id": "v|en|zh"})

	all := logs.All()
	if len(all) != 4 {
		t.Fatalf("条数=%d", len(all))
	}
	fin := fieldMap(all[1])
	if fin["stage"] != "finish" || fin["count"] != int64(3) || fin["chunk_id"] != "c0001" || fin["corr_id"] != "corr-1" {
		t.Fatalf("finish 字段异常: %#v", fin)
	}
	errEv := fieldMap(all[2])
	kv, _ := errEv["kv"].(map[string]any)
	if errEv["code"] != "network" || kv["http_status"] != "502" || kv["api_key"] != "[REDACTED]" {
		t.Fatalf("error 字段异常: %#v", errEv)
	}
	if all[3].Level != zapcore.DebugLevel || fieldMap(all[3])["stage"] != "stale" {
		t.Fatalf("debug 事件异常: %#v", all[3])
	}
}

// 级别过滤：info 下 debug 不输出。
func TestLoggerLevelFilter(t *testing.T) {
	l, logs := observed(ParseLevel("info"))
	l.DebugStart("c", "m", "", "", nil)
	l.Start("c", "m").Finish("", 0)
	l.Warn("c", "fallback", nil)
	l.Error("c", "io", "x", nil)
	if logs.Len() != 4 {
		t.Fatalf("条数=%d", logs.Len())
	}
	if ParseLevel("WARN") != zapcore.WarnLevel || ParseLevel("bogus") != zapcore.InfoLevel {
		t.Fatalf("ParseLevel 异常")
	}
}

// JSON 编码：键名与 ts 格式。
func TestEncoderJSON(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(zapcore.NewJSONEncoder(EncoderConfig()), zapcore.AddSync(&buf), zapcore.InfoLevel)
	l := NewLoggerWithCore("cid", core)
	l.InfoFinish("merge", "done", time.Now(), 7)
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("非 JSON: %v %q", err, buf.String())
	}
	for _, k := range []string{"ts", "level", "msg", "comp", "stage", "corr_id"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("缺少键 %s: %v", k, m)
		}
	}
	if _, err := time.Parse(time.RFC3339, m["ts"].(string)); err != nil {
		t.Fatalf("ts 格式: %v", err)
	}
}

// Nop/nil 安全。
func TestLoggerNop(t *testing.T) {
	var nilLogger *Logger
	nilLogger.Start("c", "m").Finish("x", 1)
	if err := nilLogger.Sync(); err != nil {
		t.Fatalf("nil sync: %v", err)
	}
	Nop().Error("c", "x", "y", nil)
	var tm *Timer
	tm.Finish("", 0)
	if tm.Since() != nil {
		t.Fatalf("nil timer since")
	}
}

type fakeNetErr struct{}

func (fakeNetErr) Error() string   { return "net" }
func (fakeNetErr) Timeout() bool   { return true }
func (fakeNetErr) Temporary() bool { return false }

var _ net.Error = fakeNetErr{}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, CodeUnknown},
		{context.Canceled, CodeCancel},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), CodeCancel},
		{contract.ErrStaleContext, CodeStale},
		{contract.ErrRateLimited, CodeBudget},
		{contract.ErrBudgetExceeded, CodeBudget},
		{fmt.Errorf("x: %w", contract.ErrResponseInvalid), CodeProtocol},
		{contract.ErrInvalidInput, CodeInvariant},
		{contract.ErrPathInvalid, CodeInvariant},
		{contract.ErrLocked, CodeIO},
		{&fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, CodeIO},
		{fakeNetErr{}, CodeNetwork},
		{errors.New("other"), CodeUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("Classify(%v)=%s want %s", c.err, got, c.want)
		}
	}
}

func TestMetricsSnapshot(t *testing.T) {
	ResetMetrics()
	IncOp("pipeline", "chunk", "success")
	IncOp("pipeline", "chunk", "success")
	IncError("translator", "network")
	ObserveDuration("pipeline", "chunk", 40)
	ObserveDuration("pipeline", "chunk", 60)
	IncAlign(contract.MatchExact)
	IncAlign(contract.MatchExact)
	IncAlign(contract.MatchFold)
	IncAlign(contract.MatchProportional)

	s := TakeSnapshot()
	if s.Ops["pipeline/chunk/success"] != 2 || s.Errors["translator/network"] != 1 {
		t.Fatalf("计数异常: %+v", s)
	}
	if s.DurationMS["pipeline/chunk"] != 100 || s.DurationN["pipeline/chunk"] != 2 {
		t.Fatalf("耗时异常: %+v", s)
	}
	if got := s.AlignMissRate(); got != 0.25 {
		t.Fatalf("miss rate=%v", got)
	}
	if ks := Keys(s.Ops); len(ks) != 1 {
		t.Fatalf("keys=%v", ks)
	}
	ResetMetrics()
	if TakeSnapshot().AlignMissRate() != 0 {
		t.Fatalf("重置后应为 0")
	}
}

// 非 TTY：仅关键节点分行输出。
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart(4, "google")
	term.FileStart("subs/talk.en.json3", 12)
	term.FileProgress(6, 12, 0)
	term.FileFinish(true, "aligned", 88, 5100*time.Millisecond)
	term.RunFinish(true, 41300*time.Millisecond)

	out := sb.String()
	for _, want := range []string{
		"[run] 并发=4 | 翻译=google",
		"[file] talk.en.json3 | 分块=12",
		"[done] talk.en.json3 | aligned | 句子 88 | 用时 5.1s",
		"[ok] 全部完成 | 文件 1 | 总用时 41.3s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("缺少 %q: %q", want, out)
		}
	}
	if strings.Contains(out, "\r") {
		t.Fatalf("非 TTY 不应含回车: %q", out)
	}
}

// TTY：进度节流与行尾清除。
func TestTerminalTTYThrottle(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	clock := time.Unix(0, 0)
	term.now = func() time.Time { return clock }
	term.RunStart(2, "mock")
	term.FileStart("/a/b/c/longfilename.srt", 3)

	term.FileProgress(1, 3, 0)
	first := sb.String()
	if !strings.Contains(first, "\r[file]") {
		t.Fatalf("首次进度应以回车覆盖: %q", first)
	}
	term.FileProgress(2, 3, 1)
	if sb.String() != first {
		t.Fatalf("100ms 内应被节流")
	}
	clock = clock.Add(150 * time.Millisecond)
	term.FileProgress(2, 3, 1)
	if sb.String() == first {
		t.Fatalf("节流窗口后应刷新")
	}
	term.FileFinish(false, "unavailable", 0, time.Second)
	if !strings.Contains(sb.String(), "[fail] longfilename.srt") {
		t.Fatalf("缺少失败行: %q", sb.String())
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestTerminalDisableOnWriteError(t *testing.T) {
	term := NewTerminal(failWriter{}, true)
	term.RunStart(1, "x")
	if term.enabled {
		t.Fatalf("写失败后应禁用")
	}
	term.FileStart("a", 1)
	var nilTerm *Terminal
	nilTerm.RunFinish(true, 0)
	SetTerminal(term)
	if GetTerminal() != term {
		t.Fatalf("全局终端未设置")
	}
	SetTerminal(nil)
}

func TestHelpers(t *testing.T) {
	if got := shortenBase("/x/abcdefghij.srt", 5); got != "abcd…" {
		t.Fatalf("shortenBase=%q", got)
	}
	if shortenBase("a", 0) != "" {
		t.Fatalf("max=0 应为空")
	}
	if formatDur(250*time.Millisecond) != "250ms" || formatDur(-time.Second) != "0ms" {
		t.Fatalf("formatDur 异常")
	}
	if safe("a\nb\rc") != "a b c" {
		t.Fatalf("safe 异常")
	}
}
