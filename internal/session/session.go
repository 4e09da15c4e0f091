// Package session 维护当前视频/语言上下文，并把异步翻译结果安全地发布给同步引擎。
// 上下文切换立即清空显示；旧上下文的在途结果在发布前比对上下文与代次，过期即丢弃。
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"subsync/internal/diag"
	"subsync/internal/syncengine"
	"subsync/pkg/contract"
)

// Segmenter 产出启发式预览与最终分段。
type Segmenter interface {
	Preview(frags []contract.RawFragment) []contract.Sentence
	Segment(ctx context.Context, id contract.ContextID, frags []contract.RawFragment) (contract.Segmentation, error)
}

// Publisher 为同步引擎的发布端。
type Publisher interface {
	Publish(t *syncengine.Track)
	Reset()
}

// Session 并发安全。
type Session struct {
	pub    Publisher
	seg    Segmenter
	logger *diag.Logger

	mu   sync.Mutex
	live contract.ContextID
	gen  string
}

func New(pub Publisher, seg Segmenter, logger *diag.Logger) *Session {
	return &Session{pub: pub, seg: seg, logger: logger}
}

// Live 返回当前上下文。
func (s *Session) Live() contract.ContextID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Switch 切换到 id；与当前上下文相同时不做任何事。
// 切换后旧上下文的句子整体作废，显示在下一个 tick 清空。
func (s *Session) Switch(id contract.ContextID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switchLocked(id)
}

func (s *Session) switchLocked(id contract.ContextID) bool {
	if s.gen != "" && id == s.live {
		return false
	}
	prev := s.live
	s.live = id
	s.gen = uuid.NewString()
	s.pub.Reset()
	s.logger.Debug("session", "switch", "context switched", map[string]string{
		"from": prev.Key(), "to": id.Key(), "gen": s.gen,
	})
	return true
}

// publishIf 仅在上下文与代次均未变化时发布。
func (s *Session) publishIf(gen string, id contract.ContextID, kind contract.SegmentationKind, sents []contract.Sentence) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.live != id {
		return false
	}
	s.pub.Publish(&syncengine.Track{Context: id, Kind: kind, Sentences: sents})
	return true
}

// Job 为一次异步分段。
type Job struct {
	done chan struct{}
	res  contract.Segmentation
	err  error
}

// Done 在分段结束（发布或丢弃）后关闭。
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait 等待结果；过期结果返回 contract.ErrStaleContext。
func (j *Job) Wait(ctx context.Context) (contract.Segmentation, error) {
	select {
	case <-ctx.Done():
		return contract.Unavailable(), ctx.Err()
	case <-j.done:
		return j.res, j.err
	}
}

// Ingest 接收 id 的片段：必要时切换上下文，立即发布未翻译的启发式预览，
// 然后在后台分段并在上下文仍然有效时发布结果。Unavailable 结果保留预览。
func (s *Session) Ingest(ctx context.Context, id contract.ContextID, frags []contract.RawFragment) *Job {
	s.mu.Lock()
	if !s.switchLocked(id) {
		// 同一上下文的新一批片段取代在途的旧批次
		s.gen = uuid.NewString()
	}
	gen := s.gen
	s.mu.Unlock()

	seg := s.seg
	if preview := seg.Preview(frags); len(preview) > 0 {
		s.publishIf(gen, id, contract.SegHeuristic, preview)
	}

	j := &Job{done: make(chan struct{})}
	go func() {
		defer close(j.done)
		res, err := seg.Segment(ctx, id, frags)
		if err != nil {
			j.res, j.err = contract.Unavailable(), err
			return
		}
		j.res = res
		if !res.Available() {
			return
		}
		if !s.publishIf(gen, id, res.Kind, res.Sentences) {
			j.err = contract.ErrStaleContext
			s.logger.Debug("session", "stale", "discard stale result", map[string]string{
				"context": id.Key(), "gen": gen, "kind": res.Kind.String(),
			})
		}
	}()
	return j
}
