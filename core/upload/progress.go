package upload

import "sync"

// Stage 上传会话的状态机状态。Converting 在无需转码时整体跳过，
// 任意阶段出错进入终态 Failed。
type Stage string

const (
	StageIdle           Stage = "idle"
	StageValidating     Stage = "validating"
	StageConverting     Stage = "converting"
	StageRequestingURLs Stage = "requesting_urls"
	StageUploading      Stage = "uploading"
	StageCommitting     Stage = "committing"
	StageDone           Stage = "done"
	StageFailed         Stage = "failed"
)

// Progress 进度事件，Percent ∈ [0,100] 且在一次会话内单调不减。
type Progress struct {
	Stage   Stage   `json:"stage"`
	Percent float64 `json:"percent"`
}

// Reporter 接收进度事件的回调，可为 nil。
type Reporter func(Progress)

// 进度权重部件名
const (
	partConvert  = "convert"
	partStream   = "stream"
	partOriginal = "original"
)

// progressTracker 把各部件的完成比例按权重汇总成整体百分比。
// 对外报告的百分比单调不减；并发的上传部件各自更新自己的比例。
type progressTracker struct {
	mu      sync.Mutex
	weights map[string]float64 // 部件 -> 权重，权重之和为 100
	fracs   map[string]float64 // 部件 -> 完成比例 [0,1]
	stage   Stage
	last    float64
	report  Reporter
}

func newProgressTracker(report Reporter, weights map[string]float64) *progressTracker {
	return &progressTracker{
		weights: weights,
		fracs:   make(map[string]float64, len(weights)),
		stage:   StageIdle,
		report:  report,
	}
}

// setStage 切换状态并以当前百分比上报一次。
func (p *progressTracker) setStage(stage Stage) {
	p.mu.Lock()
	p.stage = stage
	pct := p.last
	p.mu.Unlock()
	p.emit(stage, pct)
}

// update 更新某个部件的完成比例并在整体百分比增长时上报。
func (p *progressTracker) update(part string, frac float64) {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}

	p.mu.Lock()
	if frac <= p.fracs[part] {
		p.mu.Unlock()
		return
	}
	p.fracs[part] = frac

	var total float64
	for name, weight := range p.weights {
		total += weight * p.fracs[name]
	}
	if total <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = total
	stage := p.stage
	p.mu.Unlock()

	p.emit(stage, total)
}

// fail 进入终态 Failed，百分比保持在失败时刻的值。
func (p *progressTracker) fail() {
	p.mu.Lock()
	p.stage = StageFailed
	pct := p.last
	p.mu.Unlock()
	p.emit(StageFailed, pct)
}

func (p *progressTracker) emit(stage Stage, pct float64) {
	if p.report != nil {
		p.report(Progress{Stage: stage, Percent: pct})
	}
}
