package run

import (
	"time"

	"github.com/John-Robertt/vskip/internal/config"
	"github.com/John-Robertt/vskip/internal/domain"
	"github.com/John-Robertt/vskip/internal/validate"
)

// Observer 用于把“运行进度/阶段信息”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在命令开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(command string, eff config.EffectiveConfig)
	// OnValidate 在校验管线每次推送时调用（Loading 与最终结论都会经过这里）。
	OnValidate(st validate.State)
	// OnUploadProgress 在上传进度变化时调用（百分比，1..100）。
	OnUploadProgress(pct int)
	// OnTaskStatus 在收到服务端任务状态（推送或轮询）时调用。
	OnTaskStatus(st domain.TaskStatus)
	// OnStageDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnStageDone(name string, fields map[string]any, dur time.Duration)
}
