package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/John-Robertt/vskip/internal/api"
	"github.com/John-Robertt/vskip/internal/config"
	"github.com/John-Robertt/vskip/internal/constants"
	"github.com/John-Robertt/vskip/internal/domain"
	"github.com/John-Robertt/vskip/internal/infra/cache"
	"github.com/John-Robertt/vskip/internal/infra/fsx"
	"github.com/John-Robertt/vskip/internal/infra/httpx"
	"github.com/John-Robertt/vskip/internal/infra/imgx"
	"github.com/John-Robertt/vskip/internal/intervals"
	"github.com/John-Robertt/vskip/internal/media"
	"github.com/John-Robertt/vskip/internal/playback"
	"github.com/John-Robertt/vskip/internal/resolve"
	"github.com/John-Robertt/vskip/internal/task"
	"github.com/John-Robertt/vskip/internal/upload"
	"github.com/John-Robertt/vskip/internal/validate"
)

// Env 是按最终配置装配好的执行环境（一次进程一个）。
type Env struct {
	eff      config.EffectiveConfig
	client   *api.Client
	store    cache.Store
	consts   *constants.Cache
	resolver *resolve.Resolver
	obs      Observer
}

// NewEnv 装配执行环境：HTTP 策略、服务端客户端、本地缓存、常量缓存。
// 失败一律是配置问题（error_code=config_invalid 的素材）。
func NewEnv(eff config.EffectiveConfig, obs Observer) (*Env, error) {
	short, err := httpx.NewAPIClient(eff.ProxyURL, eff.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("proxy.url 无效：%w", err)
	}
	stream, err := httpx.NewStreamClient(eff.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("proxy.url 无效：%w", err)
	}
	client, err := api.New(eff.Server, short, stream)
	if err != nil {
		return nil, err
	}

	store := cache.New(eff.Path, false)
	consts := constants.New(client, constants.Options{Store: store})
	consts.SetPremium(eff.Premium)

	var resolver *resolve.Resolver
	if eff.Resolve {
		resolver, err = resolve.New(short, 0)
		if err != nil {
			return nil, err
		}
	}

	return &Env{
		eff:      eff,
		client:   client,
		store:    store,
		consts:   consts,
		resolver: resolver,
		obs:      obs,
	}, nil
}

// Close 释放执行环境持有的后台资源。
func (e *Env) Close() { e.consts.Close() }

func (e *Env) newReport(command, input string) domain.Report {
	return domain.Report{
		Command:   command,
		Server:    e.eff.Server,
		Input:     input,
		Premium:   e.eff.Premium,
		StartedAt: time.Now().UTC(),
	}
}

// Check 对输入（本地文件路径或 URL）执行一次校验，输出结论。
// 结论本身不是命令失败：bad_url 也是一次成功的 check。
func (e *Env) Check(ctx context.Context, input string) domain.Report {
	rep := e.newReport("check", input)
	if e.obs != nil {
		e.obs.OnStart("check", e.eff)
	}

	e.awaitConstants(ctx)

	_, out, err := e.checkCandidate(ctx, e.buildCandidate(input), &rep)
	if err != nil {
		rep.Fail(domain.ErrCodeInvalidInput, err.Error())
		return finish(rep)
	}
	rep.Outcome = &out
	return finish(rep)
}

// Upload 校验输入、上传、等待分析完成，并输出区间与跳过推演。
func (e *Env) Upload(ctx context.Context, input string) domain.Report {
	rep := e.newReport("upload", input)
	if e.obs != nil {
		e.obs.OnStart("upload", e.eff)
	}

	e.awaitConstants(ctx)

	started := time.Now()
	c, out, err := e.checkCandidate(ctx, e.buildCandidate(input), &rep)
	if err != nil {
		rep.Fail(domain.ErrCodeInvalidInput, err.Error())
		return finish(rep)
	}
	rep.Outcome = &out
	if !out.OK() {
		rep.Fail(domain.ErrCodeInvalidInput, describeOutcome(out))
		return finish(rep)
	}
	if e.obs != nil {
		e.obs.OnStageDone("validate", map[string]any{"kind": string(out.Kind)}, time.Since(started))
	}

	// 上传。
	started = time.Now()
	sess := upload.NewSession(upload.Callbacks{
		OnProgress: func(pct int) {
			if e.obs != nil {
				e.obs.OnUploadProgress(pct)
			}
		},
	})
	tr := upload.NewTransport(e.client, e.eff.Premium)

	var body io.Reader
	if c.Kind == domain.CandidateFile {
		f, err := os.Open(c.Path)
		if err != nil {
			rep.Fail(domain.ErrCodeIOFailed, err.Error())
			return finish(rep)
		}
		defer f.Close()
		body = f
	}
	taskID, err := tr.Do(ctx, sess, c, body)
	snap := sess.Snapshot()
	rep.Session = &snap
	if err != nil {
		rep.Fail(domain.ErrCodeUploadFailed, err.Error())
		return finish(rep)
	}
	rep.TaskID = taskID
	if e.obs != nil {
		e.obs.OnStageDone("upload", map[string]any{"task": taskID}, time.Since(started))
	}

	// 等待分析终态。
	started = time.Now()
	w := e.newWatcher()
	st, err := w.Wait(ctx, taskID)
	if err != nil {
		rep.Fail(domain.ErrCodeTaskFailed, err.Error())
		return finish(rep)
	}
	if st.State == domain.TaskError {
		rep.Fail(domain.ErrCodeTaskFailed, taskErrorMsg(st))
		return finish(rep)
	}
	if e.obs != nil {
		e.obs.OnStageDone("analyze", map[string]any{"state": st.State}, time.Since(started))
	}

	// 取区间并推演跳过。
	if err := e.fillSkips(ctx, w, taskID, &rep); err != nil {
		rep.Fail(domain.ErrCodeFetchFailed, err.Error())
	}
	return finish(rep)
}

// Skips 取回任务的跳过区间（缓存优先）并输出跳过推演。
func (e *Env) Skips(ctx context.Context, taskID string) domain.Report {
	rep := e.newReport("skips", taskID)
	if e.obs != nil {
		e.obs.OnStart("skips", e.eff)
	}

	if _, err := e.store.IntervalsPath(taskID); err != nil {
		rep.Fail(domain.ErrCodeInvalidInput, err.Error())
		return finish(rep)
	}

	e.awaitConstants(ctx)
	rep.TaskID = taskID
	if err := e.fillSkips(ctx, e.newWatcher(), taskID, &rep); err != nil {
		rep.Fail(domain.ErrCodeFetchFailed, err.Error())
	}
	return finish(rep)
}

// Fetch 拉取任务的产物：处理后的音频与波形图，写入 <path>/out/<task>/。
// 已存在的产物不覆盖（状态 exists）。
func (e *Env) Fetch(ctx context.Context, taskID string) domain.Report {
	rep := e.newReport("fetch", taskID)
	if e.obs != nil {
		e.obs.OnStart("fetch", e.eff)
	}

	if _, err := e.store.IntervalsPath(taskID); err != nil {
		rep.Fail(domain.ErrCodeInvalidInput, err.Error())
		return finish(rep)
	}
	rep.TaskID = taskID
	outDir := filepath.Join(e.eff.Path, "out", taskID)

	// 先写波形图（sidecar），最后写音频：波形损坏时不留下半套产物。
	started := time.Now()
	wave := domain.FileResult{Name: "waveform.png", Dst: filepath.Join("out", taskID, "waveform.png")}
	b, err := e.client.Waveform(ctx, taskID)
	if err != nil {
		wave.Status = domain.FileStatusFailed
		rep.Files = append(rep.Files, wave)
		rep.Fail(domain.ErrCodeFetchFailed, err.Error())
		return finish(rep)
	}
	if _, _, err := imgx.CheckWaveform(b); err != nil {
		wave.Status = domain.FileStatusFailed
		rep.Files = append(rep.Files, wave)
		rep.Fail(domain.ErrCodeFetchFailed, err.Error())
		return finish(rep)
	}
	err = fsx.WriteFileAtomicNoOverwrite(outDir, "waveform.png", b)
	switch {
	case err == nil:
		wave.Status = domain.FileStatusWritten
		wave.SizeBytes = int64(len(b))
	case errors.Is(err, os.ErrExist):
		wave.Status = domain.FileStatusExists
	default:
		wave.Status = domain.FileStatusFailed
		rep.Files = append(rep.Files, wave)
		rep.Fail(domain.ErrCodeIOFailed, err.Error())
		return finish(rep)
	}
	rep.Files = append(rep.Files, wave)
	if e.obs != nil {
		e.obs.OnStageDone("waveform", map[string]any{"bytes": len(b), "status": wave.Status}, time.Since(started))
	}

	// 音频：流式落盘，不把整个正文读进内存。
	started = time.Now()
	audio := domain.FileResult{Name: "audio.m4a", Dst: filepath.Join("out", taskID, "audio.m4a")}
	rc, _, err := e.client.ReadFile(ctx, taskID)
	if err != nil {
		audio.Status = domain.FileStatusFailed
		rep.Files = append(rep.Files, audio)
		rep.Fail(domain.ErrCodeFetchFailed, err.Error())
		return finish(rep)
	}
	n, err := fsx.WriteStreamAtomicNoOverwrite(outDir, "audio.m4a", rc)
	rc.Close()
	switch {
	case err == nil:
		audio.Status = domain.FileStatusWritten
		audio.SizeBytes = n
	case errors.Is(err, os.ErrExist):
		audio.Status = domain.FileStatusExists
	default:
		audio.Status = domain.FileStatusFailed
		rep.Files = append(rep.Files, audio)
		rep.Fail(domain.ErrCodeIOFailed, err.Error())
		return finish(rep)
	}
	rep.Files = append(rep.Files, audio)
	if e.obs != nil {
		e.obs.OnStageDone("audio", map[string]any{"bytes": n, "status": audio.Status}, time.Since(started))
	}
	return finish(rep)
}

// buildCandidate 把输入字符串归类为本地文件或 URL 候选。
func (e *Env) buildCandidate(input string) domain.Candidate {
	if fi, err := os.Stat(input); err == nil && fi.Mode().IsRegular() {
		return domain.FileCandidate(input, fi.Size(), media.MimeByPath(input))
	}
	return domain.URLCandidate(input)
}

// checkCandidate 校验候选；URL 被服务端判为 not_video 且开启 resolve 时，
// 尝试“播放页 → 直链”解析并对直链重新校验一次。解析失败不掩盖原结论。
func (e *Env) checkCandidate(ctx context.Context, c domain.Candidate, rep *domain.Report) (domain.Candidate, domain.Outcome, error) {
	out, err := e.validateOne(ctx, c)
	if err != nil {
		return c, domain.Outcome{}, err
	}
	if out.Kind != domain.OutcomeNotVideo || e.resolver == nil || c.Kind != domain.CandidateURL {
		return c, out, nil
	}

	direct, rerr := e.resolver.Resolve(ctx, c.URL)
	if rerr != nil || direct == c.URL {
		return c, out, nil
	}
	rep.ResolvedURL = direct
	c = domain.URLCandidate(direct)
	out, err = e.validateOne(ctx, c)
	return c, out, err
}

// validateOne 走完整的校验管线并等待结论落地。
// 单次输入也走管线：leading 触发保证没有去抖延迟。
func (e *Env) validateOne(ctx context.Context, c domain.Candidate) (domain.Outcome, error) {
	p := validate.New(e.client, validate.Options{
		Window:      e.eff.Debounce,
		Premium:     e.eff.Premium,
		MaxFileSize: e.consts.MaxFileSize,
	})
	defer p.Close()

	ch := make(chan validate.State, 4)
	p.Subscribe(func(s validate.State) {
		if e.obs != nil {
			e.obs.OnValidate(s)
		}
		select {
		case ch <- s:
		default:
		}
	})

	p.Submit(c)
	for {
		select {
		case <-ctx.Done():
			return domain.Outcome{}, ctx.Err()
		case s := <-ch:
			if !s.Loading {
				return s.Outcome, nil
			}
		}
	}
}

// awaitConstants 等待常量缓存落地（成功、回退或确定失败），
// 上限略高于两次获取的总等待。失败不是错误：未知常量只是关掉本地预检。
func (e *Env) awaitConstants(ctx context.Context) {
	deadline := time.Now().Add(2*constants.DefaultTimeout + time.Second)
	for time.Now().Before(deadline) {
		if e.consts.Current().Known || e.consts.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (e *Env) newWatcher() *task.Watcher {
	w := task.NewWatcher(e.client, task.Options{Poll: e.eff.Poll, Store: e.store})
	w.OnStatus = func(st domain.TaskStatus) {
		if e.obs != nil {
			e.obs.OnTaskStatus(st)
		}
	}
	return w
}

// fillSkips 取回区间、过滤过短区间、推演跳过序列。
func (e *Env) fillSkips(ctx context.Context, w *task.Watcher, taskID string, rep *domain.Report) error {
	pairs, err := w.Intervals(ctx, taskID)
	if err != nil {
		return err
	}

	// 服务端常量已知时，过短区间在本地就滤掉（与播放侧行为一致）。
	var minDur float64
	if snap := e.consts.Current(); snap.Known {
		minDur = snap.Constants.SkipDuration.Min
	}
	idx := intervals.Build(pairs, minDur)

	rep.Intervals = idx.All()
	rep.Seeks, rep.SavedSec = playback.Plan(idx, 0)
	return nil
}

func describeOutcome(out domain.Outcome) string {
	switch out.Kind {
	case domain.OutcomeBadURL:
		if out.ValidWithScheme {
			return "URL 缺少协议前缀（补上 http:// 即可）"
		}
		return "输入不是可用的 URL"
	case domain.OutcomeUnreachable:
		return "服务端无法访问该 URL"
	case domain.OutcomeRequestError:
		return "服务端请求该 URL 失败"
	case domain.OutcomeNotVideo:
		return "输入不是视频"
	case domain.OutcomeBadResponse:
		return "目标返回了无法理解的响应"
	case domain.OutcomeTooBig:
		return fmt.Sprintf("文件超出大小上限（%d 字节）", out.SizeBytes)
	case domain.OutcomeServerError:
		return fmt.Sprintf("服务端错误（HTTP %d）", out.StatusCode)
	case domain.OutcomeNetworkError:
		return "网络错误：" + out.Message
	default:
		return string(out.Kind)
	}
}

func taskErrorMsg(st domain.TaskStatus) string {
	if st.Error != "" {
		return st.Error
	}
	return "分析任务失败"
}

func finish(rep domain.Report) domain.Report {
	rep.FinishedAt = time.Now().UTC()
	rep.Finalize()
	return rep
}
