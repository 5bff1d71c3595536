package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/vskip/internal/domain"
	"github.com/John-Robertt/vskip/internal/infra/fsx"
)

// Store 提供 <path>/cache/ 下的本地缓存读写：
// - intervals/<task>.json：任务的跳过区间（任务 ID 下内容不可变）
// - constants/<tier>.json：最近一次成功拉取的服务端常量
//
// 约束：
// - 读失败一律按“未命中”处理：缓存只是加速，绝不让坏文件挡住主流程
// - ReadOnly=true 时拒绝写入（--no-cache-write 场景）
type Store struct {
	Root     string // <path>（工作目录）
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// IntervalsPath 返回任务区间缓存的绝对路径。
func (s Store) IntervalsPath(taskID string) (string, error) {
	id, err := cleanTaskID(taskID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "cache", "intervals", id+".json"), nil
}

// LoadIntervals 读取任务的区间缓存。任何读取/解析失败都按未命中处理。
func (s Store) LoadIntervals(taskID string) ([][2]float64, bool) {
	path, err := s.IntervalsPath(taskID)
	if err != nil {
		return nil, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var pairs [][2]float64
	if err := json.Unmarshal(b, &pairs); err != nil {
		return nil, false
	}
	return pairs, true
}

// SaveIntervals 写入任务的区间缓存（原子替换）。
func (s Store) SaveIntervals(taskID string, pairs [][2]float64) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	id, err := cleanTaskID(taskID)
	if err != nil {
		return err
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return err
	}
	dir := filepath.Join(s.Root, "cache", "intervals")
	return fsx.WriteFileAtomicReplace(dir, id+".json", b)
}

// LoadConstants 读取档位的常量缓存。失败按未命中处理。
func (s Store) LoadConstants(premium bool) (domain.Constants, bool) {
	var c domain.Constants
	path := filepath.Join(s.Root, "cache", "constants", tierName(premium)+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		return c, false
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, false
	}
	return c, true
}

// SaveConstants 写入档位的常量缓存（原子替换）。
func (s Store) SaveConstants(premium bool, c domain.Constants) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	dir := filepath.Join(s.Root, "cache", "constants")
	return fsx.WriteFileAtomicReplace(dir, tierName(premium)+".json", b)
}

func tierName(premium bool) string {
	if premium {
		return "premium"
	}
	return "free"
}

var taskIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func cleanTaskID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("task id 不能为空")
	}
	// 最小约束：避免路径穿越；服务端的任务 ID 本身就是受限字符集。
	if !taskIDRE.MatchString(id) {
		return "", errors.New("非法 task id：" + id)
	}
	return id, nil
}
