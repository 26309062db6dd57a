package actionlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"resguard/libguard/process"
	"resguard/libguard/rules"
)

// 动作执行的结果
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeResolved Outcome = "resolved" // 进程已经不存在
	OutcomeFailed   Outcome = "failed"
	OutcomeDryRun   Outcome = "dry-run"
)

// 每次规则触发都会产生一条记录，记录创建后不会被修改
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Rule      string          `json:"rule"`
	Process   process.Process `json:"process"`
	Action    rules.Action    `json:"action"`
	Attempt   int             `json:"attempt"`
	Outcome   Outcome         `json:"outcome"`
	Error     string          `json:"error,omitempty"`
}

func NewEntry(d *rules.Decision, outcome Outcome, err error, now time.Time) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: now,
		Rule:      d.Rule,
		Process:   *d.Process,
		Action:    d.Action,
		Attempt:   d.Attempt,
		Outcome:   outcome,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Log 是只追加的动作日志
// 内存中只保留最近 capacity 条，设置了文件时每条记录同时以 JSON lines 格式追加到文件中
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	total    int
	file     *os.File
	enc      *json.Encoder
}

func New(capacity int) *Log {
	return &Log{capacity: capacity}
}

// Open 创建一个同时写入 path 的 Log
func Open(path string, capacity int) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create dir for action log %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open action log %s: %w", path, err)
	}
	l := New(capacity)
	l.file = f
	l.enc = json.NewEncoder(f)
	return l, nil
}

// Append 追加一条记录，写文件失败不会影响内存中的记录
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	if l.capacity > 0 {
		if len(l.entries) >= l.capacity {
			copy(l.entries, l.entries[1:])
			l.entries = l.entries[:len(l.entries)-1]
		}
		l.entries = append(l.entries, e)
	}

	if l.enc != nil {
		if err := l.enc.Encode(e); err != nil {
			return fmt.Errorf("write action log: %w", err)
		}
	}
	return nil
}

// Entries 返回内存中的记录副本，按时间先后排序
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := make([]Entry, len(l.entries))
	copy(res, l.entries)
	return res
}

// Total 返回追加过的记录总数
func (l *Log) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.enc = nil
	return err
}

// ReadFile 读取 JSON lines 格式的动作日志
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func Read(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("parse action log line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
