package process

import (
	"fmt"
	"regexp"

	"github.com/samber/lo"
)

// Matcher 根据黑白名单决定一个进程是否需要被监控
// 黑名单优先：命中黑名单的进程一定不监控；白名单非空时，只监控命中白名单的进程
type Matcher struct {
	whitelist []*regexp.Regexp
	blacklist []*regexp.Regexp
}

func NewMatcher(whitelist, blacklist []string) (*Matcher, error) {
	white, err := compilePatterns(whitelist)
	if err != nil {
		return nil, fmt.Errorf("compile whitelist: %w", err)
	}
	black, err := compilePatterns(blacklist)
	if err != nil {
		return nil, fmt.Errorf("compile blacklist: %w", err)
	}
	return &Matcher{whitelist: white, blacklist: black}, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %v", p, err)
		}
		res = append(res, re)
	}
	return res, nil
}

func matchAny(patterns []*regexp.Regexp, p *Process) bool {
	return lo.ContainsBy(patterns, func(re *regexp.Regexp) bool {
		return re.MatchString(p.Name) || (p.Exe != "" && re.MatchString(p.Exe))
	})
}

// ShouldMonitor 判断进程是否需要被监控
func (m *Matcher) ShouldMonitor(p *Process) bool {
	if matchAny(m.blacklist, p) {
		return false
	}
	if len(m.whitelist) > 0 {
		return matchAny(m.whitelist, p)
	}
	return true
}

// Filter 返回需要被监控的进程
func (m *Matcher) Filter(procs []*Process) []*Process {
	return lo.Filter(procs, func(p *Process, _ int) bool {
		return m.ShouldMonitor(p)
	})
}
