package enforcer

import (
	"path/filepath"

	"golang.org/x/sys/unix"

	"resguard/libguard/cgroup"
	"resguard/libguard/constant"
)

// Backend 是执行动作所依赖的资源控制子系统
type Backend interface {
	// 创建 root 目录并开启所需的 controller
	Init() error

	// 返回名为 name 的 cgroup，不会创建目录
	Group(name string) (cgroup.CgroupManager, error)

	// 列出所有由 resguard 创建的 cgroup
	Groups() ([]string, error)

	// 向进程发送 SIGTERM
	Terminate(pid int) error
}

// CgroupBackend 基于 cgroup v2 文件系统和信号实现 Backend
type CgroupBackend struct {
	root string
	kill func(pid int, sig unix.Signal) error
}

func NewCgroupBackend(root string) *CgroupBackend {
	return &CgroupBackend{
		root: root,
		kill: unix.Kill,
	}
}

func (b *CgroupBackend) Init() error {
	return cgroup.Prepare(b.root)
}

func (b *CgroupBackend) Group(name string) (cgroup.CgroupManager, error) {
	return cgroup.NewCgroupManager(filepath.Join(b.root, name))
}

func (b *CgroupBackend) Groups() ([]string, error) {
	return cgroup.List(b.root, constant.CgroupPrefix+"-")
}

func (b *CgroupBackend) Terminate(pid int) error {
	return b.kill(pid, unix.SIGTERM)
}
