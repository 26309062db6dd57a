package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"resguard/libguard/cgroup/resource"
	v2 "resguard/libguard/cgroup/v2"
	"resguard/libguard/constant"
)

// CgroupManager 是 cgroup 的抽象接口
type CgroupManager interface {
	// 初始化 cgroup，目录不存在时创建，已存在时直接复用
	Init() error

	// 将进程 pid 添加至 cgroup 中
	Apply(pid int) error

	// 设置 cgroup 的资源限制
	Set(res *resource.Resources) error

	// 返回 cgroup 中的所有进程
	Procs() ([]int, error)

	// 销毁 cgroup
	Destroy() error

	// cgroup 目录的绝对路径
	Path() string
}

// 根据 cgroup 版本创建 CgroupManager
// 目前只支持 cgroup v2，dirPath 位于统一挂载点之外时（例如测试中的临时目录）不做检查
func NewCgroupManager(dirPath string) (CgroupManager, error) {
	if strings.HasPrefix(dirPath, constant.CgroupV2UnifiedMountPoint) && !IsCgroup2UnifiedMode() {
		return nil, fmt.Errorf("cgroup v2 is not supported")
	}
	log.Debugf("using cgroup v2 at %s", dirPath)
	return v2.NewCgroupV2Manager(dirPath), nil
}

// Prepare 创建 root 目录，并在 root 及其上级目录中开启 cpu、memory controller，使子 cgroup 可以使用它们
func Prepare(root string) error {
	if strings.HasPrefix(root, constant.CgroupV2UnifiedMountPoint) && !IsCgroup2UnifiedMode() {
		return fmt.Errorf("cgroup v2 is not supported")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("create cgroup root %s fail: %w", root, err)
	}

	// 从统一挂载点一直到 root，逐级开启 controller
	dirs := []string{root}
	if rel, err := filepath.Rel(constant.CgroupV2UnifiedMountPoint, root); err == nil && !strings.HasPrefix(rel, "..") {
		dir := constant.CgroupV2UnifiedMountPoint
		dirs = []string{dir}
		if rel != "." {
			for _, part := range strings.Split(rel, string(filepath.Separator)) {
				dir = filepath.Join(dir, part)
				dirs = append(dirs, dir)
			}
		}
	}
	for _, dir := range dirs {
		if err := v2.EnableControllers(dir); err != nil {
			return err
		}
	}
	return nil
}

// List 返回 root 下所有名称以 prefix 开头的 cgroup
func List(root, prefix string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dir %s error: %w", root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
