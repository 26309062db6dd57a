package v2

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"resguard/libguard/cgroup/resource"
)

type CgroupV2Manager struct {
	dirPath     string
	controllers []Controller
}

func NewCgroupV2Manager(dirPath string) *CgroupV2Manager {
	return &CgroupV2Manager{
		dirPath:     dirPath,
		controllers: Controllers,
	}
}

func (c *CgroupV2Manager) Path() string {
	return c.dirPath
}

// Init 可以重复调用，cgroup 目录已经存在时直接复用
func (c *CgroupV2Manager) Init() error {
	if err := os.Mkdir(c.dirPath, 0755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("create cgroup dir \"%v\" fail: %w", c.dirPath, err)
	}
	return nil
}

func (c *CgroupV2Manager) Apply(pid int) error {
	// 将进程的 PID 写入 cgroup.procs 文件，进程已在该 cgroup 中时写入也不会报错
	if err := os.WriteFile(path.Join(c.dirPath, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("os.WriteFile() to file %v fail: %w", path.Join(c.dirPath, "cgroup.procs"), err)
	}
	return nil
}

func (c *CgroupV2Manager) Set(res *resource.Resources) error {
	// 遍历所有的 cgroup controller，调用 controller 的 Set 方法来设置 cgroup 的资源限制
	var errs []error
	for _, controller := range c.controllers {
		if err := controller.Set(c.dirPath, res); err != nil {
			errs = append(errs, fmt.Errorf("set cgroup controller %v fail: %w", controller.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (c *CgroupV2Manager) Procs() ([]int, error) {
	data, err := os.ReadFile(path.Join(c.dirPath, "cgroup.procs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var pids []int
	for _, field := range strings.Fields(string(data)) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("parse cgroup.procs of %s: %w", c.dirPath, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// Destroy 删除 cgroup 目录，cgroup 中仍有进程时内核会拒绝删除
func (c *CgroupV2Manager) Destroy() error {
	if err := os.RemoveAll(c.dirPath); err != nil {
		return fmt.Errorf("remove cgroup dir %v fail: %w", c.dirPath, err)
	}
	return nil
}

// EnableControllers 在 dir 的 cgroup.subtree_control 中开启所有 controller
func EnableControllers(dir string) error {
	names := make([]string, 0, len(Controllers))
	for _, controller := range Controllers {
		names = append(names, "+"+controller.Name())
	}
	file := path.Join(dir, "cgroup.subtree_control")
	if err := os.WriteFile(file, []byte(strings.Join(names, " ")), 0644); err != nil {
		return fmt.Errorf("enable controllers in %v fail: %w", file, err)
	}
	return nil
}
