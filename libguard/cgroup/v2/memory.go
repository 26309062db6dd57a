package v2

import (
	"fmt"
	"os"
	"path"
	"strconv"

	log "github.com/sirupsen/logrus"

	"resguard/libguard/cgroup/resource"
)

type MemoryController struct {
}

func (s *MemoryController) Name() string {
	return "memory"
}

func (s *MemoryController) Set(cgroupPath string, res *resource.Resources) error {
	if res.Memory == 0 {
		return nil
	}

	// 将内存限制写入 memory.max 文件
	limit := strconv.FormatUint(res.Memory, 10)
	if err := os.WriteFile(path.Join(cgroupPath, "memory.max"), []byte(limit), 0644); err != nil {
		return fmt.Errorf("os.WriteFile() to file %v fail: %w", path.Join(cgroupPath, "memory.max"), err)
	}

	log.Debugf("Set cgroup memory.max: %v", limit)
	return nil
}
