package v2

import (
	"fmt"
	"os"
	"path"

	log "github.com/sirupsen/logrus"

	"resguard/libguard/cgroup/resource"
)

type CpuController struct {
}

func (s *CpuController) Name() string {
	return "cpu"
}

func (s *CpuController) Set(cgroupPath string, res *resource.Resources) error {
	if res.CpuQuota == 0 {
		return nil
	}

	// cpu.max 的格式为 "$MAX $PERIOD"
	cpuLimit := fmt.Sprintf("%v %v", res.CpuQuota, res.CpuPeriod)
	if err := os.WriteFile(path.Join(cgroupPath, "cpu.max"), []byte(cpuLimit), 0644); err != nil {
		return fmt.Errorf("os.WriteFile() to file %v fail: %w", path.Join(cgroupPath, "cpu.max"), err)
	}

	log.Debugf("Set cgroup cpu.max: %v", cpuLimit)
	return nil
}
