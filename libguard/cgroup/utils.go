package cgroup

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"resguard/libguard/constant"
)

var (
	isUnifiedOnce sync.Once // sync.Once 用于确保某种操作只进行一次
	isUnified     bool
)

// IsCgroup2UnifiedMode 检查 cgroup v2 是否启用
func IsCgroup2UnifiedMode() bool {
	isUnifiedOnce.Do(func() {
		var st unix.Statfs_t
		err := unix.Statfs(constant.CgroupV2UnifiedMountPoint, &st)

		switch {
		case err != nil && os.IsNotExist(err):
			// 如果 unifiedMountPoint 不存在，则 cgroup v2 肯定未启用
			isUnified = false
		case err != nil:
			isUnified = false
		default:
			// 若 unifiedMountPoint 存在，则还需要根据文件系统类型判断 cgroup v2 是否启用
			isUnified = st.Type == unix.CGROUP2_SUPER_MAGIC
		}
	})
	return isUnified
}
