package constant

const (
	// cgroupV2 在宿主机上的统一挂载点
	CgroupV2UnifiedMountPoint = "/sys/fs/cgroup"

	// resguard 默认的 cgroup 根目录，每个被限制的进程在其下拥有一个子 cgroup
	CgroupRootPath = "/sys/fs/cgroup/resguard.slice"

	// 子 cgroup 名称前缀
	CgroupPrefix = "resguard"

	// 默认配置文件路径
	ConfigPath = "/etc/resguard/config.toml"
)
