package process

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// 根据 /proc/<pid>/cgroup 判断进程所属的 systemd service
func detectService(procRoot string, pid int32) string {
	f, err := os.Open(fmt.Sprintf("%s/%d/cgroup", procRoot, pid))
	if err != nil {
		return ""
	}
	defer f.Close()
	return parseServiceFromCgroup(f)
}

// cgroup 文件每行的格式为 hierarchy-ID:controller-list:cgroup-path
// 例如 0::/system.slice/sshd.service
func parseServiceFromCgroup(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "system.slice") {
			continue
		}
		idx := strings.LastIndex(line, "/")
		if idx < 0 || idx == len(line)-1 {
			continue
		}
		return line[idx+1:]
	}
	return ""
}
