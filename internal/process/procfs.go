package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// descendantPIDs walks /proc/<pid>/task/*/children breadth-first and
// returns every live descendant of root. Processes that exit mid-walk are
// skipped.
func descendantPIDs(root int) []int {
	var result []int
	queue := []int{root}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		children := directChildren(pid)
		result = append(result, children...)
		queue = append(queue, children...)
	}
	return result
}

func directChildren(pid int) []int {
	taskDir := fmt.Sprintf("/proc/%d/task", pid)
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return nil
	}
	seen := make(map[int]bool)
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(taskDir, entry.Name(), "children"))
		if err != nil {
			continue
		}
		for _, field := range strings.Fields(string(data)) {
			if childPID, err := strconv.Atoi(field); err == nil {
				seen[childPID] = true
			}
		}
	}
	result := make([]int, 0, len(seen))
	for childPID := range seen {
		result = append(result, childPID)
	}
	return result
}

// killTree SIGKILLs every descendant of pid, deepest entries last, then
// the process itself. Wine spawns helper processes that survive the
// launcher, so killing only the direct child leaks them.
func killTree(pid int) {
	for _, child := range descendantPIDs(pid) {
		_ = syscall.Kill(child, syscall.SIGKILL)
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
}
