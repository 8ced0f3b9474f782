package notify

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
)

// procEnv reads key from another process's environment. The daemon uses it
// to find the desktop session bus of the process that launched it, since
// system services start without DBUS_SESSION_BUS_ADDRESS.
func procEnv(pid int, key string) (string, error) {
	path := "/proc/" + strconv.Itoa(pid) + "/environ"
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	value, ok := lookupEnviron(data, key)
	if !ok {
		return "", fmt.Errorf("%s not set for pid %d", key, pid)
	}
	return value, nil
}

// lookupEnviron finds key in a NUL separated KEY=VALUE block.
func lookupEnviron(environ []byte, key string) (string, bool) {
	prefix := []byte(key + "=")
	for _, entry := range bytes.Split(environ, []byte{0}) {
		if value, ok := bytes.CutPrefix(entry, prefix); ok {
			return string(value), true
		}
	}
	return "", false
}
