package agent

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
)

const deviceInfoTool = "get_device_info"

// Windows 11 reports itself as version 10.0 with builds from 22000 up.
const windows11Build = 22000

// annotateResult adds info.os_friendly_name to Windows device info results.
// The delivered result is not modified.
func annotateResult(tool string, result any) any {
	if tool != deviceInfoTool {
		return result
	}
	root, ok := result.(map[string]any)
	if !ok {
		return result
	}
	info, ok := root["info"].(map[string]any)
	if !ok {
		return result
	}
	osName, _ := info["os_name"].(string)
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(osName)), "windows") {
		return result
	}

	annotated := maps.Clone(info)
	annotated["os_friendly_name"] = windowsFriendlyName(info["os_version"])
	out := maps.Clone(root)
	out["info"] = annotated
	return out
}

func windowsFriendlyName(version any) string {
	s, _ := version.(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return "Windows (version unknown)"
	}
	parts := strings.Split(s, ".")
	build, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return "Windows (version unknown)"
	}
	if build >= windows11Build {
		return fmt.Sprintf("Windows 11 (build %d)", build)
	}
	return fmt.Sprintf("Windows 10 (build %d)", build)
}
