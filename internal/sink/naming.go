package sink

import "strings"

// ObjectName maps a slash-rooted source path to a sink object name: one
// leading separator is stripped, then the configured prefix (if any) is
// prepended with a single separator. The mapping is injective as long as the
// prefix itself contains no trailing separator.
func ObjectName(prefix, sourcePath string) string {
	name := strings.TrimPrefix(sourcePath, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
