package cluster

import (
	"fmt"
	"regexp"
	"strings"

	types "github.com/weftlabs/weft-backend/internal/domain"
)

// Resource names are referenced by the worker's backpressure check, the
// aggregator's garbage collection and the lifecycle teardown paths, so they
// are all built here rather than hardcoded at call sites.

var invalidNameChars = regexp.MustCompile(`[^a-z0-9-.]`)

// SanitizeName lowercases an external identifier and maps it onto the
// orchestrator's allowed name alphabet (lowercase alphanumerics, '-', '.').
func SanitizeName(id string) string {
	return invalidNameChars.ReplaceAllString(strings.ToLower(id), "-")
}

// RoleName returns `<source>-<role>`, used for container names and label
// selectors.
func RoleName(source types.SourceType, role types.ExecutionRole) string {
	return fmt.Sprintf("%s-%s", source, role)
}

// ResourceName returns `<source>-<role>-<kind>`.
func ResourceName(source types.SourceType, role types.ExecutionRole, kind types.ResourceKind) string {
	return fmt.Sprintf("%s-%s", RoleName(source, role), kind)
}

// ProcessorPattern is the name prefix shared by every execution job of a
// source type. The worker counts live jobs against it for admission control.
func ProcessorPattern(source types.SourceType) string {
	return fmt.Sprintf("%s-processor-", source)
}

// JobName builds the execution job name for one chunk. The watermark is
// included when present so re-runs of the same group don't collide.
func JobName(source types.SourceType, parentGroupID, watermark, chunkID string) string {
	sanitized := SanitizeName(parentGroupID)
	if watermark != "" {
		return fmt.Sprintf("%s%s-%s-%s", ProcessorPattern(source), sanitized, SanitizeName(watermark), chunkID)
	}
	return fmt.Sprintf("%s%s-%s", ProcessorPattern(source), sanitized, chunkID)
}
