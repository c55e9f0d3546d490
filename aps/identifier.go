package aps

import (
	"regexp"
	"strings"
)

// The Data Management API addresses a model two ways: a lineage URN is the
// stable per-item identity, a version URN pins one specific revision.
//
//	urn:adsk.wipprod:dm.lineage:AbCdEf123
//	urn:adsk.wipprod:fs.file:vf.AbCdEf123?version=42
var (
	lineageURNPattern = regexp.MustCompile(`^urn:adsk\.wipprod:dm\.lineage:[A-Za-z0-9_-]+$`)
	versionURNPattern = regexp.MustCompile(`^urn:adsk\.wipprod:fs\.file:vf\.[A-Za-z0-9_-]+\?version=\d+$`)
)

// IsLineageURN reports whether the identifier is a stable per-item lineage id.
func IsLineageURN(id string) bool {
	return lineageURNPattern.MatchString(id)
}

// IsVersionURN reports whether the identifier already pins a specific file
// version. Version URNs skip resolution entirely.
func IsVersionURN(id string) bool {
	return versionURNPattern.MatchString(id)
}

// projectIDPrefix is the business-scope prefix that some Data Management
// endpoints require on project ids and others reject. See StripProjectPrefix.
const projectIDPrefix = "b."

// HasStrippablePrefix reports whether the project id carries the removable
// business prefix.
func HasStrippablePrefix(projectID string) bool {
	return strings.HasPrefix(projectID, projectIDPrefix) && len(projectID) > len(projectIDPrefix)
}

// StripProjectPrefix removes the business prefix from a project id.
//
// The upstream API is inconsistent: the same project id is expected with the
// "b." prefix on some endpoints and without it on others. Callers first try
// the id as given; on a 404 they retry once with the prefix stripped.
func StripProjectPrefix(projectID string) string {
	return strings.TrimPrefix(projectID, projectIDPrefix)
}
