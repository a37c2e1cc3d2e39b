package project

import (
	"github.com/google/uuid"
)

var projectNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("autofix/project"))

// StableID derives the project id from its canonical path, so a project
// keeps its id across worker restarts and sessions.
func StableID(canonicalPath string) string {
	return uuid.NewSHA1(projectNamespace, []byte(canonicalPath)).String()
}
