package testutil

import (
	"fmt"
	"strings"
)

// NewTestDSN returns a shared-cache in-memory SQLite DSN private to
// testName. Subtest separators are flattened so t.Name() can be passed
// directly.
func NewTestDSN(testName string) string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(testName)
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}
