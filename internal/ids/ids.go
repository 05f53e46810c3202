package ids

import "github.com/segmentio/ksuid"

// New returns a k-sortable unique id; object names built from it list in
// upload order.
func New() string {
	return ksuid.New().String()
}
