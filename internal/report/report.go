// Package report holds the warning and failure entries that every stage of
// the tagging pipeline returns to its caller.
package report

import "fmt"

// Warning is a non-fatal problem attached to one item (a URL, a file name
// or a retry label).
type Warning struct {
	Item    string `json:"item"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Item, w.Message)
}

// Failure marks an item that could not be processed at all.
type Failure struct {
	Item    string `json:"item"`
	Message string `json:"message"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %s", f.Item, f.Message)
}

// Warnf builds a Warning with a formatted message.
func Warnf(item, format string, args ...interface{}) Warning {
	return Warning{Item: item, Message: fmt.Sprintf(format, args...)}
}

// FailureFrom converts an error into a Failure for item.
func FailureFrom(item string, err error) Failure {
	return Failure{Item: item, Message: err.Error()}
}
