package taskmanager

import "fmt"

// RC is a task return code. Positive codes escalate in severity; the single
// negative code marks a timeout kill.
type RC int

const (
	// RCTimeout marks a task killed because it exceeded its timeout.
	RCTimeout RC = -1
	// RCOkay is a clean completion.
	RCOkay RC = 0
	// RCUnstable is a completion with warnings.
	RCUnstable RC = 1
	// RCFailure is a functional failure.
	RCFailure RC = 2
	// RCErrors marks an execution error (returned error, panic or an
	// unclassifiable return value).
	RCErrors RC = 3
	// RCAborted marks a task stopped from outside.
	RCAborted RC = 4
)

var rcNames = map[RC]string{
	RCTimeout:  "timeout",
	RCOkay:     "okay",
	RCUnstable: "unstable",
	RCFailure:  "failure",
	RCErrors:   "errors",
	RCAborted:  "aborted",
}

// String returns the rc's symbolic name.
func (rc RC) String() string {
	if name, ok := rcNames[rc]; ok {
		return name
	}
	return fmt.Sprintf("rc(%d)", int(rc))
}

// Valid reports whether rc is one of the recognized return codes.
func (rc RC) Valid() bool {
	_, ok := rcNames[rc]
	return ok
}

// ReturnCoder is implemented by task results that carry their own return
// code, letting a task return a rich value and still be classified.
type ReturnCoder interface {
	RC() RC
}
