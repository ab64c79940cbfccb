// Package check provides the assertions available to declaration test bodies.
//
// Inside the sandbox every call is bound to a fresh Recorder for the run. A failed
// assertion is recorded and the test body keeps running, so one run reports every
// failure. The package-level functions exist so declaration files read naturally in
// an editor; called outside the sandbox they panic on the first failure.
package check

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/go-cmp/cmp"
)

// Failure is one assertion that did not hold.
type Failure struct {
	Assertion string
	Message   string
}

func (f Failure) String() string {
	return f.Assertion + ": " + f.Message
}

// Recorder collects assertion failures for one sandbox run.
type Recorder struct {
	mu       sync.Mutex
	failures []Failure
	checks   int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Failures returns the recorded failures in order.
func (r *Recorder) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Failure(nil), r.failures...)
}

// Failed reports whether any assertion failed.
func (r *Recorder) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures) > 0
}

// Checks returns how many assertions ran.
func (r *Recorder) Checks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checks
}

// Report joins the failures into one message, one per line.
func (r *Recorder) Report() string {
	failures := r.Failures()
	lines := make([]string, len(failures))
	for i, f := range failures {
		lines[i] = f.String()
	}
	return strings.Join(lines, "\n")
}

func (r *Recorder) record(ok bool, assertion, detail string, msgAndArgs []any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks++
	if ok {
		return true
	}
	if msg := message(msgAndArgs); msg != "" {
		detail = msg + ": " + detail
	}
	r.failures = append(r.failures, Failure{Assertion: assertion, Message: detail})
	return false
}

// True asserts that cond holds.
func (r *Recorder) True(cond bool, msgAndArgs ...any) bool {
	return r.record(cond, "True", "condition is false", msgAndArgs)
}

// False asserts that cond does not hold.
func (r *Recorder) False(cond bool, msgAndArgs ...any) bool {
	return r.record(!cond, "False", "condition is true", msgAndArgs)
}

// Equal asserts that got equals want. Numeric values of different kinds are compared after
// converting want to the type of got, so Equal(int64(3), 3) holds.
func (r *Recorder) Equal(got, want any, msgAndArgs ...any) bool {
	diff, equal := compare(got, want)
	return r.record(equal, "Equal", diff, msgAndArgs)
}

// NotEqual asserts that got differs from want.
func (r *Recorder) NotEqual(got, want any, msgAndArgs ...any) bool {
	_, equal := compare(got, want)
	return r.record(!equal, "NotEqual", fmt.Sprintf("both values are %#v", got), msgAndArgs)
}

// NoError asserts that err is nil.
func (r *Recorder) NoError(err error, msgAndArgs ...any) bool {
	detail := ""
	if err != nil {
		detail = "unexpected error: " + err.Error()
	}
	return r.record(err == nil, "NoError", detail, msgAndArgs)
}

// Error asserts that err is not nil.
func (r *Recorder) Error(err error, msgAndArgs ...any) bool {
	return r.record(err != nil, "Error", "expected an error, got nil", msgAndArgs)
}

// Contains asserts that s contains substr.
func (r *Recorder) Contains(s, substr string, msgAndArgs ...any) bool {
	return r.record(strings.Contains(s, substr), "Contains",
		fmt.Sprintf("%q does not contain %q", s, substr), msgAndArgs)
}

// Fail records an unconditional failure.
func (r *Recorder) Fail(msgAndArgs ...any) {
	r.record(false, "Fail", "failed", msgAndArgs)
}

// Symbols returns the exported functions bound to r, keyed by name.
func (r *Recorder) Symbols() map[string]reflect.Value {
	return map[string]reflect.Value{
		"True":     reflect.ValueOf(r.True),
		"False":    reflect.ValueOf(r.False),
		"Equal":    reflect.ValueOf(r.Equal),
		"NotEqual": reflect.ValueOf(r.NotEqual),
		"NoError":  reflect.ValueOf(r.NoError),
		"Error":    reflect.ValueOf(r.Error),
		"Contains": reflect.ValueOf(r.Contains),
		"Fail":     reflect.ValueOf(r.Fail),
	}
}

func compare(got, want any) (diff string, equal bool) {
	want = coerce(got, want)
	defer func() {
		// cmp panics on unexported fields.
		if recover() != nil {
			equal = reflect.DeepEqual(got, want)
			diff = fmt.Sprintf("got %#v, want %#v", got, want)
		}
	}()
	if d := cmp.Diff(want, got); d != "" {
		return "mismatch (-want +got):\n" + d, false
	}
	return "", true
}

func coerce(got, want any) any {
	gv, wv := reflect.ValueOf(got), reflect.ValueOf(want)
	if !gv.IsValid() || !wv.IsValid() || gv.Type() == wv.Type() {
		return want
	}
	if numeric(gv.Kind()) && numeric(wv.Kind()) && wv.CanConvert(gv.Type()) {
		return wv.Convert(gv.Type()).Interface()
	}
	return want
}

func numeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func message(msgAndArgs []any) string {
	switch len(msgAndArgs) {
	case 0:
		return ""
	case 1:
		return fmt.Sprint(msgAndArgs[0])
	default:
		if format, ok := msgAndArgs[0].(string); ok {
			return fmt.Sprintf(format, msgAndArgs[1:]...)
		}
		return fmt.Sprint(msgAndArgs...)
	}
}
