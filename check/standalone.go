package check

// FailedError is the panic value of a package-level assertion that failed.
type FailedError struct {
	Failure Failure
}

func (e *FailedError) Error() string {
	return "check failed: " + e.Failure.String()
}

func must(r *Recorder, ok bool) bool {
	if !ok {
		failures := r.Failures()
		panic(&FailedError{Failure: failures[len(failures)-1]})
	}
	return true
}

// True asserts that cond holds.
func True(cond bool, msgAndArgs ...any) bool {
	r := NewRecorder()
	return must(r, r.True(cond, msgAndArgs...))
}

// False asserts that cond does not hold.
func False(cond bool, msgAndArgs ...any) bool {
	r := NewRecorder()
	return must(r, r.False(cond, msgAndArgs...))
}

// Equal asserts that got equals want.
func Equal(got, want any, msgAndArgs ...any) bool {
	r := NewRecorder()
	return must(r, r.Equal(got, want, msgAndArgs...))
}

// NotEqual asserts that got differs from want.
func NotEqual(got, want any, msgAndArgs ...any) bool {
	r := NewRecorder()
	return must(r, r.NotEqual(got, want, msgAndArgs...))
}

// NoError asserts that err is nil.
func NoError(err error, msgAndArgs ...any) bool {
	r := NewRecorder()
	return must(r, r.NoError(err, msgAndArgs...))
}

// Error asserts that err is not nil.
func Error(err error, msgAndArgs ...any) bool {
	r := NewRecorder()
	return must(r, r.Error(err, msgAndArgs...))
}

// Contains asserts that s contains substr.
func Contains(s, substr string, msgAndArgs ...any) bool {
	r := NewRecorder()
	return must(r, r.Contains(s, substr, msgAndArgs...))
}

// Fail fails unconditionally.
func Fail(msgAndArgs ...any) {
	r := NewRecorder()
	r.Fail(msgAndArgs...)
	must(r, false)
}
