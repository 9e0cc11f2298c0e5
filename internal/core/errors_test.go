package core

import "testing"

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrClass
	}{
		{200, ClassOK},
		{204, ClassOK},
		{299, ClassOK},
		{404, ClassAbsent},
		{507, ClassAbsent},
		{500, ClassUncertain},
		{503, ClassUncertain},
		{0, ClassUncertain},
	}
	for _, c := range cases {
		if got := ClassifyStatus(c.status); got != c.want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", c.status, got, c.want)
		}
	}
}

func TestCallErrorMessages(t *testing.T) {
	e := &CallError{Class: ClassAbsent, Status: 404}
	if got := e.Error(); got == "" {
		t.Errorf("Error() returned empty string")
	}
	wrapped := &CallError{Class: ClassUncertain, Err: errTransport}
	if e2 := wrapped.Unwrap(); e2 != errTransport {
		t.Errorf("Unwrap() = %v, want %v", e2, errTransport)
	}
}

var errTransport = fmtErr("connection refused")

type fmtErr string

func (e fmtErr) Error() string { return string(e) }
