package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindUnknown, "unknown"},
		{KindInvalidInput, "invalid_input"},
		{KindLoad, "load"},
		{KindParse, "parse"},
		{KindSection, "section"},
		{KindRender, "render"},
		{KindConfig, "config"},
		{KindStorage, "storage"},
		{KindInternal, "internal"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("Kind.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestKind_Fatal(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindLoad, true},
		{KindRender, true},
		{KindParse, false},
		{KindSection, false},
		{KindStorage, false},
		{KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Fatal(); got != tt.want {
				t.Errorf("Kind.Fatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "op and message and err",
			err:      &Error{Op: "artifact.Load", Message: "read failed", Err: fmt.Errorf("permission denied")},
			expected: "artifact.Load: read failed: permission denied",
		},
		{
			name:     "op and message",
			err:      &Error{Op: "artifact.Load", Message: "read failed"},
			expected: "artifact.Load: read failed",
		},
		{
			name:     "op and err",
			err:      &Error{Op: "artifact.Load", Err: fmt.Errorf("permission denied")},
			expected: "artifact.Load: permission denied",
		},
		{
			name:     "message and err",
			err:      &Error{Message: "read failed", Err: fmt.Errorf("permission denied")},
			expected: "read failed: permission denied",
		},
		{
			name:     "message only",
			err:      &Error{Message: "read failed"},
			expected: "read failed",
		},
		{
			name:     "empty error",
			err:      &Error{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying error")
	err := &Error{Message: "wrapper", Err: underlying}

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	err2 := &Error{Message: "no underlying"}
	if err2.Unwrap() != nil {
		t.Errorf("Unwrap() should return nil for error without underlying")
	}
}

func TestError_Is(t *testing.T) {
	err1 := &Error{Kind: KindLoad, Message: "empty directory"}
	err2 := &Error{Kind: KindLoad, Message: "different message"}
	err3 := &Error{Kind: KindRender, Message: "empty directory"}

	if !err1.Is(err2) {
		t.Error("Errors with same Kind should match")
	}
	if err1.Is(err3) {
		t.Error("Errors with different Kind should not match")
	}
	if err1.Is(fmt.Errorf("some error")) {
		t.Error("Should not match non-Error type")
	}
	if !errors.Is(E(KindLoad, "artifact.Load", "nothing"), ErrNoArtifacts) {
		t.Error("errors.Is should match sentinel by Kind")
	}
}

func TestE(t *testing.T) {
	underlying := fmt.Errorf("boom")

	tests := []struct {
		name    string
		args    []interface{}
		kind    Kind
		op      string
		message string
		err     error
	}{
		{
			name: "kind op message err",
			args: []interface{}{KindParse, "artifact.parse", "invalid JSON", underlying},
			kind: KindParse, op: "artifact.parse", message: "invalid JSON", err: underlying,
		},
		{
			name: "op only",
			args: []interface{}{"render.Write"},
			op:   "render.Write",
		},
		{
			name: "kind inherited from wrapped error",
			args: []interface{}{"pipeline.Generate", ErrNoArtifacts},
			kind: KindLoad, op: "pipeline.Generate", err: ErrNoArtifacts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e *Error
			if !errors.As(E(tt.args...), &e) {
				t.Fatal("E() did not return *Error")
			}
			if e.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", e.Kind, tt.kind)
			}
			if e.Op != tt.op {
				t.Errorf("Op = %q, want %q", e.Op, tt.op)
			}
			if e.Message != tt.message {
				t.Errorf("Message = %q, want %q", e.Message, tt.message)
			}
			if e.Err != tt.err {
				t.Errorf("Err = %v, want %v", e.Err, tt.err)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "op") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if WrapWithMessage(nil, "msg") != nil {
		t.Error("WrapWithMessage(nil) should return nil")
	}

	inner := E(KindRender, "render.HTML", "template failed")
	wrapped := Wrap(inner, "pipeline.Generate")
	if GetKind(wrapped) != KindRender {
		t.Errorf("GetKind(Wrap()) = %v, want %v", GetKind(wrapped), KindRender)
	}
	if !errors.Is(wrapped, inner) {
		t.Error("errors.Is(wrapped, inner) = false, want true")
	}
	if got := wrapped.Error(); got != "pipeline.Generate: render.HTML: template failed" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorf(t *testing.T) {
	err := Errorf(KindSection, "analyzers.network", "artifact %q is not a list", "netusage")
	if GetKind(err) != KindSection {
		t.Errorf("GetKind() = %v, want %v", GetKind(err), KindSection)
	}
	if got := err.Error(); got != `analyzers.network: artifact "netusage" is not a list` {
		t.Errorf("Error() = %q", got)
	}
}

func TestCheckers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"load", ErrNoArtifacts, IsLoadError, true},
		{"load wrapped", Wrap(ErrNoArtifacts, "pipeline"), IsLoadError, true},
		{"load plain", fmt.Errorf("x"), IsLoadError, false},
		{"parse", E(KindParse, "x"), IsParseError, true},
		{"section", E(KindSection, "x"), IsSectionError, true},
		{"render", E(KindRender, "x"), IsRenderError, true},
		{"render vs load", ErrNoArtifacts, IsRenderError, false},
		{"fatal load", ErrNoArtifacts, IsFatal, true},
		{"fatal parse", E(KindParse, "x"), IsFatal, false},
		{"fatal nil", nil, IsFatal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.want {
				t.Errorf("check(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"locked", E(KindStorage, "archive.RecordRun", "database is locked"), true},
		{"busy wrapped", E(KindStorage, "archive.RecordRun", "insert run", fmt.Errorf("SQLITE_BUSY: retry later")), true},
		{"table locked", Wrap(E(KindStorage, "archive.Prune", "database table is locked"), "pipeline"), true},
		{"permission", E(KindStorage, "archive.Open", "database is locked", fs.ErrPermission), false},
		{"disk full", E(KindStorage, "archive.RecordRun", "insert run", syscall.ENOSPC), false},
		{"read only", E(KindStorage, "archive.RecordRun", "insert run", syscall.EROFS), false},
		{"other storage", E(KindStorage, "archive.Open", "open database"), false},
		{"not storage", E(KindRender, "render", "database is locked"), false},
		{"plain", fmt.Errorf("database is locked"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGetKind_NonError(t *testing.T) {
	if got := GetKind(fmt.Errorf("plain")); got != KindUnknown {
		t.Errorf("GetKind() = %v, want %v", got, KindUnknown)
	}
	if got := GetKind(nil); got != KindUnknown {
		t.Errorf("GetKind(nil) = %v, want %v", got, KindUnknown)
	}
}
