package validation

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotEmpty(t *testing.T) {
	var errs Errors
	errs = NotEmpty(errs, "Name", "")
	errs = NotEmpty(errs, "Other", "  ")
	errs = NotEmpty(errs, "Ok", "value")
	if len(errs) != 2 || !errs.Has("Name", CodeNotEmpty) || !errs.Has("Other", CodeNotEmpty) {
		t.Fatalf("unexpected failures %v", errs)
	}
}

func TestEmail(t *testing.T) {
	for _, bad := range []string{"plain", "a@", "@b.com", "a b@c.com", "x@y.com extra"} {
		if errs := Email(nil, "Email", bad); !errs.Has("Email", CodeInvalidEmail) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	for _, good := range []string{"a@b.com", "first.last@sub.example.org"} {
		if errs := Email(nil, "Email", good); len(errs) != 0 {
			t.Fatalf("expected %q to pass, got %v", good, errs)
		}
	}
	// Blank is NotEmpty's concern, not Email's.
	if errs := Email(nil, "Email", ""); len(errs) != 0 {
		t.Fatalf("blank must not double-report: %v", errs)
	}
}

func TestAbsoluteURL(t *testing.T) {
	for _, bad := range []string{"/relative", "ftp://x.com/file", "not a url", "http://"} {
		if errs := AbsoluteURL(nil, "Url", bad); !errs.Has("Url", CodeInvalidUri) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	for _, good := range []string{"https://gomsle.com/invite", "http://localhost:3000/login"} {
		if errs := AbsoluteURL(nil, "Url", good); len(errs) != 0 {
			t.Fatalf("expected %q to pass, got %v", good, errs)
		}
	}
}

func TestErrorsAsError(t *testing.T) {
	errs := Errors{}.Fail("Name", CodeNotEmpty, "")
	var err error = errs
	got, ok := AsErrors(err)
	if !ok || !got.Has("Name", CodeNotEmpty) {
		t.Fatalf("round trip through error failed: %v", err)
	}
	if _, ok := AsErrors(errors.New("plain")); ok {
		t.Fatalf("plain errors must not unwrap")
	}
	if _, ok := AsErrors(nil); ok {
		t.Fatalf("nil must not unwrap")
	}
	// Wrapped infrastructure errors stay infrastructure errors.
	if _, ok := AsErrors(fmt.Errorf("save: %w", errors.New("boom"))); ok {
		t.Fatalf("wrapped errors must not unwrap")
	}
}

func TestDefaultMessages(t *testing.T) {
	errs := Errors{}.Fail("Role", CodeOnlyOneOwner, "")
	if errs[0].Message != "an account can only have one owner" {
		t.Fatalf("unexpected message %q", errs[0].Message)
	}
	errs = Errors{}.Fail("Name", "SomethingNew", "")
	if errs[0].Message == "" {
		t.Fatalf("unknown codes still get a message")
	}
}
