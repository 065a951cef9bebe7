package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"empty uri", ErrEmptyURI, http.StatusBadRequest},
		{"invalid input", fmt.Errorf("%w: bad uri", ErrInvalidInput), http.StatusBadRequest},
		{"not found through load", Load("read", fmt.Errorf("%w: x.json", ErrResourceNotFound)), http.StatusNotFound},
		{"import problem", ImportProblem("build", "properties is %s", "array"), http.StatusUnprocessableEntity},
		{"cycle", fmt.Errorf("%w: a -> b -> a", ErrReferenceCycle), http.StatusUnprocessableEntity},
		{"deadline", fmt.Errorf("waiting: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"timeout", ErrTimeout, http.StatusGatewayTimeout},
		{"load", Load("parse", New("unexpected EOF")), http.StatusBadGateway},
		{"other", New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatusCode(tc.err); got != tc.want {
				t.Errorf("HTTPStatusCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestImportErrorChain(t *testing.T) {
	err := fmt.Errorf("importing x: %w", ImportProblem("definition foo", "expected object, got %s", "string"))
	if !Is(err, ErrImportProblem) {
		t.Fatal("ImportProblem must wrap ErrImportProblem")
	}
	if KindOf(err) != KindImportProblem {
		t.Fatalf("kind = %v", KindOf(err))
	}
	var ie *ImportError
	if !As(err, &ie) || ie.Op != "definition foo" {
		t.Fatalf("As = %+v", ie)
	}
	want := "import_problem: definition foo: import problem: expected object, got string"
	if ie.Error() != want {
		t.Errorf("Error() = %q", ie.Error())
	}
	if KindOf(New("plain")) != KindUnknown {
		t.Error("plain errors have no kind")
	}
	if Reference("#/x", ErrUnresolvedRef).Kind.String() != "reference" {
		t.Error("reference kind name")
	}
}
