package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/record"
)

type sample struct {
	record.Meta
	Name  string `json:"name" validate:"required,max=10"`
	Kind  string `json:"kind" validate:"oneof=A B"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

func TestStruct_Valid(t *testing.T) {
	s := sample{Meta: record.Meta{Code: "fr-01"}, Name: "France", Kind: "A"}
	if err := Struct(&s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStruct_ReportsEveryField(t *testing.T) {
	s := sample{Meta: record.Meta{Code: "bad code!"}, Name: "a name that is too long", Kind: "C", Email: "nope"}
	err := Struct(&s)
	if !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	for _, want := range []string{"code may only contain", "name must be at most 10", "kind must be one of", "email must be a valid"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

func TestStruct_MissingCode(t *testing.T) {
	err := Struct(&sample{Name: "x", Kind: "B"})
	if err == nil || !strings.Contains(err.Error(), "code is required") {
		t.Fatalf("expected missing code error, got %v", err)
	}
}

func TestEcho(t *testing.T) {
	var v Echo
	if err := v.Validate(&sample{Meta: record.Meta{Code: "X"}, Name: "n", Kind: "A"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
