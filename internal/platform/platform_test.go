package platform

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func restError(status int, body string) *discordgo.RESTError {
	return &discordgo.RESTError{
		Response:     &http.Response{StatusCode: status, Status: http.StatusText(status)},
		ResponseBody: []byte(body),
	}
}

func TestClassifyNil(t *testing.T) {
	if err := classify(nil); err != nil {
		t.Errorf("nil should stay nil, got %v", err)
	}
}

func TestClassifyForbidden(t *testing.T) {
	err := classify(restError(http.StatusForbidden, `{"message": "Missing Permissions"}`))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if !strings.Contains(err.Error(), "Missing Permissions") {
		t.Errorf("Discord error body should be kept, got %q", err.Error())
	}
}

func TestClassifyNotFound(t *testing.T) {
	err := classify(restError(http.StatusNotFound, `{"message": "Unknown Message"}`))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unknown Message") {
		t.Errorf("Discord error body should be kept, got %q", err.Error())
	}
}

func TestClassifyOtherErrorsPassThrough(t *testing.T) {
	server := restError(http.StatusInternalServerError, "oops")
	if got := classify(server); got != server {
		t.Errorf("5xx should pass through unchanged, got %v", got)
	}

	plain := errors.New("connection reset")
	if got := classify(plain); got != plain {
		t.Errorf("non-REST errors should pass through unchanged, got %v", got)
	}
}

func TestMemberHasRole(t *testing.T) {
	m := &Member{ID: "u1", Roles: []string{"a", "b"}}
	if !m.HasRole("b") {
		t.Error("expected role b")
	}
	if m.HasRole("c") {
		t.Error("did not expect role c")
	}
}
