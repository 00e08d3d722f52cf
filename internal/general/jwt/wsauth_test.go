package jwt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ride-dispatch/internal/domain/user"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager("test-secret", time.Hour)
}

func authFrame(t *testing.T, token string) []byte {
	t.Helper()
	b, err := json.Marshal(ClientAuthMessage{Type: "auth", Token: token})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestValidateWSAuth_HappyPath(t *testing.T) {
	mgr := testManager(t)
	signed, _, err := mgr.IssueUserToken("captain-1", user.RoleCaptain)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}

	res, err := ValidateWSAuth(authFrame(t, "Bearer "+signed), mgr, user.RoleCaptain)
	if err != nil {
		t.Fatalf("ValidateWSAuth: %v", err)
	}
	if res.Claims.Subject != "captain-1" {
		t.Errorf("Subject = %q, want captain-1", res.Claims.Subject)
	}
	if res.Claims.Role != user.RoleCaptain {
		t.Errorf("Role = %q, want %q", res.Claims.Role, user.RoleCaptain)
	}
}

func TestValidateWSAuth_WrongRole(t *testing.T) {
	mgr := testManager(t)
	signed, _, err := mgr.IssueUserToken("passenger-1", user.RolePassenger)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}

	_, err = ValidateWSAuth(authFrame(t, "Bearer "+signed), mgr, user.RoleCaptain)
	if !errors.Is(err, ErrRoleForbidden) {
		t.Errorf("err = %v, want ErrRoleForbidden", err)
	}
}

func TestValidateWSAuth_BadFrames(t *testing.T) {
	mgr := testManager(t)
	signed, _, _ := mgr.IssueUserToken("p1", user.RolePassenger)

	cases := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"not json", []byte("not-json"), ErrBadAuthMsg},
		{"wrong type", mustJSON(ClientAuthMessage{Type: "hello", Token: "Bearer " + signed}), ErrBadAuthMsg},
		{"missing bearer", mustJSON(ClientAuthMessage{Type: "auth", Token: signed}), ErrBadTokenWrap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateWSAuth(tc.frame, mgr, user.RolePassenger)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidateWSAuth_TamperedToken(t *testing.T) {
	mgr := testManager(t)
	other := NewManager("different-secret", time.Hour)
	signed, _, _ := other.IssueUserToken("p1", user.RolePassenger)

	if _, err := ValidateWSAuth(authFrame(t, "Bearer "+signed), mgr, user.RolePassenger); err == nil {
		t.Fatal("ValidateWSAuth accepted a token signed with another secret")
	}
}

func TestManagerExpiredToken(t *testing.T) {
	mgr := NewManager("test-secret", -time.Minute)
	signed, _, err := mgr.IssueUserToken("p1", user.RolePassenger)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}

	if _, _, err := mgr.ParseAndValidate(signed); err == nil {
		t.Fatal("ParseAndValidate accepted an expired token")
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
