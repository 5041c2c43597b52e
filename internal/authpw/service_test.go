package authpw

import (
	"context"
	"database/sql"
	"testing"

	"vetor/api/internal/store"
)

type memoryUsers struct {
	byEmail map[string]store.User
	byID    map[string]store.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byEmail: map[string]store.User{}, byID: map[string]store.User{}}
}

func (m *memoryUsers) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memoryUsers) GetUserByID(_ context.Context, id string) (store.User, error) {
	user, ok := m.byID[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memoryUsers) CreateUser(_ context.Context, user store.User) error {
	m.byEmail[user.Email] = user
	m.byID[user.ID] = user
	return nil
}

func (m *memoryUsers) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	user := m.byID[userID]
	user.PasswordHash = passwordHash
	m.byID[userID] = user
	m.byEmail[user.Email] = user
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := NewService(newMemoryUsers())
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "  Helena@Cliente.com ",
		Password:    "correct-horse",
		DisplayName: "Helena",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.Email != "helena@cliente.com" {
		t.Fatalf("email should be normalized, got %q", user.Email)
	}
	if user.Role != "client" {
		t.Fatalf("new accounts default to client, got %q", user.Role)
	}
	if user.PasswordHash == "correct-horse" {
		t.Fatal("password must not be stored in the clear")
	}

	signedIn, err := svc.SignIn(ctx, "helena@cliente.com", "correct-horse")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if signedIn.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, signedIn.ID)
	}
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	svc := NewService(newMemoryUsers())
	_, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "helena@cliente.com",
		Password:    "curta",
		DisplayName: "Helena",
	})
	if err == nil {
		t.Fatal("expected short password to be rejected")
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(newMemoryUsers())
	ctx := context.Background()
	req := SignUpRequest{Email: "helena@cliente.com", Password: "correct-horse", DisplayName: "Helena"}

	if _, err := svc.SignUp(ctx, req); err != nil {
		t.Fatalf("first SignUp: %v", err)
	}
	if _, err := svc.SignUp(ctx, req); err != ErrEmailExists {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	svc := NewService(newMemoryUsers())
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "helena@cliente.com", Password: "correct-horse", DisplayName: "Helena"}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if _, err := svc.SignIn(ctx, "helena@cliente.com", "wrong-horse"); err == nil {
		t.Fatal("expected wrong password to be rejected")
	}
	if _, err := svc.SignIn(ctx, "desconhecida@cliente.com", "correct-horse"); err == nil {
		t.Fatal("expected unknown email to be rejected")
	}
}

func TestChangePassword(t *testing.T) {
	svc := NewService(newMemoryUsers())
	ctx := context.Background()
	user, err := svc.SignUp(ctx, SignUpRequest{Email: "helena@cliente.com", Password: "correct-horse", DisplayName: "Helena"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong-horse", "brand-new-pass"); err == nil {
		t.Fatal("expected wrong current password to be rejected")
	}
	if err := svc.ChangePassword(ctx, user.ID, "correct-horse", "brand-new-pass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.SignIn(ctx, "helena@cliente.com", "brand-new-pass"); err != nil {
		t.Fatalf("SignIn with new password: %v", err)
	}
	if _, err := svc.SignIn(ctx, "helena@cliente.com", "correct-horse"); err == nil {
		t.Fatal("old password should no longer work")
	}
}
