package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryRepository_CompareAndSetRating(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	p := &Practitioner{DisplayName: "Dr. House"}
	if err := repo.CreatePractitioner(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	subject := PractitionerSubject(p.ID)

	cur, _ := repo.GetRating(ctx, subject)
	if err := repo.CompareAndSetRating(ctx, subject, cur.Version, cur.Add(4)); err != nil {
		t.Fatalf("first CAS: %v", err)
	}
	// Stale version must be rejected.
	if err := repo.CompareAndSetRating(ctx, subject, cur.Version, cur.Add(5)); !errors.Is(err, ErrRatingConflict) {
		t.Fatalf("expected ErrRatingConflict, got %v", err)
	}
	got, _ := repo.GetRating(ctx, subject)
	if got.Count != 1 || got.Sum != 4 || got.Version != 1 {
		t.Errorf("unexpected aggregate %+v", got)
	}
}

func TestMemoryRepository_UnknownSubject(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.GetRating(context.Background(), InstitutionSubject(uuid.New()))
	if !errors.Is(err, ErrInstitutionNotFound) {
		t.Errorf("expected ErrInstitutionNotFound, got %v", err)
	}
	_, err = repo.GetRating(context.Background(), Subject{Kind: "clinic", ID: uuid.New()})
	if !errors.Is(err, ErrUnknownSubject) {
		t.Errorf("expected ErrUnknownSubject, got %v", err)
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	p := &Patient{Name: "Ana", Surname: "Lima"}
	_ = repo.CreatePatient(ctx, p)

	got, _ := repo.GetPatient(ctx, p.ID)
	got.Name = "changed"
	again, _ := repo.GetPatient(ctx, p.ID)
	if again.Name != "Ana" {
		t.Errorf("stored patient was mutated through a returned pointer")
	}
}
