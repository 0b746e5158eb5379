package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

type directoryRepository struct {
	BaseRepository
}

// NewDirectoryRepository reads the patients and doctors tables owned by the
// records subsystem.
func NewDirectoryRepository(base BaseRepository) repository.DirectoryRepository {
	return &directoryRepository{base}
}

func (r *directoryRepository) GetPatient(ctx context.Context, id uuid.UUID) (*model.Person, error) {
	query := `SELECT id, name, email, COALESCE(phone, '') AS phone FROM patients WHERE id = $1`
	var p model.Person
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *directoryRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*model.Person, error) {
	query := `SELECT id, name, email, COALESCE(phone, '') AS phone FROM doctors WHERE id = $1`
	var p model.Person
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}
