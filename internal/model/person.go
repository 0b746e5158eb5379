package model

import "github.com/google/uuid"

// Person is a read-only snapshot of a patient or doctor taken at call time.
type Person struct {
	ID    uuid.UUID `db:"id" json:"id"`
	Name  string    `db:"name" json:"name"`
	Email string    `db:"email" json:"email"`
	Phone string    `db:"phone" json:"phone,omitempty"`
}
