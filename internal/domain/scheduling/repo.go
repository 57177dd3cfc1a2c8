package scheduling

import (
	"context"
	"errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidAppointment = errors.New("invalid appointment")
	ErrInvalidDataset     = errors.New("invalid dataset")
)

// Repository is the data-access collaborator the service reads snapshots
// from. Get methods return ErrNotFound (possibly wrapped) on a miss.
type Repository interface {
	ListDoctors(ctx context.Context) ([]Doctor, error)
	GetDoctor(ctx context.Context, id string) (*Doctor, error)
	ListPatients(ctx context.Context) ([]Patient, error)
	GetPatient(ctx context.Context, id string) (*Patient, error)
	// ListAppointments returns the backing appointment collection. A
	// non-empty doctorID lets implementations narrow the snapshot; callers
	// still filter with the query functions.
	ListAppointments(ctx context.Context, doctorID string) ([]Appointment, error)
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
}
