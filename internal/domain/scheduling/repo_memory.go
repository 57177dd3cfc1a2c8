package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// memoryRepo serves a fixed Dataset. It is never written after construction,
// so concurrent reads need no locking.
type memoryRepo struct {
	data Dataset
	dir  *Directory
}

// NewMemoryRepo validates ds and returns a read-only Repository over it.
func NewMemoryRepo(ds Dataset) (Repository, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &memoryRepo{data: ds, dir: NewDirectory(ds.Doctors, ds.Patients)}, nil
}

// LoadDatasetFile reads a JSON-encoded Dataset from path and validates it.
func LoadDatasetFile(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("read dataset %s: %w", path, err)
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return Dataset{}, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	if err := ds.Validate(); err != nil {
		return Dataset{}, fmt.Errorf("dataset %s: %w", path, err)
	}
	return ds, nil
}

func (r *memoryRepo) ListDoctors(_ context.Context) ([]Doctor, error) {
	return r.dir.AllDoctors(), nil
}

func (r *memoryRepo) GetDoctor(_ context.Context, id string) (*Doctor, error) {
	doc, ok := r.dir.DoctorByID(id)
	if !ok {
		return nil, fmt.Errorf("doctor %s: %w", id, ErrNotFound)
	}
	return &doc, nil
}

func (r *memoryRepo) ListPatients(_ context.Context) ([]Patient, error) {
	out := make([]Patient, len(r.data.Patients))
	copy(out, r.data.Patients)
	return out, nil
}

func (r *memoryRepo) GetPatient(_ context.Context, id string) (*Patient, error) {
	p, ok := r.dir.PatientByID(id)
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (r *memoryRepo) ListAppointments(_ context.Context, doctorID string) ([]Appointment, error) {
	if doctorID != "" {
		return ByDoctor(r.data.Appointments, doctorID), nil
	}
	out := make([]Appointment, len(r.data.Appointments))
	copy(out, r.data.Appointments)
	return out, nil
}

func (r *memoryRepo) GetAppointment(_ context.Context, id string) (*Appointment, error) {
	for _, a := range r.data.Appointments {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
}
