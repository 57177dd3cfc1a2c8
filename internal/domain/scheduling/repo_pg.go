package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/dayview/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type pgRepo struct{ pool *pgxpool.Pool }

// NewPGRepo returns a Repository backed by the tables of 001_scheduling.sql.
func NewPGRepo(pool *pgxpool.Pool) Repository { return &pgRepo{pool: pool} }

func (r *pgRepo) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

// -- Doctors --

func (r *pgRepo) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name, specialty FROM doctor ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	doctors, err := pgx.CollectRows(rows, pgx.RowToStructByName[Doctor])
	if err != nil {
		return nil, fmt.Errorf("scan doctors: %w", err)
	}

	hours, err := r.workingHours(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range doctors {
		doctors[i].WorkingHours = hours[doctors[i].ID]
	}
	return doctors, nil
}

func (r *pgRepo) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	var d Doctor
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name, specialty FROM doctor WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Specialty)
	if err != nil {
		return nil, notFound("doctor", id, err)
	}
	hours, err := r.workingHours(ctx, id)
	if err != nil {
		return nil, err
	}
	d.WorkingHours = hours[id]
	return &d, nil
}

// workingHours loads doctor_working_hours keyed by doctor. An empty doctorID
// loads every row.
func (r *pgRepo) workingHours(ctx context.Context, doctorID string) (map[string]map[DayOfWeek]WorkingHours, error) {
	q := `SELECT doctor_id, day_of_week, start_clock, end_clock FROM doctor_working_hours`
	var args []interface{}
	if doctorID != "" {
		q += ` WHERE doctor_id = $1`
		args = append(args, doctorID)
	}
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list working hours: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[DayOfWeek]WorkingHours)
	for rows.Next() {
		var docID, day string
		var wh WorkingHours
		if err := rows.Scan(&docID, &day, &wh.Start, &wh.End); err != nil {
			return nil, fmt.Errorf("scan working hours: %w", err)
		}
		dow, err := ParseDayOfWeek(day)
		if err != nil {
			return nil, fmt.Errorf("doctor %s: %w", docID, err)
		}
		if out[docID] == nil {
			out[docID] = make(map[DayOfWeek]WorkingHours)
		}
		out[docID][dow] = wh
	}
	return out, rows.Err()
}

// -- Patients --

const patientCols = `id, name, email, phone, date_of_birth`

func (r *pgRepo) ListPatients(ctx context.Context) ([]Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	patients, err := pgx.CollectRows(rows, pgx.RowToStructByName[Patient])
	if err != nil {
		return nil, fmt.Errorf("scan patients: %w", err)
	}
	return patients, nil
}

func (r *pgRepo) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.DateOfBirth)
	if err != nil {
		return nil, notFound("patient", id, err)
	}
	return &p, nil
}

// -- Appointments --

const apptCols = `id, doctor_id, patient_id, start_time, end_time, type, notes`

func (r *pgRepo) ListAppointments(ctx context.Context, doctorID string) ([]Appointment, error) {
	q := `SELECT ` + apptCols + ` FROM appointment`
	var args []interface{}
	if doctorID != "" {
		q += ` WHERE doctor_id = $1`
		args = append(args, doctorID)
	}
	q += ` ORDER BY start_time, id`

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	appts, err := pgx.CollectRows(rows, pgx.RowToStructByName[Appointment])
	if err != nil {
		return nil, fmt.Errorf("scan appointments: %w", err)
	}
	return appts, nil
}

func (r *pgRepo) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	var a Appointment
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id).
		Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.StartTime, &a.EndTime, &a.Type, &a.Notes)
	if err != nil {
		return nil, notFound("appointment", id, err)
	}
	return &a, nil
}

// SeedPG upserts ds into the scheduling tables in one transaction. Existing
// rows with the same identifiers are replaced.
func SeedPG(ctx context.Context, pool *pgxpool.Pool, ds Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	r := &pgRepo{pool: pool}
	return db.WithTx(ctx, pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		for _, d := range ds.Doctors {
			if _, err := q.Exec(ctx, `
				INSERT INTO doctor (id, name, specialty) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, specialty = EXCLUDED.specialty`,
				d.ID, d.Name, d.Specialty); err != nil {
				return fmt.Errorf("seed doctor %s: %w", d.ID, err)
			}
			if _, err := q.Exec(ctx, `DELETE FROM doctor_working_hours WHERE doctor_id = $1`, d.ID); err != nil {
				return fmt.Errorf("clear working hours %s: %w", d.ID, err)
			}
			for day, wh := range d.WorkingHours {
				if _, err := q.Exec(ctx, `
					INSERT INTO doctor_working_hours (doctor_id, day_of_week, start_clock, end_clock)
					VALUES ($1, $2, $3, $4)`,
					d.ID, string(day), wh.Start, wh.End); err != nil {
					return fmt.Errorf("seed working hours %s/%s: %w", d.ID, day, err)
				}
			}
		}
		for _, p := range ds.Patients {
			if _, err := q.Exec(ctx, `
				INSERT INTO patient (`+patientCols+`) VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
					phone = EXCLUDED.phone, date_of_birth = EXCLUDED.date_of_birth`,
				p.ID, p.Name, p.Email, p.Phone, p.DateOfBirth); err != nil {
				return fmt.Errorf("seed patient %s: %w", p.ID, err)
			}
		}
		for _, a := range ds.Appointments {
			if _, err := q.Exec(ctx, `
				INSERT INTO appointment (`+apptCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO UPDATE SET doctor_id = EXCLUDED.doctor_id, patient_id = EXCLUDED.patient_id,
					start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time,
					type = EXCLUDED.type, notes = EXCLUDED.notes`,
				a.ID, a.DoctorID, a.PatientID, a.StartTime.UTC(), a.EndTime.UTC(), string(a.Type), a.Notes); err != nil {
				return fmt.Errorf("seed appointment %s: %w", a.ID, err)
			}
		}
		return nil
	})
}
