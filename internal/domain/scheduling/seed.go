package scheduling

import "time"

var weekdayHours = map[DayOfWeek]WorkingHours{
	Monday:    {Start: "09:00", End: "17:00"},
	Tuesday:   {Start: "09:00", End: "17:00"},
	Wednesday: {Start: "09:00", End: "17:00"},
	Thursday:  {Start: "09:00", End: "17:00"},
	Friday:    {Start: "09:00", End: "15:00"},
}

// DemoDataset builds a small clinic around date's calendar day (in date's
// location): three doctors, four patients and a day of appointments that
// includes a double booking, an appointment spanning two slots, one that
// starts before the business day and one on the following day.
func DemoDataset(date time.Time) Dataset {
	y, m, d := date.Date()
	loc := date.Location()
	at := func(day, hour, min int) time.Time {
		return time.Date(y, m, d+day, hour, min, 0, 0, loc)
	}
	str := func(s string) *string { return &s }
	dob := func(year int, month time.Month, day int) *time.Time {
		t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		return &t
	}

	return Dataset{
		Doctors: []Doctor{
			{ID: "d1", Name: "Sarah Chen", Specialty: "Cardiology", WorkingHours: weekdayHours},
			{ID: "d2", Name: "Michael Rodriguez", Specialty: "Pediatrics", WorkingHours: map[DayOfWeek]WorkingHours{
				Monday:    {Start: "08:00", End: "16:00"},
				Wednesday: {Start: "08:00", End: "16:00"},
				Friday:    {Start: "08:00", End: "12:00"},
				Saturday:  {Start: "10:00", End: "14:00"},
			}},
			{ID: "d3", Name: "Emily Thompson", Specialty: "Dermatology", WorkingHours: weekdayHours},
		},
		Patients: []Patient{
			{ID: "p1", Name: "John Smith", Email: str("john.smith@example.com"), Phone: str("555-0101"), DateOfBirth: dob(1980, time.March, 14)},
			{ID: "p2", Name: "Maria Garcia", Email: str("maria.garcia@example.com"), Phone: str("555-0102"), DateOfBirth: dob(1992, time.July, 2)},
			{ID: "p3", Name: "David Kim", Phone: str("555-0103")},
			{ID: "p4", Name: "Aisha Patel", Email: str("aisha.patel@example.com"), DateOfBirth: dob(2015, time.November, 23)},
		},
		Appointments: []Appointment{
			{ID: "a1", DoctorID: "d1", PatientID: "p1", StartTime: at(0, 9, 0), EndTime: at(0, 9, 30), Type: TypeCheckup},
			{ID: "a2", DoctorID: "d1", PatientID: "p2", StartTime: at(0, 10, 0), EndTime: at(0, 11, 0), Type: TypeConsultation, Notes: str("Review echocardiogram results")},
			{ID: "a3", DoctorID: "d1", PatientID: "p3", StartTime: at(0, 10, 30), EndTime: at(0, 11, 0), Type: TypeFollowup},
			{ID: "a4", DoctorID: "d1", PatientID: "p4", StartTime: at(0, 14, 15), EndTime: at(0, 14, 45), Type: TypeProcedure},
			{ID: "a5", DoctorID: "d1", PatientID: "p1", StartTime: at(1, 9, 0), EndTime: at(1, 9, 30), Type: TypeFollowup},
			{ID: "a6", DoctorID: "d2", PatientID: "p4", StartTime: at(0, 7, 30), EndTime: at(0, 8, 30), Type: TypeCheckup, Notes: str("Annual vaccination")},
			{ID: "a7", DoctorID: "d2", PatientID: "p2", StartTime: at(0, 8, 30), EndTime: at(0, 9, 0), Type: TypeConsultation},
			{ID: "a8", DoctorID: "d3", PatientID: "p3", StartTime: at(0, 16, 0), EndTime: at(0, 16, 45), Type: TypeProcedure},
		},
	}
}
