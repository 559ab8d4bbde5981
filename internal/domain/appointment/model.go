package appointment

import "github.com/google/uuid"

// Parties are the people attached to an appointment, as needed for sharing
// decisions and the shared view.
type Parties struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	DoctorName    string    `json:"doctor_name"`
	PatientID     uuid.UUID `json:"patient_id"`
	PatientEmail  string    `json:"patient_email"`
}

// IsPatient reports whether userID is the appointment's patient.
func (p *Parties) IsPatient(userID uuid.UUID) bool {
	return userID != uuid.Nil && p.PatientID == userID
}

// IsParticipant reports whether userID is the appointment's patient or doctor.
func (p *Parties) IsParticipant(userID uuid.UUID) bool {
	return p.IsPatient(userID) || (userID != uuid.Nil && p.DoctorID == userID)
}
