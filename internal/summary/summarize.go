package summary

import (
	"strings"

	"github.com/drfirst/fhir-chat/internal/fhir/r4"
)

// UnknownCondition names a family history condition that has no code.
const UnknownCondition = "(Unknown Condition)"

// Allergies summarizes the AllergyIntolerance entries of b.
func Allergies(b *r4.Bundle) []Allergy {
	resources := r4.Resources[r4.AllergyIntolerance](b, r4.TypeAllergyIntolerance)
	out := make([]Allergy, 0, len(resources))
	for _, r := range resources {
		out = append(out, Allergy{
			ID:                 r.ID,
			Substance:          r.Code.Display(),
			ClinicalStatus:     r.ClinicalStatus.Code(),
			VerificationStatus: r.VerificationStatus.Code(),
			Criticality:        r.Criticality,
			Category:           strings.Join(r.Category, ", "),
			Patient:            r.Patient.GetReference(),
			Onset:              r.OnsetDateTime,
			RecordedDate:       r.RecordedDate,
		})
	}
	return out
}

// Patients summarizes the Patient entries of b.
func Patients(b *r4.Bundle) []Patient {
	resources := r4.Resources[r4.Patient](b, r4.TypePatient)
	out := make([]Patient, 0, len(resources))
	for _, r := range resources {
		out = append(out, Patient{
			ID:        r.ID,
			Name:      strings.Join(r.NameTexts(), ", "),
			BirthDate: r.BirthDate,
			Gender:    r.Gender,
		})
	}
	return out
}

// MedicationRequests summarizes the MedicationRequest entries of b.
func MedicationRequests(b *r4.Bundle) []MedicationRequest {
	resources := r4.Resources[r4.MedicationRequest](b, r4.TypeMedicationRequest)
	out := make([]MedicationRequest, 0, len(resources))
	for _, r := range resources {
		out = append(out, MedicationRequest{
			ID:         r.ID,
			Status:     r.Status,
			Intent:     r.Intent,
			Medication: r.MedicationDisplay(),
			Patient:    r.Subject.GetReference(),
			AuthoredOn: r.AuthoredOn,
			Requester:  r.Requester.GetDisplay(),
			Note:       r4.JoinNotes(r.Note),
		})
	}
	return out
}

// FamilyMemberHistories summarizes the FamilyMemberHistory entries of b.
func FamilyMemberHistories(b *r4.Bundle) []FamilyMemberHistory {
	resources := r4.Resources[r4.FamilyMemberHistory](b, r4.TypeFamilyMemberHistory)
	out := make([]FamilyMemberHistory, 0, len(resources))
	for _, r := range resources {
		conditions := make([]string, 0, len(r.Condition))
		for i := range r.Condition {
			conditions = append(conditions, FormatCondition(&r.Condition[i]))
		}
		out = append(out, FamilyMemberHistory{
			ID:           r.ID,
			Status:       r.Status,
			Patient:      r.Patient.GetReference(),
			Relationship: r.Relationship.Display(),
			Sex:          r.Sex.Display(),
			Date:         r.Date,
			Note:         r4.JoinNotes(r.Note),
			Conditions:   conditions,
		})
	}
	return out
}

// FormatCondition renders "<name> - <Modifier>", or just the name when the
// condition carries no modifier extension.
func FormatCondition(c *r4.FamilyMemberHistoryCondition) string {
	name := c.Code.Display()
	if name == "" {
		name = UnknownCondition
	}
	modifier := TitleCase(c.Modifier())
	if modifier == "" {
		return name
	}
	return name + " - " + modifier
}

// TitleCase upper-cases the first letter and lower-cases the rest.
func TitleCase(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	return strings.ToUpper(string(runes[0])) + strings.ToLower(string(runes[1:]))
}

// Immunizations summarizes the Immunization entries of b.
func Immunizations(b *r4.Bundle) []Immunization {
	resources := r4.Resources[r4.Immunization](b, r4.TypeImmunization)
	out := make([]Immunization, 0, len(resources))
	for _, r := range resources {
		out = append(out, Immunization{
			ID:            r.ID,
			Status:        r.Status,
			Patient:       r.Patient.GetReference(),
			Vaccine:       r.VaccineCode.Display(),
			Date:          r.OccurrenceDateTime,
			TargetDisease: r.TargetDisease(),
			Manufacturer:  r.Manufacturer.GetDisplay(),
			LotNumber:     r.LotNumber,
			Performer:     r.PerformerName(),
		})
	}
	return out
}

// Persons summarizes the Person entries of b.
func Persons(b *r4.Bundle) []Person {
	resources := r4.Resources[r4.Person](b, r4.TypePerson)
	out := make([]Person, 0, len(resources))
	for _, r := range resources {
		telecom := r.Telecom
		if telecom == nil {
			telecom = []r4.ContactPoint{}
		}
		out = append(out, Person{
			ID:        r.ID,
			Active:    r.Active,
			Name:      r.FirstName(),
			Gender:    r.Gender,
			BirthDate: r.BirthDate,
			Telecom:   telecom,
			Address:   r.FirstAddressText(),
		})
	}
	return out
}

// Procedures summarizes the Procedure entries of b.
func Procedures(b *r4.Bundle) []Procedure {
	resources := r4.Resources[r4.Procedure](b, r4.TypeProcedure)
	out := make([]Procedure, 0, len(resources))
	for _, r := range resources {
		out = append(out, Procedure{
			ID:        r.ID,
			Status:    r.Status,
			Code:      r.Code.FirstCodingDisplay(),
			Subject:   r.SubjectReference(),
			Performed: r.Performed(),
			Performer: r.PerformerName(),
			Location:  r.Location.GetDisplay(),
			Note:      r4.JoinNotes(r.Note),
		})
	}
	return out
}
