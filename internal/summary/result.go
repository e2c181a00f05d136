package summary

import (
	"fmt"

	"github.com/drfirst/fhir-chat/internal/fhir/r4"
)

// Response keys under which each resource type's records are returned.
const (
	KeyAllergyIntolerances   = "allergyIntolerances"
	KeyPatients              = "patients"
	KeyMedicationRequests    = "medicationRequests"
	KeyFamilyMemberHistories = "familyMemberHistories"
	KeyImmunizations         = "immunizations"
	KeyPersons               = "persons"
	KeyProcedures            = "procedures"
)

// Result is the summarized form of one search bundle.
type Result struct {
	ResourceType string
	Key          string
	Records      interface{}
	Count        int
	// Descriptions is only filled for resource types whose endpoint returns them.
	Descriptions []string
}

// Summarize dispatches b to the summarizer for resourceType.
func Summarize(resourceType string, b *r4.Bundle) (Result, error) {
	res := Result{ResourceType: resourceType}
	switch resourceType {
	case r4.TypeAllergyIntolerance:
		recs := Allergies(b)
		res.Key, res.Records, res.Count = KeyAllergyIntolerances, recs, len(recs)
		res.Descriptions = DescribeAllergies(recs)
	case r4.TypePatient:
		recs := Patients(b)
		res.Key, res.Records, res.Count = KeyPatients, recs, len(recs)
	case r4.TypeMedicationRequest:
		recs := MedicationRequests(b)
		res.Key, res.Records, res.Count = KeyMedicationRequests, recs, len(recs)
	case r4.TypeFamilyMemberHistory:
		recs := FamilyMemberHistories(b)
		res.Key, res.Records, res.Count = KeyFamilyMemberHistories, recs, len(recs)
	case r4.TypeImmunization:
		recs := Immunizations(b)
		res.Key, res.Records, res.Count = KeyImmunizations, recs, len(recs)
	case r4.TypePerson:
		recs := Persons(b)
		res.Key, res.Records, res.Count = KeyPersons, recs, len(recs)
	case r4.TypeProcedure:
		recs := Procedures(b)
		res.Key, res.Records, res.Count = KeyProcedures, recs, len(recs)
	default:
		return Result{}, fmt.Errorf("no summarizer for resource type %q", resourceType)
	}
	return res, nil
}

// Payload renders r as the JSON object fields of a successful search response.
func (r Result) Payload() map[string]interface{} {
	out := map[string]interface{}{
		r.Key:   r.Records,
		"count": r.Count,
	}
	if r.Descriptions != nil {
		out["descriptions"] = r.Descriptions
	}
	return out
}
