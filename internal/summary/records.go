// Package summary flattens FHIR search bundles into compact records and the
// one-line descriptions shown in chat. Every function here is pure.
package summary

import (
	"github.com/drfirst/fhir-chat/internal/fhir/r4"
)

// Allergy is the summary of an AllergyIntolerance.
type Allergy struct {
	ID                 string `json:"id"`
	Substance          string `json:"substance"`
	ClinicalStatus     string `json:"clinicalStatus"`
	VerificationStatus string `json:"verificationStatus"`
	Criticality        string `json:"criticality"`
	Category           string `json:"category"`
	Patient            string `json:"patient"`
	Onset              string `json:"onset"`
	RecordedDate       string `json:"recordedDate"`
}

// Patient is the summary of a Patient.
type Patient struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BirthDate string `json:"birthDate"`
	Gender    string `json:"gender"`
}

// MedicationRequest is the summary of a MedicationRequest.
type MedicationRequest struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Intent     string `json:"intent"`
	Medication string `json:"medication"`
	Patient    string `json:"patient"`
	AuthoredOn string `json:"authoredOn"`
	Requester  string `json:"requester"`
	Note       string `json:"note"`
}

// FamilyMemberHistory is the summary of a FamilyMemberHistory.
type FamilyMemberHistory struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	Patient      string   `json:"patient"`
	Relationship string   `json:"relationship"`
	Sex          string   `json:"sex"`
	Date         string   `json:"date"`
	Note         string   `json:"note"`
	Conditions   []string `json:"conditions"`
}

// Immunization is the summary of an Immunization.
type Immunization struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Patient       string `json:"patient"`
	Vaccine       string `json:"vaccine"`
	Date          string `json:"date"`
	TargetDisease string `json:"targetDisease"`
	Manufacturer  string `json:"manufacturer"`
	LotNumber     string `json:"lotNumber"`
	Performer     string `json:"performer"`
}

// Person is the summary of a Person.
type Person struct {
	ID        string            `json:"id"`
	Active    *bool             `json:"active"`
	Name      string            `json:"name"`
	Gender    string            `json:"gender"`
	BirthDate string            `json:"birthDate"`
	Telecom   []r4.ContactPoint `json:"telecom"`
	Address   string            `json:"address"`
}

// Procedure is the summary of a Procedure.
type Procedure struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Code      string `json:"code"`
	Subject   string `json:"subject"`
	Performed string `json:"performed"`
	Performer string `json:"performer"`
	Location  string `json:"location"`
	Note      string `json:"note"`
}
