package chat

import (
	"encoding/json"
	"fmt"

	"github.com/drfirst/fhir-chat/internal/fhir/r4"
	"github.com/drfirst/fhir-chat/internal/memory"
	"github.com/drfirst/fhir-chat/internal/summary"
	"github.com/drfirst/fhir-chat/internal/tools"
)

// StepKind tags the result of summarizing a tool response.
type StepKind int

const (
	// Summarized means descriptions were derived and memory can be updated.
	Summarized StepKind = iota
	// RawPassthrough means the response is returned as received.
	RawPassthrough
)

func (k StepKind) String() string {
	if k == Summarized {
		return "summarized"
	}
	return "raw_passthrough"
}

// Step is the outcome of the summarization step.
type Step struct {
	Kind         StepKind
	Descriptions []string
	Update       memory.Memory
	// Reason explains a RawPassthrough.
	Reason string
}

type branch struct {
	key   string
	apply func(raw json.RawMessage) ([]string, memory.Memory, error)
}

var branches = map[string]branch{
	tools.GetAllergyIntolerances: {summary.KeyAllergyIntolerances, func(raw json.RawMessage) ([]string, memory.Memory, error) {
		recs, err := decode[summary.Allergy](raw)
		var m memory.Memory
		if len(recs) > 0 {
			m.LastAllergyID = recs[0].ID
			m.LastPatientID = r4.ReferenceID(recs[0].Patient, r4.TypePatient)
		}
		return summary.DescribeAllergies(recs), m, err
	}},
	tools.GetPatients: {summary.KeyPatients, func(raw json.RawMessage) ([]string, memory.Memory, error) {
		recs, err := decode[summary.Patient](raw)
		var m memory.Memory
		if len(recs) > 0 {
			m.LastPatientID = recs[0].ID
		}
		return summary.DescribePatients(recs), m, err
	}},
	tools.GetMedicationRequests: {summary.KeyMedicationRequests, func(raw json.RawMessage) ([]string, memory.Memory, error) {
		recs, err := decode[summary.MedicationRequest](raw)
		var m memory.Memory
		if len(recs) > 0 {
			m.LastMedicationRequestID = recs[0].ID
			m.LastPatientID = r4.ReferenceID(recs[0].Patient, r4.TypePatient)
		}
		return summary.DescribeMedicationRequests(recs), m, err
	}},
	tools.GetFamilyMemberHistory: {summary.KeyFamilyMemberHistories, func(raw json.RawMessage) ([]string, memory.Memory, error) {
		recs, err := decode[summary.FamilyMemberHistory](raw)
		var m memory.Memory
		if len(recs) > 0 {
			m.LastFamilyMemberHistoryID = recs[0].ID
			m.LastPatientID = r4.ReferenceID(recs[0].Patient, r4.TypePatient)
		}
		return summary.DescribeFamilyMemberHistories(recs), m, err
	}},
	tools.GetImmunizations: {summary.KeyImmunizations, func(raw json.RawMessage) ([]string, memory.Memory, error) {
		recs, err := decode[summary.Immunization](raw)
		var m memory.Memory
		if len(recs) > 0 {
			m.LastImmunizationID = recs[0].ID
			m.LastPatientID = r4.ReferenceID(recs[0].Patient, r4.TypePatient)
		}
		return summary.DescribeImmunizations(recs), m, err
	}},
	tools.GetPersons: {summary.KeyPersons, func(raw json.RawMessage) ([]string, memory.Memory, error) {
		recs, err := decode[summary.Person](raw)
		var m memory.Memory
		if len(recs) > 0 {
			m.LastPersonID = recs[0].ID
		}
		return summary.DescribePersons(recs), m, err
	}},
	tools.GetProcedures: {summary.KeyProcedures, func(raw json.RawMessage) ([]string, memory.Memory, error) {
		recs, err := decode[summary.Procedure](raw)
		var m memory.Memory
		if len(recs) > 0 {
			m.LastProcedureID = recs[0].ID
			m.LastPatientID = r4.ReferenceID(recs[0].Subject, r4.TypePatient)
		}
		return summary.DescribeProcedures(recs), m, err
	}},
}

func decode[T any](raw json.RawMessage) ([]T, error) {
	var recs []T
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// summarize derives the chat reply for a successful tool response. Unknown
// tools and unexpected shapes yield RawPassthrough.
func summarize(tool string, body map[string]json.RawMessage) Step {
	b, ok := branches[tool]
	if !ok {
		return Step{Kind: RawPassthrough, Reason: "no summarizer for " + tool}
	}
	raw, ok := body[b.key]
	if !ok {
		return Step{Kind: RawPassthrough, Reason: fmt.Sprintf("response has no %q field", b.key)}
	}
	descriptions, update, err := b.apply(raw)
	if err != nil {
		return Step{Kind: RawPassthrough, Reason: fmt.Sprintf("decode %q: %v", b.key, err)}
	}
	return Step{Kind: Summarized, Descriptions: descriptions, Update: update}
}
