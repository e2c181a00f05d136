package tools

import (
	"github.com/drfirst/fhir-chat/internal/fhir/r4"
)

// Tool names.
const (
	GetAllergyIntolerances = "get_allergy_intolerances"
	GetPatients            = "get_patients"
	GetMedicationRequests  = "get_medication_requests"
	GetFamilyMemberHistory = "get_family_member_history"
	GetImmunizations       = "get_immunizations"
	GetPersons             = "get_persons"
	GetProcedures          = "get_procedures"
)

// Messages returned by the tool-specific rules.
const (
	MsgPatientsNeedNameOrID  = `Please provide either "name" or "_id" to search for patients.`
	MsgAllergiesNeedPatient  = `Please provide either "patient Id" or "allergy Id" to search for allergy intolerances.`
	MsgMedicationNeedPatient = `Please provide "patient Id" to search for medication requests.`
)

var genders = []string{"male", "female", "other", "unknown"}

func str(name, description string) Param {
	return Param{Name: name, Type: TypeString, Description: description}
}

func count(description string) Param {
	return Param{Name: "_count", Type: TypeInteger, Description: description}
}

// Catalog returns the FHIR search tools in the order offered to the model.
func Catalog() []Definition {
	return []Definition{
		{
			Name:         GetAllergyIntolerances,
			ResourceType: r4.TypeAllergyIntolerance,
			Description:  "Search for allergy intolerances with optional filters. Returns FHIR AllergyIntolerance bundle.",
			Params: []Param{
				str("patient", `Patient reference (e.g., "Patient/12345")`),
				str("_id", "Specific AllergyIntolerance ID"),
				str("_lastUpdated", "Last updated timestamp filter"),
				{Name: "clinicalStatus", Type: TypeString, Description: `Clinical status filter (e.g., "active")`, SearchName: "clinical-status"},
				str("_revinclude", "Include related resources"),
			},
			Required: []string{"patient"},
			rule: func(args map[string]interface{}) (string, bool) {
				return MsgAllergiesNeedPatient, present(args["patient"]) || present(args["_id"])
			},
		},
		{
			Name:         GetPatients,
			ResourceType: r4.TypePatient,
			Description:  "Search for patients with optional filters. Returns FHIR Patient bundle.",
			Params: []Param{
				str("_id", "Specific Patient ID"),
				str("name", "Patient name filter"),
				str("birthdate", `Birthdate filter, e.g., "gt2020-01-01"`),
				{Name: "gender", Type: TypeString, Description: "Patient gender filter (male, female, other, unknown)", Enum: genders},
				str("_revinclude", "Include related resources"),
			},
			Required: []string{"name"},
			rule: func(args map[string]interface{}) (string, bool) {
				return MsgPatientsNeedNameOrID, present(args["name"]) || present(args["_id"])
			},
		},
		{
			Name:         GetMedicationRequests,
			ResourceType: r4.TypeMedicationRequest,
			Description:  "Search for MedicationRequest resources with optional filters. Returns a FHIR MedicationRequest bundle.",
			Params: []Param{
				str("-timing-boundsPeriod", `Filter by timing period of medication administration, e.g., "ge2014-05-19T20:54:02.000Z".`),
				count("Maximum number of MedicationRequest records to return."),
				str("_id", "Specific MedicationRequest ID."),
				str("_lastUpdated", `Filter by last updated timestamp, e.g., "ge2020-01-01T00:00:00Z".`),
				str("_revinclude", `Include related Provenance or other resources, e.g., "Provenance:target".`),
				str("intent", `Filter by intent of the medication request, e.g., "order", "plan", "proposal". Multiple values can be comma-separated.`),
				str("patient", `Filter by patient ID or full reference, e.g., "Patient/12742400".`),
				str("status", `Filter by status of the medication request, e.g., "active", "completed", "cancelled". Multiple values can be comma-separated.`),
			},
			Required: []string{"patient"},
			rule: func(args map[string]interface{}) (string, bool) {
				return MsgMedicationNeedPatient, present(args["patient"])
			},
		},
		{
			Name:         GetFamilyMemberHistory,
			ResourceType: r4.TypeFamilyMemberHistory,
			Description:  "Search for FamilyMemberHistory resources with optional filters. Returns a FHIR FamilyMemberHistory bundle.",
			Params: []Param{
				str("_id", "Filter by specific FamilyMemberHistory resource ID."),
				str("patient", `Filter by patient ID or reference, e.g., "Patient/12345".`),
				str("relationship", `Filter by family member relationship, e.g., "mother", "father", "sibling".`),
				{Name: "status", Type: TypeString, Description: "Filter by the record status.", Enum: []string{"partial", "completed", "entered-in-error", "health-unknown"}},
				str("date", `Filter by the date the history was taken or last updated, e.g., "ge2020-01-01".`),
				{Name: "sex", Type: TypeString, Description: "Filter by the family member's sex.", Enum: genders},
				count("Maximum number of FamilyMemberHistory records to return."),
				str("_include", `Include related resources in the response, e.g., "Patient".`),
				str("_revinclude", `Include reverse-linked resources, e.g., "Provenance:target".`),
				str("_sort", `Sort results by a field, e.g., "date".`),
				str("_page", "Specify the page of results to return for paginated responses."),
			},
			Required: []string{"patient"},
		},
		{
			Name:         GetImmunizations,
			ResourceType: r4.TypeImmunization,
			Description:  "Search for Immunization resources with optional filters. Returns a FHIR Immunization bundle.",
			Params: []Param{
				str("_id", "Filter by specific Immunization resource ID."),
				str("patient", `Filter by patient ID or reference, e.g., "Patient/12345".`),
				str("status", `Filter by the immunization status, e.g., "completed", "entered-in-error", "not-done".`),
				{Name: "vaccineCode", Type: TypeString, Description: `Filter by the vaccine code administered, e.g., "Influenza", "COVID-19".`, SearchName: "vaccine-code"},
				str("date", `Filter by the immunization date or date range, e.g., "ge2020-01-01".`),
				{Name: "targetDisease", Type: TypeString, Description: `Filter by the target disease for the vaccine, e.g., "COVID-19", "Influenza".`, SearchName: "target-disease"},
				{Name: "lotNumber", Type: TypeString, Description: "Filter by vaccine lot number if applicable.", SearchName: "lot-number"},
				str("manufacturer", `Filter by vaccine manufacturer reference, e.g., "Organization/9876".`),
				count("Maximum number of Immunization records to return."),
				str("_include", `Include related resources in the response, e.g., "Patient", "Practitioner".`),
				str("_revinclude", `Include reverse-linked resources, e.g., "Provenance:target".`),
				str("_sort", `Sort results by a field, e.g., "date".`),
				str("_page", "Specify the page of results to return for paginated responses."),
			},
			Required:      []string{"patient"},
			InputRequired: []string{"patient"},
		},
		{
			Name:         GetPersons,
			ResourceType: r4.TypePerson,
			Description:  "Search for Person resources with optional filters. Returns a FHIR Person bundle.",
			Params: []Param{
				str("_id", "Filter by specific Person resource ID."),
				str("identifier", "Person identifier; include system|value, e.g. 'urn:oid:2.16.840.1.113883.6.1000|31577'."),
				str("name", "Search by person name."),
				{Name: "gender", Type: TypeString, Description: "male | female | other | unknown", Enum: genders},
				str("birthdate", "Birth date filter, e.g., 'ge2020-01-01'."),
				count("Maximum number of Person records to return."),
				str("_include", "Include related resources."),
				str("_revinclude", "Include reverse-linked resources."),
				str("_page", "Page token for paginated responses."),
			},
			Required: []string{"_id"},
		},
		{
			Name:         GetProcedures,
			ResourceType: r4.TypeProcedure,
			Description:  "Search for Procedure resources with optional filters. Returns a FHIR Procedure bundle.",
			Params: []Param{
				str("_id", "Specific Procedure resource ID."),
				str("patient", "Patient ID (required if _id/subject not used)."),
				str("subject", "Subject reference (e.g., 'Patient/12345')."),
				str("date", "Date range for performedDateTime / performedPeriod."),
				str("_lastUpdated", "Filter by lastUpdated timestamp (can't be used with date)."),
				str("category", "Procedure category code."),
				str("code", "Procedure code."),
				str("_revinclude", "Include reverse-linked resources."),
				count("Maximum number of Procedure records to return."),
				str("_include", "Include related resources."),
				str("_sort", "Sort results by a field."),
				str("_page", "Page token for paginated responses."),
			},
			Required: []string{"patient"},
		},
	}
}
