// Package r4 provides the FHIR R4 data structures read by the chat backend.
// Date and dateTime values are kept as the strings the server sent.
package r4

import "strings"

// Meta contains metadata about a resource.
type Meta struct {
	VersionID   string   `json:"versionId,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Source      string   `json:"source,omitempty"`
	Profile     []string `json:"profile,omitempty"`
}

// Identifier represents a FHIR Identifier.
type Identifier struct {
	Use    string           `json:"use,omitempty"` // usual | official | temp | secondary | old
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
}

// CodeableConcept represents a concept with text and codings.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Display returns the concept text, falling back to the first coding's display.
func (c *CodeableConcept) Display() string {
	if c == nil {
		return ""
	}
	if c.Text != "" {
		return c.Text
	}
	if len(c.Coding) > 0 {
		return c.Coding[0].Display
	}
	return ""
}

// FirstCodingDisplay returns the first coding's display, falling back to text.
func (c *CodeableConcept) FirstCodingDisplay() string {
	if c == nil {
		return ""
	}
	if len(c.Coding) > 0 && c.Coding[0].Display != "" {
		return c.Coding[0].Display
	}
	return c.Text
}

// Code returns the concept text or the first coding's code.
func (c *CodeableConcept) Code() string {
	if c == nil {
		return ""
	}
	if c.Text != "" {
		return c.Text
	}
	if len(c.Coding) > 0 {
		return c.Coding[0].Code
	}
	return ""
}

// Coding represents a code from a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Version string `json:"version,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// Reference represents a reference to another resource.
type Reference struct {
	Reference  string      `json:"reference,omitempty"`
	Type       string      `json:"type,omitempty"`
	Identifier *Identifier `json:"identifier,omitempty"`
	Display    string      `json:"display,omitempty"`
}

// GetReference returns the literal reference or "" for a nil reference.
func (r *Reference) GetReference() string {
	if r == nil {
		return ""
	}
	return r.Reference
}

// GetDisplay returns the reference display or "" for a nil reference.
func (r *Reference) GetDisplay() string {
	if r == nil {
		return ""
	}
	return r.Display
}

// DisplayOrReference prefers the display text and falls back to the literal reference.
func (r *Reference) DisplayOrReference() string {
	if r == nil {
		return ""
	}
	if r.Display != "" {
		return r.Display
	}
	return r.Reference
}

// IDFor returns the logical id when the reference targets resourceType,
// e.g. "Patient/P1" yields "P1" for "Patient".
func (r *Reference) IDFor(resourceType string) string {
	if r == nil {
		return ""
	}
	return ReferenceID(r.Reference, resourceType)
}

// ReferenceID extracts the logical id from a "<Type>/<id>" reference string.
func ReferenceID(ref, resourceType string) string {
	prefix := resourceType + "/"
	if !strings.HasPrefix(ref, prefix) {
		return ""
	}
	id := strings.TrimPrefix(ref, prefix)
	if i := strings.Index(id, "/"); i >= 0 {
		id = id[:i]
	}
	return id
}

// Period represents a time period.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Annotation represents a note or comment.
type Annotation struct {
	AuthorString string `json:"authorString,omitempty"`
	Time         string `json:"time,omitempty"`
	Text         string `json:"text"`
}

// JoinNotes joins the note texts with "; ".
func JoinNotes(notes []Annotation) string {
	texts := make([]string, 0, len(notes))
	for _, n := range notes {
		texts = append(texts, n.Text)
	}
	return strings.Join(texts, "; ")
}

// HumanName represents a human name.
type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
}

// Assembled joins the given names and family name.
func (n HumanName) Assembled() string {
	given := strings.Join(n.Given, " ")
	return strings.TrimSpace(given + " " + n.Family)
}

// Address represents a postal address.
type Address struct {
	Use        string   `json:"use,omitempty"`
	Text       string   `json:"text,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
}

// ContactPoint represents a contact detail.
type ContactPoint struct {
	System string `json:"system,omitempty"` // phone | fax | email | pager | url | sms | other
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"`
	Rank   int    `json:"rank,omitempty"`
}

// Extension represents a FHIR extension or modifierExtension.
type Extension struct {
	URL                  string           `json:"url"`
	ValueString          string           `json:"valueString,omitempty"`
	ValueBoolean         *bool            `json:"valueBoolean,omitempty"`
	ValueCode            string           `json:"valueCode,omitempty"`
	ValueCoding          *Coding          `json:"valueCoding,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	ValueReference       *Reference       `json:"valueReference,omitempty"`
}

// OperationOutcome represents errors and warnings from FHIR operations.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

// OperationOutcomeIssue represents a single issue in an OperationOutcome.
type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"` // fatal | error | warning | information
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

// Message returns the most specific human text of the first issue.
func (o *OperationOutcome) Message() string {
	if o == nil || len(o.Issue) == 0 {
		return ""
	}
	issue := o.Issue[0]
	if issue.Details != nil && issue.Details.Text != "" {
		return issue.Details.Text
	}
	return issue.Diagnostics
}

// Resource type names served by the gateway.
const (
	TypeAllergyIntolerance  = "AllergyIntolerance"
	TypePatient             = "Patient"
	TypeMedicationRequest   = "MedicationRequest"
	TypeFamilyMemberHistory = "FamilyMemberHistory"
	TypeImmunization        = "Immunization"
	TypePerson              = "Person"
	TypeProcedure           = "Procedure"
	TypeBundle              = "Bundle"
	TypeOperationOutcome    = "OperationOutcome"
)
