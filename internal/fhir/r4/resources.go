package r4

// Patient represents a FHIR R4 Patient resource.
type Patient struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id,omitempty"`
	Meta         *Meta          `json:"meta,omitempty"`
	Identifier   []Identifier   `json:"identifier,omitempty"`
	Active       *bool          `json:"active,omitempty"`
	Name         []HumanName    `json:"name,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
	Gender       string         `json:"gender,omitempty"` // male | female | other | unknown
	BirthDate    string         `json:"birthDate,omitempty"`
	Address      []Address      `json:"address,omitempty"`
}

// NameTexts returns one display string per name: the text, else given + family.
func (p *Patient) NameTexts() []string {
	names := make([]string, 0, len(p.Name))
	for _, n := range p.Name {
		if n.Text != "" {
			names = append(names, n.Text)
			continue
		}
		names = append(names, n.Assembled())
	}
	return names
}

// Person represents a FHIR R4 Person resource.
type Person struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id,omitempty"`
	Meta         *Meta          `json:"meta,omitempty"`
	Identifier   []Identifier   `json:"identifier,omitempty"`
	Active       *bool          `json:"active,omitempty"`
	Name         []HumanName    `json:"name,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
	Gender       string         `json:"gender,omitempty"`
	BirthDate    string         `json:"birthDate,omitempty"`
	Address      []Address      `json:"address,omitempty"`
}

// FirstName returns the first name's text, else its given + family parts.
func (p *Person) FirstName() string {
	if len(p.Name) == 0 {
		return ""
	}
	if p.Name[0].Text != "" {
		return p.Name[0].Text
	}
	return p.Name[0].Assembled()
}

// FirstAddressText returns the text of the first address.
func (p *Person) FirstAddressText() string {
	if len(p.Address) == 0 {
		return ""
	}
	return p.Address[0].Text
}

// AllergyIntolerance represents a FHIR R4 AllergyIntolerance resource.
type AllergyIntolerance struct {
	ResourceType       string           `json:"resourceType"`
	ID                 string           `json:"id,omitempty"`
	Meta               *Meta            `json:"meta,omitempty"`
	ClinicalStatus     *CodeableConcept `json:"clinicalStatus,omitempty"`
	VerificationStatus *CodeableConcept `json:"verificationStatus,omitempty"`
	Type               string           `json:"type,omitempty"`
	Category           []string         `json:"category,omitempty"`
	Criticality        string           `json:"criticality,omitempty"`
	Code               *CodeableConcept `json:"code,omitempty"`
	Patient            *Reference       `json:"patient,omitempty"`
	OnsetDateTime      string           `json:"onsetDateTime,omitempty"`
	RecordedDate       string           `json:"recordedDate,omitempty"`
	Note               []Annotation     `json:"note,omitempty"`
}

// MedicationRequest represents a FHIR R4 MedicationRequest resource.
type MedicationRequest struct {
	ResourceType              string           `json:"resourceType"`
	ID                        string           `json:"id,omitempty"`
	Meta                      *Meta            `json:"meta,omitempty"`
	Status                    string           `json:"status,omitempty"`
	Intent                    string           `json:"intent,omitempty"`
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	MedicationReference       *Reference       `json:"medicationReference,omitempty"`
	Subject                   *Reference       `json:"subject,omitempty"`
	AuthoredOn                string           `json:"authoredOn,omitempty"`
	Requester                 *Reference       `json:"requester,omitempty"`
	Note                      []Annotation     `json:"note,omitempty"`
}

// MedicationDisplay returns the coded medication text, else the referenced
// medication's display.
func (m *MedicationRequest) MedicationDisplay() string {
	if m.MedicationCodeableConcept != nil && m.MedicationCodeableConcept.Text != "" {
		return m.MedicationCodeableConcept.Text
	}
	return m.MedicationReference.GetDisplay()
}

// FamilyMemberHistory represents a FHIR R4 FamilyMemberHistory resource.
type FamilyMemberHistory struct {
	ResourceType string                         `json:"resourceType"`
	ID           string                         `json:"id,omitempty"`
	Meta         *Meta                          `json:"meta,omitempty"`
	Status       string                         `json:"status,omitempty"`
	Patient      *Reference                     `json:"patient,omitempty"`
	Date         string                         `json:"date,omitempty"`
	Relationship *CodeableConcept               `json:"relationship,omitempty"`
	Sex          *CodeableConcept               `json:"sex,omitempty"`
	Note         []Annotation                   `json:"note,omitempty"`
	Condition    []FamilyMemberHistoryCondition `json:"condition,omitempty"`
}

// FamilyMemberHistoryCondition is a condition recorded for a relative.
type FamilyMemberHistoryCondition struct {
	Code              *CodeableConcept `json:"code,omitempty"`
	Outcome           *CodeableConcept `json:"outcome,omitempty"`
	ModifierExtension []Extension      `json:"modifierExtension,omitempty"`
	OnsetString       string           `json:"onsetString,omitempty"`
}

// Modifier returns the first modifier extension's coded value, or "".
func (c *FamilyMemberHistoryCondition) Modifier() string {
	if len(c.ModifierExtension) == 0 {
		return ""
	}
	return c.ModifierExtension[0].ValueCodeableConcept.Display()
}

// Immunization represents a FHIR R4 Immunization resource.
type Immunization struct {
	ResourceType       string                  `json:"resourceType"`
	ID                 string                  `json:"id,omitempty"`
	Meta               *Meta                   `json:"meta,omitempty"`
	Status             string                  `json:"status,omitempty"`
	VaccineCode        *CodeableConcept        `json:"vaccineCode,omitempty"`
	Patient            *Reference              `json:"patient,omitempty"`
	OccurrenceDateTime string                  `json:"occurrenceDateTime,omitempty"`
	Manufacturer       *Reference              `json:"manufacturer,omitempty"`
	LotNumber          string                  `json:"lotNumber,omitempty"`
	Performer          []ImmunizationPerformer `json:"performer,omitempty"`
	ProtocolApplied    []ImmunizationProtocol  `json:"protocolApplied,omitempty"`
	Note               []Annotation            `json:"note,omitempty"`
}

// ImmunizationPerformer is who performed the immunization event.
type ImmunizationPerformer struct {
	Function *CodeableConcept `json:"function,omitempty"`
	Actor    *Reference       `json:"actor,omitempty"`
}

// ImmunizationProtocol is the protocol followed by the provider.
type ImmunizationProtocol struct {
	Series        string            `json:"series,omitempty"`
	TargetDisease []CodeableConcept `json:"targetDisease,omitempty"`
}

// TargetDisease returns the first coding display of the first protocol's first target disease.
func (i *Immunization) TargetDisease() string {
	if len(i.ProtocolApplied) == 0 || len(i.ProtocolApplied[0].TargetDisease) == 0 {
		return ""
	}
	td := i.ProtocolApplied[0].TargetDisease[0]
	if len(td.Coding) == 0 {
		return ""
	}
	return td.Coding[0].Display
}

// PerformerName returns the first performer's display or reference.
func (i *Immunization) PerformerName() string {
	if len(i.Performer) == 0 {
		return ""
	}
	return i.Performer[0].Actor.DisplayOrReference()
}

// Procedure represents a FHIR R4 Procedure resource. Patient is not an R4
// element but some servers still send it, so it is read as a subject fallback.
type Procedure struct {
	ResourceType      string               `json:"resourceType"`
	ID                string               `json:"id,omitempty"`
	Meta              *Meta                `json:"meta,omitempty"`
	Status            string               `json:"status,omitempty"`
	Category          *CodeableConcept     `json:"category,omitempty"`
	Code              *CodeableConcept     `json:"code,omitempty"`
	Subject           *Reference           `json:"subject,omitempty"`
	Patient           *Reference           `json:"patient,omitempty"`
	PerformedDateTime string               `json:"performedDateTime,omitempty"`
	PerformedPeriod   *Period              `json:"performedPeriod,omitempty"`
	Performer         []ProcedurePerformer `json:"performer,omitempty"`
	Location          *Reference           `json:"location,omitempty"`
	Note              []Annotation         `json:"note,omitempty"`
}

// ProcedurePerformer is who performed the procedure.
type ProcedurePerformer struct {
	Function *CodeableConcept `json:"function,omitempty"`
	Actor    *Reference       `json:"actor,omitempty"`
}

// SubjectReference returns subject.reference, falling back to patient.reference.
func (p *Procedure) SubjectReference() string {
	if ref := p.Subject.GetReference(); ref != "" {
		return ref
	}
	return p.Patient.GetReference()
}

// Performed returns performedDateTime, falling back to performedPeriod.start.
func (p *Procedure) Performed() string {
	if p.PerformedDateTime != "" {
		return p.PerformedDateTime
	}
	if p.PerformedPeriod != nil {
		return p.PerformedPeriod.Start
	}
	return ""
}

// PerformerName returns the first performer's display or reference.
func (p *Procedure) PerformerName() string {
	if len(p.Performer) == 0 {
		return ""
	}
	return p.Performer[0].Actor.DisplayOrReference()
}
