package summary

import (
	"fmt"
	"strings"
	"time"
)

// NoRecordsMessage is shown when a search matched nothing.
const NoRecordsMessage = "No record(s) found for the given criteria"

// DescribeAllergies lists the substance of every allergy that has one.
func DescribeAllergies(records []Allergy) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if r.Substance != "" {
			out = append(out, r.Substance)
		}
	}
	return out
}

// DescribePatients renders "<id> - <name>".
func DescribePatients(records []Patient) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, fmt.Sprintf("%s - %s", r.ID, r.Name))
	}
	return out
}

// DescribeMedicationRequests lists the medication of every request.
func DescribeMedicationRequests(records []MedicationRequest) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Medication)
	}
	return out
}

// DescribeFamilyMemberHistories renders "<relationship> - <conditions>" for
// histories that list at least one condition.
func DescribeFamilyMemberHistories(records []FamilyMemberHistory) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if len(r.Conditions) == 0 {
			continue
		}
		out = append(out, fmt.Sprintf("%s - %s", r.Relationship, strings.Join(r.Conditions, ", ")))
	}
	return out
}

// DescribeImmunizations renders "<vaccine> (target: <disease>) on <date> - Status: <status>".
func DescribeImmunizations(records []Immunization) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, fmt.Sprintf("%s (target: %s) on %s - Status: %s", r.Vaccine, r.TargetDisease, r.Date, r.Status))
	}
	return out
}

// DescribePersons renders "<name> - <gender> - DOB: <birthDate>".
func DescribePersons(records []Person) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		name := orDefault(r.Name, "Unknown")
		out = append(out, fmt.Sprintf("%s - %s - DOB: %s", name, orDefault(r.Gender, "unknown"), orDefault(r.BirthDate, "n/a")))
	}
	return out
}

// DescribeProcedures renders "<code> - <status> - <performed>" for procedures
// with a performed date.
func DescribeProcedures(records []Procedure) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if r.Performed == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%s - %s - %s", r.Code, r.Status, FormatPerformed(r.Performed)))
	}
	return out
}

var performedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// FormatPerformed renders a FHIR date or dateTime as "YYYY-MM-DD HH:MM:SS" in
// UTC. Values without a zone are read as UTC; unparseable values are returned
// unchanged.
func FormatPerformed(value string) string {
	for _, layout := range performedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Format("2006-01-02 15:04:05")
		}
	}
	return value
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
