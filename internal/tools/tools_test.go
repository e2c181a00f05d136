package tools

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/drfirst/fhir-chat/internal/gateway"
)

func TestValidate(t *testing.T) {
	reg := Default()

	tests := []struct {
		name      string
		tool      string
		args      map[string]interface{}
		wantValid bool
		wantMsg   string
	}{
		{"unknown tool", "get_observations", map[string]interface{}{}, false, "Unknown tool: get_observations"},
		{"patients without filters", GetPatients, map[string]interface{}{}, false, MsgPatientsNeedNameOrID},
		{"patients by name", GetPatients, map[string]interface{}{"name": "Smith"}, true, ""},
		{"patients by id", GetPatients, map[string]interface{}{"_id": "123"}, true, ""},
		{"patients empty name", GetPatients, map[string]interface{}{"name": ""}, false, MsgPatientsNeedNameOrID},
		{"allergies by id", GetAllergyIntolerances, map[string]interface{}{"_id": "A1"}, true, ""},
		{"allergies without filters", GetAllergyIntolerances, map[string]interface{}{"token": "t"}, false, MsgAllergiesNeedPatient},
		{"medication without patient", GetMedicationRequests, map[string]interface{}{}, false, MsgMedicationNeedPatient},
		{"medication by id only", GetMedicationRequests, map[string]interface{}{"_id": "m1"}, false, MsgMedicationNeedPatient},
		{"medication with patient", GetMedicationRequests, map[string]interface{}{"patient": "Patient/1"}, true, ""},
		{"persons require _id", GetPersons, map[string]interface{}{"name": "Ann"}, false, `Please provide "_id" to use get_persons.`},
		{"persons with _id", GetPersons, map[string]interface{}{"_id": "x1"}, true, ""},
		{"procedures empty patient", GetProcedures, map[string]interface{}{"patient": ""}, false, `Please provide "patient" to use get_procedures.`},
		{"immunizations with patient", GetImmunizations, map[string]interface{}{"patient": "p1"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reg.Validate(tt.tool, tt.args)
			if got.Valid != tt.wantValid {
				t.Fatalf("valid = %v, want %v (%q)", got.Valid, tt.wantValid, got.Message)
			}
			if got.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", got.Message, tt.wantMsg)
			}
		})
	}
}

func TestMedicationMessageMentionsPatientID(t *testing.T) {
	got := Default().Validate(GetMedicationRequests, map[string]interface{}{})
	if !strings.Contains(got.Message, "patient Id") {
		t.Errorf("message %q should mention patient Id", got.Message)
	}
}

func TestToolSchemas(t *testing.T) {
	reg := Default()
	mcpTools := reg.Tools()
	if len(mcpTools) != 7 {
		t.Fatalf("tool count = %d", len(mcpTools))
	}
	for i, def := range reg.Definitions() {
		tool := mcpTools[i]
		if tool.Name != def.Name || tool.InputSchema.Type != "object" {
			t.Errorf("tool %d: unexpected %+v", i, tool)
		}
		if len(tool.InputSchema.Properties) != len(def.Params) {
			t.Errorf("%s: %d properties for %d params", def.Name, len(tool.InputSchema.Properties), len(def.Params))
		}
		for _, req := range def.Required {
			if _, ok := tool.InputSchema.Properties[req]; !ok {
				t.Errorf("%s: required %q is not a property", def.Name, req)
			}
		}
		for _, req := range def.InputRequired {
			if _, ok := def.Param(req); !ok {
				t.Errorf("%s: input-required %q is not a param", def.Name, req)
			}
		}
	}

	def, _ := reg.Lookup(GetPatients)
	gender := def.Tool().InputSchema.Properties["gender"].(map[string]interface{})
	if !reflect.DeepEqual(gender["enum"], genders) {
		t.Errorf("gender enum = %v", gender["enum"])
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry(Definition{Name: "a"}, Definition{Name: "a"}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := NewRegistry(Definition{}); err == nil {
		t.Fatal("expected missing name error")
	}
}

func TestValidateInput(t *testing.T) {
	reg := Default()
	imm, _ := reg.Lookup(GetImmunizations)

	params, errs := imm.ValidateInput(map[string]interface{}{
		"token":       "secret",
		"vaccineCode": "Influenza",
		"patient":     "Patient/1",
		"_count":      float64(5),
	})
	if errs != nil {
		t.Fatalf("unexpected errors %v", errs)
	}
	want := gateway.Params{}.Add("patient", "Patient/1").Add("vaccine-code", "Influenza").Add("_count", "5")
	if !reflect.DeepEqual(params, want) {
		t.Errorf("params = %+v, want %+v", params, want)
	}
	if _, ok := params.Get("token"); ok {
		t.Error("token must not be forwarded")
	}

	_, errs = imm.ValidateInput(map[string]interface{}{"status": "completed"})
	if !reflect.DeepEqual(errs["patient"], []string{"Required"}) {
		t.Errorf("errors = %v", errs)
	}
}

func TestValidateInputFieldErrors(t *testing.T) {
	reg := Default()
	persons, _ := reg.Lookup(GetPersons)
	fmh, _ := reg.Lookup(GetFamilyMemberHistory)
	meds, _ := reg.Lookup(GetMedicationRequests)

	tests := []struct {
		name  string
		def   *Definition
		body  map[string]interface{}
		field string
	}{
		{"unknown field", persons, map[string]interface{}{"nickname": "x"}, "nickname"},
		{"bad enum", persons, map[string]interface{}{"gender": "robot"}, "gender"},
		{"number for string", persons, map[string]interface{}{"name": float64(3)}, "name"},
		{"bad family status", fmh, map[string]interface{}{"status": "done"}, "status"},
		{"fractional count", meds, map[string]interface{}{"_count": 1.5}, "_count"},
		{"zero count", meds, map[string]interface{}{"_count": "0"}, "_count"},
		{"boolean count", meds, map[string]interface{}{"_count": true}, "_count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, errs := tt.def.ValidateInput(tt.body)
			if params != nil {
				t.Errorf("params should be nil on failure, got %v", params)
			}
			if len(errs[tt.field]) == 0 {
				t.Fatalf("expected error on %q, got %v", tt.field, errs)
			}
			if !strings.Contains(errs.Error(), tt.field) {
				t.Errorf("Error() = %q", errs.Error())
			}
		})
	}
}

func TestValidateInputAcceptsAnyMedicationStatus(t *testing.T) {
	meds, _ := Default().Lookup(GetMedicationRequests)
	params, errs := meds.ValidateInput(map[string]interface{}{"patient": "p1", "status": "active,completed", "intent": "order,plan", "_count": "10"})
	if errs != nil {
		t.Fatalf("unexpected errors %v", errs)
	}
	if v, _ := params.Get("_count"); v != "10" {
		t.Errorf("_count = %q", v)
	}
}

func TestValidationRulesProperties(t *testing.T) {
	reg := Default()
	properties := gopter.NewProperties(nil)

	properties.Property("patients are valid iff name or _id is non-empty", prop.ForAll(
		func(name, id string) bool {
			args := map[string]interface{}{}
			if name != "" {
				args["name"] = name
			}
			if id != "" {
				args["_id"] = id
			}
			got := reg.Validate(GetPatients, args)
			return got.Valid == (name != "" || id != "")
		},
		gen.OneGenOf(gen.Const(""), gen.AlphaString()),
		gen.OneGenOf(gen.Const(""), gen.NumString()),
	))

	properties.Property("every string value of a declared param is forwarded", prop.ForAll(
		func(v string) bool {
			def, _ := reg.Lookup(GetProcedures)
			params, errs := def.ValidateInput(map[string]interface{}{"code": v, "patient": "p"})
			got, ok := params.Get("code")
			return errs == nil && ok && got == v
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestValidateInputUsesFHIRSearchNames(t *testing.T) {
	reg := Default()
	tests := []struct {
		tool  string
		arg   string
		param string
	}{
		{GetAllergyIntolerances, "clinicalStatus", "clinical-status"},
		{GetImmunizations, "vaccineCode", "vaccine-code"},
		{GetImmunizations, "targetDisease", "target-disease"},
		{GetImmunizations, "lotNumber", "lot-number"},
		{GetImmunizations, "status", "status"},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			def, ok := reg.Lookup(tt.tool)
			if !ok {
				t.Fatalf("unknown tool %s", tt.tool)
			}
			params, errs := def.ValidateInput(map[string]interface{}{
				"patient": "Patient/1",
				tt.arg:    "x",
			})
			if errs != nil {
				t.Fatalf("unexpected errors %v", errs)
			}
			if v, ok := params.Get(tt.param); !ok || v != "x" {
				t.Errorf("params = %+v, want %s=x", params, tt.param)
			}
			if tt.arg != tt.param {
				if _, ok := params.Get(tt.arg); ok {
					t.Errorf("%s must not be sent under its argument name", tt.arg)
				}
			}
		})
	}
}
