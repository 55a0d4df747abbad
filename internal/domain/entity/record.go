package entity

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldName имя текстового поля клинической карты
type FieldName string

const (
	FieldPatientName       FieldName = "name"
	FieldGender            FieldName = "gender"
	FieldAge               FieldName = "age"
	FieldOccupation        FieldName = "occupation"
	FieldContact           FieldName = "contact"
	FieldAddress           FieldName = "address"
	FieldChiefComplaint    FieldName = "chief_complaint"
	FieldPresentIllness    FieldName = "present_illness"
	FieldPastHistory       FieldName = "past_history"
	FieldClinicalDiagnosis FieldName = "clinical_diagnosis"
	FieldTreatmentPlan     FieldName = "treatment_plan"
)

// Fields перечисляет поля карты в порядке заполнения
var Fields = []FieldName{
	FieldPatientName, FieldGender, FieldAge, FieldOccupation, FieldContact, FieldAddress,
	FieldChiefComplaint, FieldPresentIllness, FieldPastHistory,
	FieldClinicalDiagnosis, FieldTreatmentPlan,
}

// Правила проверки значения для каждого поля (теги go-playground/validator).
var fieldRules = map[FieldName]string{
	FieldPatientName:       "max=64",
	FieldGender:            "max=16",
	FieldAge:               "omitempty,age",
	FieldOccupation:        "max=64",
	FieldContact:           "omitempty,contact",
	FieldAddress:           "max=256",
	FieldChiefComplaint:    "max=2000",
	FieldPresentIllness:    "max=4000",
	FieldPastHistory:       "max=4000",
	FieldClinicalDiagnosis: "max=4000",
	FieldTreatmentPlan:     "max=4000",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("age", validateAge)
	_ = v.RegisterValidation("contact", validateContact)
	return v
}

func validateAge(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Field().String())
	return err == nil && n >= 0 && n <= 150
}

// Телефон или e-mail: цифры, пробелы, +-() либо адрес с @.
func validateContact(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if strings.Contains(s, "@") {
		_, err := mail.ParseAddress(s)
		return err == nil
	}
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune(" +-()", r):
		default:
			return false
		}
	}
	return digits >= 5
}

// ParseFieldName разбирает имя поля карты
func ParseFieldName(s string) (FieldName, bool) {
	f := FieldName(strings.ToLower(strings.TrimSpace(s)))
	_, ok := fieldRules[f]
	return f, ok
}

// ClinicalRecord клиническая карта пациента, которую заполняет оператор.
// Ответы удалённых сервисов её никогда не меняют.
type ClinicalRecord struct {
	Name              string `validate:"max=64"`
	Gender            string `validate:"max=16"`
	Age               string `validate:"omitempty,age"`
	Occupation        string `validate:"max=64"`
	Contact           string `validate:"omitempty,contact"`
	Address           string `validate:"max=256"`
	ChiefComplaint    string `validate:"max=2000"`
	PresentIllness    string `validate:"max=4000"`
	PastHistory       string `validate:"max=4000"`
	ClinicalDiagnosis string `validate:"max=4000"`
	TreatmentPlan     string `validate:"max=4000"`
	Severities        map[LesionType]SeverityGrade
}

// SetField проверяет и записывает значение текстового поля
func (r *ClinicalRecord) SetField(field FieldName, value string) error {
	rule, ok := fieldRules[field]
	if !ok {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidField, field)
	}
	value = strings.TrimSpace(value)
	if err := validate.Var(value, rule); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidField, field, err)
	}
	*r.fieldPtr(field) = value
	return nil
}

// Field возвращает текущее значение поля
func (r ClinicalRecord) Field(field FieldName) string {
	if _, ok := fieldRules[field]; !ok {
		return ""
	}
	return *r.fieldPtr(field)
}

func (r *ClinicalRecord) fieldPtr(field FieldName) *string {
	switch field {
	case FieldPatientName:
		return &r.Name
	case FieldGender:
		return &r.Gender
	case FieldAge:
		return &r.Age
	case FieldOccupation:
		return &r.Occupation
	case FieldContact:
		return &r.Contact
	case FieldAddress:
		return &r.Address
	case FieldChiefComplaint:
		return &r.ChiefComplaint
	case FieldPresentIllness:
		return &r.PresentIllness
	case FieldPastHistory:
		return &r.PastHistory
	case FieldClinicalDiagnosis:
		return &r.ClinicalDiagnosis
	default:
		return &r.TreatmentPlan
	}
}

// SetSeverity выставляет оценку тяжести для типа поражения
func (r *ClinicalRecord) SetSeverity(t LesionType, g SeverityGrade) error {
	if _, err := ParseLesionType(string(t)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	if !g.Valid() {
		return fmt.Errorf("%w: severity %d out of range", ErrInvalidField, g)
	}
	if r.Severities == nil {
		r.Severities = make(map[LesionType]SeverityGrade, len(LesionTypes))
	}
	r.Severities[t] = g
	return nil
}

// ClearSeverity сбрасывает оценку в состояние "не задано"
func (r *ClinicalRecord) ClearSeverity(t LesionType) {
	delete(r.Severities, t)
}

// Severity возвращает оценку и признак того, что она задана
func (r ClinicalRecord) Severity(t LesionType) (SeverityGrade, bool) {
	g, ok := r.Severities[t]
	return g, ok
}

// SeverityCode код оценки для сервиса, "" если оценка не задана
func (r ClinicalRecord) SeverityCode(t LesionType) string {
	if g, ok := r.Severity(t); ok {
		return g.Code()
	}
	return ""
}

// Validate проверяет карту целиком
func (r ClinicalRecord) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	for t, g := range r.Severities {
		if _, err := ParseLesionType(string(t)); err != nil || !g.Valid() {
			return fmt.Errorf("%w: severity %s=%d", ErrInvalidField, t, g)
		}
	}
	return nil
}

// Clone делает независимую копию карты вместе с оценками
func (r ClinicalRecord) Clone() ClinicalRecord {
	out := r
	if r.Severities != nil {
		out.Severities = make(map[LesionType]SeverityGrade, len(r.Severities))
		for t, g := range r.Severities {
			out.Severities[t] = g
		}
	}
	return out
}
