package entity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClinicalRecord_SetField(t *testing.T) {
	var r ClinicalRecord

	require.NoError(t, r.SetField(FieldPatientName, "  张三 "))
	require.Equal(t, "张三", r.Name)

	require.NoError(t, r.SetField(FieldAge, "57"))
	require.Equal(t, "57", r.Field(FieldAge))

	require.NoError(t, r.SetField(FieldContact, "+86 138-0013-8000"))
	require.NoError(t, r.SetField(FieldContact, "doctor@example.com"))
	require.NoError(t, r.SetField(FieldTreatmentPlan, "3 个月后复查"))
	require.Equal(t, "3 个月后复查", r.TreatmentPlan)
}

func TestClinicalRecord_SetFieldRejectsInvalid(t *testing.T) {
	var r ClinicalRecord
	require.NoError(t, r.SetField(FieldAge, "40"))

	cases := []struct {
		field FieldName
		value string
	}{
		{FieldAge, "abc"},
		{FieldAge, "151"},
		{FieldAge, "-1"},
		{FieldContact, "call me"},
		{FieldContact, "12"},
		{FieldPatientName, strings.Repeat("я", 65)},
		{FieldName("blood_type"), "A"},
	}
	for _, tc := range cases {
		err := r.SetField(tc.field, tc.value)
		require.ErrorIs(t, err, ErrInvalidField, "%s=%q", tc.field, tc.value)
	}
	require.Equal(t, "40", r.Age, "rejected value must not overwrite the field")
}

func TestClinicalRecord_EmptyValuesAllowed(t *testing.T) {
	var r ClinicalRecord
	require.NoError(t, r.SetField(FieldAge, "40"))
	require.NoError(t, r.SetField(FieldAge, ""))
	require.Empty(t, r.Age)
	require.NoError(t, r.Validate())
}

func TestClinicalRecord_Severities(t *testing.T) {
	var r ClinicalRecord

	_, ok := r.Severity(LesionMA)
	require.False(t, ok)
	require.Equal(t, "", r.SeverityCode(LesionMA))

	require.NoError(t, r.SetSeverity(LesionMA, SeverityModerateNPDR))
	g, ok := r.Severity(LesionMA)
	require.True(t, ok)
	require.Equal(t, SeverityModerateNPDR, g)
	require.Equal(t, "2", r.SeverityCode(LesionMA))

	require.ErrorIs(t, r.SetSeverity(LesionMA, SeverityGrade(5)), ErrInvalidField)
	require.ErrorIs(t, r.SetSeverity(LesionType("XX"), SeverityPDR), ErrInvalidField)

	r.ClearSeverity(LesionMA)
	_, ok = r.Severity(LesionMA)
	require.False(t, ok)
}

func TestClinicalRecord_CloneIsIndependent(t *testing.T) {
	var r ClinicalRecord
	require.NoError(t, r.SetField(FieldPatientName, "Li"))
	require.NoError(t, r.SetSeverity(LesionHE, SeverityMildNPDR))

	c := r.Clone()
	require.NoError(t, r.SetSeverity(LesionHE, SeverityPDR))
	require.NoError(t, r.SetField(FieldPatientName, "Wang"))

	g, _ := c.Severity(LesionHE)
	require.Equal(t, SeverityMildNPDR, g)
	require.Equal(t, "Li", c.Name)
}

func TestParseFieldName(t *testing.T) {
	f, ok := ParseFieldName(" Chief_Complaint ")
	require.True(t, ok)
	require.Equal(t, FieldChiefComplaint, f)

	_, ok = ParseFieldName("unknown")
	require.False(t, ok)
}
