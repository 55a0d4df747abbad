package entity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStageErrorsUnwrapToCause(t *testing.T) {
	cause := &TransportError{Op: "predict", Err: context.DeadlineExceeded}
	err := fmt.Errorf("submit: %w", &InferenceError{Err: cause})

	var transport *TransportError
	require.True(t, errors.As(err, &transport))
	require.Equal(t, "predict", transport.Op)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var inference *InferenceError
	require.True(t, errors.As(err, &inference))
}

func TestTransportError_Message(t *testing.T) {
	require.Equal(t, "report: status 500: boom", (&TransportError{Op: "report", StatusCode: 500, Message: "boom"}).Error())
	require.Equal(t, "report: status 502", (&TransportError{Op: "report", StatusCode: 502}).Error())
}

func TestPreconditionSentinels(t *testing.T) {
	for _, err := range []error{ErrNoInference, ErrMissingCaseID, ErrMissingOpinion, ErrWorkflowComplete, ErrEmptyImage} {
		require.ErrorIs(t, err, ErrPrecondition)
	}
	require.NotErrorIs(t, ErrStageBusy, ErrPrecondition)
}

func TestMalformedResponseError(t *testing.T) {
	err := &OpinionError{Err: &MalformedResponseError{Op: "generate_diagnosis", Field: "ai_response", Err: errors.New("required")}}
	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "ai_response", malformed.Field)
	require.Contains(t, err.Error(), "field ai_response")
}
