package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"report not found", errors.ErrCodeReportNotFound, "report 42 not found"},
		{"unsupported mime", errors.ErrCodeUnsupportedMime, "text/plain is not supported"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
			assert.NotEmpty(t, ae.Stack)
		})
	}
}

func TestWrap_NilErrReturnsNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "msg"))
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	root := stderrors.New("connection refused")
	wrapped := errors.Wrap(root, errors.ErrCodeDatabaseError, "failed to insert report")

	require.NotNil(t, wrapped)
	assert.True(t, stderrors.Is(wrapped, root))
	assert.Equal(t, root, wrapped.Unwrap())
}

func TestWrap_PreservesOriginalCodeWhenCodeUnknown(t *testing.T) {
	inner := errors.New(errors.ErrCodeLockHeld, "lock held")
	outer := errors.Wrap(inner, errors.CodeUnknown, "adding context")
	assert.Equal(t, errors.ErrCodeLockHeld, outer.Code)
}

func TestWrap_OverridesCodeWhenExplicit(t *testing.T) {
	inner := errors.New(errors.ErrCodeLockHeld, "lock held")
	outer := errors.Wrap(inner, errors.ErrCodeStageFailed, "stage failed")
	assert.Equal(t, errors.ErrCodeStageFailed, outer.Code)
	assert.True(t, errors.IsCode(outer, errors.ErrCodeLockHeld))
}

func TestError_Format(t *testing.T) {
	ae := errors.New(errors.ErrCodeUnsupportedMime, "unsupported mime type")
	assert.Equal(t, "[INTAKE_001] unsupported mime type", ae.Error())

	withDetail := ae.WithDetail("text/plain")
	assert.Equal(t, "[INTAKE_001] unsupported mime type: text/plain", withDetail.Error())

	withCause := errors.Wrap(fmt.Errorf("boom"), errors.ErrCodeDatabaseError, "query failed")
	assert.Equal(t, "[COMMON_012] query failed: boom", withCause.Error())
}

func TestWithDetail_DoesNotMutateOriginal(t *testing.T) {
	ae := errors.New(errors.CodeInternal, "msg")
	clone := ae.WithDetail("extra")
	assert.Empty(t, ae.Detail)
	assert.Equal(t, "extra", clone.Detail)

	var nilErr *errors.AppError
	assert.Nil(t, nilErr.WithDetail("x"))
	assert.Nil(t, nilErr.WithCause(fmt.Errorf("x")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(fmt.Errorf("plain")))
	nested := fmt.Errorf("outer: %w", errors.New(errors.ErrCodeJobNotFound, "missing"))
	assert.Equal(t, errors.ErrCodeJobNotFound, errors.GetCode(nested))
}

func TestIsNotFound(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"generic", errors.NotFound("not found"), true},
		{"report", errors.New(errors.ErrCodeReportNotFound, "report not found"), true},
		{"medication", errors.New(errors.ErrCodeMedicationNotFound, "medication not found"), true},
		{"job", errors.New(errors.ErrCodeJobNotFound, "job not found"), true},
		{"wrapped", errors.Wrap(errors.NotFound("x"), errors.CodeInternal, "wrapped"), true},
		{"internal", errors.Internal("internal"), false},
		{"plain", fmt.Errorf("plain"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, errors.IsNotFound(tc.err))
		})
	}
}

func TestIsConflict(t *testing.T) {
	assert.True(t, errors.IsConflict(errors.New(errors.ErrCodeReportDuplicate, "dup")))
	assert.True(t, errors.IsConflict(errors.Conflict("dup")))
	assert.False(t, errors.IsConflict(errors.Internal("x")))
}

func TestStdlib_ErrorsAs_ExtractsAppError(t *testing.T) {
	err := fmt.Errorf("layer: %w", errors.InvalidParam("bad"))
	var ae *errors.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, errors.CodeInvalidParam, ae.Code)
}
