package camunda

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"artifact-compiler/internal/common/errors"
)

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind errors.ErrorKind
		retried  bool
	}{
		{
			name:     "deadline",
			err:      stderrors.New("rpc error: code = DeadlineExceeded desc = context deadline exceeded"),
			wantKind: errors.KindTimeout,
			retried:  true,
		},
		{
			name:     "gateway down",
			err:      stderrors.New("rpc error: code = Unavailable desc = connection refused"),
			wantKind: errors.KindServerError,
			retried:  true,
		},
		{
			name:     "permission",
			err:      stderrors.New("rpc error: code = PermissionDenied desc = unauthorized"),
			wantKind: errors.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapZeebeError(tt.err)

			ce, ok := errors.AsCompilerError(got)
			assert.True(t, ok)
			assert.Equal(t, tt.wantKind, ce.Kind)
			assert.Equal(t, tt.retried, errors.Classify(ce).Retries())
			assert.ErrorIs(t, got, tt.err)
		})
	}
}
