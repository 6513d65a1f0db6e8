package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobValidate(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		job     Job
		wantErr error
	}{
		{
			name: "valid_pending_job",
			job:  Job{ID: 1, SubjectID: 42, Status: JobStatusPending, Source: SourceAuto, EnqueuedAt: now},
		},
		{
			name:    "zero_subject",
			job:     Job{ID: 1, SubjectID: 0, Status: JobStatusPending, Source: SourceAuto},
			wantErr: ErrJobSubjectInvalid,
		},
		{
			name:    "negative_subject",
			job:     Job{ID: 1, SubjectID: -3, Status: JobStatusPending, Source: SourceAuto},
			wantErr: ErrJobSubjectInvalid,
		},
		{
			name:    "empty_source",
			job:     Job{ID: 1, SubjectID: 42, Status: JobStatusPending},
			wantErr: ErrJobSourceEmpty,
		},
		{
			name:    "unknown_status",
			job:     Job{ID: 1, SubjectID: 42, Status: JobStatus("paused"), Source: SourceBulk},
			wantErr: ErrJobStatusInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJobActiveTerminal(t *testing.T) {
	assert.True(t, (&Job{Status: JobStatusPending}).Active())
	assert.True(t, (&Job{Status: JobStatusProcessing}).Active())
	assert.False(t, (&Job{Status: JobStatusCompleted}).Active())
	assert.False(t, (&Job{Status: JobStatusFailed}).Active())

	assert.True(t, (&Job{Status: JobStatusCompleted}).Terminal())
	assert.True(t, (&Job{Status: JobStatusFailed}).Terminal())
	assert.False(t, (&Job{Status: JobStatusPending}).Terminal())
}

func TestTruncateError(t *testing.T) {
	t.Run("short_message_unchanged", func(t *testing.T) {
		assert.Equal(t, "timeout", TruncateError("timeout"))
	})

	t.Run("long_message_bounded", func(t *testing.T) {
		long := strings.Repeat("x", 2*MaxErrorLength)
		got := TruncateError(long)
		assert.LessOrEqual(t, len(got), MaxErrorLength)
		assert.True(t, strings.HasSuffix(got, "…"))
	})

	t.Run("does_not_split_runes", func(t *testing.T) {
		long := strings.Repeat("é", MaxErrorLength) // 2 bytes per rune
		got := TruncateError(long)
		assert.LessOrEqual(t, len(got), MaxErrorLength)
		assert.True(t, strings.HasSuffix(got, "…"))
		for _, r := range got {
			assert.NotEqual(t, '�', r, "truncation must not produce invalid UTF-8")
		}
	})
}
