package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePhaseType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    PhaseType
		wantErr bool
	}{
		{name: "blog phase", input: "IDEATION", want: PhaseIdeation},
		{name: "longform phase", input: "EDITORIAL", want: PhaseEditorial},
		{name: "unknown phase", input: "PUBLISH", wantErr: true},
		{name: "lowercase rejected", input: "ideation", wantErr: true},
		{name: "empty rejected", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePhaseType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPhaseStatusTerminal(t *testing.T) {
	assert.False(t, PhasePending.Terminal())
	assert.False(t, PhaseActive.Terminal())
	assert.True(t, PhaseCompleted.Terminal())
	assert.True(t, PhaseSkipped.Terminal())
}

func TestAgentRequestValidate(t *testing.T) {
	valid := AgentRequest{OwnerID: "owner-1", ProjectID: "proj-1", Content: "draft an outline"}
	require.NoError(t, valid.Validate())

	missingOwner := valid
	missingOwner.OwnerID = ""
	assert.Error(t, missingOwner.Validate())

	missingProject := valid
	missingProject.ProjectID = ""
	assert.Error(t, missingProject.Validate())

	missingContent := valid
	missingContent.Content = ""
	assert.Error(t, missingContent.Validate())
}

func TestEnvelope(t *testing.T) {
	ok := OK(map[string]string{"id": "p1"})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)

	fail := Fail(CodeInvalidTransition, "cannot move from IDEATION to FACTCHECK")
	assert.False(t, fail.Success)
	require.NotNil(t, fail.Error)
	assert.Equal(t, CodeInvalidTransition, fail.Error.Code)
}
