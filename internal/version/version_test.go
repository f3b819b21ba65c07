package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetUsesLinkedValues(t *testing.T) {
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })

	Version, GitCommit, BuildTime = "v1.4.0", "abc1234", "2026-01-02"
	info := Get()
	assert.Equal(t, Info{Version: "v1.4.0", GitCommit: "abc1234", BuildTime: "2026-01-02"}, info)
	assert.Equal(t, "prbot v1.4.0 (commit abc1234, built 2026-01-02)", info.String())
}

func TestGetDefaults(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, GitCommit, info.GitCommit)
}
