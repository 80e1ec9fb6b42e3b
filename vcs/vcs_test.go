package vcs

import (
	"context"
	"os"
	"testing"

	"github.com/projecteru2/core/log"
	coretypes "github.com/projecteru2/core/types"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	_ = log.SetupLog(context.Background(), coretypes.ServerLogConfig{Level: "error"}, "")
	os.Exit(m.Run())
}

func TestDetectOutsideGit(t *testing.T) {
	ctx := Context{}
	got := Detect(context.Background(), t.TempDir())
	assert.Equal(t, ctx, got, "no git repository yields the zero context")
}
