package diff

import (
	"context"
	"os"
	"testing"

	"github.com/projecteru2/core/log"
	coretypes "github.com/projecteru2/core/types"
)

func TestMain(m *testing.M) {
	_ = log.SetupLog(context.Background(), coretypes.ServerLogConfig{Level: "error"}, "")
	os.Exit(m.Run())
}
