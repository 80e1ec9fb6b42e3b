package others

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fractyl/fractyl/cmd/core"
	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/types"
	"github.com/fractyl/fractyl/version"
)

type Handler struct {
	core.BaseHandler
}

func (h Handler) Init(cmd *cobra.Command, _ []string) error {
	if _, _, err := h.BaseHandler.Init(cmd); err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	r, err := repo.Init(cwd)
	if err != nil {
		if errors.Is(err, types.ErrRepoExists) {
			return fmt.Errorf("already a fractyl repository: %s", cwd)
		}
		return err
	}
	fmt.Printf("Initialized empty fractyl repository in %s\n", r.Dir)
	return nil
}

func (h Handler) Version(_ *cobra.Command, _ []string) error {
	fmt.Printf("fractyl %s (revision %s, built %s)\n",
		version.Version, version.GitRevision, version.BuildTime)
	return nil
}
