package standard

import (
	"github.com/spf13/cobra"

	"github.com/ccheshirecat/volterm/internal/cli/client"
)

func clientFromCmd(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := configFromCmd(cmd)
	if err != nil {
		return nil, err
	}
	return client.New(cfg.APIBase, client.WithTimeout(cfg.RequestTimeout))
}
