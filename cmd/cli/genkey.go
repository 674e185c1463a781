package cli

import (
	"fmt"

	"github.com/tidegate/tidegate/internal/secrets"

	"github.com/spf13/cobra"
)

func NewGenerateKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-key",
		Short: "Generate a credential encryption key",
		Long:  `Generate a fresh base64-encoded key for CREDENTIAL_KEY. Rotating the key invalidates every stored credential.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secrets.GenerateKey()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}

			fmt.Println(key)
			return nil
		},
	}

	return cmd
}
