package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agoralabs/agora/internal/ui"
)

var (
	registerAllocate bool
	registerRole     string
	registerMeta     []string
)

var registerCmd = &cobra.Command{
	Use:   "register <id>",
	Short: "Register a participant and print its token",
	Long: `Register a participant with the gateway and print the issued bearer
token. The token authenticates directory and journal queries; export it
as AGORA_TOKEN for the other commands.

With --allocate, <id> is treated as a base and the gateway registers
the smallest unused <id>-N instead of the exact id.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runRegister(cmd, args[0])
	},
}

func init() {
	registerCmd.Flags().BoolVar(&registerAllocate, "allocate", false, "Treat <id> as a base and allocate <id>-N")
	registerCmd.Flags().StringVar(&registerRole, "role", "", "Role recorded in the directory metadata")
	registerCmd.Flags().StringArrayVar(&registerMeta, "meta", nil, "Metadata entry key=value (repeatable)")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, id string) {
	metadata, err := parseMetadata(registerMeta)
	if err != nil {
		fatal(err, "bad_metadata")
	}
	if registerRole != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["role"] = registerRole
	}

	c, err := newGatewayClient(false)
	if err != nil {
		fatal(err, "")
	}
	defer c.Close()

	row, err := c.Agents().Register(cmd.Context(), id, metadata, registerAllocate)
	if err != nil {
		fatal(err, "register_failed")
	}
	token := c.Token()

	if jsonOutput {
		outputJSON(map[string]interface{}{
			"id":    row.ID,
			"token": token,
		})
		return
	}

	fmt.Printf("%s\n", ui.RenderPass(fmt.Sprintf("%s Registered %s", ui.IconPass, row.ID)))
	fmt.Printf("Token: %s\n", token)
	fmt.Println()
	fmt.Println("Export it for the query commands:")
	fmt.Printf("  export AGORA_TOKEN=%s\n", token)
}

// parseMetadata turns repeated key=value flags into a metadata map.
func parseMetadata(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	md := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("metadata %q is not key=value", kv)
		}
		md[k] = v
	}
	return md, nil
}
