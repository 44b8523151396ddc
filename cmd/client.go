package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sajjad-MoBe/lsmstore/client"
)

var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Store a value on a running node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().Put(args[0], []byte(args[1]))
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a value from a running node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, found, err := newClient().Get(args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("key not found: %s", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(value))
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Flush the memtable of a running node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newClient().Flush()
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine statistics of a running node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newClient().Stats()
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	},
}

func init() {
	for _, c := range []*cobra.Command{putCmd, getCmd, flushCmd, statsCmd} {
		c.Flags().StringVarP(&serverAddress, "server", "s", "localhost:8080", "Address of the node's HTTP API")
	}
}

func newClient() *client.Client {
	return client.NewClient(serverAddress, client.DefaultRetryConfig())
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
