package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	quoteAddr    string
	quoteReverse bool
)

// quoteCmd asks a running daemon for the best next hop between two addresses.
var quoteCmd = &cobra.Command{
	Use:   "quote <source-address> <destination-address> <amount>",
	Short: "Query a running daemon for the best next hop",
	Long: `Ask a running ilrouterd for the best next hop and the delivered amount
for a fixed source amount, or with --reverse the required source amount for a
fixed destination amount.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		method := "quote_source_amount"
		if quoteReverse {
			method = "quote_destination_amount"
		}
		return callDaemon(quoteAddr, method, map[string]string{
			"source_address":      args[0],
			"destination_address": args[1],
			"amount":              args[2],
		})
	},
}

// tableCmd dumps the combined routing table of a running daemon.
var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Dump the combined routing table of a running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return callDaemon(quoteAddr, "route_table", nil)
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(tableCmd)

	for _, cmd := range []*cobra.Command{quoteCmd, tableCmd} {
		cmd.Flags().StringVar(&quoteAddr, "addr", "127.0.0.1:7071", "daemon address (host:port)")
	}
	quoteCmd.Flags().BoolVar(&quoteReverse, "reverse", false, "quote a fixed destination amount")
}

// callDaemon performs one JSON-RPC call and pretty-prints the result.
func callDaemon(addr, method string, params interface{}) error {
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post("http://"+addr+"/", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpc error [%d]: %s", envelope.Error.Code, envelope.Error.Message)
	}

	if string(envelope.Result) == "null" || len(envelope.Result) == 0 {
		fmt.Println("no route")
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, envelope.Result, "", "  "); err != nil {
		fmt.Println(string(envelope.Result))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
