// Package main provides a CLI client for the order matching engine's
// HTTP gateway.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var serverURL string

	root := &cobra.Command{
		Use:   "lobctl",
		Short: "Order matching engine client",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "gateway URL")

	root.AddCommand(
		newSubmitCmd(&serverURL),
		newCancelCmd(&serverURL),
		newBookCmd(&serverURL),
		newAccountCmd(&serverURL),
		newStatsCmd(&serverURL),
		newDemoCmd(&serverURL),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSubmitCmd(serverURL *string) *cobra.Command {
	var symbol, side, price, account, uid string
	var qty int64

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new limit order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitOrder(*serverURL, symbol, side, price, qty, account, uid)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "AAPL", "stock symbol")
	cmd.Flags().StringVar(&side, "side", "buy", "order side (buy/sell)")
	cmd.Flags().StringVar(&price, "price", "150.00", "limit price")
	cmd.Flags().Int64Var(&qty, "qty", 100, "order quantity")
	cmd.Flags().StringVar(&account, "account", "TRADER1", "account id")
	cmd.Flags().StringVar(&uid, "uid", "", "order uid (generated server-side if omitted)")
	return cmd
}

func newCancelCmd(serverURL *string) *cobra.Command {
	var symbol, uid string
	var shares int64

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a resting order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cancelOrder(*serverURL, symbol, uid, shares)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "stock symbol")
	cmd.Flags().StringVar(&uid, "uid", "", "order uid to cancel")
	cmd.Flags().Int64Var(&shares, "shares", 0, "shares to reduce by (0 cancels the whole order)")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("uid")
	return cmd
}

func newBookCmd(serverURL *string) *cobra.Command {
	var symbol string
	var levels int

	cmd := &cobra.Command{
		Use:   "book",
		Short: "View an order book",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getBook(*serverURL, symbol, levels)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "AAPL", "stock symbol")
	cmd.Flags().IntVar(&levels, "levels", 5, "number of levels to show")
	return cmd
}

func newAccountCmd(serverURL *string) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "account",
		Short: "View account details",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAccount(*serverURL, id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "TRADER1", "account id")
	return cmd
}

func newStatsCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "View system statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getStats(*serverURL)
		},
	}
}

func newDemoCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted demonstration against a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(*serverURL)
		},
	}
}

func submitOrder(serverURL, symbol, side, price string, qty int64, account, uid string) error {
	req := map[string]interface{}{
		"symbol":     symbol,
		"side":       side,
		"price":      price,
		"quantity":   qty,
		"account_id": account,
	}
	if uid != "" {
		req["uid"] = uid
	}

	resp, err := postJSON(serverURL+"/order", req)
	if err != nil {
		return err
	}

	fmt.Println("Order Response:")
	printJSON(resp)
	return nil
}

func cancelOrder(serverURL, symbol, uid string, shares int64) error {
	url := fmt.Sprintf("%s/cancel?symbol=%s&uid=%s", serverURL, symbol, uid)
	if shares > 0 {
		url += fmt.Sprintf("&shares=%d", shares)
	}

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Println("Cancel Response:")
	printJSONBytes(body)
	return nil
}

func getBook(serverURL, symbol string, levels int) error {
	url := fmt.Sprintf("%s/book?symbol=%s&levels=%d", serverURL, symbol, levels)

	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var data map[string]interface{}
	_ = json.Unmarshal(body, &data)

	fmt.Printf("\n=== %s Order Book ===\n\n", symbol)

	if asks, ok := data["asks"].([]interface{}); ok {
		fmt.Println("ASKS:")
		for i := len(asks) - 1; i >= 0; i-- {
			if ask, ok := asks[i].(map[string]interface{}); ok {
				fmt.Printf("  %s: %.0f shares (%v orders)\n", ask["price"], ask["quantity"], ask["orders"])
			}
		}
	}

	fmt.Printf("--- Spread: %v ---\n", data["spread"])

	if bids, ok := data["bids"].([]interface{}); ok {
		fmt.Println("BIDS:")
		for _, bid := range bids {
			if b, ok := bid.(map[string]interface{}); ok {
				fmt.Printf("  %s: %.0f shares (%v orders)\n", b["price"], b["quantity"], b["orders"])
			}
		}
	}

	fmt.Printf("\nMid Price: %v\n", data["mid"])
	return nil
}

func getAccount(serverURL, accountID string) error {
	resp, err := http.Get(fmt.Sprintf("%s/account?id=%s", serverURL, accountID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Println("Account Details:")
	printJSONBytes(body)
	return nil
}

func getStats(serverURL string) error {
	resp, err := http.Get(serverURL + "/stats")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Println("System Statistics:")
	printJSONBytes(body)
	return nil
}

func runDemo(serverURL string) error {
	fmt.Println("=== Order Matching Engine Demo ===")

	fmt.Println("1. Initial order book:")
	if err := getBook(serverURL, "AAPL", 5); err != nil {
		return err
	}

	fmt.Println("\n2. Market maker (MM1) posts buy orders:")
	for _, o := range []struct {
		price string
		qty   int64
	}{{"149.00", 100}, {"148.50", 200}, {"148.00", 300}} {
		if err := submitOrder(serverURL, "AAPL", "buy", o.price, o.qty, "MM1", ""); err != nil {
			return err
		}
	}

	fmt.Println("\n3. Market maker (MM1) posts sell orders:")
	for _, o := range []struct {
		price string
		qty   int64
	}{{"151.00", 100}, {"151.50", 200}, {"152.00", 300}} {
		if err := submitOrder(serverURL, "AAPL", "sell", o.price, o.qty, "MM1", ""); err != nil {
			return err
		}
	}

	fmt.Println("\n4. Order book with liquidity:")
	if err := getBook(serverURL, "AAPL", 5); err != nil {
		return err
	}

	fmt.Println("\n5. Trader (TRADER1) crosses the spread, buying 150 shares at 151.00:")
	if err := submitOrder(serverURL, "AAPL", "buy", "151.00", 150, "TRADER1", ""); err != nil {
		return err
	}

	fmt.Println("\n6. Order book after the trade:")
	if err := getBook(serverURL, "AAPL", 5); err != nil {
		return err
	}

	fmt.Println("\n7. System statistics:")
	if err := getStats(serverURL); err != nil {
		return err
	}

	fmt.Println("\n=== Demo Complete ===")
	return nil
}

func postJSON(url string, data interface{}) (map[string]interface{}, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	err = json.Unmarshal(body, &result)
	return result, err
}

func printJSON(data interface{}) {
	jsonBytes, _ := json.MarshalIndent(data, "", "  ")
	fmt.Println(string(jsonBytes))
}

func printJSONBytes(data []byte) {
	var obj interface{}
	_ = json.Unmarshal(data, &obj)
	printJSON(obj)
}
