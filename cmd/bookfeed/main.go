// Command bookfeed drives a single order book from a line-oriented feed
// on stdin and reports throughput on EOF, mirroring pybook.py's main()
// throughput report.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lhoste/lobcore/internal/feed"
	"github.com/lhoste/lobcore/internal/orderbook"
)

func main() {
	var symbol string

	cmd := &cobra.Command{
		Use:   "bookfeed",
		Short: "Replay a line-oriented add/reduce feed against a single order book",
		RunE: func(cmd *cobra.Command, args []string) error {
			book := orderbook.NewBook(symbol)

			start := time.Now()
			count, err := feed.Apply(os.Stdin, book)
			elapsed := time.Since(start)
			if err != nil {
				return fmt.Errorf("after %d transactions: %w", count, err)
			}

			rate := 0
			if elapsed.Seconds() > 0 {
				rate = int(float64(count) / elapsed.Seconds())
			}
			fmt.Printf("Processed %d transactions in %.2f seconds, for an average of %d transactions/second\n",
				count, elapsed.Seconds(), rate)
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "FEED", "symbol to apply the feed against")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
