// Package tests provides end-to-end integration tests that demonstrate
// the system design concepts behind the order matching engine.
//
// Run with: go test -v ./tests/...
package tests

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lhoste/lobcore/internal/events"
	"github.com/lhoste/lobcore/internal/marketdata"
	"github.com/lhoste/lobcore/internal/matching"
	"github.com/lhoste/lobcore/internal/orders"
	"github.com/lhoste/lobcore/internal/risk"
	"github.com/lhoste/lobcore/internal/settlement"
)

func repeat(s string, n int) string {
	result := ""
	for i := 0; i < n; i++ {
		result += s
	}
	return result
}

// ============================================================================
// TEST 1: SINGLE-THREADED CORE (LMAX Pattern)
// ============================================================================

func TestSingleThreadedCore_Determinism(t *testing.T) {
	fmt.Println()
	fmt.Println(repeat("=", 70))
	fmt.Println("TEST: Single-Threaded Core (LMAX Pattern)")
	fmt.Println(repeat("=", 70))

	fmt.Println(`
CONCEPT: All orders are processed by a single thread in sequence.
         This guarantees deterministic output for the same input.

WHAT TO EXPECT:
- We'll process the same order sequence twice
- Both runs should produce IDENTICAL results
- This proves the engine is deterministic`)

	orderSequence := []struct {
		uid      string
		side     orders.Side
		price    int64
		quantity int64
	}{
		{"S1", orders.SideSell, 15100, 100},
		{"S2", orders.SideSell, 15050, 50},
		{"B1", orders.SideBuy, 15000, 200},
		{"B2", orders.SideBuy, 15050, 75},
	}

	runSequence := func() []string {
		engine := matching.NewEngine()
		engine.AddSymbol("AAPL")

		var results []string
		for i, o := range orderSequence {
			result := engine.SubmitOrder("AAPL", o.uid, o.side, o.price, o.quantity, int64(i+1), fmt.Sprintf("TRADER%d", i), "")
			results = append(results, fmt.Sprintf("Order %d: %s %d@%s -> Fills:%d, Resting:%d",
				i+1, o.side, o.quantity, orders.FormatPrice(o.price), len(result.Fills), result.RestingQty))
		}
		return results
	}

	fmt.Println("\nRUN 1:")
	run1 := runSequence()
	for _, r := range run1 {
		fmt.Println("  ", r)
	}

	fmt.Println("\nRUN 2 (identical input):")
	run2 := runSequence()
	for _, r := range run2 {
		fmt.Println("  ", r)
	}

	fmt.Println("\nVERIFICATION:")
	allMatch := true
	for i := range run1 {
		if run1[i] != run2[i] {
			allMatch = false
			t.Errorf("mismatch at order %d: %q vs %q", i+1, run1[i], run2[i])
		}
	}
	if allMatch {
		fmt.Println("  [PASS] Both runs produced IDENTICAL results")
	}
}

// ============================================================================
// TEST 2: PRICE-TIME PRIORITY (FIFO)
// ============================================================================

func TestPriceTimePriority(t *testing.T) {
	fmt.Println()
	fmt.Println(repeat("=", 70))
	fmt.Println("TEST: Price-Time Priority (FIFO Matching)")
	fmt.Println(repeat("=", 70))

	fmt.Println(`
SCENARIO:
- Three sellers post orders at $150.00 (S1, S2, S3 in that order)
- One seller posts at $150.50 (S4)
- A buyer crosses the spread for 250 shares at $150.00

EXPECTED:
- Buyer matches S1 first (best price + earliest time), then S2, then S3
- S4 at $150.50 is NOT touched`)

	engine := matching.NewEngine()
	engine.AddSymbol("AAPL")

	sellers := []struct {
		uid   string
		price int64
		qty   int64
	}{
		{"S1", 15000, 100},
		{"S2", 15000, 100},
		{"S3", 15000, 100},
		{"S4", 15050, 100},
	}

	fmt.Println("\nSTEP 1: Sellers post their orders")
	for i, s := range sellers {
		engine.SubmitOrder("AAPL", s.uid, orders.SideSell, s.price, s.qty, int64(i+1), s.uid, "")
		fmt.Printf("  %s posts SELL %d @ %s\n", s.uid, s.qty, orders.FormatPrice(s.price))
	}

	book := engine.Book("AAPL")
	fmt.Println("\nORDER BOOK STATE:")
	fmt.Println("  ASKS (Sell Orders):")
	for _, level := range book.AskDepth(5) {
		fmt.Printf("    %s: %d shares\n", orders.FormatPrice(level.Price), level.TotalVolume)
	}

	fmt.Println("\nSTEP 2: Buyer crosses the spread for 250 shares at $150.00")
	result := engine.SubmitOrder("AAPL", "BUYER", orders.SideBuy, 15000, 250, 100, "BUYER", "")

	fmt.Println("\nSTEP 3: Matching results (observe FIFO order)")
	for i, fill := range result.Fills {
		fmt.Printf("  Fill %d: %d shares @ %s from %s\n", i+1, fill.Quantity, orders.FormatPrice(fill.Price), fill.MakerOrderUID)
	}

	fmt.Println("\nVERIFICATION:")
	expectedOrder := []string{"S1", "S2", "S3"}
	allCorrect := true
	for i, fill := range result.Fills {
		if i < len(expectedOrder) && fill.MakerOrderUID != expectedOrder[i] {
			allCorrect = false
			t.Errorf("expected fill from %s, got %s", expectedOrder[i], fill.MakerOrderUID)
		}
	}
	if allCorrect && len(result.Fills) == 3 {
		fmt.Println("  [PASS] Fills occurred in FIFO order: S1 -> S2 -> S3")
	}
}

// ============================================================================
// TEST 3: EVENT SOURCING
// ============================================================================

func TestEventSourcing_ReplayCapability(t *testing.T) {
	fmt.Println()
	fmt.Println(repeat("=", 70))
	fmt.Println("TEST: Event Sourcing (Replay Capability)")
	fmt.Println(repeat("=", 70))

	tmpFile, err := os.CreateTemp("", "event_log_*.dat")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	fmt.Println("\nSTEP 1: Process orders and log events")

	eventLog, err := events.NewEventLog(events.EventLogConfig{Path: tmpFile.Name(), SyncMode: true})
	if err != nil {
		t.Fatal(err)
	}

	engine := matching.NewEngine()
	engine.AddSymbol("AAPL")

	result1 := engine.SubmitOrder("AAPL", "SELLER1", orders.SideSell, 15000, 100, 1, "SELLER", "")
	seqNum, _ := eventLog.Append(&events.NewOrderEvent{
		Event:  events.Event{Timestamp: orders.Now(), Type: events.EventTypeNewOrder},
		UID:    result1.Order.UID, Symbol: "AAPL", Side: orders.SideSell, Price: 15000, Shares: 100,
	})
	fmt.Printf("  Event %d: NEW_ORDER SELL 100 @ $150.00\n", seqNum)

	result2 := engine.SubmitOrder("AAPL", "BUYER1", orders.SideBuy, 15000, 60, 2, "BUYER", "")
	seqNum, _ = eventLog.Append(&events.NewOrderEvent{
		Event:  events.Event{Timestamp: orders.Now(), Type: events.EventTypeNewOrder},
		UID:    result2.Order.UID, Symbol: "AAPL", Side: orders.SideBuy, Price: 15000, Shares: 60,
	})
	fmt.Printf("  Event %d: NEW_ORDER BUY 60 @ $150.00\n", seqNum)

	for _, fill := range result2.Fills {
		seqNum, _ = eventLog.Append(&events.FillEvent{
			Event:         events.Event{Timestamp: orders.Now(), Type: events.EventTypeFill},
			TradeID:       fill.TradeID,
			Symbol:        fill.Symbol,
			Price:         fill.Price,
			Quantity:      fill.Quantity,
			MakerOrderUID: fill.MakerOrderUID,
			TakerOrderUID: fill.TakerOrderUID,
		})
		fmt.Printf("  Event %d: FILL %d shares @ %s\n", seqNum, fill.Quantity, orders.FormatPrice(fill.Price))
	}

	lastSeq := eventLog.GetLastSequence()
	eventLog.Close()

	fmt.Println("\nSTEP 2: System crashes (state lost)")
	fmt.Println("\nSTEP 3: Replay events from log")

	replayLog, err := events.NewEventLog(events.EventLogConfig{Path: tmpFile.Name()})
	if err != nil {
		t.Fatal(err)
	}
	defer replayLog.Close()

	replayCount := 0
	err = replayLog.Replay(func(seq uint64, event interface{}) error {
		replayCount++
		switch e := event.(type) {
		case *events.NewOrderEvent:
			fmt.Printf("  Replaying %d: NEW_ORDER %s\n", seq, e.Side)
		case *events.FillEvent:
			fmt.Printf("  Replaying %d: FILL %d @ %s\n", seq, e.Quantity, orders.FormatPrice(e.Price))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	fmt.Println("\nVERIFICATION:")
	if uint64(replayCount) == lastSeq {
		fmt.Printf("  [PASS] Replayed all %d events\n", replayCount)
	} else {
		t.Errorf("expected %d events, replayed %d", lastSeq, replayCount)
	}
}

// ============================================================================
// TEST 4: FIXED-POINT ARITHMETIC
// ============================================================================

func TestFixedPointArithmetic(t *testing.T) {
	fmt.Println()
	fmt.Println(repeat("=", 70))
	fmt.Println("TEST: Fixed-Point Arithmetic (No Float Errors)")
	fmt.Println(repeat("=", 70))

	floatResult := 0.1 + 0.2
	fmt.Printf("\n  0.1 + 0.2 = %.17f\n", floatResult)
	fmt.Printf("  Equal to 0.3? %v  <-- WRONG!\n", floatResult == 0.3)

	intResult := int64(10) + int64(20)
	fmt.Printf("\n  10 + 20 = %d cents\n", intResult)
	fmt.Printf("  Equal to 30? %v  <-- CORRECT!\n", intResult == 30)

	engine := matching.NewEngine()
	engine.AddSymbol("AAPL")

	price := int64(15025) // $150.25

	fmt.Printf("\n  Seller: SELL 100 @ %s (stored as %d)\n", orders.FormatPrice(price), price)
	engine.SubmitOrder("AAPL", "SELLER", orders.SideSell, price, 100, 1, "SELLER", "")

	fmt.Printf("  Buyer:  BUY 100 @ %s (stored as %d)\n", orders.FormatPrice(price), price)
	result := engine.SubmitOrder("AAPL", "BUYER", orders.SideBuy, price, 100, 2, "BUYER", "")

	fmt.Println("\nVERIFICATION:")
	if len(result.Fills) == 1 && result.Fills[0].Price == 15025 {
		fmt.Println("  [PASS] Orders matched at EXACT price $150.25")
	} else {
		t.Error("expected match at 15025")
	}
}

// ============================================================================
// TEST 5: PRE-TRADE RISK CONTROLS
// ============================================================================

func TestPreTradeRiskControls(t *testing.T) {
	fmt.Println()
	fmt.Println(repeat("=", 70))
	fmt.Println("TEST: Pre-Trade Risk Controls")
	fmt.Println(repeat("=", 70))

	config := risk.Config{
		MaxOrderSize:     1000,
		MaxOrderValue:    5000000,
		MaxPositionSize:  5000,
		MaxDailyVolume:   100000000,
		PriceBandPercent: 0.10,
	}

	checker := risk.NewChecker(config)
	checker.SetReferencePrice("AAPL", 15000)

	testCases := []struct {
		name     string
		order    *orders.Order
		expected bool
	}{
		{
			name:     "Normal Order",
			order:    &orders.Order{Symbol: "AAPL", Side: orders.SideBuy, Price: 15000, Quantity: 100, AccountID: "T1"},
			expected: true,
		},
		{
			name:     "Size Too Large (5000 > 1000 max)",
			order:    &orders.Order{Symbol: "AAPL", Side: orders.SideBuy, Price: 15000, Quantity: 5000, AccountID: "T1"},
			expected: false,
		},
		{
			name:     "Price Outside Band ($200 vs $150 ref)",
			order:    &orders.Order{Symbol: "AAPL", Side: orders.SideBuy, Price: 20000, Quantity: 100, AccountID: "T1"},
			expected: false,
		},
	}

	allPassed := true
	for _, tc := range testCases {
		result := checker.Check(tc.order)
		correct := result.Passed == tc.expected
		if !correct {
			allPassed = false
			t.Errorf("%s: expected %v, got %v", tc.name, tc.expected, result.Passed)
		}

		status := "REJECTED"
		if result.Passed {
			status = "ACCEPTED"
		}
		fmt.Printf("\n  %s: %s\n", tc.name, status)
		if !result.Passed {
			fmt.Printf("    Reason: %s\n", result.Reason)
		}
	}

	fmt.Println("\nVERIFICATION:")
	if allPassed {
		fmt.Println("  [PASS] All risk checks working correctly")
	}
}

// ============================================================================
// TEST 6: T+2 SETTLEMENT
// ============================================================================

func TestT2Settlement(t *testing.T) {
	fmt.Println()
	fmt.Println(repeat("=", 70))
	fmt.Println("TEST: T+2 Settlement (Clearing & Netting)")
	fmt.Println(repeat("=", 70))

	clearingHouse := settlement.NewClearingHouse()

	fmt.Println("\nSTEP 1: Initial Account State")
	alice := clearingHouse.GetOrCreateAccount("ALICE", 1000000)
	bob := clearingHouse.GetOrCreateAccount("BOB", 500000)
	bob.Holdings["AAPL"] = 500

	fmt.Printf("  ALICE: Cash=%s, AAPL=%d\n", orders.FormatPrice(alice.Cash), alice.Holdings["AAPL"])
	fmt.Printf("  BOB:   Cash=%s, AAPL=%d\n", orders.FormatPrice(bob.Cash), bob.Holdings["AAPL"])

	fmt.Println("\nSTEP 2: Execute Trades")
	trades := []struct {
		buyer, seller string
		qty           int64
		price         int64
	}{
		{"ALICE", "BOB", 100, 15000},
		{"BOB", "ALICE", 60, 15100},
		{"ALICE", "BOB", 40, 14900},
	}

	for i, tr := range trades {
		fill := orders.Fill{
			TradeID: uint64(i + 1), Symbol: "AAPL",
			Price: tr.price, Quantity: tr.qty,
			MakerAccountID: tr.seller, TakerAccountID: tr.buyer,
			TakerSide: orders.SideBuy,
		}
		clearingHouse.RecordTrade(fill)
		fmt.Printf("  Trade %d: %s buys %d from %s @ %s\n", i+1, tr.buyer, tr.qty, tr.seller, orders.FormatPrice(tr.price))
	}

	fmt.Println("\nSTEP 3: Netting")
	instructions := clearingHouse.GenerateSettlementInstructions()
	fmt.Printf("\n  Generated %d settlement instruction(s)\n", len(instructions))

	stats := clearingHouse.GetSettlementStats()
	fmt.Println("\nVERIFICATION:")
	if stats["total_trades"] != len(trades) {
		t.Errorf("expected %d recorded trades, got %d", len(trades), stats["total_trades"])
	}
	fmt.Printf("  [PASS] Recorded %d trades\n", stats["total_trades"])
}

// ============================================================================
// TEST 7: MARKET DATA PUBLISHING
// ============================================================================

func TestMarketDataPublishing(t *testing.T) {
	fmt.Println()
	fmt.Println(repeat("=", 70))
	fmt.Println("TEST: Market Data Publishing (L1/L2 Pub/Sub)")
	fmt.Println(repeat("=", 70))

	publisher := marketdata.NewPublisher(100)
	defer publisher.Close()

	var receivedL1, receivedTrades int32
	var wg sync.WaitGroup

	l1Ch := publisher.SubscribeL1("AAPL")
	tradeCh := publisher.SubscribeTrades("AAPL")
	done := make(chan bool)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-l1Ch:
				atomic.AddInt32(&receivedL1, 1)
			case <-tradeCh:
				atomic.AddInt32(&receivedTrades, 1)
			case <-done:
				return
			}
		}
	}()

	engine := matching.NewEngine()
	engine.AddSymbol("AAPL")

	fmt.Println("\nSTEP 1: Post sell order, publish L1")
	engine.SubmitOrder("AAPL", "SELLER", orders.SideSell, 15025, 100, 1, "SELLER", "")
	publisher.PublishL1(marketdata.L1Quote{Symbol: "AAPL", AskPrice: 15025, AskSize: 100, Timestamp: orders.Now()})

	fmt.Println("\nSTEP 2: Execute trade, publish trade report")
	result := engine.SubmitOrder("AAPL", "BUYER", orders.SideBuy, 15025, 50, 2, "BUYER", "")
	for _, fill := range result.Fills {
		publisher.PublishTrade(marketdata.TradeReport{
			TradeID: fill.TradeID, Symbol: fill.Symbol,
			Price: fill.Price, Quantity: fill.Quantity,
			AggressorSide: orders.SideBuy, Timestamp: orders.Now(),
		})
	}
	publisher.PublishL1(marketdata.L1Quote{Symbol: "AAPL", AskPrice: 15025, AskSize: 50, LastPrice: 15025, LastSize: 50, Timestamp: orders.Now()})

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()

	l1Count := atomic.LoadInt32(&receivedL1)
	tradeCount := atomic.LoadInt32(&receivedTrades)

	fmt.Println("\nVERIFICATION:")
	fmt.Printf("  L1 quotes received: %d\n", l1Count)
	fmt.Printf("  Trade reports received: %d\n", tradeCount)
	if l1Count >= 2 && tradeCount >= 1 {
		fmt.Println("  [PASS] Subscribers received market data")
	} else {
		t.Errorf("expected 2+ L1, 1+ trades; got %d L1, %d trades", l1Count, tradeCount)
	}
}

// ============================================================================
// CORRECTNESS VERIFICATION
// ============================================================================

func TestCorrectness_VerifyRealMatching(t *testing.T) {
	fmt.Println()
	fmt.Println(repeat("=", 70))
	fmt.Println("CORRECTNESS VERIFICATION: Proving Real Matching")
	fmt.Println(repeat("=", 70))

	engine := matching.NewEngine()
	engine.AddSymbol("AAPL")

	var totalSellQty, totalFillQty int64

	fmt.Println("\n=== STEP 1: Post sell orders at different prices ===")
	sellOrders := []struct {
		uid   string
		price int64
		qty   int64
	}{
		{"S1", 15000, 100},
		{"S2", 15000, 50},
		{"S3", 15000, 75},
		{"S4", 15050, 200},
	}

	for i, so := range sellOrders {
		engine.SubmitOrder("AAPL", so.uid, orders.SideSell, so.price, so.qty, int64(i+1), "SELLER", "")
		totalSellQty += so.qty
		fmt.Printf("  Posted: %s SELL %d @ %s\n", so.uid, so.qty, orders.FormatPrice(so.price))
	}

	book := engine.Book("AAPL")
	askDepth := book.AskDepth(5)
	fmt.Println("\nOrder Book Asks:")
	for _, level := range askDepth {
		fmt.Printf("  %s: %d shares\n", orders.FormatPrice(level.Price), level.TotalVolume)
	}

	expectedAskQty := int64(225)
	if askDepth[0].TotalVolume != expectedAskQty {
		t.Errorf("expected %d at $150.00, got %d", expectedAskQty, askDepth[0].TotalVolume)
	}
	fmt.Printf("\nVerified: %d shares at $150.00 (expected %d)\n", askDepth[0].TotalVolume, expectedAskQty)

	fmt.Println("\n=== STEP 2: Send buy order that should match exactly 225 shares ===")
	result := engine.SubmitOrder("AAPL", "BUYER", orders.SideBuy, 15000, 225, 100, "BUYER", "")
	fmt.Printf("  BUY 225 @ $150.00 -> Generated %d fills\n", len(result.Fills))

	var filledQty int64
	for i, fill := range result.Fills {
		filledQty += fill.Quantity
		totalFillQty += fill.Quantity
		fmt.Printf("  Fill %d: %d shares @ %s (Maker=%s)\n", i+1, fill.Quantity, orders.FormatPrice(fill.Price), fill.MakerOrderUID)
	}
	if filledQty != 225 {
		t.Errorf("expected 225 filled, got %d", filledQty)
	}

	expectedFills := []struct {
		uid string
		qty int64
	}{
		{"S1", 100},
		{"S2", 50},
		{"S3", 75},
	}
	for i, expected := range expectedFills {
		if i >= len(result.Fills) {
			t.Errorf("missing fill for order %s", expected.uid)
			continue
		}
		if result.Fills[i].MakerOrderUID != expected.uid {
			t.Errorf("fill %d should be order %s, got %s", i, expected.uid, result.Fills[i].MakerOrderUID)
		}
		if result.Fills[i].Quantity != expected.qty {
			t.Errorf("fill %d should be %d shares, got %d", i, expected.qty, result.Fills[i].Quantity)
		}
	}
	fmt.Println("Verified: FIFO order enforced (first 3 orders matched in sequence)")

	askDepth = book.AskDepth(5)
	fmt.Println("\nOrder Book After Match:")
	for _, level := range askDepth {
		fmt.Printf("  %s: %d shares\n", orders.FormatPrice(level.Price), level.TotalVolume)
	}
	if len(askDepth) > 0 && askDepth[0].Price == 15000 {
		t.Errorf("$150.00 level should be gone, still has %d shares", askDepth[0].TotalVolume)
	}
	if len(askDepth) == 0 || askDepth[0].Price != 15050 {
		t.Errorf("best ask should now be $150.50")
	}
	fmt.Println("Verified: best ask now $150.50 (200 shares)")

	fmt.Println("\n=== STEP 3: Conservation of shares ===")
	if totalFillQty > totalSellQty {
		t.Errorf("filled %d but only posted %d sell", totalFillQty, totalSellQty)
	}
	remainingAsk := totalSellQty - totalFillQty
	if askDepth[0].TotalVolume != remainingAsk {
		t.Errorf("expected %d remaining, book shows %d", remainingAsk, askDepth[0].TotalVolume)
	}
	fmt.Printf("Verified: shares conserved (%d sold - %d filled = %d remaining)\n", totalSellQty, totalFillQty, remainingAsk)
}

// ============================================================================
// PERFORMANCE BENCHMARK
// ============================================================================

func TestPerformanceBenchmark(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping throughput benchmark in -short mode")
	}

	fmt.Println()
	fmt.Println(repeat("=", 70))
	fmt.Println("PERFORMANCE BENCHMARK")
	fmt.Println(repeat("=", 70))

	engine := matching.NewEngine()
	engine.AddSymbol("AAPL")

	for i := 0; i < 1000; i++ {
		engine.SubmitOrder("AAPL", fmt.Sprintf("warmup-%d", i), orders.SideSell, 15000+int64(i%100), 100, int64(i+1), "WARMUP", "")
	}

	const numOrders = 200000
	var fillCount int64

	fmt.Printf("\nProcessing %d orders...\n", numOrders)
	start := time.Now()
	for i := 0; i < numOrders; i++ {
		side := orders.SideBuy
		if i%2 == 0 {
			side = orders.SideSell
		}
		result := engine.SubmitOrder("AAPL", fmt.Sprintf("o-%d", i), side, 15000+int64(i%50), 10, int64(i+1001), fmt.Sprintf("T%d", i%100), "")
		fillCount += int64(len(result.Fills))
	}
	elapsed := time.Since(start)

	ordersPerSec := float64(numOrders) / elapsed.Seconds()
	usPerOrder := float64(elapsed.Microseconds()) / float64(numOrders)

	fmt.Println("\nRESULTS:")
	fmt.Printf("  Orders processed: %d\n", numOrders)
	fmt.Printf("  Time elapsed:     %v\n", elapsed)
	fmt.Printf("  Throughput:       %.0f orders/sec\n", ordersPerSec)
	fmt.Printf("  Latency:          %.2f us/order\n", usPerOrder)
	fmt.Printf("  Fills generated:  %d\n", fillCount)
}
