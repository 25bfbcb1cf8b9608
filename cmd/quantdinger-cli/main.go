package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"quantdinger/pkg/quantdinger"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quantdinger-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version                          Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status                           Show broker connection status\n")
		fmt.Fprintf(os.Stderr, "  connect <host> <port> <clientId> Connect to the broker gateway\n")
		fmt.Fprintf(os.Stderr, "  disconnect                       Disconnect from the broker gateway\n")
		fmt.Fprintf(os.Stderr, "  orders [status]                  List orders\n")
		fmt.Fprintf(os.Stderr, "  cancel <orderId>                 Cancel an order\n")
		fmt.Fprintf(os.Stderr, "  positions                        List reconciled positions\n")
		fmt.Fprintf(os.Stderr, "  trades                           List recent trades\n")
		fmt.Fprintf(os.Stderr, "  quote <symbol> [market]          Fetch a market quote\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  QUANTDINGER_URL  Trader API base URL (default http://localhost:8080)\n\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	baseURL := "http://localhost:8080"
	if v := os.Getenv("QUANTDINGER_URL"); v != "" {
		baseURL = v
	}
	client := quantdinger.NewClient(baseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("quantdinger-cli %s\n", version)

	case "status":
		err = showStatus(ctx, client)

	case "connect":
		if len(os.Args) < 5 {
			fatal("connect requires <host> <port> <clientId>")
		}
		var port, clientID int
		if port, err = strconv.Atoi(os.Args[3]); err != nil {
			fatal("invalid port: " + os.Args[3])
		}
		if clientID, err = strconv.Atoi(os.Args[4]); err != nil {
			fatal("invalid clientId: " + os.Args[4])
		}
		_, err = client.Connect(ctx, quantdinger.ConnParams{
			Host: os.Args[2], Port: port, ClientID: clientID,
		})
		if err == nil {
			err = showStatus(ctx, client)
		}

	case "disconnect":
		err = client.Disconnect(ctx)

	case "orders":
		status := ""
		if len(os.Args) > 2 {
			status = os.Args[2]
		}
		var orders []quantdinger.Order
		if orders, err = client.ListOrders(ctx, status); err == nil {
			for _, o := range orders {
				fmt.Printf("%s  %-8s %-4s %6d  %-16s %s\n",
					o.ID, o.Symbol, o.Side, o.Qty, o.Status, o.LastError)
			}
		}

	case "cancel":
		if len(os.Args) < 3 {
			fatal("cancel requires <orderId>")
		}
		var o *quantdinger.Order
		if o, err = client.CancelOrder(ctx, os.Args[2]); err == nil {
			fmt.Printf("%s  %s\n", o.ID, o.Status)
		}

	case "positions":
		var positions []quantdinger.Position
		if positions, err = client.GetPositions(ctx); err == nil {
			for _, p := range positions {
				fmt.Printf("%-10s %6d @ %s  (last %s)\n", p.Display, p.Qty, p.AvgEntry, p.LastPrice)
			}
		}

	case "trades":
		var trades []quantdinger.Trade
		if trades, err = client.GetTrades(ctx, 50); err == nil {
			for _, tr := range trades {
				profit := ""
				if tr.Profit.Valid {
					profit = "  profit " + tr.Profit.Decimal.String()
				}
				fmt.Printf("%-8s %-4s %6d @ %s%s\n", tr.Symbol, tr.Side, tr.Qty, tr.Price, profit)
			}
		}

	case "quote":
		if len(os.Args) < 3 {
			fatal("quote requires <symbol>")
		}
		market := "USStock"
		if len(os.Args) > 3 {
			market = os.Args[3]
		}
		var q *quantdinger.Quote
		if q, err = client.GetQuote(ctx, os.Args[2], market); err == nil {
			fmt.Printf("%s  bid %s  ask %s  last %s  vol %d\n", q.Symbol, q.Bid, q.Ask, q.Last, q.Volume)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	os.Exit(1)
}

func showStatus(ctx context.Context, client *quantdinger.Client) error {
	st, err := client.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("state:    %s\n", st.State)
	if st.Host != "" {
		fmt.Printf("gateway:  %s:%d (clientId %d)\n", st.Host, st.Port, st.ClientID)
	}
	if st.Account != "" {
		fmt.Printf("account:  %s\n", st.Account)
	}
	if st.LastError != "" {
		fmt.Printf("lastErr:  %s\n", st.LastError)
	}
	return nil
}
