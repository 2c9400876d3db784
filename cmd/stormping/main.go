// stormping — an asynchronous ICMP ping client.
//
// Usage:
//
//	sudo stormping [flags] <address>
//
// Flags:
//
//	-c COUNT   stop after N probes (default: run until interrupted)
//	-s SIZE    packet size in bytes, including the IP header (default 64)
//	-p POLICY  socket selection policy: raw, dgram, raw,dgram, dgram,raw
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ravvdevv/stormping"
	"github.com/ravvdevv/stormping/internal/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	var count int
	var size int
	var policyFlag string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:           "stormping <address>",
		Short:         "Asynchronous ICMP echo client",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeries(args[0], count, size, policyFlag, interval)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "c", 0, "stop after N probes (0 = until interrupted)")
	cmd.Flags().IntVarP(&size, "size", "s", 64, "packet size in bytes, including the IP header")
	cmd.Flags().StringVarP(&policyFlag, "policy", "p", "raw,dgram", "socket policy: raw, dgram, raw,dgram, dgram,raw")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "interval between probes")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stormping: %v\n", err)
		return 1
	}
	return 0
}

func runSeries(address string, count, size int, policyFlag string, interval time.Duration) error {
	if size < 64 {
		return fmt.Errorf("size must be more than 64")
	}

	policy, err := parsePolicyFlag(policyFlag)
	if err != nil {
		return err
	}

	cfg := stormping.DefaultConfig()
	cfg.Size = size
	cfg.Policy = policy

	client, err := stormping.New(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	iter, err := client.Series(ctx, address, stormping.SeriesOptions{
		Size:     size,
		Interval: interval,
		Count:    count,
	})
	if err != nil {
		return err
	}

	var sent, lost int
	var rttSum, rttMin, rttMax time.Duration

	fmt.Printf("STORMPING %s (%d bytes)\n", address, size)
	for {
		outcome, done, err := iter.Next()
		if done {
			break
		}
		if err != nil {
			// Cancellation: print the summary and exit cleanly rather
			// than surfacing context.Canceled as a CLI error.
			break
		}

		sent++
		if rtt, ok := outcome.RTT(); ok {
			rttSum += rtt
			if rttMin == 0 || rtt < rttMin {
				rttMin = rtt
			}
			if rtt > rttMax {
				rttMax = rtt
			}
			fmt.Printf("reply from %s: seq=%d time=%s\n", address, sent, fmtRTT(rtt))
		} else {
			lost++
			fmt.Printf("timeout: seq=%d\n", sent)
		}
	}

	printSummary(address, sent, lost, rttSum, rttMin, rttMax)
	return nil
}

func parsePolicyFlag(s string) (stormping.SelectionPolicy, error) {
	p, err := transport.ParsePolicy(s)
	if err != nil {
		return 0, err
	}
	switch p {
	case transport.PolicyDatagram:
		return stormping.PolicyDatagram, nil
	case transport.PolicyRawThenDatagram:
		return stormping.PolicyRawThenDatagram, nil
	case transport.PolicyDatagramThenRaw:
		return stormping.PolicyDatagramThenRaw, nil
	default:
		return stormping.PolicyRaw, nil
	}
}

func printSummary(address string, sent, lost int, rttSum, rttMin, rttMax time.Duration) {
	received := sent - lost
	loss := 0.0
	if sent > 0 {
		loss = float64(lost) / float64(sent) * 100
	}
	fmt.Printf("\n--- %s stormping statistics ---\n", address)
	fmt.Printf("%d probes sent, %d received, %.1f%% loss\n", sent, received, loss)
	if received > 0 {
		avg := rttSum / time.Duration(received)
		fmt.Printf("rtt min/avg/max = %s/%s/%s\n", fmtRTT(rttMin), fmtRTT(avg), fmtRTT(rttMax))
	}
}

func fmtRTT(d time.Duration) string {
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}
