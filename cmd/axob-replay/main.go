// Command axob-replay replays a JSONL feed file (one decoded Record
// per line) through the Multiplexer and reports snapshot-matcher
// health at the end of the run. It is the thin CLI driver collaborator
// spec.md places out of the core's scope.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/yanguangshaonian/axob/internal/axob"
	"github.com/yanguangshaonian/axob/internal/axoblog"
	"github.com/yanguangshaonian/axob/internal/feed"
	"github.com/yanguangshaonian/axob/internal/mux"
)

const (
	AppName    = "axob-replay"
	AppVersion = "1.0.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	switch command {
	case "replay":
		runReplay()
	case "version":
		fmt.Printf("%s %s\n", AppName, AppVersion)
	case "help":
		printUsage()
	default:
		fmt.Printf("unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s %s

Usage:
  axob-replay <command> [flags]

Commands:
  replay   Replay a JSONL feed file through the multiplexer
  version  Print the version
  help     Print this message

Replay flags:
  -feed string      Path to the JSONL feed file (required)
  -parallel         Set the multiplexer's Parallel flag (honored only by
                    ReplayBatch; replay dispatches records in file order)
  -workers int      Set the multiplexer's Workers size (default 4)
  -debug            Enable debug logging
`, AppName, AppVersion)
}

func runReplay() {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	feedPath := fs.String("feed", "", "path to the JSONL feed file")
	parallel := fs.Bool("parallel", false, "set the multiplexer's Parallel flag (records are still dispatched in file order)")
	workers := fs.Int("workers", 4, "set the multiplexer's Workers size")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Parse(os.Args[2:])

	if *feedPath == "" {
		fmt.Println("error: -feed is required")
		os.Exit(1)
	}

	log, err := axoblog.New(*debug)
	if err != nil {
		fmt.Printf("failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	multiplexer := mux.New(log, mux.NewMetrics(nil), mux.Schedule{
		OpenCallBgn: 9*3600 + 15*60, OpenCallEnd: 9*3600 + 25*60,
		AMTradingBgn: 9*3600 + 30*60, AMTradingEnd: 11*3600 + 30*60,
		PMTradingBgn: 13 * 3600, PMTradingEnd: 15 * 3600, AllEnd: 15*3600 + 5*60,
	})
	multiplexer.Parallel = *parallel
	multiplexer.Workers = *workers

	f, err := os.Open(*feedPath)
	if err != nil {
		log.Fatal("failed to open feed file", zap.Error(err))
	}
	defer f.Close()

	known := make(map[uint32]bool)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec feed.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Error("malformed feed line, skipping", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		processRecord(multiplexer, known, log, rec)
	}
	if err := scanner.Err(); err != nil {
		log.Fatal("error scanning feed file", zap.Error(err))
	}

	if multiplexer.AreYouOK() {
		fmt.Println("replay complete: all exchange snapshots matched")
	} else {
		fmt.Println("replay complete: unmatched exchange snapshots remain")
		os.Exit(2)
	}
}

func processRecord(m *mux.Multiplexer, known map[uint32]bool, log *zap.Logger, rec feed.Record) {
	switch {
	case rec.Snap != nil:
		securityID := rec.Snap.SecurityID
		if !known[securityID] {
			source := axob.SourceSZSE
			if rec.Snap.SecurityIDSource == 2 {
				source = axob.SourceSSE
			}
			m.Subscribe(securityID, source)
			known[securityID] = true
		}
		decoded, err := feed.DecodeSnap(rec.Snap)
		if err != nil {
			log.Error("failed to decode snapshot", zap.Error(err))
			return
		}
		m.DispatchSnapshot(securityID, *decoded.Snap)

	case rec.Order != nil:
		if !known[rec.Order.SecurityID] {
			return
		}
		decoded, err := feed.DecodeOrder(rec.Order)
		if err != nil {
			log.Error("failed to decode order", zap.Error(err))
			return
		}
		if decoded.Order != nil {
			m.DispatchOrder(rec.Order.SecurityID, *decoded.Order)
		} else if decoded.Cancel != nil {
			m.DispatchCancel(rec.Order.SecurityID, *decoded.Cancel)
		}

	case rec.Exec != nil:
		if !known[rec.Exec.SecurityID] {
			return
		}
		decoded, err := feed.DecodeExec(rec.Exec)
		if err != nil {
			log.Error("failed to decode execution", zap.Error(err))
			return
		}
		m.DispatchExec(rec.Exec.SecurityID, *decoded.Exec)
	}
}
