// Command bscoredemo wires a bscore.Pool to an in-memory backing store and
// a completion sink, submits a batch of synthetic commands through it, and
// prints a metrics summary — the Go equivalent of standing up one LU on
// the source's backing-store thread pool and driving it by hand.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/openscsi/bscore"
	"github.com/openscsi/bscore/eventloop"
	"github.com/openscsi/bscore/internal/logging"
	"github.com/openscsi/bscore/memstore"
	"github.com/openscsi/bscore/numa"
	"github.com/openscsi/bscore/sink"
)

func main() {
	var (
		numCommands = flag.Int("n", 10000, "number of commands to submit")
		numWorkers  = flag.Int("workers", bscore.DefaultNumWorkers, "worker pool size")
		useNUMA     = flag.Bool("numa", false, "enable NUMA-sharded mode")
		verbose     = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	store := memstore.New(256 * 1024 * 1024)
	defer store.Close()

	bscore.RegisterBackend(memstore.Template)

	metrics := bscore.NewMetrics()

	loop, err := eventloop.New()
	if err != nil {
		log.Fatalf("eventloop.New: %v", err)
	}
	defer loop.Close()

	var pending sync.WaitGroup
	deliver := func(cmd *bscore.Command) {
		metrics.RecordCompletion(cmd, 0)
		pending.Done()
	}

	s, err := sink.Init(loop, deliver)
	if err != nil {
		log.Fatalf("sink.Init: %v", err)
	}
	defer s.Close()

	cfg := bscore.PoolConfig{
		RequestFn:  store.Request,
		NumWorkers: *numWorkers,
		Sink:       s,
		Logger:     logger,
	}
	if *useNUMA {
		pinner, err := numa.DiscoverPinner()
		if err != nil {
			logger.Warnf("NUMA discovery failed, falling back to single shard: %v", err)
		} else {
			cfg.NUMA = true
			cfg.Pinner = pinner
		}
	}

	pool, err := bscore.Open(cfg)
	if err != nil {
		log.Fatalf("bscore.Open: %v", err)
	}
	defer pool.Close()

	go loop.Run()

	logger.Infof("submitting %d commands across %d worker(s)", *numCommands, pool.NumWorkers())
	pending.Add(*numCommands)
	for i := 0; i < *numCommands; i++ {
		cmd := &bscore.Command{
			Op:     bscore.OpRead,
			LBA:    uint64(rand.Intn(1000)) * 512,
			Length: 512,
			Buffer: make([]byte, 512),
			NodeID: bscore.UnassignedNode,
		}
		if err := pool.Submit(cmd); err != nil {
			pending.Done()
			logger.Errorf("submit failed: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		pending.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warnf("timed out waiting for completions")
	}

	metrics.Stop()
	fmt.Println(pool.Stats().String())
	fmt.Println(metrics.Snapshot().String())
	os.Exit(0)
}
