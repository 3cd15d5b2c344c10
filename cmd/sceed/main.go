// Licensed under the MIT License. See LICENSE file in the project root for details.

// Command sceed runs the case-study key/value store over the engine's
// line protocol: a TCP server whose set/get/del commands are each
// dual-executed and validated before their reply is sent.
//
// # Usage
//
//	go run ./cmd/sceed -port 9000 -num-ports 3
//
// Flags:
//
//	-port            first port to bind (default 9000)
//	-num-ports       number of consecutive ports to bind (default 3),
//	                 mirroring the original implementation's num_servers
//	-capacity        number of hash buckets, must be a power of two
//	-sync            validate synchronously before replying (default async)
//	-max-concurrent  cap on concurrently in-flight validations; over the cap,
//	                 async mode skips validation and sync mode waits
//	-sample-percent  percentage of closures admitted for validation
//	-work-cpuset     cpuset pinned to application work, e.g. "0-3"
//	-validation-cpuset cpuset pinned to validation, e.g. "4-7"
//
// A configuration error (an invalid cpuset, a non-power-of-two capacity)
// is fatal at startup; a validation mismatch detected while serving is
// fatal at the moment it is detected, by design — see internal/engine/validator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kianostad/scee/internal/engine/runtime"
	"github.com/kianostad/scee/internal/server"
	"github.com/kianostad/scee/internal/storage/kvstore"
)

func main() {
	port := flag.Int("port", 9000, "first port to bind")
	numPorts := flag.Int("num-ports", 3, "number of consecutive ports to bind")
	capacity := flag.Uint64("capacity", 1<<20, "number of hash buckets, must be a power of two")
	sync := flag.Bool("sync", false, "validate synchronously before replying")
	maxConcurrent := flag.Int("max-concurrent", 0, "cap on concurrently in-flight validations; 0 means unbounded")
	samplePercent := flag.Int("sample-percent", 100, "percentage of closures admitted for validation")
	workCPUSet := flag.String("work-cpuset", "", "cpuset pinned to application work, e.g. \"0-3\"")
	validationCPUSet := flag.String("validation-cpuset", os.Getenv("SCEE_VALIDATION_CPUSET"), "cpuset pinned to validation, e.g. \"4-7\"")
	flag.Parse()

	if *workCPUSet == "" {
		*workCPUSet = os.Getenv("SCEE_WORK_CPUSET")
	}

	if err := run(*port, *numPorts, *capacity, *sync, *maxConcurrent, *samplePercent, *workCPUSet, *validationCPUSet); err != nil {
		log.Fatalf("sceed: %v", err)
	}
}

func run(port, numPorts int, capacity uint64, syncValidate bool, maxConcurrent, samplePercent int, workCPUSet, validationCPUSet string) error {
	store := kvstore.New(capacity)

	cfg := server.Config{
		Host:     "",
		BasePort: port,
		NumPorts: numPorts,
		Engine: runtime.Config{
			SyncValidate:     syncValidate,
			MaxConcurrent:    maxConcurrent,
			SamplingPercent:  samplePercent,
			ValidationCPUSet: validationCPUSet,
		},
	}

	srv, err := server.New(store, cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Print("sceed: shutting down")
		cancel()
	}()

	join := runtime.AppThread(workCPUSet, func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			log.Printf("sceed: server error: %v", err)
		}
	})
	if err := join(); err != nil {
		return fmt.Errorf("failed to pin work cpuset: %w", err)
	}
	return nil
}
