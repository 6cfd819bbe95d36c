// Command ipc-generate is a test-fixture child: it connects to the
// orchestrator via IPC_SERVER and emits a configurable number of random
// float64 values on topic "generate", then exits.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/nullbridge/orchestrator/ipcconn"
	"github.com/nullbridge/orchestrator/message"
)

func main() {
	count := flag.Int("count", 1_000_000, "number of values to generate")
	topic := flag.String("topic", "generate", "topic to send on")
	seed := flag.Int64("seed", 0, "PRNG seed; 0 seeds from the clock")
	flag.Parse()

	if err := run(*count, *topic, *seed); err != nil {
		fmt.Fprintln(os.Stderr, "ipc-generate:", err)
		os.Exit(1)
	}
}

func run(count int, topic string, seed int64) error {
	channel, err := ipcconn.ConnectEnv()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	tx, _, err := channel.Split()
	if err != nil {
		return fmt.Errorf("split: %w", err)
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	start := time.Now()
	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < count; i++ {
		var data [8]byte
		binary.LittleEndian.PutUint64(data[:], math.Float64bits(rng.Float64()))
		if err := tx.Send(message.Message{Topic: topic, Data: data[:]}); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}

	elapsed := time.Since(start)
	ms := elapsed.Milliseconds()
	rate := float64(count) / elapsed.Seconds()
	fmt.Printf("sent %d numbers in %dms rate %.0frps\n", count, ms, rate)
	return nil
}
