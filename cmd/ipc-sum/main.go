// Command ipc-sum is a test-fixture child: it accumulates every incoming
// value and re-emits the running total on topic "sum", until its upstream
// peer closes.
package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/nullbridge/orchestrator/ipcconn"
	"github.com/nullbridge/orchestrator/message"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ipc-sum:", err)
		os.Exit(1)
	}
}

func run() error {
	channel, err := ipcconn.ConnectEnv()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	tx, rx, err := channel.Split()
	if err != nil {
		return fmt.Errorf("split: %w", err)
	}

	start := time.Now()
	var sum float64

	for {
		m, err := rx.Recv()
		if err != nil {
			break
		}
		if len(m.Data) != 8 {
			return fmt.Errorf("malformed value: %d bytes", len(m.Data))
		}
		sum += math.Float64frombits(binary.LittleEndian.Uint64(m.Data))

		var data [8]byte
		binary.LittleEndian.PutUint64(data[:], math.Float64bits(sum))
		if err := tx.Send(message.Message{Topic: "sum", Data: data[:]}); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}

	fmt.Printf("total sum %v in %dms\n", sum, time.Since(start).Milliseconds())
	return nil
}
