// Command ipc-write is a test-fixture child: it consumes the incoming
// running sum and prints every 10,000th value, until its upstream peer
// closes.
package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/nullbridge/orchestrator/ipcconn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ipc-write:", err)
		os.Exit(1)
	}
}

func run() error {
	channel, err := ipcconn.ConnectEnv()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	_, rx, err := channel.Split()
	if err != nil {
		return fmt.Errorf("split: %w", err)
	}

	start := time.Now()
	var sum float64
	i := 0

	for {
		m, err := rx.Recv()
		if err != nil {
			break
		}
		if len(m.Data) != 8 {
			return fmt.Errorf("malformed value: %d bytes", len(m.Data))
		}
		sum = math.Float64frombits(binary.LittleEndian.Uint64(m.Data))

		if i%10_000 == 0 {
			fmt.Println(sum)
		}
		i++
	}

	fmt.Printf("final sum %v in %dms from start\n", sum, time.Since(start).Milliseconds())
	return nil
}
