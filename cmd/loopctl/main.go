// Command loopctl is a small demonstration harness for the loop runtime:
// it boots a Runner, spawns a nursery with a demo task, and prints the
// runner's statistics once at spawn time, giving the library a runnable entry
// point the way infra tooling built on it would have one.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/NetPo4ki/looprt/config"
	"github.com/NetPo4ki/looprt/internal/log"
	"github.com/NetPo4ki/looprt/loop"
	"github.com/NetPo4ki/looprt/reactor"
)

func main() {
	root := &cobra.Command{
		Use:   "loopctl",
		Short: "demonstrate and exercise the loop runtime",
	}
	var envFile string
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "optional .env file to load")

	root.AddCommand(runCmd(&envFile), benchCmd(&envFile))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunner(envFile string) (*loop.Runner, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger := log.New(os.Stdout)
	return loop.NewRunner(reactor.New, loop.RunnerConfig{
		Clock:  loop.NewSystemClock(cfg.ClockOffsetBound),
		Logger: logger,
		Seed:   cfg.Seed,
	})
}

func runCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run a small demo nursery to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRunner(*envFile)
			if err != nil {
				return err
			}
			_, err = r.Run(demoMain)
			return err
		},
	}
}

func benchCmd(envFile *string) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "spawn N trivial child tasks and report elapsed time",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRunner(*envFile)
			if err != nil {
				return err
			}
			start := time.Now()
			_, err = r.Run(func(t *loop.Task) (result any, runErr error) {
				nursery := loop.OpenNursery(t)
				defer func() { runErr = nursery.Close(runErr) }()
				for i := 0; i < n; i++ {
					nursery.Spawn(func(ct *loop.Task) (any, error) {
						return nil, loop.Checkpoint(ct)
					}, fmt.Sprintf("bench-%d", i))
				}
				return nil, nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("ran %d tasks in %s\n", n, time.Since(start))
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 1000, "number of child tasks to spawn")
	return cmd
}

func demoMain(t *loop.Task) (result any, runErr error) {
	nursery := loop.OpenNursery(t)
	defer func() { runErr = nursery.Close(runErr) }()

	nursery.Spawn(func(ct *loop.Task) (any, error) {
		fmt.Println("worker: sleeping 50ms")
		if err := loop.Sleep(ct, 50*time.Millisecond); err != nil {
			return nil, err
		}
		fmt.Println("worker: done")
		return nil, nil
	}, "worker")

	stats := t.Runner().CurrentStatistics()
	fmt.Printf("statistics at spawn time: %+v\n", stats)
	return nil, nil
}
