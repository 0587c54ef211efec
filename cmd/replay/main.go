// Inspects tick journals written by the server: verifies the tick
// sequence is gapless and prints per-cause death counts and the input
// volume per file.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	persistlog "gridsnake.io/internal/persistence/log"
	"gridsnake.io/internal/sim/world"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "server data directory")
		verbose = flag.Bool("v", false, "print every entry")
	)
	flag.Parse()

	files, err := persistlog.JournalFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files under", *dataDir)
		os.Exit(1)
	}
	sort.Strings(files)

	var (
		lastTick   uint64
		gaps       int
		total      int
		joins      int
		leaves     int
		directions int
		deaths     = map[world.DeathCause]int{}
	)
	for _, path := range files {
		entries, err := persistlog.ReadTicks(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("%s: %d entries\n", path, len(entries))
		for _, e := range entries {
			if lastTick != 0 && e.Tick != lastTick+1 {
				fmt.Printf("  gap: tick %d follows %d\n", e.Tick, lastTick)
				gaps++
			}
			lastTick = e.Tick
			total++
			joins += len(e.Joins)
			leaves += len(e.Leaves)
			directions += len(e.Directions)
			for _, d := range e.Deaths {
				deaths[d.Cause]++
			}
			if *verbose {
				fmt.Printf("  tick=%d joins=%v leaves=%v directions=%d deaths=%d digest=%s\n",
					e.Tick, e.Joins, e.Leaves, len(e.Directions), len(e.Deaths), e.Digest)
			}
		}
	}

	fmt.Printf("ticks=%d gaps=%d joins=%d leaves=%d directions=%d\n", total, gaps, joins, leaves, directions)
	causes := make([]string, 0, len(deaths))
	for c := range deaths {
		causes = append(causes, string(c))
	}
	sort.Strings(causes)
	for _, c := range causes {
		fmt.Printf("deaths[%s]=%d\n", c, deaths[world.DeathCause(c)])
	}
	if gaps > 0 {
		os.Exit(1)
	}
}
