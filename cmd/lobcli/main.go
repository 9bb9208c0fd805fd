package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-faker/faker/v4"

	"lob/blockmap/lsmmap"
	"lob/cli"
	"lob/lob"
)

const dataFolder = "demo"

var (
	shouldReset    *bool
	shouldSeed     *bool
	seedNumRecords *int
	minBlockSize   *int
	maxBlockSize   *int
)

func eraseDataFolder() {
	if err := os.RemoveAll(dataFolder); err != nil {
		panic(err)
	}
}

// seedStoreWithTestRecords puts faker-generated paragraphs of varying size
// into the store, so a fresh demo directory holds ids of several sizes
// without any manual setup. Under the default block sizes each seeded
// payload becomes inline or block-ref records; none is large enough to
// produce an indirect record.
func seedStoreWithTestRecords(store *lob.Store) {
	for i := 0; i < *seedNumRecords; i++ {
		n := 1
		if i%3 == 1 {
			n = 8
		} else if i%3 == 2 {
			n = 64
		}
		var text string
		for j := 0; j < n; j++ {
			text += faker.Paragraph()
		}
		if _, err := store.Put(strings.NewReader(text)); err != nil {
			log.Printf("seed: put %d failed: %v", i, err)
		}
	}
}

func main() {
	setupFlags()

	if *shouldReset {
		eraseDataFolder()
	}

	bm, err := lsmmap.Open(dataFolder)
	if err != nil {
		log.Fatal(err)
	}
	store := lob.NewWithConfig(bm, lob.Config{
		MinBlockSize: *minBlockSize,
		MaxBlockSize: *maxBlockSize,
	})

	if *shouldSeed {
		seedStoreWithTestRecords(store)
	}

	scanner := bufio.NewScanner(os.Stdin)
	demo := cli.NewCLI(scanner, store)
	demo.Start()
}

func setupFlags() {
	shouldReset = flag.Bool("reset", false, "Reset the store by erasing its folder before startup.")
	shouldSeed = flag.Bool("seed", false, "Seed the store using records created with go-faker.")
	seedNumRecords = flag.Int("records", 1000, "Amount of records to seed the store with upon startup.")
	minBlockSize = flag.Int("min-block-size", lob.DefaultMinBlockSize, "Payload chunks smaller than this are stored inline.")
	maxBlockSize = flag.Int("max-block-size", lob.DefaultMaxBlockSize, "Upper bound on a single block.")
	flag.Usage = func() {
		fmt.Println("\nLOB CLI\n\nArguments:")
		flag.PrintDefaults()
	}
	flag.Parse()
}
